package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-best-rank/config"
	"github.com/aluiziolira/go-best-rank/discovery"
	"github.com/aluiziolira/go-best-rank/notify"
	"github.com/aluiziolira/go-best-rank/pipeline"
	"github.com/aluiziolira/go-best-rank/registry"
	"github.com/aluiziolira/go-best-rank/report"
	"github.com/aluiziolira/go-best-rank/scraper"
	"github.com/aluiziolira/go-best-rank/store"
)

type globalFlags struct {
	configPath  string
	verbose     bool
	metricsAddr string
}

// app is the state shared by every subcommand once the configuration loaded.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	metrics *scraper.Metrics
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:           "ranktracker",
		Short:         "Track a brand's position in the category best rankings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	root.AddCommand(newCollectCmd(a), newReportCmd(a), newCategoriesCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command, flags *globalFlags) error {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.LoadFile(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.loc = loc
	a.metrics = scraper.NewMetrics()
	return nil
}

func (a *app) registry() *registry.Registry {
	return registry.New(a.cfg.RegistryDir)
}

// openStore returns the configured batch store and a close func.
func (a *app) openStore() (store.Store, func() error, error) {
	var (
		s       store.Store
		closeFn = func() error { return nil }
	)
	switch a.cfg.StoreBackend {
	case "sqlite":
		db, err := store.OpenSQLite(a.cfg.SQLitePath, a.loc)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = db, db.Close
	default:
		s = store.NewFileStore(a.cfg.OutputDir, a.loc)
	}

	if a.cfg.CacheSize > 0 {
		cached, err := store.NewCachedStore(s, a.loc, a.cfg.CacheSize)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		s = cached
	}
	return s, closeFn, nil
}

func (a *app) discoverer() (discovery.Discoverer, error) {
	var chain discovery.Chain
	if a.cfg.CategoryPageURL != "" {
		page, err := discovery.NewPageSource(a.cfg.CategoryPageURL, a.cfg.UserAgent)
		if err != nil {
			return nil, err
		}
		chain = append(chain, page)
	}
	if a.cfg.CategoryFile != "" {
		chain = append(chain, discovery.FileSource{Path: a.cfg.CategoryFile})
	}
	return chain, nil
}

// pipeline wires every collaborator of a run over s.
func (a *app) pipeline(s store.Store) (*pipeline.Pipeline, error) {
	reg := a.registry()
	disc, err := a.discoverer()
	if err != nil {
		return nil, err
	}
	client, err := scraper.NewClient(a.cfg, a.metrics)
	if err != nil {
		return nil, err
	}
	collectOpts, err := scraper.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Discoverer: disc,
		Registry:   reg,
		Collector:  scraper.NewCollector(client, collectOpts, scraper.WithMetrics(a.metrics)),
		Store:      s,
		Aggregator: report.NewAggregator(s, report.OptionsFromConfig(a.cfg), report.WithVersionHistory(reg)),
		Artifacts:  report.NewArtifactWriter(store.Layout{Root: a.cfg.OutputDir}, a.cfg.Report.XLSX),
		Notifier:   notify.New(a.cfg.WebhookURL, a.cfg.Timeout),
	}
	opts := pipeline.Options{
		MinDays:  a.cfg.Report.MinDays,
		Location: a.loc,
	}
	if len(a.cfg.Brands) > 0 {
		opts.Brand = a.cfg.Brands[0]
	}
	return pipeline.New(deps, opts), nil
}

// serveMetrics starts the Prometheus endpoint when an address is configured.
// The returned func shuts it down.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:    a.cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", a.cfg.MetricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func closeQuietly(closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Warn("close store", slog.Any("error", err))
	}
}
