package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/pipeline"
)

func newCollectCmd(a *app) *cobra.Command {
	var deadline time.Duration

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect today's rankings for every category and store the batch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}

			s, closeFn, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeQuietly(closeFn)

			p, err := a.pipeline(s)
			if err != nil {
				return err
			}
			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			summary, err := p.RunCollect(ctx)
			if summary != nil && summary.Result != nil {
				printCollectSummary(summary)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Stop issuing requests after this long (0 = no deadline)")
	return cmd
}

func printCollectSummary(s *pipeline.CollectSummary) {
	r := s.Result
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Collection " + models.DateKey(s.Date))
	t.AppendRows([]table.Row{
		{"Taxonomy version", s.Version},
		{"Taxonomy changed", s.Changed},
		{"Categories succeeded", r.Succeeded},
		{"Categories failed", len(r.Failures)},
		{"Categories not attempted", len(r.NotAttempted)},
		{"Records", len(r.Records)},
		{"Pages", r.PageCount},
		{"Requests", r.RequestCount},
		{"Retries", r.RetryCount},
		{"Duration", r.EndTime.Sub(r.StartTime).Round(time.Millisecond)},
	})
	if s.DailyPath != "" {
		t.AppendRow(table.Row{"Summary file", s.DailyPath})
	}

	types := make([]string, 0, len(r.ErrorsByType))
	for k := range r.ErrorsByType {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		t.AppendRow(table.Row{"Errors: " + k, r.ErrorsByType[k]})
	}
	t.Render()
}
