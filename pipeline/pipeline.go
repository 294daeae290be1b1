// Package pipeline runs the daily collection and the periodic report jobs on
// top of the registry, collector, store and report packages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/notify"
	"github.com/aluiziolira/go-best-rank/registry"
	"github.com/aluiziolira/go-best-rank/report"
	"github.com/aluiziolira/go-best-rank/store"
)

var (
	// ErrNoTaxonomy is returned when discovery failed and no snapshot is stored.
	ErrNoTaxonomy = errors.New("pipeline: no category taxonomy available")
	// ErrAllCategoriesFailed is returned when every attempted category failed.
	ErrAllCategoriesFailed = errors.New("pipeline: all categories failed")
	// ErrInsufficientData is returned when a window has fewer days with data
	// than the configured minimum. The report is not written.
	ErrInsufficientData = errors.New("pipeline: insufficient data for report")
)

// Discoverer produces the observed category set.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.CategoryNode, error)
}

// Registry is the taxonomy store.
type Registry interface {
	Load() (models.CategorySnapshot, error)
	Reconcile(observed []models.CategoryNode) (registry.ReconcileResult, error)
}

// Collector fetches rankings for the given categories.
type Collector interface {
	Collect(ctx context.Context, categories []models.CategoryNode) *models.CollectionResult
}

// Aggregator builds a report for a window.
type Aggregator interface {
	Aggregate(ctx context.Context, w report.Window) (*report.Report, error)
}

// Artifacts writes rendered reports and daily narratives.
type Artifacts interface {
	WriteReport(r *report.Report) (report.Artifacts, error)
	WriteDaily(batch models.DailyBatch, opts report.DailyOptions) (string, error)
}

// Deps are the collaborators of a Pipeline. Notifier may be nil.
type Deps struct {
	Discoverer Discoverer
	Registry   Registry
	Collector  Collector
	Store      store.Store
	Aggregator Aggregator
	Artifacts  Artifacts
	Notifier   notify.Notifier
}

// Options tunes the runs.
type Options struct {
	Brand    string
	MinDays  int
	Location *time.Location
}

// Pipeline wires one collection or report run.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New returns a pipeline over deps.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// CollectSummary describes a finished collection run.
type CollectSummary struct {
	Date      time.Time
	Version   int
	Changed   bool
	Result    *models.CollectionResult
	DailyPath string
}

// RunCollect discovers the taxonomy, reconciles it, collects every category
// and replaces the batch of the run date. A failed discovery falls back to
// the stored snapshot.
func (p *Pipeline) RunCollect(ctx context.Context) (*CollectSummary, error) {
	summary := &CollectSummary{}

	categories, err := p.taxonomy(ctx, summary)
	if err != nil {
		return summary, err
	}

	result := p.deps.Collector.Collect(ctx, categories)
	summary.Result = result
	summary.Date = models.DateOf(result.StartTime.In(p.opts.Location))

	if err := ctx.Err(); err != nil {
		slog.Warn("collection interrupted, batch not written",
			slog.String("date", models.DateKey(summary.Date)),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("not_attempted", len(result.NotAttempted)),
		)
		return summary, fmt.Errorf("collect %s: %w", models.DateKey(summary.Date), err)
	}

	if result.AllFailed() {
		p.notify(ctx, notify.FailureSummary(summary.Date, result))
		return summary, fmt.Errorf("%w: %d of %d", ErrAllCategoriesFailed, len(result.Failures), result.Attempted())
	}

	if err := p.deps.Store.Write(ctx, summary.Date, result.Records); err != nil {
		return summary, err
	}

	batch := models.DailyBatch{Date: summary.Date, Records: result.Records}
	path, err := p.deps.Artifacts.WriteDaily(batch, report.DailyOptions{
		Brand:       p.opts.Brand,
		GeneratedAt: p.now().In(p.opts.Location),
	})
	if err != nil {
		return summary, err
	}
	summary.DailyPath = path

	if len(result.Failures) > 0 {
		slog.Warn("some categories failed",
			slog.Int("failed", len(result.Failures)),
			slog.Any("errors_by_type", result.ErrorsByType),
		)
	}
	slog.Info("daily batch stored",
		slog.String("date", models.DateKey(summary.Date)),
		slog.Int("records", len(result.Records)),
		slog.Int("taxonomy_version", summary.Version),
	)
	return summary, nil
}

func (p *Pipeline) taxonomy(ctx context.Context, summary *CollectSummary) ([]models.CategoryNode, error) {
	observed, discoverErr := p.deps.Discoverer.Discover(ctx)
	if discoverErr == nil {
		res, err := p.deps.Registry.Reconcile(observed)
		if err != nil {
			return nil, err
		}
		summary.Version = res.Snapshot.Version
		summary.Changed = res.Changed
		if len(res.Snapshot.Nodes) == 0 {
			return nil, ErrNoTaxonomy
		}
		return res.Snapshot.Nodes, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Warn("category discovery failed, using stored snapshot", slog.Any("error", discoverErr))
	snap, err := p.deps.Registry.Load()
	if err != nil {
		return nil, err
	}
	if len(snap.Nodes) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoTaxonomy, discoverErr)
	}
	summary.Version = snap.Version
	return snap.Nodes, nil
}

// ReportSummary describes a report run.
type ReportSummary struct {
	Report *report.Report
	Files  report.Artifacts
}

// RunReport aggregates w and writes its artifacts. A window with fewer than
// MinDays dates holding data yields ErrInsufficientData and writes nothing.
func (p *Pipeline) RunReport(ctx context.Context, w report.Window) (*ReportSummary, error) {
	r, err := p.deps.Aggregator.Aggregate(ctx, w)
	if err != nil {
		return nil, err
	}
	summary := &ReportSummary{Report: r}

	if r.DaysWithData < p.opts.MinDays {
		return summary, fmt.Errorf("%w: %s has %d day(s) of data, need %d",
			ErrInsufficientData, w.Label, r.DaysWithData, p.opts.MinDays)
	}

	files, err := p.deps.Artifacts.WriteReport(r)
	if err != nil {
		return summary, err
	}
	summary.Files = files
	p.notify(ctx, notify.ReportSummary(r, files))
	return summary, nil
}

// notify never fails a run.
func (p *Pipeline) notify(ctx context.Context, text string) {
	if err := p.deps.Notifier.Notify(ctx, text); err != nil {
		slog.Warn("notification failed", slog.Any("error", err))
	}
}
