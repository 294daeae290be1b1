// Package scraper collects brand rankings per category from the ranking API.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-best-rank/config"
	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/parser"
)

// Options controls a collection run.
type Options struct {
	PageSize    int
	MaxPages    int
	Parallelism int
	Backoff     Backoff
	Brands      []string
	Location    *time.Location
}

// OptionsFromConfig maps the tracker configuration onto collector options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		PageSize:    cfg.PageSize,
		MaxPages:    cfg.MaxPages,
		Parallelism: cfg.Parallelism,
		Backoff: Backoff{
			Base:        cfg.RetryBackoff,
			Multiplier:  cfg.RetryMultiplier,
			Max:         cfg.RetryBackoffMax,
			MaxAttempts: cfg.MaxAttempts,
		},
		Brands:   cfg.Brands,
		Location: loc,
	}, nil
}

// Collector walks every category's ranking pages and keeps the allowed brands.
type Collector struct {
	fetcher PageFetcher
	opts    Options
	brands  parser.BrandSet
	clock   Clock
	now     func() time.Time
	Metrics *Metrics
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithClock replaces the retry wait source.
func WithClock(clock Clock) CollectorOption {
	return func(c *Collector) { c.clock = clock }
}

// WithNow replaces the timestamp source used for record dates.
func WithNow(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) CollectorOption {
	return func(c *Collector) { c.Metrics = m }
}

// NewCollector returns a collector fetching pages through fetcher.
func NewCollector(fetcher PageFetcher, opts Options, options ...CollectorOption) *Collector {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	c := &Collector{
		fetcher: fetcher,
		opts:    opts,
		brands:  parser.NewBrandSet(opts.Brands),
		clock:   realClock{},
		now:     time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

type categoryOutcome struct {
	started bool
	records []models.ProductRecord
	failure *models.CategoryFetchFailure
}

type runStats struct {
	requests int64
	retries  int64
	pages    int64
}

// Collect fetches every category with bounded parallelism. A failing category
// never aborts the others. When ctx ends, categories not yet started are
// reported in NotAttempted. Records and failures follow the input order.
func (c *Collector) Collect(ctx context.Context, categories []models.CategoryNode) *models.CollectionResult {
	start := c.now()
	date := models.DateOf(start.In(c.opts.Location))
	outcomes := make([]categoryOutcome, len(categories))
	stats := &runStats{}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.opts.Parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				records, failure := c.collectCategory(ctx, categories[idx], date, stats)
				outcomes[idx] = categoryOutcome{started: true, records: records, failure: failure}
			}
		}()
	}

feed:
	for idx := range categories {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	result := &models.CollectionResult{
		Records:      []models.ProductRecord{},
		StartTime:    start,
		ErrorsByType: make(map[string]int),
	}
	for idx, out := range outcomes {
		switch {
		case !out.started:
			result.NotAttempted = append(result.NotAttempted, categories[idx])
		case out.failure != nil:
			result.Failures = append(result.Failures, *out.failure)
			result.ErrorsByType[out.failure.ErrorType]++
		default:
			result.Succeeded++
			result.Records = append(result.Records, out.records...)
		}
	}
	result.EndTime = c.now()
	result.RequestCount = int(atomic.LoadInt64(&stats.requests))
	result.RetryCount = int(atomic.LoadInt64(&stats.retries))
	result.PageCount = int(atomic.LoadInt64(&stats.pages))

	slog.Info("collection finished",
		slog.Int("categories", len(categories)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failures)),
		slog.Int("not_attempted", len(result.NotAttempted)),
		slog.Int("records", len(result.Records)),
		slog.Int("requests", result.RequestCount),
		slog.Int("retries", result.RetryCount),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result
}

func (c *Collector) collectCategory(ctx context.Context, cat models.CategoryNode, date time.Time, stats *runStats) ([]models.ProductRecord, *models.CategoryFetchFailure) {
	seen := make(map[models.RecordKey]struct{})
	records := []models.ProductRecord{}

	for pageNo := 1; pageNo <= c.opts.MaxPages; pageNo++ {
		req := PageRequest{Category: cat, PageNo: pageNo, PageSize: c.opts.PageSize}

		var page *parser.Page
		attempts, err := Retry(ctx, c.opts.Backoff, c.clock, func(attempt int) error {
			atomic.AddInt64(&stats.requests, 1)
			p, err := c.fetcher.FetchPage(ctx, req)
			if err != nil {
				return err
			}
			page = p
			return nil
		}, func(attempt int, delay time.Duration, err error) {
			atomic.AddInt64(&stats.retries, 1)
			c.Metrics.IncRetries()
			slog.Warn("retrying ranking page",
				slog.String("category", cat.Key().String()),
				slog.Int("page", pageNo),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		})
		if err != nil {
			failure := &models.CategoryFetchFailure{
				Category:  cat,
				Page:      pageNo,
				Attempts:  attempts,
				ErrorType: failureLabel(err),
				Err:       err,
			}
			c.Metrics.IncCategoryFailure(failure.ErrorType)
			slog.Error("category collection failed",
				slog.String("depth1_code", cat.Depth1Code),
				slog.String("depth2_code", cat.Depth2Code),
				slog.Int("page", pageNo),
				slog.Int("attempts", attempts),
				slog.String("error_type", failure.ErrorType),
				slog.Any("error", err),
			)
			return nil, failure
		}

		atomic.AddInt64(&stats.pages, 1)
		c.Metrics.IncPages()
		if len(page.Listings) == 0 {
			break
		}

		collectedAt := c.now().In(c.opts.Location)
		for _, l := range page.Listings {
			if !c.brands.Contains(l.BrandName) {
				continue
			}
			rec := models.ProductRecord{
				Date:         date,
				CollectedAt:  collectedAt,
				Depth1Code:   cat.Depth1Code,
				Depth1Name:   cat.Depth1Name,
				Depth2Code:   cat.Depth2Code,
				Depth2Name:   cat.Depth2Name,
				Rank:         l.Rank,
				BrandName:    l.BrandName,
				ProductName:  l.ProductName,
				SalePrice:    l.SalePrice,
				DiscountRate: l.DiscountRate,
				ProductURL:   l.ProductURL,
			}
			if err := parser.ValidateRecord(&rec); err != nil {
				slog.Debug("skipping listing", slog.String("category", cat.Key().String()), slog.Any("error", err))
				continue
			}
			key := rec.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, rec)
		}

		if !page.HasNext {
			break
		}
	}

	c.Metrics.IncCategorySuccess()
	c.Metrics.AddRecords(len(records))
	slog.Debug("category collected",
		slog.String("category", cat.Key().String()),
		slog.Int("records", len(records)),
	)
	return records, nil
}

func failureLabel(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var timeout ErrTimeout
		if !errors.As(err, &timeout) {
			return "canceled"
		}
	}
	return errorTypeLabel(err)
}
