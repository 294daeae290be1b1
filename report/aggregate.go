// Package report aggregates stored daily batches into weekly and monthly
// reports and renders them as tables, narratives and spreadsheets.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aluiziolira/go-best-rank/config"
	"github.com/aluiziolira/go-best-rank/models"
)

// Reader is the part of the batch store the aggregator needs.
type Reader interface {
	ReadRange(ctx context.Context, start, end time.Time) ([]models.DailyBatch, error)
}

// VersionHistory lists taxonomy versions recorded in [start, end).
type VersionHistory interface {
	VersionsBetween(start, end time.Time) ([]models.VersionLogEntry, error)
}

// Trend compares a week's daily average with the week before it.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// trendBand is the relative change treated as flat.
const trendBand = 0.10

// DayStat is the record count of one date.
type DayStat struct {
	Date    time.Time
	Count   int
	HasData bool
}

// CategoryStat summarises one (depth1, depth2) category.
type CategoryStat struct {
	Node      models.CategoryNode
	Count     int
	MeanRank  float64
	BestRank  int
	MeanPrice float64
}

// TopEntry is one row of the best-ranked list.
type TopEntry struct {
	Position int
	Record   models.ProductRecord
}

// WeekStat is one week-of-month row of a monthly report.
type WeekStat struct {
	Week         int
	Count        int
	Days         int
	DailyAverage float64
	Trend        Trend
}

// PriceBucket counts records priced in [Lower, Upper). Upper is zero for the
// open-ended last bucket.
type PriceBucket struct {
	Lower int
	Upper int
	Count int
}

// PriceStats describes the sale prices of a window.
type PriceStats struct {
	Count  int
	Mean   float64
	Median float64
	Min    int
	Max    int
}

// Report is the single in-memory aggregate every renderer reads from.
type Report struct {
	Brand       string
	Window      Window
	GeneratedAt time.Time

	TotalCount     int
	DaysInWindow   int
	DaysWithData   int
	DailyAverage   float64
	Coverage       float64
	MeanRank       float64
	UniqueProducts int

	Daily      []DayStat
	Categories []CategoryStat
	Top        []TopEntry

	// Monthly only.
	Weeks         []WeekStat
	PriceBuckets  []PriceBucket
	Price         PriceStats
	PreviousTotal int
	Grade         Grade

	// Versions holds taxonomy changes recorded inside the window.
	Versions []models.VersionLogEntry
}

// ZeroActivity reports whether the window held no records at all.
func (r *Report) ZeroActivity() bool {
	return r.TotalCount == 0
}

// Notes are the human readable warnings attached to the report.
func (r *Report) Notes() []string {
	notes := make([]string, 0, len(r.Versions))
	for _, v := range r.Versions {
		notes = append(notes, fmt.Sprintf("카테고리 구성이 %s에 v%d로 변경되었습니다 (추가 %d개, 삭제 %d개). 기간 내 카테고리 비교에 주의하세요.",
			v.Timestamp.Format(models.DateLayout), v.Version, len(v.Added), len(v.Removed)))
	}
	return notes
}

// Options tunes aggregation.
type Options struct {
	Brand        string
	WeeklyTopN   int
	MonthlyTopN  int
	PriceBuckets []int
}

// OptionsFromConfig maps report settings onto aggregation options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		WeeklyTopN:   cfg.Report.WeeklyTopN,
		MonthlyTopN:  cfg.Report.MonthlyTopN,
		PriceBuckets: cfg.Report.PriceBuckets,
	}
	if len(cfg.Brands) > 0 {
		opts.Brand = cfg.Brands[0]
	}
	return opts
}

// Aggregator builds reports from stored batches.
type Aggregator struct {
	store    Reader
	versions VersionHistory
	opts     Options
	now      func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithVersionHistory surfaces taxonomy changes inside a window as notes.
func WithVersionHistory(v VersionHistory) Option {
	return func(a *Aggregator) { a.versions = v }
}

// WithNow replaces the clock used for GeneratedAt.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator returns an aggregator reading from store.
func NewAggregator(store Reader, opts Options, options ...Option) *Aggregator {
	if opts.WeeklyTopN <= 0 {
		opts.WeeklyTopN = 10
	}
	if opts.MonthlyTopN <= 0 {
		opts.MonthlyTopN = 20
	}
	a := &Aggregator{store: store, opts: opts, now: time.Now}
	for _, o := range options {
		o(a)
	}
	return a
}

// Aggregate computes the report for w. Missing dates contribute nothing and a
// window without any record still yields a report.
func (a *Aggregator) Aggregate(ctx context.Context, w Window) (*Report, error) {
	batches, err := a.store.ReadRange(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.Label, err)
	}

	r := &Report{
		Brand:        a.opts.Brand,
		Window:       w,
		GeneratedAt:  a.now(),
		DaysInWindow: w.Days(),
	}
	records := fillDaily(r, w, batches)
	r.TotalCount = len(records)
	if r.DaysInWindow > 0 {
		r.DailyAverage = float64(r.TotalCount) / float64(r.DaysInWindow)
		r.Coverage = float64(r.DaysWithData) / float64(r.DaysInWindow)
	}
	r.MeanRank = meanRank(records)
	r.UniqueProducts = uniqueProducts(records)
	r.Categories = categoryStats(records)

	topN := a.opts.WeeklyTopN
	if w.Kind == KindMonthly {
		topN = a.opts.MonthlyTopN
	}
	r.Top = topEntries(records, topN)

	if w.Kind == KindMonthly {
		r.Weeks = weekStats(r.Daily)
		r.PriceBuckets = priceBuckets(records, a.opts.PriceBuckets)
		r.Price = priceStats(records)

		prev := w.Previous()
		prevBatches, err := a.store.ReadRange(ctx, prev.Start, prev.End)
		if err != nil {
			return nil, fmt.Errorf("read preceding window of %s: %w", w.Label, err)
		}
		for _, b := range prevBatches {
			r.PreviousTotal += len(b.Records)
		}
		r.Grade = ScoreGrade(r.DailyAverage, r.TotalCount, r.PreviousTotal)
	}

	if a.versions != nil {
		versions, err := a.versions.VersionsBetween(w.Start, w.End.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("read category versions: %w", err)
		}
		r.Versions = versions
		if len(versions) > 0 {
			slog.Warn("category taxonomy changed inside report window",
				slog.String("window", w.Label),
				slog.Int("versions", len(versions)),
			)
		}
	}

	slog.Info("report aggregated",
		slog.String("window", w.Label),
		slog.Int("records", r.TotalCount),
		slog.Int("days_with_data", r.DaysWithData),
		slog.Int("categories", len(r.Categories)),
	)
	return r, nil
}

// fillDaily sets the per-date counts and returns the window's records in
// date order. Batches outside the window are ignored.
func fillDaily(r *Report, w Window, batches []models.DailyBatch) []models.ProductRecord {
	byDate := make(map[string]models.DailyBatch, len(batches))
	for _, b := range batches {
		byDate[models.DateKey(b.Date)] = b
	}

	var records []models.ProductRecord
	for _, d := range w.Dates() {
		b, ok := byDate[models.DateKey(d)]
		r.Daily = append(r.Daily, DayStat{Date: d, Count: len(b.Records), HasData: ok})
		if ok {
			r.DaysWithData++
			records = append(records, b.Records...)
		}
	}
	return records
}

func meanRank(records []models.ProductRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, rec := range records {
		sum += rec.Rank
	}
	return float64(sum) / float64(len(records))
}

func uniqueProducts(records []models.ProductRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ProductURL] = struct{}{}
	}
	return len(seen)
}

type categoryAcc struct {
	node      models.CategoryNode
	count     int
	rankSum   int
	bestRank  int
	priceSum  int
	priceSeen int
}

// categoryStats groups by category identity, sorted by count descending,
// then mean rank ascending, then codes.
func categoryStats(records []models.ProductRecord) []CategoryStat {
	accs := make(map[models.CategoryKey]*categoryAcc)
	for _, rec := range records {
		node := rec.Category()
		acc, ok := accs[node.Key()]
		if !ok {
			acc = &categoryAcc{node: node, bestRank: rec.Rank}
			accs[node.Key()] = acc
		}
		acc.count++
		acc.rankSum += rec.Rank
		if rec.Rank < acc.bestRank {
			acc.bestRank = rec.Rank
		}
		if rec.SalePrice > 0 {
			acc.priceSum += rec.SalePrice
			acc.priceSeen++
		}
	}

	stats := make([]CategoryStat, 0, len(accs))
	for _, acc := range accs {
		s := CategoryStat{
			Node:     acc.node,
			Count:    acc.count,
			MeanRank: float64(acc.rankSum) / float64(acc.count),
			BestRank: acc.bestRank,
		}
		if acc.priceSeen > 0 {
			s.MeanPrice = float64(acc.priceSum) / float64(acc.priceSeen)
		}
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.MeanRank != b.MeanRank {
			return a.MeanRank < b.MeanRank
		}
		if a.Node.Depth1Code != b.Node.Depth1Code {
			return a.Node.Depth1Code < b.Node.Depth1Code
		}
		return a.Node.Depth2Code < b.Node.Depth2Code
	})
	return stats
}

// topEntries keeps the n best ranks. Ties go to the earliest collection.
func topEntries(records []models.ProductRecord, n int) []TopEntry {
	sorted := append([]models.ProductRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if !a.CollectedAt.Equal(b.CollectedAt) {
			return a.CollectedAt.Before(b.CollectedAt)
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Depth1Code != b.Depth1Code {
			return a.Depth1Code < b.Depth1Code
		}
		if a.Depth2Code != b.Depth2Code {
			return a.Depth2Code < b.Depth2Code
		}
		return a.ProductURL < b.ProductURL
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	top := make([]TopEntry, len(sorted))
	for i, rec := range sorted {
		top[i] = TopEntry{Position: i + 1, Record: rec}
	}
	return top
}

// weekStats groups dates with data by (day-1)/7+1 and compares each week's
// daily average with the previous listed week.
func weekStats(daily []DayStat) []WeekStat {
	var weeks []WeekStat
	index := make(map[int]int)
	for _, d := range daily {
		if !d.HasData {
			continue
		}
		week := (d.Date.Day()-1)/7 + 1
		i, ok := index[week]
		if !ok {
			i = len(weeks)
			index[week] = i
			weeks = append(weeks, WeekStat{Week: week})
		}
		weeks[i].Count += d.Count
		weeks[i].Days++
	}

	for i := range weeks {
		weeks[i].DailyAverage = float64(weeks[i].Count) / float64(weeks[i].Days)
		weeks[i].Trend = TrendFlat
		if i == 0 {
			continue
		}
		prev := weeks[i-1].DailyAverage
		switch avg := weeks[i].DailyAverage; {
		case avg > prev*(1+trendBand):
			weeks[i].Trend = TrendUp
		case avg < prev*(1-trendBand):
			weeks[i].Trend = TrendDown
		}
	}
	return weeks
}

func priceBuckets(records []models.ProductRecord, bounds []int) []PriceBucket {
	buckets := make([]PriceBucket, 0, len(bounds)+1)
	lower := 0
	for _, b := range bounds {
		buckets = append(buckets, PriceBucket{Lower: lower, Upper: b})
		lower = b
	}
	buckets = append(buckets, PriceBucket{Lower: lower})

	for _, rec := range records {
		if rec.SalePrice <= 0 {
			continue
		}
		idx := sort.SearchInts(bounds, rec.SalePrice+1)
		buckets[idx].Count++
	}
	return buckets
}

func priceStats(records []models.ProductRecord) PriceStats {
	prices := make([]int, 0, len(records))
	for _, rec := range records {
		if rec.SalePrice > 0 {
			prices = append(prices, rec.SalePrice)
		}
	}
	if len(prices) == 0 {
		return PriceStats{}
	}
	sort.Ints(prices)

	sum := 0
	for _, p := range prices {
		sum += p
	}
	n := len(prices)
	median := float64(prices[n/2])
	if n%2 == 0 {
		median = float64(prices[n/2-1]+prices[n/2]) / 2
	}
	return PriceStats{
		Count:  n,
		Mean:   float64(sum) / float64(n),
		Median: median,
		Min:    prices[0],
		Max:    prices[n-1],
	}
}
