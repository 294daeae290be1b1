package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/store"
)

var seoul = time.FixedZone("KST", 9*60*60)

func march(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, seoul)
}

type memReader struct {
	batches map[string]models.DailyBatch
}

func newMemReader() *memReader {
	return &memReader{batches: make(map[string]models.DailyBatch)}
}

func (m *memReader) add(records ...models.ProductRecord) {
	for _, rec := range records {
		key := models.DateKey(rec.Date)
		b := m.batches[key]
		b.Date = rec.Date
		b.Records = append(b.Records, rec)
		m.batches[key] = b
	}
}

func (m *memReader) ReadRange(_ context.Context, start, end time.Time) ([]models.DailyBatch, error) {
	var out []models.DailyBatch
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if b, ok := m.batches[models.DateKey(d)]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type staticHistory []models.VersionLogEntry

func (h staticHistory) VersionsBetween(start, end time.Time) ([]models.VersionLogEntry, error) {
	var out []models.VersionLogEntry
	for _, e := range h {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func record(date time.Time, d2 string, rank, price int) models.ProductRecord {
	return models.ProductRecord{
		Date:         date,
		CollectedAt:  date.Add(9 * time.Hour),
		Depth1Code:   "10101",
		Depth1Name:   "의류",
		Depth2Code:   d2,
		Depth2Name:   "카테고리" + d2,
		Rank:         rank,
		BrandName:    "HACIE",
		ProductName:  "상품 " + d2 + "-" + strconv.Itoa(rank),
		SalePrice:    price,
		DiscountRate: 10,
		ProductURL:   "https://www.wconcept.co.kr/Product/" + d2 + strconv.Itoa(rank),
	}
}

func newAggregator(r Reader, opts ...Option) *Aggregator {
	opts = append(opts, WithNow(func() time.Time { return march(31).Add(12 * time.Hour) }))
	return NewAggregator(r, Options{Brand: "HACIE", WeeklyTopN: 10, MonthlyTopN: 20, PriceBuckets: []int{50000, 100000, 200000}}, opts...)
}

func TestWeekOfMonth(t *testing.T) {
	tests := []struct {
		name       string
		year       int
		month      time.Month
		week       int
		start, end string
	}{
		{name: "month starting saturday", year: 2025, month: time.March, week: 1, start: "2025-03-03", end: "2025-03-09"},
		{name: "last week", year: 2025, month: time.March, week: 4, start: "2025-03-24", end: "2025-03-30"},
		{name: "week spanning year start", year: 2026, month: time.January, week: 1, start: "2025-12-29", end: "2026-01-04"},
		{name: "month starting thursday", year: 2025, month: time.May, week: 1, start: "2025-04-28", end: "2025-05-04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WeekOfMonth(tt.year, tt.month, tt.week, seoul)
			require.NoError(t, err)
			require.Equal(t, KindWeekly, w.Kind)
			require.Equal(t, tt.start, models.DateKey(w.Start))
			require.Equal(t, tt.end, models.DateKey(w.End))
			require.Equal(t, 7, w.Days())
			require.Equal(t, time.Monday, w.Start.Weekday())
		})
	}

	_, err := WeekOfMonth(2025, time.March, 5, seoul)
	require.Error(t, err)
	_, err = WeekOfMonth(2025, time.March, 0, seoul)
	require.Error(t, err)
	_, err = WeekOfMonth(2025, 13, 1, seoul)
	require.Error(t, err)
}

func TestWeekContaining(t *testing.T) {
	w := WeekContaining(time.Date(2025, time.December, 30, 15, 0, 0, 0, seoul))
	require.Equal(t, 2026, w.Year)
	require.Equal(t, time.January, w.Month)
	require.Equal(t, 1, w.Week)
	require.Equal(t, "2026년 01월 1주차", w.Label)

	same, err := WeekOfMonth(w.Year, w.Month, w.Week, seoul)
	require.NoError(t, err)
	require.True(t, same.Start.Equal(w.Start))

	sunday := WeekContaining(march(9))
	require.Equal(t, "2025-03-03", models.DateKey(sunday.Start))
}

func TestMonthOfAndPrevious(t *testing.T) {
	w, err := MonthOf(2024, time.February, seoul)
	require.NoError(t, err)
	require.Equal(t, 29, w.Days())
	require.Equal(t, "2024-02-29", models.DateKey(w.End))
	require.True(t, w.Contains(time.Date(2024, time.February, 29, 23, 0, 0, 0, seoul)))
	require.False(t, w.Contains(time.Date(2024, time.March, 1, 0, 0, 0, 0, seoul)))

	prev := w.Previous()
	require.Equal(t, 29, prev.Days())
	require.Equal(t, "2024-01-03", models.DateKey(prev.Start))
	require.Equal(t, "2024-01-31", models.DateKey(prev.End))
}

func TestAggregateZeroActivity(t *testing.T) {
	agg := newAggregator(newMemReader())

	weekly, err := WeekOfMonth(2025, time.March, 2, seoul)
	require.NoError(t, err)
	r, err := agg.Aggregate(context.Background(), weekly)
	require.NoError(t, err)
	require.True(t, r.ZeroActivity())
	require.Equal(t, 0, r.TotalCount)
	require.Equal(t, 7, r.DaysInWindow)
	require.Len(t, r.Daily, 7)
	require.Empty(t, r.Top)
	require.Empty(t, r.Categories)
	require.Contains(t, RenderMarkdown(r), "**총 발견 상품:** 0개")

	monthly, err := MonthOf(2025, time.March, seoul)
	require.NoError(t, err)
	r, err = agg.Aggregate(context.Background(), monthly)
	require.NoError(t, err)
	require.Equal(t, GradeC, r.Grade)
	require.Zero(t, r.Price.Count)

	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, r))
}

func TestAggregateDailyAverageUsesWindowLength(t *testing.T) {
	reader := newMemReader()
	reader.add(record(march(3), "A", 1, 10000), record(march(3), "A", 2, 10000), record(march(3), "B", 3, 10000))
	reader.add(record(march(5), "A", 4, 10000), record(march(5), "A", 5, 10000), record(march(5), "B", 6, 10000), record(march(5), "B", 7, 10000))
	reader.add(record(march(10), "A", 1, 10000))

	w, err := WeekOfMonth(2025, time.March, 1, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	require.Equal(t, 7, r.TotalCount)
	require.Equal(t, 2, r.DaysWithData)
	require.InDelta(t, 1.0, r.DailyAverage, 1e-9)
	require.InDelta(t, 2.0/7.0, r.Coverage, 1e-9)
	require.InDelta(t, 4.0, r.MeanRank, 1e-9)
	require.Equal(t, 7, r.UniqueProducts)
	require.False(t, r.Daily[1].HasData)
	require.Equal(t, 4, r.Daily[2].Count)
}

func TestAggregateCategoryOrdering(t *testing.T) {
	reader := newMemReader()
	reader.add(
		record(march(3), "A", 10, 0), record(march(3), "A", 20, 0),
		record(march(3), "B", 2, 0), record(march(3), "B", 4, 0),
		record(march(4), "C", 1, 0), record(march(4), "C", 9, 0), record(march(4), "C", 50, 0),
	)

	w, err := WeekOfMonth(2025, time.March, 1, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, r.Categories, 3)
	require.Equal(t, "C", r.Categories[0].Node.Depth2Code)
	require.Equal(t, "B", r.Categories[1].Node.Depth2Code)
	require.Equal(t, "A", r.Categories[2].Node.Depth2Code)
	require.InDelta(t, 3.0, r.Categories[1].MeanRank, 1e-9)
	require.Equal(t, 1, r.Categories[0].BestRank)
}

func TestAggregateTopTieBreak(t *testing.T) {
	reader := newMemReader()
	late := record(march(3), "A", 1, 0)
	late.CollectedAt = march(3).Add(10 * time.Hour)
	early := record(march(4), "B", 1, 0)
	early.CollectedAt = march(3).Add(8 * time.Hour)
	reader.add(late, early)
	for rank := 2; rank <= 15; rank++ {
		reader.add(record(march(5), "C", rank, 0))
	}

	w, err := WeekOfMonth(2025, time.March, 1, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, r.Top, 10)
	require.Equal(t, "B", r.Top[0].Record.Depth2Code)
	require.Equal(t, "A", r.Top[1].Record.Depth2Code)
	require.Equal(t, 1, r.Top[0].Position)
	require.Equal(t, 9, r.Top[9].Record.Rank)
}

func TestAggregateIsAdditive(t *testing.T) {
	reader := newMemReader()
	for d := 1; d <= 31; d += 2 {
		reader.add(record(march(d), "A", d, 0))
		if d%3 == 0 {
			reader.add(record(march(d), "B", d+1, 0), record(march(d), "C", 1, 0))
		}
	}
	agg := newAggregator(reader)
	counts := func(w Window) map[models.CategoryKey]int {
		r, err := agg.Aggregate(context.Background(), w)
		require.NoError(t, err)
		out := make(map[models.CategoryKey]int)
		for _, c := range r.Categories {
			out[c.Node.Key()] = c.Count
		}
		return out
	}

	whole, err := MonthOf(2025, time.March, seoul)
	require.NoError(t, err)
	first := Window{Kind: KindWeekly, Start: march(1), End: march(15), Label: "first half"}
	second := Window{Kind: KindWeekly, Start: march(16), End: march(31), Label: "second half"}

	sum := counts(first)
	for k, v := range counts(second) {
		sum[k] += v
	}
	require.Equal(t, counts(whole), sum)
}

func TestScoreGrade(t *testing.T) {
	tests := []struct {
		avg             float64
		total, previous int
		want            Grade
	}{
		{avg: 16, total: 10, previous: 20, want: GradeS},
		{avg: 16, total: 30, previous: 20, want: GradeS},
		{avg: 12, total: 5, previous: 10, want: GradeA},
		{avg: 12, total: 11, previous: 10, want: GradeS},
		{avg: 6, total: 10, previous: 10, want: GradeB},
		{avg: 6, total: 11, previous: 10, want: GradeA},
		{avg: 1, total: 0, previous: 0, want: GradeC},
		{avg: 1, total: 1, previous: 0, want: GradeB},
	}
	for _, tt := range tests {
		got := ScoreGrade(tt.avg, tt.total, tt.previous)
		require.Equal(t, tt.want, got, "avg=%v total=%d previous=%d", tt.avg, tt.total, tt.previous)
	}
}

func TestAggregateMonthlyExtras(t *testing.T) {
	reader := newMemReader()
	reader.add(record(march(1), "A", 1, 30000), record(march(1), "A", 2, 60000))
	reader.add(record(march(2), "A", 3, 150000), record(march(2), "B", 4, 250000))
	for i := 0; i < 3; i++ {
		reader.add(record(march(8), "B", 10+i, 80000))
		reader.add(record(march(15), "B", 20+i, 80000))
	}
	reader.add(record(march(22), "C", 5, 0))
	reader.add(record(time.Date(2025, time.February, 20, 0, 0, 0, 0, seoul), "A", 1, 10000))

	w, err := MonthOf(2025, time.March, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	require.Equal(t, 11, r.TotalCount)
	require.Equal(t, 1, r.PreviousTotal)
	require.Equal(t, GradeB, r.Grade)

	require.Equal(t, []WeekStat{
		{Week: 1, Count: 4, Days: 2, DailyAverage: 2, Trend: TrendFlat},
		{Week: 2, Count: 3, Days: 1, DailyAverage: 3, Trend: TrendUp},
		{Week: 3, Count: 3, Days: 1, DailyAverage: 3, Trend: TrendFlat},
		{Week: 4, Count: 1, Days: 1, DailyAverage: 1, Trend: TrendDown},
	}, r.Weeks)

	require.Equal(t, []PriceBucket{
		{Lower: 0, Upper: 50000, Count: 1},
		{Lower: 50000, Upper: 100000, Count: 7},
		{Lower: 100000, Upper: 200000, Count: 1},
		{Lower: 200000, Upper: 0, Count: 1},
	}, r.PriceBuckets)

	require.Equal(t, 10, r.Price.Count)
	require.Equal(t, 30000, r.Price.Min)
	require.Equal(t, 250000, r.Price.Max)
	require.InDelta(t, 80000.0, r.Price.Median, 1e-9)
	require.Len(t, r.Top, 11)

	md := RenderMarkdown(r)
	require.Contains(t, md, "B등급")
	require.Contains(t, md, "₩30,000 ~ ₩250,000")
}

func TestAggregateVersionNotes(t *testing.T) {
	history := staticHistory{
		{Version: 2, Timestamp: time.Date(2025, time.February, 28, 9, 0, 0, 0, seoul)},
		{Version: 3, Timestamp: time.Date(2025, time.March, 5, 9, 0, 0, 0, seoul), Added: []models.CategoryNode{{Depth1Code: "1", Depth2Code: "2"}}},
		{Version: 4, Timestamp: time.Date(2025, time.March, 10, 9, 0, 0, 0, seoul)},
	}
	reader := newMemReader()
	reader.add(record(march(4), "A", 1, 0))

	w, err := WeekOfMonth(2025, time.March, 1, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader, WithVersionHistory(history)).Aggregate(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, r.Versions, 1)
	require.Equal(t, 3, r.Versions[0].Version)
	require.Len(t, r.Notes(), 1)
	require.Contains(t, RenderMarkdown(r), "참고 사항")

	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, r))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	last := rows[len(rows)-1]
	require.Equal(t, SectionNote, last[0])
	require.Equal(t, "3", last[1])
}

func TestRenderFormatsAgree(t *testing.T) {
	reader := newMemReader()
	reader.add(record(march(3), "A", 7, 129000), record(march(3), "B", 2, 89000), record(march(4), "A", 3, 129000))
	reader.add(record(march(6), "C", 12, 45000), record(march(6), "A", 1, 99000))

	w, err := WeekOfMonth(2025, time.March, 1, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, r))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, CSVHeader, rows[0])
	md := RenderMarkdown(r)
	mdLines := strings.Split(md, "\n")

	col := make(map[string]int, len(CSVHeader))
	for i, name := range CSVHeader {
		col[name] = i
	}

	var sawTotal, sawTop bool
	categories := 0
	for _, row := range rows[1:] {
		switch {
		case row[col["section"]] == SectionSummary && row[col["label"]] == LabelTotalCount:
			sawTotal = true
			require.Equal(t, "5", row[col["value"]])
			require.Contains(t, md, "**총 발견 상품:** "+row[col["value"]]+"개")
		case row[col["section"]] == SectionTop && row[col["label"]] == "1":
			sawTop = true
			require.Equal(t, "1", row[col["rank"]])
			require.Contains(t, md, "| 1 | "+row[col["rank"]]+"위 |")
		case row[col["section"]] == SectionCategory:
			categories++
			label, count := row[col["category"]], row[col["count"]]
			found := false
			for _, line := range mdLines {
				if strings.Contains(line, "| "+label+" |") && strings.Contains(line, "| "+count+"회 |") {
					found = true
				}
			}
			require.True(t, found, "category %s with count %s missing from narrative", label, count)
		}
	}
	require.True(t, sawTotal)
	require.True(t, sawTop)
	require.Equal(t, len(r.Categories), categories)
}

func TestArtifactWriter(t *testing.T) {
	reader := newMemReader()
	reader.add(record(march(3), "A", 1, 129000), record(march(4), "B", 2, 89000))

	w, err := MonthOf(2025, time.March, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	root := t.TempDir()
	writer := NewArtifactWriter(store.Layout{Root: root}, true)
	out, err := writer.WriteReport(r)
	require.NoError(t, err)

	base := filepath.Join(root, "2025", "03", "2025년_03월_월간통계")
	require.Equal(t, base+".csv", out.CSV)
	require.Equal(t, base+".md", out.Markdown)
	require.Equal(t, base+".xlsx", out.XLSX)

	md, err := os.ReadFile(out.Markdown)
	require.NoError(t, err)
	require.Equal(t, RenderMarkdown(r), string(md))

	book, err := excelize.OpenFile(out.XLSX)
	require.NoError(t, err)
	defer book.Close()
	summary, err := book.GetRows(SheetSummary)
	require.NoError(t, err)
	require.Equal(t, []string{LabelTotalCount, "2"}, summary[2])
	top, err := book.GetRows(SheetTop)
	require.NoError(t, err)
	require.Len(t, top, 3)

	weekly, err := WeekOfMonth(2025, time.March, 2, seoul)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "2025", "03", "2025년_03월_2주차_통계"), writer.BasePath(weekly))
}

func TestArtifactWriterLeavesNoPartialReport(t *testing.T) {
	reader := newMemReader()
	reader.add(record(march(3), "A", 1, 129000))

	w, err := MonthOf(2025, time.March, seoul)
	require.NoError(t, err)
	r, err := newAggregator(reader).Aggregate(context.Background(), w)
	require.NoError(t, err)

	root := t.TempDir()
	writer := NewArtifactWriter(store.Layout{Root: root}, true)
	base := writer.BasePath(w)

	// A directory in place of the narrative makes its rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(base+".md", "keep"), 0o755))

	_, err = writer.WriteReport(r)
	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.NoFileExists(t, base+".csv")
	require.NoFileExists(t, base+".xlsx")

	require.NoError(t, os.WriteFile(base+".csv", []byte("previous"), 0o644))
	_, err = writer.WriteReport(r)
	require.Error(t, err)
	data, err := os.ReadFile(base + ".csv")
	require.NoError(t, err)
	require.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(filepath.Dir(base))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{filepath.Base(base) + ".csv", filepath.Base(base) + ".md"}, names)
}

func TestRenderDaily(t *testing.T) {
	batch := models.DailyBatch{Date: march(3)}
	for _, rank := range []int{9, 3, 5} {
		batch.Records = append(batch.Records, record(march(3), "A", rank, 1290000))
	}

	md := RenderDaily(batch, DailyOptions{Brand: "HACIE", FileName: "best_20250303.csv", TopN: 2, GeneratedAt: march(3).Add(10 * time.Hour)})
	require.Contains(t, md, "**발견된 HACIE 상품:** 3개")
	require.Contains(t, md, "## 📋 상위 2개 상품")
	require.Contains(t, md, "₩1,290,000")
	require.Contains(t, md, "전체 3개")
	require.Less(t, strings.Index(md, "| 3 |"), strings.Index(md, "| 5 |"))

	empty := RenderDaily(models.DailyBatch{Date: march(4)}, DailyOptions{Brand: "HACIE"})
	require.Contains(t, empty, "HACIE 상품이 발견되지 않았습니다")

	root := t.TempDir()
	path, err := NewArtifactWriter(store.Layout{Root: root}, false).WriteDaily(batch, DailyOptions{Brand: "HACIE"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "2025", "03", "03", "best_20250303.md"), path)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(written), "`best_20250303.csv`")
}
