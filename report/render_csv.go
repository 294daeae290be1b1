package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/aluiziolira/go-best-rank/models"
)

// CSVHeader is the column set of the tabular report artifact.
var CSVHeader = []string{
	"section", "label", "date", "category", "depth1_code", "depth2_code",
	"count", "mean_rank", "best_rank", "rank", "product_name", "sale_price",
	"discount_rate", "product_url", "value", "trend",
}

// CSV sections.
const (
	SectionSummary     = "summary"
	SectionDaily       = "daily"
	SectionCategory    = "category"
	SectionWeek        = "week"
	SectionPriceBucket = "price_bucket"
	SectionTop         = "top"
	SectionNote        = "note"
)

// Summary labels.
const (
	LabelTotalCount     = "total_count"
	LabelDaysInWindow   = "days_in_window"
	LabelDaysWithData   = "days_with_data"
	LabelDailyAverage   = "daily_average"
	LabelCoverage       = "coverage"
	LabelMeanRank       = "mean_rank"
	LabelUniqueProducts = "unique_products"
	LabelPreviousTotal  = "previous_total"
	LabelGrade          = "grade"
	LabelPriceMean      = "price_mean"
	LabelPriceMedian    = "price_median"
	LabelPriceMin       = "price_min"
	LabelPriceMax       = "price_max"
)

type csvRow struct {
	section, label, date, category string
	depth1, depth2                 string
	count, meanRank, bestRank      string
	rank, productName, salePrice   string
	discountRate, productURL       string
	value, trend                   string
}

func (r csvRow) cells() []string {
	return []string{
		r.section, r.label, r.date, r.category, r.depth1, r.depth2,
		r.count, r.meanRank, r.bestRank, r.rank, r.productName, r.salePrice,
		r.discountRate, r.productURL, r.value, r.trend,
	}
}

// RenderCSV writes one row per summary metric, date, category, week, price
// bucket, top entry and note.
func RenderCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, row := range csvRows(r) {
		if err := cw.Write(row.cells()); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRows(r *Report) []csvRow {
	summary := func(label, value string) csvRow {
		return csvRow{section: SectionSummary, label: label, value: value}
	}

	rows := []csvRow{
		summary(LabelTotalCount, strconv.Itoa(r.TotalCount)),
		summary(LabelDaysInWindow, strconv.Itoa(r.DaysInWindow)),
		summary(LabelDaysWithData, strconv.Itoa(r.DaysWithData)),
		summary(LabelDailyAverage, fixed1(r.DailyAverage)),
		summary(LabelCoverage, percent(r.Coverage)),
		summary(LabelMeanRank, fixed1(r.MeanRank)),
		summary(LabelUniqueProducts, strconv.Itoa(r.UniqueProducts)),
	}
	if r.Window.Kind == KindMonthly {
		rows = append(rows,
			summary(LabelPreviousTotal, strconv.Itoa(r.PreviousTotal)),
			summary(LabelGrade, string(r.Grade)),
			summary(LabelPriceMean, strconv.Itoa(int(r.Price.Mean))),
			summary(LabelPriceMedian, strconv.Itoa(int(r.Price.Median))),
			summary(LabelPriceMin, strconv.Itoa(r.Price.Min)),
			summary(LabelPriceMax, strconv.Itoa(r.Price.Max)),
		)
	}

	for _, d := range r.Daily {
		rows = append(rows, csvRow{
			section: SectionDaily,
			date:    models.DateKey(d.Date),
			count:   strconv.Itoa(d.Count),
			value:   strconv.FormatBool(d.HasData),
		})
	}

	for i, c := range r.Categories {
		rows = append(rows, csvRow{
			section:  SectionCategory,
			label:    strconv.Itoa(i + 1),
			category: c.Node.Label(),
			depth1:   c.Node.Depth1Code,
			depth2:   c.Node.Depth2Code,
			count:    strconv.Itoa(c.Count),
			meanRank: fixed1(c.MeanRank),
			bestRank: strconv.Itoa(c.BestRank),
			value:    strconv.Itoa(int(c.MeanPrice)),
		})
	}

	for _, wk := range r.Weeks {
		rows = append(rows, csvRow{
			section: SectionWeek,
			label:   weekLabel(wk.Week),
			count:   strconv.Itoa(wk.Count),
			value:   fixed1(wk.DailyAverage),
			trend:   string(wk.Trend),
		})
	}

	for _, b := range r.PriceBuckets {
		rows = append(rows, csvRow{
			section: SectionPriceBucket,
			label:   b.Label(),
			count:   strconv.Itoa(b.Count),
		})
	}

	for _, t := range r.Top {
		rec := t.Record
		rows = append(rows, csvRow{
			section:      SectionTop,
			label:        strconv.Itoa(t.Position),
			date:         models.DateKey(rec.Date),
			category:     rec.Category().Label(),
			depth1:       rec.Depth1Code,
			depth2:       rec.Depth2Code,
			rank:         strconv.Itoa(rec.Rank),
			productName:  rec.ProductName,
			salePrice:    strconv.Itoa(rec.SalePrice),
			discountRate: strconv.Itoa(rec.DiscountRate),
			productURL:   rec.ProductURL,
		})
	}

	for i, note := range r.Notes() {
		rows = append(rows, csvRow{
			section: SectionNote,
			label:   strconv.Itoa(r.Versions[i].Version),
			value:   note,
		})
	}
	return rows
}

// Label renders the bucket bounds as "lower~upper".
func (b PriceBucket) Label() string {
	if b.Upper == 0 {
		return fmt.Sprintf("%d~", b.Lower)
	}
	return fmt.Sprintf("%d~%d", b.Lower, b.Upper-1)
}

func weekLabel(week int) string {
	return strconv.Itoa(week) + "주차"
}

func fixed1(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 0, 64) + "%"
}
