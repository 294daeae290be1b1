package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-best-rank/models"
)

// Sheet names of the spreadsheet artifact.
const (
	SheetSummary    = "Summary"
	SheetDaily      = "Daily"
	SheetCategories = "Categories"
	SheetTop        = "Top"
)

// RenderXLSX writes the report as a workbook with one sheet per section.
func RenderXLSX(w io.Writer, r *Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{SheetDaily, SheetCategories, SheetTop} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	summary := [][]any{
		{"metric", "value"},
		{"window", r.Window.Label},
		{LabelTotalCount, r.TotalCount},
		{LabelDaysInWindow, r.DaysInWindow},
		{LabelDaysWithData, r.DaysWithData},
		{LabelDailyAverage, r.DailyAverage},
		{LabelCoverage, r.Coverage},
		{LabelMeanRank, r.MeanRank},
		{LabelUniqueProducts, r.UniqueProducts},
	}
	if r.Window.Kind == KindMonthly {
		summary = append(summary,
			[]any{LabelPreviousTotal, r.PreviousTotal},
			[]any{LabelGrade, string(r.Grade)},
			[]any{LabelPriceMean, int(r.Price.Mean)},
			[]any{LabelPriceMedian, int(r.Price.Median)},
		)
	}
	if err := writeSheet(f, SheetSummary, summary); err != nil {
		return err
	}

	daily := [][]any{{"date", "count", "has_data"}}
	for _, d := range r.Daily {
		daily = append(daily, []any{models.DateKey(d.Date), d.Count, d.HasData})
	}
	if err := writeSheet(f, SheetDaily, daily); err != nil {
		return err
	}

	categories := [][]any{{"position", "category", "depth1_code", "depth2_code", "count", "mean_rank", "best_rank"}}
	for i, c := range r.Categories {
		categories = append(categories, []any{i + 1, c.Node.Label(), c.Node.Depth1Code, c.Node.Depth2Code, c.Count, c.MeanRank, c.BestRank})
	}
	if err := writeSheet(f, SheetCategories, categories); err != nil {
		return err
	}

	top := [][]any{{"position", "rank", "date", "category", "product_name", "sale_price", "discount_rate", "product_url"}}
	for _, e := range r.Top {
		rec := e.Record
		top = append(top, []any{e.Position, rec.Rank, models.DateKey(rec.Date), rec.Category().Label(), rec.ProductName, rec.SalePrice, rec.DiscountRate, rec.ProductURL})
	}
	if err := writeSheet(f, SheetTop, top); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
