package report

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/store"
)

// Artifacts lists the files written for one report.
type Artifacts struct {
	CSV      string
	Markdown string
	XLSX     string
}

// ArtifactWriter places rendered reports in the date-partitioned output tree.
type ArtifactWriter struct {
	layout store.Layout
	xlsx   bool
}

// NewArtifactWriter writes under layout. With xlsx set a workbook is written
// next to the CSV and Markdown pair.
func NewArtifactWriter(layout store.Layout, xlsx bool) *ArtifactWriter {
	return &ArtifactWriter{layout: layout, xlsx: xlsx}
}

// BasePath is the extension-less artifact path of w.
func (a *ArtifactWriter) BasePath(w Window) string {
	if w.Kind == KindMonthly {
		return a.layout.MonthlyBase(w.Year, w.Month)
	}
	return a.layout.WeeklyBase(w.Year, w.Month, w.Week)
}

// WriteReport renders r to every configured format. The files are replaced
// together: after an error none of them has changed.
func (a *ArtifactWriter) WriteReport(r *Report) (Artifacts, error) {
	base := a.BasePath(r.Window)
	out := Artifacts{CSV: base + ".csv", Markdown: base + ".md"}

	files := []store.FileWrite{
		{Path: out.CSV, Write: func(w io.Writer) error { return RenderCSV(w, r) }},
		{Path: out.Markdown, Write: func(w io.Writer) error {
			_, err := io.WriteString(w, RenderMarkdown(r))
			return err
		}},
	}
	if a.xlsx {
		out.XLSX = base + ".xlsx"
		files = append(files, store.FileWrite{Path: out.XLSX, Write: func(w io.Writer) error { return RenderXLSX(w, r) }})
	}
	if err := store.WriteFilesAtomic(files); err != nil {
		return Artifacts{}, &store.PersistenceError{Op: "write report", Key: base, Err: err}
	}

	slog.Info("report written",
		slog.String("window", r.Window.Label),
		slog.String("csv", out.CSV),
		slog.String("markdown", out.Markdown),
	)
	return out, nil
}

// WriteDaily writes the narrative of one collected date next to its batch.
func (a *ArtifactWriter) WriteDaily(batch models.DailyBatch, opts DailyOptions) (string, error) {
	path := a.layout.DailyMarkdown(batch.Date)
	if opts.FileName == "" {
		opts.FileName = filepath.Base(a.layout.DailyCSV(batch.Date))
	}
	err := writeArtifact(path, func(w io.Writer) error {
		_, err := io.WriteString(w, RenderDaily(batch, opts))
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeArtifact(path string, render func(io.Writer) error) error {
	if err := store.WriteFileAtomic(path, render); err != nil {
		return &store.PersistenceError{Op: "write report", Key: path, Err: err}
	}
	return nil
}
