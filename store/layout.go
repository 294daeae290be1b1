package store

import (
	"fmt"
	"path/filepath"
	"time"
)

// Layout maps dates and report labels onto the output tree.
//
//	<root>/YYYY/MM/DD/best_YYYYMMDD.csv
//	<root>/YYYY/MM/DD/best_YYYYMMDD.md
//	<root>/YYYY/MM/{Y}년_{MM}월_{W}주차_통계.{csv,md}
//	<root>/YYYY/MM/{Y}년_{MM}월_월간통계.{csv,md}
type Layout struct {
	Root string
}

// DayDir is the directory holding one date's artifacts.
func (l Layout) DayDir(date time.Time) string {
	return filepath.Join(l.Root, date.Format("2006"), date.Format("01"), date.Format("02"))
}

// DailyCSV is the raw batch artifact for date.
func (l Layout) DailyCSV(date time.Time) string {
	return filepath.Join(l.DayDir(date), "best_"+date.Format("20060102")+".csv")
}

// DailyMarkdown is the narrative artifact for date.
func (l Layout) DailyMarkdown(date time.Time) string {
	return filepath.Join(l.DayDir(date), "best_"+date.Format("20060102")+".md")
}

// WeeklyBase is the extension-less path of a week-of-month report.
func (l Layout) WeeklyBase(year int, month time.Month, week int) string {
	name := fmt.Sprintf("%d년_%02d월_%d주차_통계", year, int(month), week)
	return filepath.Join(l.monthDir(year, month), name)
}

// MonthlyBase is the extension-less path of a monthly report.
func (l Layout) MonthlyBase(year int, month time.Month) string {
	name := fmt.Sprintf("%d년_%02d월_월간통계", year, int(month))
	return filepath.Join(l.monthDir(year, month), name)
}

func (l Layout) monthDir(year int, month time.Month) string {
	return filepath.Join(l.Root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)))
}
