package report

import (
	"fmt"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
)

// Kind distinguishes weekly from monthly windows.
type Kind string

const (
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Window is an inclusive range of calendar dates.
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
	Label string

	Year  int
	Month time.Month
	// Week is the week-of-month index, zero for monthly windows.
	Week int
}

// WeekOfMonth returns the Monday to Sunday window numbered week within the
// month. Week 1 is the week holding the month's first Thursday, and every
// week's Thursday must fall inside the month.
func WeekOfMonth(year int, month time.Month, week int, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	if month < time.January || month > time.December {
		return Window{}, fmt.Errorf("invalid month %d", month)
	}
	if week < 1 {
		return Window{}, fmt.Errorf("week must be at least 1, got %d", week)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(time.Thursday) - int(first.Weekday()) + 7) % 7
	thursday := first.AddDate(0, 0, offset+7*(week-1))
	if thursday.Month() != month {
		return Window{}, fmt.Errorf("%d-%02d has no week %d", year, int(month), week)
	}
	return weekWindow(thursday), nil
}

// WeekContaining returns the week window that holds date. The week is named
// after the month its Thursday falls in.
func WeekContaining(date time.Time) Window {
	date = models.DateOf(date)
	sinceMonday := (int(date.Weekday()) + 6) % 7
	return weekWindow(date.AddDate(0, 0, 3-sinceMonday))
}

func weekWindow(thursday time.Time) Window {
	start := thursday.AddDate(0, 0, -3)
	week := (thursday.Day()-1)/7 + 1
	return Window{
		Kind:  KindWeekly,
		Start: start,
		End:   start.AddDate(0, 0, 6),
		Label: fmt.Sprintf("%d년 %02d월 %d주차", thursday.Year(), int(thursday.Month()), week),
		Year:  thursday.Year(),
		Month: thursday.Month(),
		Week:  week,
	}
}

// MonthOf returns the calendar month window.
func MonthOf(year int, month time.Month, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	if month < time.January || month > time.December {
		return Window{}, fmt.Errorf("invalid month %d", month)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{
		Kind:  KindMonthly,
		Start: start,
		End:   start.AddDate(0, 1, -1),
		Label: fmt.Sprintf("%d년 %02d월", year, int(month)),
		Year:  year,
		Month: month,
	}, nil
}

// Days counts the dates in the window, both ends included.
func (w Window) Days() int {
	n := 0
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Dates lists every date of the window in order.
func (w Window) Dates() []time.Time {
	dates := make([]time.Time, 0, 31)
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Contains reports whether t falls on one of the window's dates.
func (w Window) Contains(t time.Time) bool {
	d := models.DateOf(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

// Previous is the window of the same length ending the day before Start.
func (w Window) Previous() Window {
	n := w.Days()
	return Window{
		Kind:  w.Kind,
		Start: w.Start.AddDate(0, 0, -n),
		End:   w.Start.AddDate(0, 0, -1),
		Label: "previous " + w.Label,
		Year:  w.Year,
		Month: w.Month,
		Week:  w.Week,
	}
}
