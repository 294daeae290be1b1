package models

import "time"

// CategoryFetchFailure describes a category whose collection failed terminally.
type CategoryFetchFailure struct {
	Category  CategoryNode
	Page      int
	Attempts  int
	ErrorType string
	Err       error
}

func (f CategoryFetchFailure) Error() string {
	if f.Err == nil {
		return f.Category.Key().String() + ": unknown failure"
	}
	return f.Category.Key().String() + ": " + f.Err.Error()
}

func (f CategoryFetchFailure) Unwrap() error {
	return f.Err
}

// CollectionResult holds the overall result of a collection run.
type CollectionResult struct {
	Records      []ProductRecord
	Failures     []CategoryFetchFailure
	NotAttempted []CategoryNode
	Succeeded    int
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	RetryCount   int
	PageCount    int
	ErrorsByType map[string]int
}

// Attempted is the number of categories whose collection was started.
func (r *CollectionResult) Attempted() int {
	return r.Succeeded + len(r.Failures)
}

// AllFailed reports whether categories were attempted and none succeeded.
func (r *CollectionResult) AllFailed() bool {
	return r.Attempted() > 0 && r.Succeeded == 0
}
