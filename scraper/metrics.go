package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for ranking collection.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	PagesTotal            prometheus.Counter
	RecordsCollectedTotal prometheus.Counter
	RetriesTotal          prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
	CategoryFailuresTotal *prometheus.CounterVec
	CategoriesSucceeded   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_requests_total",
			Help: "Ranking API requests by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranking_request_duration_seconds",
			Help:    "Ranking API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_pages_total",
			Help: "Ranking pages fetched and parsed.",
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_records_collected_total",
			Help: "Brand records kept after filtering and deduplication.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_retries_total",
			Help: "Retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_errors_total",
			Help: "Request errors by type.",
		},
		[]string{"error_type"},
	)
	categoryFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_category_failures_total",
			Help: "Categories whose collection failed terminally, by error type.",
		},
		[]string{"error_type"},
	)
	succeeded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_categories_succeeded_total",
			Help: "Categories collected successfully.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, records, retries, errorsTotal, categoryFailures, succeeded)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		RequestDuration:       requestDuration,
		PagesTotal:            pages,
		RecordsCollectedTotal: records,
		RetriesTotal:          retries,
		ErrorsTotal:           errorsTotal,
		CategoryFailuresTotal: categoryFailures,
		CategoriesSucceeded:   succeeded,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddRecords adds n kept records.
func (m *Metrics) AddRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsCollectedTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncCategoryFailure(errorType string) {
	if m == nil {
		return
	}
	m.CategoryFailuresTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncCategorySuccess() {
	if m == nil {
		return
	}
	m.CategoriesSucceeded.Inc()
}
