package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/catalog-harvester/models"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	PagesTotal      *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	ChallengesTotal *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetches_total",
			Help: "Total page fetches issued by engine and phase.",
		},
		[]string{"engine", "phase"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Page fetch latency by engine.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"engine"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Listing pages processed by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_records_total",
			Help: "Product records extracted by source.",
		},
		[]string{"source"},
	)
	challenges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_challenges_total",
			Help: "Anti-bot interstitials seen by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(fetches, fetchDuration, pages, records, challenges, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		FetchesTotal:    fetches,
		FetchDuration:   fetchDuration,
		PagesTotal:      pages,
		RecordsTotal:    records,
		ChallengesTotal: challenges,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncFetch increments the fetch counter.
func (m *Metrics) IncFetch(engine, phase string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(engine, phase).Inc()
}

// ObserveFetch records a fetch duration.
func (m *Metrics) ObserveFetch(engine string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// IncPage counts a processed page outcome.
func (m *Metrics) IncPage(src models.SourceID, outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(string(src), outcome).Inc()
}

// AddRecords counts extracted records.
func (m *Metrics) AddRecords(src models.SourceID, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(string(src)).Add(float64(n))
}

// IncChallenge counts an interstitial outcome.
func (m *Metrics) IncChallenge(outcome string) {
	if m == nil {
		return
	}
	m.ChallengesTotal.WithLabelValues(outcome).Inc()
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
