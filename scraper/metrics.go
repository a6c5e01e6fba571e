package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	EntriesTotal      prometheus.Counter
	RacesFailedTotal  prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	EncodingsSelected *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutuba_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shutuba_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	entries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shutuba_entries_scraped_total",
			Help: "Total number of entry rows extracted from race pages.",
		},
	)
	racesFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shutuba_races_failed_total",
			Help: "Races skipped because their page could not be fetched or parsed.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutuba_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	encodings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutuba_encoding_selected_total",
			Help: "Text encodings chosen for fetched pages.",
		},
		[]string{"encoding", "matched"},
	)

	registry.MustRegister(requests, requestDuration, entries, racesFailed, errorsTotal, encodings)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		EntriesTotal:      entries,
		RacesFailedTotal:  racesFailed,
		ErrorsTotal:       errorsTotal,
		EncodingsSelected: encodings,
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

// AddEntries adds n extracted rows.
func (m *Metrics) AddEntries(n int) {
	if m == nil {
		return
	}
	m.EntriesTotal.Add(float64(n))
}

// IncRaceFailed counts one skipped race.
func (m *Metrics) IncRaceFailed() {
	if m == nil {
		return
	}
	m.RacesFailedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncEncoding records the encoding chosen for a page and whether a marker
// confirmed it.
func (m *Metrics) IncEncoding(encoding string, matched bool) {
	if m == nil {
		return
	}
	label := "false"
	if matched {
		label = "true"
	}
	m.EncodingsSelected.WithLabelValues(encoding, label).Inc()
}
