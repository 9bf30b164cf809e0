package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the acquisition engine.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	TendersScrapedTotal prometheus.Counter
	SessionsTotal       prometheus.Counter
	FallbacksTotal      prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_scraper_requests_total",
			Help: "Total requests issued by the scraper, by channel.",
		},
		[]string{"channel"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tender_scraper_request_duration_seconds",
			Help:    "Listing and detail request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	tendersScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_scraper_tenders_scraped_total",
			Help: "Total number of tender records normalized.",
		},
	)
	sessions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_scraper_sessions_established_total",
			Help: "Total number of access contexts established.",
		},
	)
	fallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_scraper_fallbacks_total",
			Help: "Times the coordinator fell back to the browser strategy.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, tendersScraped, sessions, fallbacks, errorsTotal)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		TendersScrapedTotal: tendersScraped,
		SessionsTotal:       sessions,
		FallbacksTotal:      fallbacks,
		ErrorsTotal:         errorsTotal,
	}
}

// IncRequest increments the requests counter for a channel.
func (m *Metrics) IncRequest(channel string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(channel).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddTenders increments the scraped-records counter.
func (m *Metrics) AddTenders(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TendersScrapedTotal.Add(float64(n))
}

// IncSessions increments the established-sessions counter.
func (m *Metrics) IncSessions() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

// IncFallback increments the strategy-fallback counter.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.FallbacksTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
