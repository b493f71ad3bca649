package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for searches, boundary enrichment and
// history persistence.
type Metrics struct {
	registry *prometheus.Registry

	// Search outcomes: "success", "not_found", "error", "stale"
	Searches       *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// One increment per Overpass request attempt
	BoundaryAttempts *prometheus.CounterVec

	HistoryWrites *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowler_searches_total",
			Help: "Completed postcode searches by outcome",
		}, []string{"outcome"}),

		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prowler_search_duration_seconds",
			Help:    "Duration of a postcode search including boundary enrichment",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		BoundaryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowler_boundary_attempts_total",
			Help: "Overpass request attempts by outcome",
		}, []string{"outcome"}), // ok, empty, gateway_timeout, network, status, error

		HistoryWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowler_history_writes_total",
			Help: "History persist attempts by outcome",
		}, []string{"outcome"}),
	}
}

// SearchCompleted records a finished search.
func (m *Metrics) SearchCompleted(outcome string, elapsed time.Duration) {
	if m != nil {
		m.Searches.WithLabelValues(outcome).Inc()
		m.SearchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

// BoundaryAttempt records one Overpass request attempt.
func (m *Metrics) BoundaryAttempt(outcome string) {
	if m != nil {
		m.BoundaryAttempts.WithLabelValues(outcome).Inc()
	}
}

// HistoryPersist records one history write.
func (m *Metrics) HistoryPersist(outcome string) {
	if m != nil {
		m.HistoryWrites.WithLabelValues(outcome).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
