// Package metrics exposes Prometheus telemetry for refresh cycles.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of the refresh pipeline.
type Metrics struct {
	gatherer prometheus.Gatherer

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	items         *prometheus.CounterVec
	scrapes       *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_refresh_cycles_total",
				Help: "Total number of refresh cycles by status.",
			},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_refresh_cycle_duration_seconds",
				Help:    "Histogram of refresh cycle durations.",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 120},
			},
		),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_refresh_items_total",
				Help: "Products processed by refresh cycles, by outcome.",
			},
			[]string{"outcome"},
		),
		scrapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrape_attempts_total",
				Help: "Scrape attempts by result.",
			},
			[]string{"result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_notifications_total",
				Help: "Notifications by category and result.",
			},
			[]string{"category", "result"},
		),
	}

	reg.MustRegister(m.cycles, m.cycleDuration, m.items, m.scrapes, m.notifications)

	return m
}

// NewDefault registers the collectors on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// CycleFinished records one refresh cycle.
func (m *Metrics) CycleFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ItemProcessed records the outcome of one product: "updated" or a skip kind.
func (m *Metrics) ItemProcessed(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

// ScrapeAttempt records one scrape attempt result.
func (m *Metrics) ScrapeAttempt(result string) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(result).Inc()
}

// Notification records one dispatched or failed notification.
func (m *Metrics) Notification(category, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(category, result).Inc()
}

// Handler returns an HTTP handler exporting the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
