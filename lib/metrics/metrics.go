// Package metrics holds the prometheus collectors for the enrichment
// pipeline and the metadata gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// Lookups counts metadata gateway lookups by outcome:
	// ok, not_found, error, outage.
	Lookups *prometheus.CounterVec

	// KeyRotations counts credential switches after provider rate limits.
	KeyRotations prometheus.Counter

	// Uploads counts processed user archives by outcome: ok, error.
	Uploads *prometheus.CounterVec

	// ReconcileDuration observes full reconciliation passes.
	ReconcileDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmlens_lookups_total",
			Help: "Metadata provider lookups by outcome.",
		}, []string{"outcome"}),
		KeyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filmlens_key_rotations_total",
			Help: "API credential rotations triggered by provider rate limits.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmlens_uploads_total",
			Help: "Processed user archives by outcome.",
		}, []string{"outcome"}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "filmlens_reconcile_duration_seconds",
			Help:    "Duration of full catalog reconciliation passes.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.Lookups,
		m.KeyRotations,
		m.Uploads,
		m.ReconcileDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the scrape endpoint for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
