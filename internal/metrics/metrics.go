// Package metrics defines the Prometheus collectors for the rewriter, the
// spelling classifier and the cache. A nil *Metrics records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	RewriteCacheHits   prometheus.Counter
	RewriteCacheMisses prometheus.Counter
	RewritesPerQuery   prometheus.Histogram
	GatewayErrors      *prometheus.CounterVec
	CacheErrors        *prometheus.CounterVec
	Verdicts           *prometheus.CounterVec
	DocsIndexed        prometheus.Counter
	Invalidations      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RewriteCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kotoba_rewrite_cache_hits_total",
				Help: "Total number of rewrite cache hits.",
			},
		),
		RewriteCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kotoba_rewrite_cache_misses_total",
				Help: "Total number of rewrite cache misses.",
			},
		),
		RewritesPerQuery: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kotoba_rewrites_per_query",
				Help:    "Number of alternate texts produced per computed rewrite.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		GatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kotoba_gateway_errors_total",
				Help: "Engine gateway failures by operation (analyze, index_stats, term_vectors).",
			},
			[]string{"operation"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kotoba_cache_errors_total",
				Help: "Rewrite cache failures by operation (load, save).",
			},
			[]string{"operation"},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kotoba_spelling_verdicts_total",
				Help: "Spelling classifications by verdict.",
			},
			[]string{"verdict"},
		),
		DocsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kotoba_docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		Invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kotoba_cache_invalidations_total",
				Help: "Cache entries dropped by tag kind (index, container).",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RewriteCacheHits,
			m.RewriteCacheMisses,
			m.RewritesPerQuery,
			m.GatewayErrors,
			m.CacheErrors,
			m.Verdicts,
			m.DocsIndexed,
			m.Invalidations,
		)
	}
	return m
}

// CacheHit counts a rewrite served from cache.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.RewriteCacheHits.Inc()
	}
}

// CacheMiss counts a rewrite that had to be computed.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.RewriteCacheMisses.Inc()
	}
}

// ObserveRewrites records the size of a computed rewrite set.
func (m *Metrics) ObserveRewrites(n int) {
	if m != nil {
		m.RewritesPerQuery.Observe(float64(n))
	}
}

// GatewayError counts a failed engine call.
func (m *Metrics) GatewayError(operation string) {
	if m != nil {
		m.GatewayErrors.WithLabelValues(operation).Inc()
	}
}

// CacheError counts a failed cache call.
func (m *Metrics) CacheError(operation string) {
	if m != nil {
		m.CacheErrors.WithLabelValues(operation).Inc()
	}
}

// Verdict counts one spelling classification.
func (m *Metrics) Verdict(v string) {
	if m != nil {
		m.Verdicts.WithLabelValues(v).Inc()
	}
}

// DocIndexed counts one indexed document.
func (m *Metrics) DocIndexed() {
	if m != nil {
		m.DocsIndexed.Inc()
	}
}

// Invalidated counts n entries dropped for a tag kind.
func (m *Metrics) Invalidated(kind string, n int) {
	if m != nil {
		m.Invalidations.WithLabelValues(kind).Add(float64(n))
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
