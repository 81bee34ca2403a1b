package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_nilIsSafe(t *testing.T) {
	var m *Metrics
	m.CacheHit()
	m.CacheMiss()
	m.ObserveRewrites(3)
	m.GatewayError("analyze")
	m.CacheError("save")
	m.Verdict("exact")
	m.DocIndexed()
	m.Invalidated("index", 2)
}

func TestMetrics_counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.GatewayError("analyze")
	m.Verdict("fuzzy")
	m.Invalidated("container", 4)

	if got := testutil.ToFloat64(m.RewriteCacheHits); got != 2 {
		t.Errorf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.RewriteCacheMisses); got != 1 {
		t.Errorf("misses = %v", got)
	}
	if got := testutil.ToFloat64(m.GatewayErrors.WithLabelValues("analyze")); got != 1 {
		t.Errorf("gateway errors = %v", got)
	}
	if got := testutil.ToFloat64(m.Verdicts.WithLabelValues("fuzzy")); got != 1 {
		t.Errorf("verdicts = %v", got)
	}
	if got := testutil.ToFloat64(m.Invalidations.WithLabelValues("container")); got != 4 {
		t.Errorf("invalidations = %v", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheMiss()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kotoba_rewrite_cache_misses_total 1") {
		t.Errorf("missing counter in output:\n%s", rec.Body.String())
	}
}
