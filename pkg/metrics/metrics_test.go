package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestNewWithRegistryIsolated(t *testing.T) {
	regA, regB := prometheus.NewRegistry(), prometheus.NewRegistry()
	a := NewWithRegistry(regA)
	NewWithRegistry(regB)

	a.CacheHitsTotal.Inc()
	if body := scrape(t, regA); !strings.Contains(body, "admiral_cache_hits_total 1") {
		t.Errorf("registry A missing hit:\n%s", body)
	}
	if body := scrape(t, regB); !strings.Contains(body, "admiral_cache_hits_total 0") {
		t.Errorf("registry B should be untouched:\n%s", body)
	}
}

func TestObserveIndex(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.ObserveIndex(12, 340)
	body := scrape(t, reg)
	for _, want := range []string{"admiral_index_documents 12", "admiral_index_terms 340"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestScrapeExposesQueryCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.QueriesTotal.WithLabelValues("intersect", "ok").Add(3)

	if body := scrape(t, reg); !strings.Contains(body, `admiral_queries_total{action="intersect",outcome="ok"} 3`) {
		t.Errorf("scrape output missing query counter:\n%s", body)
	}
}
