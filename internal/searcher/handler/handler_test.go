package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mrtazz/admiral/internal/analytics"
	"github.com/mrtazz/admiral/internal/indexer"
	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/source"
	"github.com/mrtazz/admiral/internal/searcher/cache"
	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/pkg/kafka"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string]string)
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func newMux(t *testing.T, withCache bool) (*http.ServeMux, *cache.QueryCache) {
	t.Helper()
	return newTrackedMux(t, withCache, nil)
}

func newTrackedMux(t *testing.T, withCache bool, collector *analytics.Collector) (*http.ServeMux, *cache.QueryCache) {
	t.Helper()
	idx, _, err := indexer.NewBuilder(indexer.Options{}).Build(context.Background(), source.NewMemory().
		Add("doc1", "the cat sat").
		Add("doc2", "the cat ran"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: make(map[string]string)}, time.Minute, nil)
	}
	mux := http.NewServeMux()
	New(executor.New(idx, nil), qc, collector, 10, 50).Register(mux)
	return mux, qc
}

func do(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatusCodes(t *testing.T) {
	mux, _ := newMux(t, false)
	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"search", http.MethodGet, "/api/v1/search?q=cat", http.StatusOK},
		{"search missing q", http.MethodGet, "/api/v1/search", http.StatusBadRequest},
		{"search bad mode", http.MethodGet, "/api/v1/search?q=cat&mode=fuzzy", http.StatusBadRequest},
		{"search bad limit", http.MethodGet, "/api/v1/search?q=cat&limit=0", http.StatusBadRequest},
		{"search unknown term", http.MethodGet, "/api/v1/search?q=cat+zzz", http.StatusNotFound},
		{"search unknown ranked", http.MethodGet, "/api/v1/search?q=zzz&mode=or", http.StatusOK},
		{"intersect missing q", http.MethodGet, "/api/v1/intersect", http.StatusBadRequest},
		{"ranked missing q", http.MethodGet, "/api/v1/ranked", http.StatusBadRequest},
		{"prefix missing query", http.MethodGet, "/prefix_search", http.StatusBadRequest},
		{"term", http.MethodGet, "/api/v1/terms/cat", http.StatusOK},
		{"term unknown", http.MethodGet, "/api/v1/terms/zzz", http.StatusNotFound},
		{"stats bad top", http.MethodGet, "/api/v1/stats?top=x", http.StatusBadRequest},
		{"invalidate without cache", http.MethodPost, "/api/v1/cache/invalidate", http.StatusServiceUnavailable},
		{"invalidate wrong method", http.MethodGet, "/api/v1/cache/invalidate", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, mux, tt.method, tt.target); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSearchAndMode(t *testing.T) {
	mux, _ := newMux(t, false)
	rec := do(t, mux, http.MethodGet, "/api/v1/search?q=Cat+SAT")
	var result executor.SearchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.TotalHits != 1 || result.Results[0].FileName != "doc1" || result.Mode != "and" {
		t.Errorf("result = %+v", result)
	}
}

func TestIntersectUnknownTermNamed(t *testing.T) {
	mux, _ := newMux(t, false)
	rec := do(t, mux, http.MethodGet, "/api/v1/intersect?q=cat+zzz")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["term"] != "zzz" || body["error"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestIntersect(t *testing.T) {
	mux, _ := newMux(t, false)
	rec := do(t, mux, http.MethodGet, "/api/v1/intersect?q=cat")
	var resp intersectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 2 || resp.Results[0].DocID != 1 || resp.Results[1].FileName != "doc2" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRanked(t *testing.T) {
	mux, _ := newMux(t, false)
	rec := do(t, mux, http.MethodGet, "/api/v1/ranked?q=cat+sat+zzz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp rankedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].DocID != 1 || resp.Results[1].DocID != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if math.Abs(resp.Results[0].Score-math.Log10(2)) > 1e-9 || resp.Results[1].Score != 0 {
		t.Errorf("scores = %v, %v", resp.Results[0].Score, resp.Results[1].Score)
	}
	if strings.Join(resp.Recognized, ",") != "cat,sat" || strings.Join(resp.Unrecognized, ",") != "zzz" {
		t.Errorf("recognized = %v, unrecognized = %v", resp.Recognized, resp.Unrecognized)
	}
}

func TestPrefixSearchXML(t *testing.T) {
	mux, _ := newMux(t, false)
	rec := do(t, mux, http.MethodGet, "/prefix_search?query=ca")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("content type = %q", ct)
	}
	want := "<result><item><completion>cat</completion><doclength>2</doclength><percentage>100</percentage></item></result>"
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body = %s\nwant %s", rec.Body.String(), want)
	}

	rec = do(t, mux, http.MethodGet, "/prefix_search?query=")
	if !strings.Contains(rec.Body.String(), "<result></result>") {
		t.Errorf("empty prefix body = %s", rec.Body.String())
	}
}

func TestTermAndStats(t *testing.T) {
	mux, _ := newMux(t, false)
	var term termResponse
	if err := json.NewDecoder(do(t, mux, http.MethodGet, "/api/v1/terms/SAT").Body).Decode(&term); err != nil {
		t.Fatal(err)
	}
	if term.DocFreq != 1 || term.Postings[0].FileName != "doc1" || term.Postings[0].Frequency != 1 {
		t.Errorf("term = %+v", term)
	}

	var stats statsResponse
	if err := json.NewDecoder(do(t, mux, http.MethodGet, "/api/v1/stats?top=2").Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 2 || stats.Terms != 4 || stats.Postings != 6 || len(stats.TopTerms) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, tf := range stats.TopTerms {
		if tf.DocFreq != 2 {
			t.Errorf("top term %+v should have df 2", tf)
		}
	}
	if want := []index.DocFreqCount{{DocFreq: 1, Terms: 2}, {DocFreq: 2, Terms: 2}}; !reflect.DeepEqual(stats.DocFreqs, want) {
		t.Errorf("histogram = %+v, want %+v", stats.DocFreqs, want)
	}
}

func TestSearchCached(t *testing.T) {
	mux, qc := newMux(t, true)
	for range 3 {
		if rec := do(t, mux, http.MethodGet, "/api/v1/search?q=cat&mode=or"); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if hits, misses := qc.Stats(); hits != 2 || misses != 1 {
		t.Errorf("hits = %d, misses = %d", hits, misses)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/cache/stats"); !strings.Contains(rec.Body.String(), `"hit_rate":"66.7%"`) {
		t.Errorf("cache stats = %s", rec.Body.String())
	}
	rec := do(t, mux, http.MethodPost, "/api/v1/cache/invalidate")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"keys_deleted":1`) {
		t.Errorf("invalidate = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSearchEventUsesEffectiveMode(t *testing.T) {
	pub := &recordingPublisher{}
	collector := analytics.NewCollector(pub, 100, time.Hour, nil)
	mux, _ := newTrackedMux(t, false, collector)

	if rec := do(t, mux, http.MethodGet, "/api/v1/search?q=cat+OR+zzz&mode=and"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	collector.Flush(context.Background())

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0].Value.(analytics.SearchEvent)
	if ev.Mode != "or" {
		t.Errorf("event mode = %q, want or", ev.Mode)
	}
	if !reflect.DeepEqual(ev.Unrecognized, []string{"zzz"}) {
		t.Errorf("event unrecognized = %v, want [zzz]", ev.Unrecognized)
	}
}

func TestSearchCachedEchoesCallerQuery(t *testing.T) {
	mux, qc := newMux(t, true)
	for _, q := range []string{"cat", "CAT", "Cat"} {
		var result executor.SearchResult
		if err := json.NewDecoder(do(t, mux, http.MethodGet, "/api/v1/search?mode=or&q="+q).Body).Decode(&result); err != nil {
			t.Fatal(err)
		}
		if result.Query != q {
			t.Errorf("query echoed as %q, want %q", result.Query, q)
		}
		if result.TotalHits != 2 {
			t.Errorf("%s: total hits = %d", q, result.TotalHits)
		}
	}
	if hits, misses := qc.Stats(); hits != 2 || misses != 1 {
		t.Errorf("hits = %d, misses = %d", hits, misses)
	}
}
