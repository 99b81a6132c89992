package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/internal/searcher/parser"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
	"github.com/mrtazz/admiral/pkg/resilience"
)

// memStore is an in-memory Store that reports misses the way go-redis does.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
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

func (s *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		Mode:      "and",
		TotalHits: 1,
		Results:   []executor.Hit{{DocID: 1, FileName: "doc1.txt"}},
		TermStats: map[string]int{"cat": 2},
	}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	plan := parser.Parse("cat", parser.ModeAnd)

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result("cat"), nil
	}

	first, hit, err := c.GetOrCompute(ctx, plan, 10, compute)
	if err != nil || hit || first.TotalHits != 1 {
		t.Fatalf("first = %+v, hit=%v, err=%v", first, hit, err)
	}
	second, hit, err := c.GetOrCompute(ctx, parser.Parse("CAT", parser.ModeAnd), 10, compute)
	if err != nil || !hit || second.Results[0].FileName != "doc1.txt" {
		t.Fatalf("second = %+v, hit=%v, err=%v", second, hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	for _, ttl := range store.ttls {
		if ttl != time.Minute {
			t.Errorf("ttl = %v", ttl)
		}
	}

	if _, hit, _ := c.GetOrCompute(ctx, plan, 20, compute); hit {
		t.Error("different limit must not share a cache entry")
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 2 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	plan := parser.Parse("zzz", parser.ModeAnd)
	wantErr := apperrors.NewTermNotFoundError("zzz")

	for i := 0; i < 2; i++ {
		_, _, err := c.GetOrCompute(context.Background(), plan, 10, func() (*executor.SearchResult, error) {
			return nil, wantErr
		})
		if !errors.Is(err, apperrors.ErrTermNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if hits, _ := c.Stats(); hits != 0 {
		t.Errorf("errors must not be cached, got %d hits", hits)
	}
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	plan := parser.Parse("slow query", parser.ModeRanked)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), plan, 10, func() (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return result("slow query"), nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("compute called %d times", n)
	}
	if _, ok := c.Get(context.Background(), plan, 10); !ok {
		t.Error("result should be cached after compute")
	}
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, parser.Parse("a", parser.ModeAnd), 10, result("a"))
	c.Set(ctx, parser.Parse("b", parser.ModeAnd), 10, result("b"))
	store.data["other:key"] = "kept"

	n, err := c.Invalidate(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Invalidate() = %d, %v", n, err)
	}
	if _, ok := store.data["other:key"]; !ok {
		t.Error("keys outside the cache prefix must survive")
	}
	if _, ok := c.Get(ctx, parser.Parse("a", parser.ModeAnd), 10); ok {
		t.Error("entry survived invalidation")
	}
}

func TestBuildKeyStable(t *testing.T) {
	a := buildKey(parser.Parse("Cat  Sat", parser.ModeAnd), 5)
	b := buildKey(parser.Parse("cat sat", parser.ModeAnd), 5)
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}
	if len(a) != len(keyPrefix)+32 {
		t.Errorf("unexpected key %q", a)
	}
}

type failingStore struct {
	calls atomic.Int64
}

func (s *failingStore) Get(context.Context, string) (string, error) {
	s.calls.Add(1)
	return "", errors.New("connection refused")
}

func (s *failingStore) Set(context.Context, string, any, time.Duration) error {
	s.calls.Add(1)
	return errors.New("connection refused")
}

func (s *failingStore) FlushByPattern(context.Context, string) (int64, error) {
	return 0, nil
}

func TestGuardedStoreFailsFast(t *testing.T) {
	backing := &failingStore{}
	breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	guarded := NewGuardedStore(backing, breaker)
	ctx := context.Background()

	for range 5 {
		if _, err := guarded.Get(ctx, "k"); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := backing.calls.Load(); got != 2 {
		t.Errorf("backing store called %d times, want 2", got)
	}
	if _, err := guarded.Get(ctx, "k"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}

	if _, err := guarded.FlushByPattern(ctx, keyPrefix+"*"); err != nil {
		t.Fatal(err)
	}
	if breaker.GetState() != resilience.StateClosed {
		t.Errorf("breaker state after flush = %s", breaker.GetState())
	}
}

func TestGuardedStoreMissIsNotFailure(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	guarded := NewGuardedStore(newMemStore(), breaker)
	for range 3 {
		if _, err := guarded.Get(context.Background(), "absent"); !errors.Is(err, goredis.Nil) {
			t.Fatalf("err = %v, want redis.Nil", err)
		}
	}
	if breaker.GetState() != resilience.StateClosed {
		t.Errorf("misses opened the breaker")
	}
}
