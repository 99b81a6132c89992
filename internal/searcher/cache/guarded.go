package cache

import (
	"context"
	"time"

	pkgredis "github.com/mrtazz/admiral/pkg/redis"
	"github.com/mrtazz/admiral/pkg/resilience"
)

// GuardedStore fails fast while the backing store is unhealthy so a dead
// Redis costs each query a map lookup instead of a network timeout. A cache
// miss is not a failure.
type GuardedStore struct {
	store   Store
	breaker *resilience.CircuitBreaker
}

func NewGuardedStore(store Store, breaker *resilience.CircuitBreaker) *GuardedStore {
	return &GuardedStore{store: store, breaker: breaker}
}

func (g *GuardedStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	var getErr error
	err := g.breaker.Execute(func() error {
		value, getErr = g.store.Get(ctx, key)
		if pkgredis.IsNilError(getErr) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return "", err
	}
	return value, getErr
}

func (g *GuardedStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.breaker.Execute(func() error {
		return g.store.Set(ctx, key, value, ttl)
	})
}

// FlushByPattern bypasses the breaker and resets it on success: an explicit
// invalidation is also a health probe.
func (g *GuardedStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	n, err := g.store.FlushByPattern(ctx, pattern)
	if err == nil {
		g.breaker.Reset()
	}
	return n, err
}
