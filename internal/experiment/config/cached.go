package config

import (
	"context"
	"sync"
	"time"

	"splitlab/internal/experiment/models"
	"splitlab/internal/experiment/ports"
)

// Cached memoizes an inner provider's snapshot for a TTL so per-render
// evaluation never pays a remote fetch. A stale snapshot is served when a
// refresh fails. Concurrent refreshes are a benign race: both fetch the same
// upstream state and the last write wins.
type Cached struct {
	inner ports.ConfigProvider
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	snapshot  models.ConfigSet
	fetchedAt time.Time
}

// CachedOption configures a Cached provider.
type CachedOption func(*Cached)

// WithCacheClock overrides the time source, for tests.
func WithCacheClock(now func() time.Time) CachedOption {
	return func(c *Cached) {
		c.now = now
	}
}

// NewCached wraps inner with a TTL snapshot cache.
func NewCached(inner ports.ConfigProvider, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) GetConfig(ctx context.Context) (models.ConfigSet, error) {
	c.mu.RLock()
	fresh := c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl
	snapshot := c.snapshot
	c.mu.RUnlock()

	if fresh {
		return snapshot.Clone(), nil
	}

	set, err := c.inner.GetConfig(ctx)
	if err != nil {
		// Serve stale over failing: the previous snapshot is still a valid
		// view of the experiment universe.
		if snapshot != nil {
			return snapshot.Clone(), nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.snapshot = set
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return set.Clone(), nil
}
