package providers

import (
	"context"
	"sync"

	"stampd/internal/platform/metrics"
)

// Context is the per-request memoization cache shared by all providers within
// one verification request. A provider performs its upstream lookup at most
// once per request; siblings reading the same namespace reuse the stored
// result. Unrelated requests never share a Context.
type Context struct {
	mu      sync.Mutex
	entries map[string]*contextEntry
	metrics *metrics.Metrics
}

type contextEntry struct {
	once sync.Once
	val  any
	err  error
}

// NewContext creates an empty per-request cache.
func NewContext(m *metrics.Metrics) *Context {
	return &Context{
		entries: make(map[string]*contextEntry),
		metrics: m,
	}
}

func (c *Context) entry(key string) (*contextEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, hit := c.entries[key]
	if !hit {
		e = &contextEntry{}
		c.entries[key] = e
	}
	return e, hit
}

// Lookup returns the memoized value for key, computing it via fn on first
// use. Concurrent callers for the same key block until the first computation
// finishes; a computation error is memoized like a value, so a failed
// upstream is not retried within the same request.
func Lookup[T any](ctx context.Context, c *Context, key string, fn func(context.Context) (T, error)) (T, error) {
	e, hit := c.entry(key)
	if hit && c.metrics != nil {
		c.metrics.ContextLookupHits.Inc()
	}
	e.once.Do(func() {
		e.val, e.err = fn(ctx)
	})
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.val.(T), nil
}
