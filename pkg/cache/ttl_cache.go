package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
)

// LoadFunc produces the value for a missing or expired key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// keyLock serializes loads of a single key. refs counts the goroutines holding or
// waiting on it so the registry can drop it once nobody needs it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// TTLCache is a keyed cache with a fixed time-to-live and single-flight loading.
//
// Thread Safety:
//
//	The entry map is guarded by mu, held only for lookups and inserts, never across a
//	load. Loads are serialized per key by a lazily created keyLock; loads of
//	different keys run concurrently. Expired entries are evicted lazily on access.
//	gen counts Invalidate and Clear calls; a load that overlapped one returns its
//	value without storing it.
type TTLCache[K comparable, V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
	gen     uint64

	locksMu sync.Mutex
	locks   map[K]*keyLock

	metrics *Metrics
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *Metrics
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records hits, misses and loads on m under the cache's name.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a cache whose entries live for ttl. A non-positive ttl is a
// configuration error.
func New[K comparable, V any](name string, ttl time.Duration, opts ...Option) (*TTLCache[K, V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: cache %q ttl must be positive, got %s", apperrors.ErrInvalidConfig, name, ttl)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[K, V]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]entry[V]),
		locks:   make(map[K]*keyLock),
		metrics: o.metrics,
	}, nil
}

// Name returns the cache name used in metrics.
func (c *TTLCache[K, V]) Name() string { return c.name }

// TTL returns the configured time-to-live.
func (c *TTLCache[K, V]) TTL() time.Duration { return c.ttl }

// GetOrLoad returns the live value for key, calling load at most once across all
// concurrent callers when the key is missing or expired. A load error is returned to
// the caller and nothing is cached, so the next call retries.
func (c *TTLCache[K, V]) GetOrLoad(ctx context.Context, key K, load LoadFunc[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.metrics.hit(c.name)
		return v, nil
	}

	lock := c.acquireKeyLock(key)
	defer c.releaseKeyLock(key, lock)

	// A concurrent caller may have populated the entry while we waited.
	if v, ok := c.lookup(key); ok {
		c.metrics.hit(c.name)
		return v, nil
	}
	c.metrics.miss(c.name)

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		c.metrics.loadError(c.name)
		var zero V
		return zero, err
	}
	c.metrics.load(c.name)

	c.mu.Lock()
	if c.gen == gen {
		c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()

	return v, nil
}

// lookup returns a live entry, evicting it if it has expired.
func (c *TTLCache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) acquireKeyLock(key K) *keyLock {
	c.locksMu.Lock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &keyLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *TTLCache[K, V]) releaseKeyLock(key K, lock *keyLock) {
	lock.mu.Unlock()

	c.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, key)
	}
	c.locksMu.Unlock()
}

// Invalidate removes key and reports whether it was present.
func (c *TTLCache[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.gen++
	return ok
}

// Clear drops every entry.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.gen++
}

// Size returns the number of stored entries, including expired entries that have not
// been accessed since they expired.
func (c *TTLCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
