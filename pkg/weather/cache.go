package weather

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/prometheus/client_golang/prometheus"
)

// CacheOptions configures a CachedSource.
type CacheOptions struct {
	MaxEntries int
	TTL        time.Duration
	Clock      clockwork.Clock
	// Lookups, if set, is incremented with label "hit" or "miss".
	Lookups *prometheus.CounterVec
}

// CachedSource wraps a Source with an in-memory LRU cache whose entries expire
// after a TTL. Users sharing a location within one cycle cost a single fetch.
type CachedSource struct {
	inner   Source
	ttl     time.Duration
	clock   clockwork.Clock
	lookups *prometheus.CounterVec

	mu         sync.Mutex
	maxEntries int
	order      *list.List
	entries    map[string]*list.Element
}

type cacheEntry struct {
	key       string
	snap      hazard.Snapshot
	expiresAt time.Time
}

// NewCachedSource creates a cache decorator around a source.
func NewCachedSource(inner Source, opts CacheOptions) *CachedSource {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	return &CachedSource{
		inner:      inner,
		ttl:        opts.TTL,
		clock:      opts.Clock,
		lookups:    opts.Lookups,
		maxEntries: opts.MaxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *CachedSource) Fetch(ctx context.Context, lat, lon float64) (hazard.Snapshot, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if snap, ok := c.get(key); ok {
		c.observe("hit")
		return snap, nil
	}
	c.observe("miss")

	snap, err := c.inner.Fetch(ctx, lat, lon)
	if err != nil {
		return snap, err
	}
	c.put(key, snap)
	return snap, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *CachedSource) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedSource) observe(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

func (c *CachedSource) get(key string) (hazard.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return hazard.Snapshot{}, false
	}
	e := el.Value.(*cacheEntry)
	if !c.clock.Now().Before(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return hazard.Snapshot{}, false
	}
	c.order.MoveToFront(el)
	return e.snap, true
}

func (c *CachedSource) put(key string, snap hazard.Snapshot) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.snap = snap
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, snap: snap, expiresAt: expiresAt})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}
