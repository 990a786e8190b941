package directions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-navigation/internal/models"
)

// Cache memoizes route lookups keyed by origin/destination. Route geometry
// is immutable once computed for a trip, so a TTL cache in front of the
// provider is safe.
type Cache struct {
	inner Client
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	route Route
	ts    time.Time
}

func NewCache(inner Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{inner: inner, store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.LatLng) string {
	return fmtPoint(a) + "->" + fmtPoint(b)
}

func fmtPoint(p models.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

func (c *Cache) Route(ctx context.Context, origin, dest models.LatLng) (Route, error) {
	k := keyFor(origin, dest)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.route, nil
	}
	if ok {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
	}

	route, err := c.inner.Route(ctx, origin, dest)
	if err != nil {
		return Route{}, err
	}
	c.mu.Lock()
	c.store[k] = cacheEntry{route: route, ts: time.Now()}
	c.mu.Unlock()
	return route, nil
}
