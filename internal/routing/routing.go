package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

var (
	// ErrRouteNotFound: the service answered but found no route between
	// the points. Terminal for the request.
	ErrRouteNotFound = errors.New("no route found")
	// ErrServiceUnavailable: transport failure or timeout. Retryable.
	ErrServiceUnavailable = errors.New("routing service unavailable")
)

// Client is the external travel-metrics collaborator, consumed once per
// ride submission. Implementations must respect ctx deadlines.
type Client interface {
	Estimate(ctx context.Context, origin, destination models.Coord) (models.TripEstimate, error)
}

// Cache is a small TTL cache for estimates keyed by coordinate pair.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  models.TripEstimate
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

func (c *Cache) Get(a, b models.Coord) (models.TripEstimate, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.TripEstimate{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.TripEstimate{}, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v models.TripEstimate) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// CachedClient consults the cache before the wrapped client. Only
// successful estimates are cached; failures always retry upstream.
type CachedClient struct {
	Inner Client
	Cache *Cache
}

func (c *CachedClient) Estimate(ctx context.Context, origin, destination models.Coord) (models.TripEstimate, error) {
	if v, ok := c.Cache.Get(origin, destination); ok {
		return v, nil
	}
	v, err := c.Inner.Estimate(ctx, origin, destination)
	if err != nil {
		return models.TripEstimate{}, err
	}
	c.Cache.Set(origin, destination, v)
	return v, nil
}
