package routing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached route is served.
const DefaultTTL = 10 * time.Minute

// Key identifies a cached route.
type Key struct {
	TokenIn  common.Address
	AmountIn string
	TokenOut common.Address
}

// NewKey builds a key from a raw input amount.
func NewKey(tokenIn common.Address, amountIn *big.Int, tokenOut common.Address) Key {
	return Key{TokenIn: tokenIn, AmountIn: amountIn.String(), TokenOut: tokenOut}
}

func (k Key) String() string {
	return strings.ToLower(k.TokenIn.Hex()) + ":" + k.AmountIn + ":" + strings.ToLower(k.TokenOut.Hex())
}

// Store is a shared tier behind the in-memory cache.
type Store interface {
	Get(ctx context.Context, key Key) (Route, bool, error)
	// PutIfAbsent stores r unless a live entry exists, and returns
	// whichever route is stored afterwards.
	PutIfAbsent(ctx context.Context, key Key, r Route, ttl time.Duration) (Route, error)
}

type cacheEntry struct {
	route     Route
	fetchedAt time.Time
}

// Cache is a read-through TTL cache of routes. Entries expire and are
// never invalidated early. Concurrent misses for one key share a single
// fetch, and a live entry is never overwritten.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	store   Store
	log     logrus.FieldLogger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithStore adds a shared tier consulted on local misses.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l logrus.FieldLogger) CacheOption {
	return func(c *Cache) { c.log = l }
}

// NewCache returns an empty cache. A non-positive ttl means DefaultTTL.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[Key]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) lookup(key Key) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return Route{}, false
	}
	return e.route.Clone(), true
}

// insertIfAbsent stores r unless a live entry exists; it returns the entry
// that won.
func (c *Cache) insertIfAbsent(key Key, r Route) Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.entries[key]; ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.route.Clone()
	}
	c.entries[key] = cacheEntry{route: r.Clone(), fetchedAt: now}
	return r.Clone()
}

// GetOrFetch returns the cached route for key or calls fetch to populate it.
// Errors and zero-output routes are returned but not cached. Concurrent
// misses share one fetch, which runs detached from any caller's
// cancellation; a cancelled caller stops waiting without failing the others.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch func(ctx context.Context) (Route, error)) (Route, error) {
	if r, ok := c.lookup(key); ok {
		c.log.WithField("key", key.String()).Debug("route cache hit")
		return r, nil
	}

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)

		// Double-check after winning the flight.
		if r, ok := c.lookup(key); ok {
			return r, nil
		}

		if c.store != nil {
			r, ok, err := c.store.Get(ctx, key)
			if err != nil {
				c.log.WithError(err).Warn("shared route store read failed")
			} else if ok {
				c.log.WithField("key", key.String()).Debug("shared route store hit")
				return c.insertIfAbsent(key, r), nil
			}
		}

		c.log.WithField("key", key.String()).Debug("route cache miss")
		r, err := fetch(ctx)
		if err != nil {
			return Route{}, err
		}
		if r.IsZero() {
			return r, nil
		}

		if c.store != nil {
			stored, err := c.store.PutIfAbsent(ctx, key, r, c.ttl)
			if err != nil {
				c.log.WithError(err).Warn("shared route store write failed")
			} else {
				r = stored
			}
		}
		return c.insertIfAbsent(key, r), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Route{}, fmt.Errorf("route cache: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return Route{}, res.Err
	}
	route, ok := res.Val.(Route)
	if !ok {
		return Route{}, fmt.Errorf("route cache: unexpected value %T", res.Val)
	}
	// Flight results are shared between callers; hand each its own copy.
	return route.Clone(), nil
}

// Len is the number of entries, live or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
