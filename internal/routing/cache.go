package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

const (
	// DefaultCacheTTL keeps one-shot lookups for a minute so repeated
	// previews of the same trip do not hit the engine.
	DefaultCacheTTL = time.Minute

	// Five decimals is ~1 m, below GPS precision.
	cacheKeyPrecision = 5
)

// CachingFetcher memoizes successful lookups for a TTL. Route plans are
// immutable, so cached values are shared between callers. Only one-shot
// lookups go through it; sessions always ask the engine directly.
type CachingFetcher struct {
	next  navigation.RouteFetcher
	cache *cache.Cache
}

// NewCachingFetcher wraps next with a TTL cache.
func NewCachingFetcher(next navigation.RouteFetcher, ttl time.Duration) *CachingFetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingFetcher{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// FetchRoute implements navigation.RouteFetcher.
func (c *CachingFetcher) FetchRoute(ctx context.Context, start, end geo.Coordinate, alternatives bool) (*navigation.RoutePlan, error) {
	key := cacheKey(start, end, alternatives)
	if v, ok := c.cache.Get(key); ok {
		return v.(*navigation.RoutePlan), nil
	}

	plan, err := c.next.FetchRoute(ctx, start, end, alternatives)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, plan, cache.DefaultExpiration)
	return plan, nil
}

// Len returns the number of cached plans.
func (c *CachingFetcher) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached plan.
func (c *CachingFetcher) Flush() {
	c.cache.Flush()
}

func cacheKey(start, end geo.Coordinate, alternatives bool) string {
	return fmt.Sprintf("route:%.*f,%.*f:%.*f,%.*f:%t",
		cacheKeyPrecision, start.Lat, cacheKeyPrecision, start.Lng,
		cacheKeyPrecision, end.Lat, cacheKeyPrecision, end.Lng,
		alternatives,
	)
}
