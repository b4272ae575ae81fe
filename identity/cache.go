// Package identity caches actor lookups in front of the identity
// collaborator.
package identity

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/warp/stock-ledger/stock"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 5 * time.Minute
)

// CachedResolver remembers known actors for ttl. Unknown ids are not cached,
// so a newly provisioned user can act at once. Deactivating a user takes up
// to ttl to reach the ledger; call Invalidate to apply it at once.
type CachedResolver struct {
	next  stock.ActorResolver
	cache *expirable.LRU[stock.ActorID, stock.Actor]
}

func NewCachedResolver(next stock.ActorResolver, size int, ttl time.Duration) *CachedResolver {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[stock.ActorID, stock.Actor](size, nil, ttl),
	}
}

func (c *CachedResolver) ResolveActor(ctx context.Context, id stock.ActorID) (*stock.Actor, error) {
	if hit, ok := c.cache.Get(id); ok {
		return &hit, nil
	}
	actor, err := c.next.ResolveActor(ctx, id)
	if err != nil || actor == nil {
		return nil, err
	}
	c.cache.Add(id, *actor)
	return actor, nil
}

func (c *CachedResolver) Invalidate(id stock.ActorID) {
	c.cache.Remove(id)
}

func (c *CachedResolver) Len() int { return c.cache.Len() }
