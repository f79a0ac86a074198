// Package store memoizes remote order lookups.
package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fairyhunter13/square-exporter/internal/model"
)

// OrderFetcher retrieves an order from the remote system.
type OrderFetcher interface {
	RetrieveOrder(ctx context.Context, orderID string) (model.Order, error)
}

// OrderCache resolves orders by id, fetching each id at most once while it
// stays resident. Capacity is bounded (least recently used entries are
// evicted) and a positive ttl expires entries; ttl <= 0 never expires.
// Failed fetches are not cached.
type OrderCache struct {
	fetcher OrderFetcher
	lru     *expirable.LRU[string, model.Order]

	hits   atomic.Uint64
	misses atomic.Uint64

	// OnLookup, when set, observes every Resolve as "hit" or "miss".
	OnLookup func(result string)
}

// New creates an OrderCache holding at most size orders.
func New(fetcher OrderFetcher, size int, ttl time.Duration) *OrderCache {
	if size <= 0 {
		size = 1
	}
	return &OrderCache{
		fetcher: fetcher,
		lru:     expirable.NewLRU[string, model.Order](size, nil, ttl),
	}
}

// Resolve returns the order for orderID, hitting the remote system only on
// a miss.
func (c *OrderCache) Resolve(ctx context.Context, orderID string) (model.Order, error) {
	if o, ok := c.lru.Get(orderID); ok {
		c.hits.Add(1)
		c.observe("hit")
		return o, nil
	}
	c.misses.Add(1)
	c.observe("miss")
	o, err := c.fetcher.RetrieveOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	c.lru.Add(orderID, o)
	return o, nil
}

// Len returns the number of resident orders.
func (c *OrderCache) Len() int { return c.lru.Len() }

// Stats returns the hit and miss counters.
func (c *OrderCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *OrderCache) observe(result string) {
	if c.OnLookup != nil {
		c.OnLookup(result)
	}
}
