package execution

import (
	"context"
	"sync"
	"time"

	"autohedge/internal/modules/broker"
	"autohedge/pkg/logger"
)

// AccountCache serves buying power without hitting the broker on every
// order. Entries live at most ttl; placing an order invalidates the
// cache so the next sizing sees the spent funds.
type AccountCache struct {
	api broker.API
	ttl time.Duration

	mu        sync.Mutex
	summary   broker.AccountSummary
	fetchedAt time.Time
	now       func() time.Time
}

func NewAccountCache(api broker.API, ttl time.Duration) *AccountCache {
	return &AccountCache{api: api, ttl: ttl, now: time.Now}
}

// Summary returns the cached account, refreshing synchronously when
// stale. Staleness is decided under the lock, the broker fetch runs
// with no lock held, and the lock is retaken only to commit the
// result. A refresh failure fails the caller.
func (c *AccountCache) Summary(ctx context.Context) (broker.AccountSummary, error) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		summary := c.summary
		c.mu.Unlock()
		return summary, nil
	}
	c.mu.Unlock()

	summary, err := c.api.GetAccount(ctx)
	if err != nil {
		return broker.AccountSummary{}, err
	}

	c.mu.Lock()
	c.summary = summary
	c.fetchedAt = c.now()
	c.mu.Unlock()

	logger.Debug("[ACCOUNT] refreshed: buying_power=%.2f cash=%.2f", summary.BuyingPower, summary.Cash)
	return summary, nil
}

// Invalidate forces the next Summary to fetch.
func (c *AccountCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
