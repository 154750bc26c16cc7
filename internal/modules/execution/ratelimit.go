package execution

import (
	"sync"
	"time"
)

// RateLimiter admits at most one order per symbol per interval. The
// decision compares against the instant stored at the last admission,
// never against a time captured earlier by the caller.
type RateLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether an order for the symbol may be issued now and,
// if so, stamps the admission.
func (r *RateLimiter) Allow(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if issued, ok := r.last[symbol]; ok && now.Sub(issued) < r.interval {
		return false
	}
	r.last[symbol] = now
	return true
}
