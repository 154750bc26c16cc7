package market

import (
	"sync"

	"autohedge/internal/models"
)

// Store holds bounded per-symbol quote/trade history. Access is sharded:
// the store-level lock only guards the symbol map, each series carries its
// own lock, so readers of one symbol never contend with writers of
// another.
type Store struct {
	mu     sync.RWMutex
	series map[string]*series
	limit  int
}

type series struct {
	mu     sync.RWMutex
	quotes ring[models.Quote]
	trades ring[models.Trade]
}

// ring is a fixed-capacity FIFO over a slice.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func (r *ring[T]) push(v T, cap_ int) {
	if r.buf == nil {
		r.buf = make([]T, cap_)
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	// full: overwrite oldest
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// tail clones out the newest n elements, oldest first.
func (r *ring[T]) tail(n int) []T {
	if n > r.n {
		n = r.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.n-n+i)%len(r.buf)]
	}
	return out
}

func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Store{
		series: make(map[string]*series),
		limit:  historyLimit,
	}
}

func (s *Store) shard(symbol string) *series {
	s.mu.RLock()
	sh, ok := s.series[symbol]
	s.mu.RUnlock()
	if ok {
		return sh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok = s.series[symbol]; ok {
		return sh
	}
	sh = &series{}
	s.series[symbol] = sh
	return sh
}

func (s *Store) PushQuote(q models.Quote) {
	sh := s.shard(q.Symbol)
	sh.mu.Lock()
	sh.quotes.push(q, s.limit)
	sh.mu.Unlock()
}

func (s *Store) PushTrade(t models.Trade) {
	sh := s.shard(t.Symbol)
	sh.mu.Lock()
	sh.trades.push(t, s.limit)
	sh.mu.Unlock()
}

// RecentQuotes returns up to n most recent quotes, oldest first. Empty
// history returns nil, not an error.
func (s *Store) RecentQuotes(symbol string, n int) []models.Quote {
	sh := s.shard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.quotes.tail(n)
}

// QuoteCount reports how many quotes are stored for the symbol.
func (s *Store) QuoteCount(symbol string) int {
	sh := s.shard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.quotes.n
}

// LastQuote returns the newest quote for the symbol.
func (s *Store) LastQuote(symbol string) (models.Quote, bool) {
	sh := s.shard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.quotes.last()
}

// LastPrice prefers the latest trade print and falls back to the mid of
// the latest quote. ok=false means no market data yet.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	sh := s.shard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if t, ok := sh.trades.last(); ok && t.Price > 0 {
		return t.Price, true
	}
	if q, ok := sh.quotes.last(); ok {
		if mid := q.Mid(); mid > 0 {
			return mid, true
		}
	}
	return 0, false
}
