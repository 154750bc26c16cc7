package monitor

import (
	"sync"

	"autohedge/internal/models"
)

// Tracker holds the live positions and pending orders. Updates are atomic
// at the entry granularity; readers get value copies, never references,
// so no lock is held across broker calls.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]models.Position     // keyed by symbol
	pendings  map[string]models.PendingOrder // keyed by order id
}

func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]models.Position),
		pendings:  make(map[string]models.PendingOrder),
	}
}

func (t *Tracker) Position(symbol string) (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

// Positions returns a snapshot of all tracked positions.
func (t *Tracker) Positions() []models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

// SetPosition inserts or replaces the position for its symbol.
func (t *Tracker) SetPosition(p models.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.Symbol] = p
}

// UpdatePosition applies fn to the tracked entry under the lock. fn's
// boolean says whether to keep the entry. Returns false when the symbol
// is not tracked.
func (t *Tracker) UpdatePosition(symbol string, fn func(p *models.Position) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return false
	}
	if fn(&p) {
		t.positions[symbol] = p
	} else {
		delete(t.positions, symbol)
	}
	return true
}

// RemovePosition deletes the entry and reports whether it existed, so a
// double removal is observable as a no-op.
func (t *Tracker) RemovePosition(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.positions[symbol]
	delete(t.positions, symbol)
	return ok
}

func (t *Tracker) AddPending(po models.PendingOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendings[po.OrderID] = po
}

func (t *Tracker) Pending(orderID string) (models.PendingOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	po, ok := t.pendings[orderID]
	return po, ok
}

// Pendings snapshots every pending order.
func (t *Tracker) Pendings() []models.PendingOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.PendingOrder, 0, len(t.pendings))
	for _, po := range t.pendings {
		out = append(out, po)
	}
	return out
}

// PendingBySide snapshots pending orders with the given side.
func (t *Tracker) PendingBySide(side string) []models.PendingOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.PendingOrder
	for _, po := range t.pendings {
		if po.Side == side {
			out = append(out, po)
		}
	}
	return out
}

// PendingSellFor finds a pending sell order for the symbol, used to
// re-link an orphaned position to its exit order.
func (t *Tracker) PendingSellFor(symbol string) (models.PendingOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, po := range t.pendings {
		if po.Symbol == symbol && po.Side == models.SideSell {
			return po, true
		}
	}
	return models.PendingOrder{}, false
}

func (t *Tracker) RemovePending(orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pendings[orderID]
	delete(t.pendings, orderID)
	return ok
}

// UpdatePending replaces the entry if it is still tracked, used to stamp
// the last broker poll time for throttling.
func (t *Tracker) UpdatePending(po models.PendingOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pendings[po.OrderID]; ok {
		t.pendings[po.OrderID] = po
	}
}

// HasExposure reports whether the symbol has a position or a pending buy.
func (t *Tracker) HasExposure(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.positions[symbol]; ok {
		return true
	}
	for _, po := range t.pendings {
		if po.Symbol == symbol && po.Side == models.SideBuy {
			return true
		}
	}
	return false
}
