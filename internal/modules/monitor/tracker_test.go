package monitor

import (
	"sync"
	"testing"

	"autohedge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnePositionPerSymbol(t *testing.T) {
	tr := NewTracker()
	tr.SetPosition(models.Position{Symbol: "BTC/USD", EntryPrice: 100})
	tr.SetPosition(models.Position{Symbol: "BTC/USD", EntryPrice: 101})

	require.Len(t, tr.Positions(), 1)
	p, _ := tr.Position("BTC/USD")
	assert.Equal(t, 101.0, p.EntryPrice, "second insert replaces")
}

func TestSnapshotsAreCopies(t *testing.T) {
	tr := NewTracker()
	tr.SetPosition(models.Position{Symbol: "BTC/USD", Qty: 1})

	p, _ := tr.Position("BTC/USD")
	p.Qty = 99

	got, _ := tr.Position("BTC/USD")
	assert.Equal(t, 1.0, got.Qty, "mutating the copy leaves the tracker intact")
}

func TestUpdatePositionCanDelete(t *testing.T) {
	tr := NewTracker()
	tr.SetPosition(models.Position{Symbol: "BTC/USD"})

	ok := tr.UpdatePosition("BTC/USD", func(p *models.Position) bool { return false })
	assert.True(t, ok)
	_, exists := tr.Position("BTC/USD")
	assert.False(t, exists)

	ok = tr.UpdatePosition("BTC/USD", func(p *models.Position) bool { return true })
	assert.False(t, ok, "untracked symbol reports false")
}

func TestRemoveReportsExistence(t *testing.T) {
	tr := NewTracker()
	tr.SetPosition(models.Position{Symbol: "BTC/USD"})

	assert.True(t, tr.RemovePosition("BTC/USD"))
	assert.False(t, tr.RemovePosition("BTC/USD"), "second removal is a visible no-op")
}

func TestExposureCoversPendingBuys(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.HasExposure("BTC/USD"))

	tr.AddPending(models.PendingOrder{OrderID: "o1", Symbol: "BTC/USD", Side: models.SideBuy})
	assert.True(t, tr.HasExposure("BTC/USD"))

	tr.RemovePending("o1")
	tr.AddPending(models.PendingOrder{OrderID: "o2", Symbol: "BTC/USD", Side: models.SideSell})
	assert.False(t, tr.HasExposure("BTC/USD"), "pending sells are not exposure")
}

func TestConcurrentEntryUpdates(t *testing.T) {
	tr := NewTracker()
	tr.SetPosition(models.Position{Symbol: "BTC/USD"})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.UpdatePosition("BTC/USD", func(p *models.Position) bool {
				p.RecreateAttempts++
				return true
			})
		}()
	}
	wg.Wait()

	p, _ := tr.Position("BTC/USD")
	assert.Equal(t, 100, p.RecreateAttempts, "updates are atomic at entry granularity")
}
