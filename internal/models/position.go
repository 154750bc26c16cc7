package models

import "time"

// Position — one tracked holding. The tracker keys by Symbol, so there is
// at most one position per symbol at a time.
type Position struct {
	Symbol     string
	EntryPrice float64
	Qty        float64 // broker-reported filled qty, never the requested qty
	StopLoss   float64
	TakeProfit float64
	Side       string
	EntryTime  time.Time

	// IsClosing guards against a second exit while a market sell is in
	// flight.
	IsClosing bool

	// OpenOrderID is the live protective TP limit order, empty when the
	// position is orphaned.
	OpenOrderID string

	// Exit-order recreation budget lives on the position itself so the
	// retry state survives whoever happens to schedule the attempt.
	LastRecreateAttempt time.Time
	RecreateAttempts    int
}

// PendingOrder — an order submitted to the broker whose terminal outcome is
// not yet observed. Buy orders carry the TP/SL to apply on fill.
type PendingOrder struct {
	OrderID       string
	Symbol        string
	Side          string
	LimitPrice    float64
	Qty           float64
	CreatedAt     time.Time
	LastCheckTime time.Time
	StopLoss      float64 // buys only
	TakeProfit    float64 // buys only
}

// ClosedTrade — journal record emitted when a position leaves the tracker
// through a fill or stop.
type ClosedTrade struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Qty        float64   `json:"qty"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	Reason     string    `json:"reason"` // take_profit/stop_loss/vanished
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
}
