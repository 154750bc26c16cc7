package models

// Sides and order actions carried on the event fabric.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Signal — buy/sell intent produced by a strategy evaluator or the
// lifecycle monitor. TP/SL are in basis points; zero means "use the
// configured defaults for this symbol".
type Signal struct {
	Symbol        string
	Action        string // buy/sell
	TakeProfitBps float64
	StopLossBps   float64
	Reason        string
}

// OrderRequest — sized and priced order, ready for broker submission.
type OrderRequest struct {
	Symbol     string
	Action     string // buy/sell
	Qty        float64
	OrderType  string // market/limit
	LimitPrice float64
}

// ExecutionReport — the broker's view of an order transition. Raw keeps the
// original payload for quantity extraction and operator forensics.
type ExecutionReport struct {
	Symbol  string
	OrderID string
	Status  string // new/accepted/partially_filled/filled/canceled/expired/rejected
	Side    string
	Price   float64
	Qty     float64
	Raw     map[string]any
}

// Event is the tagged union broadcast on the fabric. Exactly one field is
// non-nil.
type Event struct {
	Quote     *Quote
	Trade     *Trade
	Signal    *Signal
	Order     *OrderRequest
	Execution *ExecutionReport
}

// EventSymbol returns the symbol of whichever variant is set.
func (e Event) EventSymbol() string {
	switch {
	case e.Quote != nil:
		return e.Quote.Symbol
	case e.Trade != nil:
		return e.Trade.Symbol
	case e.Signal != nil:
		return e.Signal.Symbol
	case e.Order != nil:
		return e.Order.Symbol
	case e.Execution != nil:
		return e.Execution.Symbol
	}
	return ""
}
