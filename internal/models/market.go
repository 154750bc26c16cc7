package models

import "time"

// Quote — best bid/offer snapshot from the broker stream.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	BidSize   float64
	AskSize   float64
	Timestamp time.Time
}

// Mid returns (bid+ask)/2, or 0 when the book side is empty.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// SpreadBps returns the bid/ask spread in basis points of the mid.
func (q Quote) SpreadBps() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return 10_000 * (q.Ask - q.Bid) / mid
}

// Trade — a printed trade from the broker stream.
type Trade struct {
	Symbol    string
	Price     float64
	Size      float64
	Timestamp time.Time
}
