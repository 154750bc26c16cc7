package broker

import (
	"context"
	"strconv"
	"strings"

	"autohedge/internal/models"

	"github.com/pkg/errors"
)

// Sentinel kinds callers branch on. Everything else is treated as
// transient and resolved by the next monitor tick.
var (
	ErrNotFound            = errors.New("broker: not found")
	ErrInsufficientBalance = errors.New("broker: insufficient balance")
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type TimeInForce string

const (
	Day TimeInForce = "day"
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
)

type AccountSummary struct {
	BuyingPower float64
	Cash        float64
}

// Holding is a broker-reported position; the authoritative quantity source.
type Holding struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
}

type PlaceOrderRequest struct {
	Symbol      string
	Side        Side
	OrderType   OrderType
	Qty         float64
	LimitPrice  float64 // limit orders only
	TimeInForce TimeInForce
}

// OrderAck is the broker's response to submit/get. Raw keeps the original
// payload; FilledQty extraction tolerates both string and number encodings.
type OrderAck struct {
	ID     string
	Status string
	Raw    map[string]any
}

// FilledQty pulls the filled quantity out of the raw payload. ok=false
// when the field is absent or unparseable.
func (a OrderAck) FilledQty() (float64, bool) {
	v, present := a.Raw["filled_qty"]
	if !present {
		return 0, false
	}
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case float64:
		return t, true
	}
	return 0, false
}

// FilledAvgPrice pulls the average fill price out of the raw payload,
// with the same string/number tolerance as FilledQty.
func (a OrderAck) FilledAvgPrice() (float64, bool) {
	v, present := a.Raw["filled_avg_price"]
	if !present {
		return 0, false
	}
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case float64:
		return t, true
	}
	return 0, false
}

func (a OrderAck) IsFilled() bool { return strings.EqualFold(a.Status, "filled") }

func (a OrderAck) IsCanceled() bool {
	return strings.EqualFold(a.Status, "canceled") || strings.EqualFold(a.Status, "expired")
}

// API is the broker capability set the engine consumes. Implementations
// must be safe for concurrent use; calls honor the context deadline.
type API interface {
	Name() string
	GetAccount(ctx context.Context) (AccountSummary, error)
	GetPositions(ctx context.Context) ([]Holding, error)
	SubmitOrder(ctx context.Context, req PlaceOrderRequest) (OrderAck, error)
	GetOrder(ctx context.Context, orderID string) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Stream pushes quotes and trades into the store and the event fabric
// until the context is canceled.
type Stream interface {
	Run(ctx context.Context, symbols []string) error
}

// QuoteSink receives every tick a stream produces; the market store
// implements it.
type QuoteSink interface {
	PushQuote(q models.Quote)
	PushTrade(t models.Trade)
}
