package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"autohedge/internal/modules/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Alpaca {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{BrokerTimeoutMS: 5000}
	cfg.Broker.Key = "key"
	cfg.Broker.Secret = "secret"
	cfg.Broker.BaseURL = srv.URL
	return NewAlpaca(cfg)
}

func TestGetAccountParsesStringNumbers(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		_, _ = w.Write([]byte(`{"buying_power":"1000.50","cash":"900.25"}`))
	})

	a, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000.50, a.BuyingPower, 1e-9)
	assert.InDelta(t, 900.25, a.Cash, 1e-9)
}

func TestGetPositionsMixedEncodings(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/positions", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSD","qty":"0.937","avg_entry_price":"100.25"},
			{"symbol":"ETHUSD","qty":2.5,"avg_entry_price":10}
		]`))
	})

	holdings, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.InDelta(t, 0.937, holdings[0].Qty, 1e-9)
	assert.InDelta(t, 2.5, holdings[1].Qty, 1e-9)
	assert.InDelta(t, 10.0, holdings[1].AvgEntryPrice, 1e-9)
}

func TestSubmitOrderInsufficientBalance(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient balance"}`))
	})

	_, err := c.SubmitOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSD", Side: Buy, OrderType: Limit,
		Qty: 1, LimitPrice: 100, TimeInForce: GTC,
	})
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestSubmitOrderOtherRejectIsNotSentinel(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":42210000,"message":"invalid qty"}`))
	})

	_, err := c.SubmitOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSD", Side: Buy, OrderType: Market, Qty: 1, TimeInForce: GTC,
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInsufficientBalance))
}

func TestGetOrderNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetOrder(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelOrderNoContent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, c.CancelOrder(context.Background(), "ord-1"))
}

func TestOrderAckQtyTolerance(t *testing.T) {
	ack := OrderAck{Raw: map[string]any{"filled_qty": "0.937"}}
	got, ok := ack.FilledQty()
	require.True(t, ok)
	assert.InDelta(t, 0.937, got, 1e-9)

	ack = OrderAck{Raw: map[string]any{"filled_qty": 0.937}}
	got, ok = ack.FilledQty()
	require.True(t, ok)
	assert.InDelta(t, 0.937, got, 1e-9)

	ack = OrderAck{Raw: map[string]any{}}
	_, ok = ack.FilledQty()
	assert.False(t, ok)
}

func TestAckStatusHelpers(t *testing.T) {
	assert.True(t, OrderAck{Status: "FILLED"}.IsFilled())
	assert.True(t, OrderAck{Status: "canceled"}.IsCanceled())
	assert.True(t, OrderAck{Status: "expired"}.IsCanceled())
	assert.False(t, OrderAck{Status: "new"}.IsFilled())
}
