package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"autohedge/internal/engine"
	"autohedge/internal/models"
	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/execution"
	"autohedge/internal/modules/market"
	"autohedge/internal/modules/monitor"
	"autohedge/internal/modules/strategy"
	"autohedge/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBroker struct{}

func (stubBroker) Name() string { return "stub" }
func (stubBroker) GetAccount(ctx context.Context) (broker.AccountSummary, error) {
	return broker.AccountSummary{}, nil
}
func (stubBroker) GetPositions(ctx context.Context) ([]broker.Holding, error) { return nil, nil }
func (stubBroker) SubmitOrder(ctx context.Context, req broker.PlaceOrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{}, nil
}
func (stubBroker) GetOrder(ctx context.Context, id string) (broker.OrderAck, error) {
	return broker.OrderAck{}, broker.ErrNotFound
}
func (stubBroker) CancelOrder(ctx context.Context, id string) error { return nil }

type stubStream struct{}

func (stubStream) Run(ctx context.Context, symbols []string) error {
	<-ctx.Done()
	return nil
}

type stubEvaluator struct{}

func (stubEvaluator) OnQuote(q models.Quote) *models.Signal { return nil }

func newTestMux(t *testing.T) (*http.ServeMux, *engine.Engine, *monitor.Tracker) {
	t.Helper()
	cfg := &config.Config{
		TradingMode:   "crypto",
		StrategyMode:  "hft",
		Symbols:       []string{"BTC/USD"},
		HistoryLimit:  50,
		RateLimitMS:   250,
		OrderCheckMS:  2000,
		HeartbeatSecs: 60,
	}
	api := stubBroker{}
	b := bus.New()
	store := market.NewStore(cfg.HistoryLimit)
	tracker := monitor.NewTracker()
	strat := strategy.NewService(cfg, b, stubEvaluator{})
	exec := execution.NewService(cfg, b, store, api, execution.NewAccountCache(api, cfg.AccountCacheTTL()), tracker)
	mon := monitor.NewService(cfg, b, store, api, tracker, monitor.NopRecorder{})
	notifier, err := notify.NewTelegram(cfg)
	require.NoError(t, err)
	e := engine.New(cfg, b, stubStream{}, strat, exec, mon, notifier)
	return NewMux(e, tracker), e, tracker
}

func TestStartIsIdempotentOverHTTP(t *testing.T) {
	mux, e, _ := newTestMux(t)
	defer e.Stop()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_running", rec.Body.String())
}

func TestStartRejectsGet(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatsReportsRunningAndPositions(t *testing.T) {
	mux, e, tracker := newTestMux(t)
	defer e.Stop()

	tracker.SetPosition(models.Position{Symbol: "BTC/USD", Qty: 1, Side: models.SideBuy})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
	assert.Contains(t, rec.Body.String(), "BTC/USD")
}
