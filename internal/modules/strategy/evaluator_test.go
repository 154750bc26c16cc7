package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"autohedge/internal/models"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/llm"
	"autohedge/internal/modules/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		TradingMode:    "crypto",
		StrategyMode:   "hft",
		Symbols:        []string{"BTC/USD"},
		WarmupMinCount: 10,
		HistoryLimit:   50,
		MaxQuoteAgeMS:  30_000,
	}
	cfg.HFT = config.HFT{
		Enabled:             true,
		EvaluateEveryQuotes: 1,
		MinEdgeBps:          5,
		MaxSpreadBps:        50,
		Lookback:            10,
		TakeProfitBps:       100,
		StopLossBps:         50,
	}
	cfg.Hybrid = config.Hybrid{GateRefreshQuotes: 5, NoTradeCooldownQuotes: 20}
	return cfg
}

type noExposure struct{}

func (noExposure) HasExposure(string) bool { return false }

type alwaysExposed struct{}

func (alwaysExposed) HasExposure(string) bool { return true }

func quoteAt(symbol string, mid float64, ts time.Time) models.Quote {
	return models.Quote{
		Symbol: symbol, Bid: mid - 0.005, Ask: mid + 0.005,
		BidSize: 1, AskSize: 1, Timestamp: ts,
	}
}

// feedRising pushes n quotes with linearly rising mids and returns the
// last quote. The evaluator only sees the final quote.
func feedRising(store *market.Store, symbol string, n int, from, to float64) models.Quote {
	var last models.Quote
	for i := 0; i < n; i++ {
		mid := from + (to-from)*float64(i)/float64(n-1)
		last = quoteAt(symbol, mid, time.Now())
		store.PushQuote(last)
	}
	return last
}

func TestWarmupSuppressesSignals(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	for i := 0; i < cfg.WarmupMinCount-1; i++ {
		q := quoteAt("BTC/USD", 100+float64(i), time.Now())
		store.PushQuote(q)
		assert.Nil(t, ev.OnQuote(q), "quote %d still in warmup", i)
	}
}

func TestMomentumEmitsBuy(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	last := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	sig := ev.OnQuote(last)
	require.NotNil(t, sig)
	assert.Equal(t, models.SideBuy, sig.Action)
	assert.Equal(t, "BTC/USD", sig.Symbol)
	assert.Equal(t, 100.0, sig.TakeProfitBps)
	assert.Equal(t, 50.0, sig.StopLossBps)
}

func TestFlatMarketNoSignal(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	var last models.Quote
	for i := 0; i < 30; i++ {
		last = quoteAt("BTC/USD", 100.00, time.Now())
		store.PushQuote(last)
	}
	assert.Nil(t, ev.OnQuote(last))
}

func TestSpreadGateBlocks(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	feedRising(store, "BTC/USD", 49, 100.00, 100.08)
	wide := models.Quote{
		Symbol: "BTC/USD", Bid: 99.0, Ask: 101.5,
		BidSize: 1, AskSize: 1, Timestamp: time.Now(),
	}
	store.PushQuote(wide)
	assert.Nil(t, ev.OnQuote(wide), "spread over max_spread_bps must block")
}

func TestDebounceCountsQuotes(t *testing.T) {
	cfg := testConfig()
	cfg.HFT.EvaluateEveryQuotes = 5
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	last := quoteAt("BTC/USD", 100.51, time.Now())
	store.PushQuote(last)

	// four quotes swallowed by the debounce, fifth evaluates
	for i := 0; i < 4; i++ {
		assert.Nil(t, ev.OnQuote(last))
	}
	assert.NotNil(t, ev.OnQuote(last))
}

func TestExposureSuppressesSignal(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, alwaysExposed{}, nil)

	last := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	assert.Nil(t, ev.OnQuote(last))
}

func TestStaleWindowBlocks(t *testing.T) {
	cfg := testConfig()
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	old := time.Now().Add(-time.Minute)
	for i := 0; i < 20; i++ {
		store.PushQuote(quoteAt("BTC/USD", 100+float64(i)*0.01, old))
	}
	last := quoteAt("BTC/USD", 100.30, time.Now())
	store.PushQuote(last)
	assert.Nil(t, ev.OnQuote(last), "stale lookback window must block")
}

func TestCountersArePerSymbol(t *testing.T) {
	cfg := testConfig()
	cfg.HFT.EvaluateEveryQuotes = 3
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	lastA := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	lastB := feedRising(store, "ETH/USD", 50, 10.00, 10.05)

	// two quotes of A advance only A's counter
	assert.Nil(t, ev.OnQuote(lastA))
	assert.Nil(t, ev.OnQuote(lastA))
	assert.Nil(t, ev.OnQuote(lastB))
	assert.Nil(t, ev.OnQuote(lastB))
	assert.NotNil(t, ev.OnQuote(lastA))
	assert.NotNil(t, ev.OnQuote(lastB))
}

func TestSymbolOverrideChangesExits(t *testing.T) {
	cfg := testConfig()
	tp, sl := 2.0, 1.0
	cfg.SymbolOverrides = map[string]config.SymbolOverride{
		"BTC/USD": {TakeProfitPct: &tp, StopLossPct: &sl},
	}
	store := market.NewStore(cfg.HistoryLimit)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, nil)

	last := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	sig := ev.OnQuote(last)
	require.NotNil(t, sig)
	assert.Equal(t, 200.0, sig.TakeProfitBps)
	assert.Equal(t, 100.0, sig.StopLossBps)
}

type scriptedAsker struct {
	answer string
	err    error
	asked  chan string
}

func (s *scriptedAsker) Ask(ctx context.Context, prio llm.Priority, system, prompt string) (string, error) {
	select {
	case s.asked <- prompt:
	default:
	}
	return s.answer, s.err
}

func TestGateClosedBlocksEntries(t *testing.T) {
	cfg := testConfig()
	cfg.StrategyMode = "hybrid"
	store := market.NewStore(cfg.HistoryLimit)
	gate := newLLMGate(cfg, &scriptedAsker{answer: "NO", asked: make(chan string, 1)})
	ev := NewHFTEvaluator(cfg, store, noExposure{}, gate)

	// gate starts closed: no refresh answered yet
	last := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	assert.Nil(t, ev.OnQuote(last))
}

func TestGateYesOpensGate(t *testing.T) {
	cfg := testConfig()
	cfg.StrategyMode = "hybrid"
	cfg.Hybrid.GateRefreshQuotes = 1
	store := market.NewStore(cfg.HistoryLimit)
	asker := &scriptedAsker{answer: "YES", asked: make(chan string, 8)}
	gate := newLLMGate(cfg, asker)
	ev := NewHFTEvaluator(cfg, store, noExposure{}, gate)

	last := feedRising(store, "BTC/USD", 50, 100.00, 100.50)
	ev.OnQuote(last) // fires the first refresh

	select {
	case <-asker.asked:
	case <-time.After(time.Second):
		t.Fatal("gate refresh was never requested")
	}
	require.Eventually(t, func() bool {
		open, _ := gate.Open("BTC/USD")
		return open
	}, time.Second, time.Millisecond)

	assert.NotNil(t, ev.OnQuote(last))
}

func TestGateNoTriggersCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Hybrid.NoTradeCooldownQuotes = 7
	gate := newLLMGate(cfg, &scriptedAsker{asked: make(chan string, 1)})

	st := gate.state("BTC/USD")
	st.open = false
	st.pendingNo = true

	open, cooldown := gate.Open("BTC/USD")
	assert.False(t, open)
	assert.Equal(t, 7, cooldown)

	// the veto is consumed once
	_, cooldown = gate.Open("BTC/USD")
	assert.Zero(t, cooldown)
}

func TestGateQueueFullMeansClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Hybrid.GateRefreshQuotes = 1
	asker := &scriptedAsker{err: llm.ErrQueueFull, asked: make(chan string, 1)}
	gate := newLLMGate(cfg, asker)

	st := gate.state("BTC/USD")
	st.open = true // previously open

	gate.Tick("BTC/USD", nil)
	require.Eventually(t, func() bool {
		open, _ := gate.Open("BTC/USD")
		return !open
	}, time.Second, time.Millisecond)
}

func TestGatePromptCarriesMids(t *testing.T) {
	q := quoteAt("BTC/USD", 100.5, time.Now())
	p := gatePrompt("BTC/USD", []models.Quote{q})
	assert.Contains(t, p, "BTC/USD")
	assert.Contains(t, p, fmt.Sprintf("%.6f", 100.5))
}
