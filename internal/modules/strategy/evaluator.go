package strategy

import (
	"sync"
	"time"

	"autohedge/internal/models"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/market"
	"autohedge/pkg/logger"
)

// ExposureChecker reports whether a symbol already has a tracked position
// or an open pending buy. The lifecycle tracker implements it.
type ExposureChecker interface {
	HasExposure(symbol string) bool
}

// Gate optionally vetoes entries per symbol. Tick advances the refresh
// cadence on every quote; Open consumes any pending veto and may demand
// a cooldown in quote counts.
type Gate interface {
	Tick(symbol string, recent []models.Quote)
	Open(symbol string) (open bool, cooldownQuotes int)
}

// Evaluator turns quotes into buy signals.
type Evaluator interface {
	OnQuote(q models.Quote) *models.Signal
}

type symbolState struct {
	quotesSinceEval int
	cooldown        int
}

// HFTEvaluator is a momentum scalper: it waits out warmup, debounces
// evaluation, gates on spread, and fires when the mid has drifted up by
// at least min_edge_bps over the lookback window.
type HFTEvaluator struct {
	cfg      *config.Config
	store    *market.Store
	exposure ExposureChecker
	gate     Gate // nil outside hybrid mode

	mu     sync.Mutex
	states map[string]*symbolState
	now    func() time.Time
}

func NewHFTEvaluator(cfg *config.Config, store *market.Store, exposure ExposureChecker, gate Gate) *HFTEvaluator {
	return &HFTEvaluator{
		cfg:      cfg,
		store:    store,
		exposure: exposure,
		gate:     gate,
		states:   make(map[string]*symbolState),
		now:      time.Now,
	}
}

func (e *HFTEvaluator) state(symbol string) *symbolState {
	st, ok := e.states[symbol]
	if !ok {
		st = &symbolState{}
		e.states[symbol] = st
	}
	return st
}

// OnQuote runs the per-quote pipeline for the quote's symbol and returns
// a buy signal or nil. All counters are strictly per-symbol.
func (e *HFTEvaluator) OnQuote(q models.Quote) *models.Signal {
	sym := q.Symbol

	if e.store.QuoteCount(sym) < e.cfg.WarmupMinCount {
		return nil
	}

	if e.gate != nil {
		e.gate.Tick(sym, e.store.RecentQuotes(sym, e.cfg.HFT.Lookback))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(sym)

	st.quotesSinceEval++
	if st.quotesSinceEval < e.cfg.HFT.EvaluateEveryQuotes {
		return nil
	}
	st.quotesSinceEval = 0

	if st.cooldown > 0 {
		st.cooldown--
		return nil
	}

	mid := q.Mid()
	if mid <= 0 {
		return nil
	}

	spread := q.SpreadBps()
	if spread > e.cfg.HFT.MaxSpreadBps {
		if e.cfg.Verbose() {
			logger.Debug("[HFT] %s: spread %.1f bps over limit %.1f, skipping", sym, spread, e.cfg.HFT.MaxSpreadBps)
		}
		return nil
	}

	recent := e.store.RecentQuotes(sym, e.cfg.HFT.Lookback)
	if len(recent) < e.cfg.HFT.Lookback {
		return nil
	}
	oldest := recent[0]
	if e.now().Sub(oldest.Timestamp) > e.cfg.MaxQuoteAge() {
		return nil
	}
	oldMid := oldest.Mid()
	if oldMid <= 0 {
		return nil
	}
	edgeBps := 10000 * (mid - oldMid) / oldMid
	if edgeBps < e.cfg.HFT.MinEdgeBps {
		return nil
	}

	if e.gate != nil {
		open, cooldown := e.gate.Open(sym)
		if cooldown > 0 {
			st.cooldown = cooldown
		}
		if !open {
			if e.cfg.Verbose() {
				logger.Debug("[HFT] %s: gate closed, skipping", sym)
			}
			return nil
		}
	}

	if e.exposure != nil && e.exposure.HasExposure(sym) {
		return nil
	}

	tpBps, slBps := e.exitParams(sym)
	logger.Info("[HFT] %s: edge %.1f bps at mid %.4f, emitting buy", sym, edgeBps, mid)
	return &models.Signal{
		Symbol:        sym,
		Action:        models.SideBuy,
		TakeProfitBps: tpBps,
		StopLossBps:   slBps,
		Reason:        "momentum",
	}
}

// exitParams resolves TP/SL in bps, preferring per-symbol percentage
// overrides over the global scalper settings.
func (e *HFTEvaluator) exitParams(symbol string) (tpBps, slBps float64) {
	tpBps = e.cfg.HFT.TakeProfitBps
	slBps = e.cfg.HFT.StopLossBps
	if ov, ok := e.cfg.SymbolOverrides[symbol]; ok {
		if ov.TakeProfitPct != nil {
			tpBps = *ov.TakeProfitPct * 100
		}
		if ov.StopLossPct != nil {
			slBps = *ov.StopLossPct * 100
		}
	}
	return tpBps, slBps
}
