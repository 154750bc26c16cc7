package monitor

import (
	"context"
	"time"

	"autohedge/internal/models"
	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/market"
	"autohedge/pkg/logger"

	"github.com/pkg/errors"
)

// qtyEpsilon separates a real holding from broker dust.
const qtyEpsilon = 1e-6

// Recorder receives closed-trade records. The journal implements it.
type Recorder interface {
	RecordClose(ct models.ClosedTrade)
}

// NopRecorder discards records, for setups without a journal.
type NopRecorder struct{}

func (NopRecorder) RecordClose(models.ClosedTrade) {}

// Service owns the position lifecycle: stop-loss exits, protective TP
// order placement and health, orphan repair and broker reconciliation.
// It is quote-driven with a timer fallback for quiet symbols.
type Service struct {
	cfg      *config.Config
	bus      *bus.Bus
	store    *market.Store
	api      broker.API
	tracker  *Tracker
	recorder Recorder
	now      func() time.Time
}

func NewService(cfg *config.Config, b *bus.Bus, store *market.Store, api broker.API, tracker *Tracker, recorder Recorder) *Service {
	return &Service{
		cfg:      cfg,
		bus:      b,
		store:    store,
		api:      api,
		tracker:  tracker,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run syncs with the broker, then monitors until the context is canceled.
func (s *Service) Run(ctx context.Context) {
	if err := s.SyncFromBroker(ctx); err != nil {
		logger.Error("[MONITOR] startup sync failed: %v", err)
	}

	sub := s.bus.Subscribe("monitor", 512)
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(s.cfg.OrderCheckInterval())
	defer ticker.Stop()

	heartbeat := time.NewTicker(s.cfg.Heartbeat())
	defer heartbeat.Stop()

	logger.Info("[MONITOR] running, %d positions tracked", len(s.tracker.Positions()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TickAll(ctx)
		case <-heartbeat.C:
			s.logHeartbeat(ctx)
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.Quote != nil {
				s.TickSymbol(ctx, ev.Quote.Symbol)
			}
		}
	}
}

// TickSymbol runs one monitor pass for a single symbol.
func (s *Service) TickSymbol(ctx context.Context, symbol string) {
	if p, ok := s.tracker.Position(symbol); ok {
		s.monitorPosition(ctx, p)
	}
	s.checkPendingSells(ctx, symbol)
}

// TickAll covers every tracked position, including symbols with no
// quote flow.
func (s *Service) TickAll(ctx context.Context) {
	for _, p := range s.tracker.Positions() {
		s.monitorPosition(ctx, p)
	}
	s.checkPendingSells(ctx, "")
}

func (s *Service) monitorPosition(ctx context.Context, p models.Position) {
	if p.IsClosing {
		return
	}

	if price, ok := s.store.LastPrice(p.Symbol); ok && price <= p.StopLoss {
		s.executeStopLoss(ctx, p.Symbol, price)
		return
	}

	if p.OpenOrderID == "" {
		// re-link a stray exit order before creating a new one
		if po, ok := s.tracker.PendingSellFor(p.Symbol); ok {
			logger.Info("[MONITOR] %s: linked stray exit order %s", p.Symbol, po.OrderID)
			s.tracker.UpdatePosition(p.Symbol, func(p *models.Position) bool {
				p.OpenOrderID = po.OrderID
				return true
			})
			return
		}
		s.EnsureExitOrder(ctx, p.Symbol)
	}
}

// executeStopLoss closes the position at market. The is_closing flag is
// taken atomically so concurrent ticks cannot double-sell.
func (s *Service) executeStopLoss(ctx context.Context, symbol string, price float64) {
	acquired := false
	s.tracker.UpdatePosition(symbol, func(p *models.Position) bool {
		if !p.IsClosing {
			p.IsClosing = true
			acquired = true
		}
		return true
	})
	if !acquired {
		return
	}

	p, ok := s.tracker.Position(symbol)
	if !ok {
		return
	}
	logger.Warn("[MONITOR] %s: stop loss hit at %.4f (SL %.4f)", symbol, price, p.StopLoss)

	// best effort: the TP order may already be gone
	if p.OpenOrderID != "" {
		if err := s.api.CancelOrder(ctx, p.OpenOrderID); err != nil && !errors.Is(err, broker.ErrNotFound) {
			logger.Warn("[MONITOR] %s: cancel TP %s failed, selling anyway: %v", symbol, p.OpenOrderID, err)
		}
		s.tracker.RemovePending(p.OpenOrderID)
	}

	holding, found, err := s.findHolding(ctx, symbol)
	if err != nil {
		logger.Error("[MONITOR] %s: holdings fetch failed: %v", symbol, err)
		s.clearClosing(symbol)
		return
	}
	if !found {
		logger.Warn("[MONITOR] %s: no broker holding, position vanished", symbol)
		s.closePosition(p, price, "vanished")
		return
	}

	ack, err := s.api.SubmitOrder(ctx, broker.PlaceOrderRequest{
		Symbol:      symbol,
		Side:        broker.Sell,
		OrderType:   broker.Market,
		Qty:         holding.Qty,
		TimeInForce: s.exitTimeInForce(),
	})
	if err != nil {
		logger.Error("[MONITOR] %s: market sell failed, will retry: %v", symbol, err)
		s.clearClosing(symbol)
		return
	}

	logger.Info("[MONITOR] %s: stop-loss sell submitted id=%s qty=%.6f", symbol, ack.ID, holding.Qty)
	s.closePosition(p, price, "stop_loss")
}

func (s *Service) clearClosing(symbol string) {
	s.tracker.UpdatePosition(symbol, func(p *models.Position) bool {
		p.IsClosing = false
		return true
	})
}

// closePosition removes the entry and emits the trade record exactly
// once; a second observation of the same exit is a no-op.
func (s *Service) closePosition(p models.Position, exitPrice float64, reason string) {
	if !s.tracker.RemovePosition(p.Symbol) {
		return
	}
	pnl := (exitPrice - p.EntryPrice) * p.Qty
	pnlPct := 0.0
	if p.EntryPrice > 0 {
		pnlPct = 100 * (exitPrice - p.EntryPrice) / p.EntryPrice
	}
	ct := models.ClosedTrade{
		Symbol:     p.Symbol,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Qty:        p.Qty,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Reason:     reason,
		EntryTime:  p.EntryTime,
		ExitTime:   s.now().UTC(),
	}
	s.recorder.RecordClose(ct)
	logger.Info("[MONITOR] %s: closed (%s) pnl=%.4f (%.2f%%)", p.Symbol, reason, pnl, pnlPct)

	s.bus.Publish(models.Event{Execution: &models.ExecutionReport{
		Symbol: p.Symbol,
		Status: "closed",
		Side:   models.SideSell,
		Price:  exitPrice,
		Qty:    p.Qty,
	}})
}

// EnsureExitOrder places the protective TP limit sell, honoring the
// retry budget. Attempt accounting is committed to the tracker before
// the broker is touched, otherwise a failing broker turns this into a
// hot loop against its rate limits.
func (s *Service) EnsureExitOrder(ctx context.Context, symbol string) {
	p, ok := s.tracker.Position(symbol)
	if !ok {
		return
	}

	if p.RecreateAttempts >= s.cfg.MaxRecreateAttempts {
		logger.Error("[MONITOR] %s: exit order recreation exhausted after %d attempts, abandoning position", symbol, p.RecreateAttempts)
		if price, ok := s.store.LastPrice(symbol); ok {
			s.closePosition(p, price, "abandoned")
		} else {
			s.closePosition(p, p.EntryPrice, "abandoned")
		}
		return
	}
	if !p.LastRecreateAttempt.IsZero() && s.now().Sub(p.LastRecreateAttempt) < s.cfg.RecreateBackoff() {
		return
	}

	if !s.tracker.UpdatePosition(symbol, func(p *models.Position) bool {
		p.LastRecreateAttempt = s.now()
		p.RecreateAttempts++
		return true
	}) {
		return
	}

	holding, found, err := s.findHolding(ctx, symbol)
	if err != nil {
		logger.Warn("[MONITOR] %s: holdings fetch failed: %v", symbol, err)
		return
	}
	if !found {
		logger.Warn("[MONITOR] %s: closed externally, dropping", symbol)
		price, ok := s.store.LastPrice(symbol)
		if !ok {
			price = p.EntryPrice
		}
		s.closePosition(p, price, "vanished")
		return
	}

	// broker holdings are the quantity source; p.Qty can lag after
	// partial fills or manual trades
	ack, err := s.api.SubmitOrder(ctx, broker.PlaceOrderRequest{
		Symbol:      symbol,
		Side:        broker.Sell,
		OrderType:   broker.Limit,
		Qty:         holding.Qty,
		LimitPrice:  p.TakeProfit,
		TimeInForce: s.exitTimeInForce(),
	})
	if err != nil {
		logger.Error("[MONITOR] %s: exit order placement failed (attempt %d): %v", symbol, p.RecreateAttempts+1, err)
		return
	}

	s.tracker.UpdatePosition(symbol, func(p *models.Position) bool {
		p.OpenOrderID = ack.ID
		p.RecreateAttempts = 0
		return true
	})
	s.tracker.AddPending(models.PendingOrder{
		OrderID:    ack.ID,
		Symbol:     symbol,
		Side:       models.SideSell,
		LimitPrice: p.TakeProfit,
		Qty:        holding.Qty,
		CreatedAt:  s.now().UTC(),
	})
	logger.Info("[MONITOR] %s: TP exit order %s placed: qty=%.6f limit=%.4f", symbol, ack.ID, holding.Qty, p.TakeProfit)
}

// checkPendingSells reconciles exit orders with the broker. symbol ""
// means all. Polls are throttled per order.
func (s *Service) checkPendingSells(ctx context.Context, symbol string) {
	for _, po := range s.tracker.PendingBySide(models.SideSell) {
		if symbol != "" && po.Symbol != symbol {
			continue
		}
		if s.now().Sub(po.LastCheckTime) < s.cfg.OrderCheckInterval() {
			continue
		}
		po.LastCheckTime = s.now()
		s.tracker.UpdatePending(po)

		if s.expireIfOld(ctx, po) {
			continue
		}

		ack, err := s.api.GetOrder(ctx, po.OrderID)
		if err != nil {
			if errors.Is(err, broker.ErrNotFound) {
				logger.Warn("[MONITOR] %s: exit order %s unknown at broker", po.Symbol, po.OrderID)
				s.dropExitOrder(po)
			} else {
				logger.Warn("[MONITOR] %s: poll %s failed: %v", po.Symbol, po.OrderID, err)
			}
			continue
		}

		switch {
		case ack.IsFilled():
			s.tracker.RemovePending(po.OrderID)
			exitPrice := po.LimitPrice
			if avg, ok := ack.FilledAvgPrice(); ok && avg > 0 {
				exitPrice = avg
			}
			if p, ok := s.tracker.Position(po.Symbol); ok {
				s.closePosition(p, exitPrice, "take_profit")
			}
		case ack.IsCanceled():
			logger.Info("[MONITOR] %s: exit order %s %s, recreating", po.Symbol, po.OrderID, ack.Status)
			s.dropExitOrder(po)
			s.EnsureExitOrder(ctx, po.Symbol)
		}
	}
}

// expireIfOld cancels exit orders past the configured age and routes
// them through the recreation path.
func (s *Service) expireIfOld(ctx context.Context, po models.PendingOrder) bool {
	days := s.cfg.Defaults.LimitOrderExpireDays
	if days <= 0 {
		return false
	}
	if s.now().Sub(po.CreatedAt) < time.Duration(days)*24*time.Hour {
		return false
	}
	logger.Info("[MONITOR] %s: exit order %s older than %dd, refreshing", po.Symbol, po.OrderID, days)
	if err := s.api.CancelOrder(ctx, po.OrderID); err != nil && !errors.Is(err, broker.ErrNotFound) {
		logger.Warn("[MONITOR] %s: expiry cancel failed: %v", po.Symbol, err)
		return false
	}
	s.dropExitOrder(po)
	s.EnsureExitOrder(ctx, po.Symbol)
	return true
}

// dropExitOrder forgets the pending order and orphans the position so
// the next tick recreates its protection.
func (s *Service) dropExitOrder(po models.PendingOrder) {
	s.tracker.RemovePending(po.OrderID)
	s.tracker.UpdatePosition(po.Symbol, func(p *models.Position) bool {
		if p.OpenOrderID == po.OrderID {
			p.OpenOrderID = ""
		}
		return true
	})
}

// SyncFromBroker adopts holdings the tracker does not know about, so a
// restart never leaves a position unprotected.
func (s *Service) SyncFromBroker(ctx context.Context) error {
	holdings, err := s.api.GetPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch holdings")
	}

	for _, h := range holdings {
		if _, ok := s.tracker.Position(h.Symbol); ok {
			continue
		}
		tpPct, slPct := s.cfg.SymbolParams(h.Symbol)
		p := models.Position{
			Symbol:     h.Symbol,
			EntryPrice: h.AvgEntryPrice,
			Qty:        h.Qty,
			TakeProfit: h.AvgEntryPrice * (1 + tpPct/100),
			StopLoss:   h.AvgEntryPrice * (1 - slPct/100),
			Side:       models.SideBuy,
			EntryTime:  s.now().UTC(),
		}
		s.tracker.SetPosition(p)
		logger.Info("[MONITOR] %s: adopted broker holding qty=%.6f entry=%.4f", h.Symbol, h.Qty, h.AvgEntryPrice)
		s.EnsureExitOrder(ctx, h.Symbol)
	}
	return nil
}

func (s *Service) findHolding(ctx context.Context, symbol string) (broker.Holding, bool, error) {
	holdings, err := s.api.GetPositions(ctx)
	if err != nil {
		return broker.Holding{}, false, err
	}
	for _, h := range holdings {
		if h.Symbol == symbol && h.Qty > qtyEpsilon {
			return h, true, nil
		}
	}
	return broker.Holding{}, false, nil
}

func (s *Service) exitTimeInForce() broker.TimeInForce {
	if s.cfg.MicroTrade.LimitOrdersExpireDaily {
		return broker.Day
	}
	return broker.GTC
}

func (s *Service) logHeartbeat(ctx context.Context) {
	account, err := s.api.GetAccount(ctx)
	if err != nil {
		logger.Warn("[MONITOR] heartbeat: account fetch failed: %v", err)
		return
	}
	logger.Info("[MONITOR] heartbeat: buying_power=%.2f positions=%d", account.BuyingPower, len(s.tracker.Positions()))
}
