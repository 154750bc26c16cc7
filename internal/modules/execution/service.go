package execution

import (
	"context"
	"math"
	"time"

	"autohedge/internal/models"
	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/market"
	"autohedge/internal/modules/monitor"
	"autohedge/pkg/logger"

	"github.com/pkg/errors"
)

// qtyEpsilon is the tolerance for quantity comparisons end to end.
const qtyEpsilon = 1e-6

// Service is the buy-side order pipeline: rate limit, price discovery,
// sizing from cached buying power, aggressive limit pricing, submission
// and fill handling. Exit orders belong to the lifecycle monitor.
type Service struct {
	cfg     *config.Config
	bus     *bus.Bus
	store   *market.Store
	api     broker.API
	cache   *AccountCache
	limiter *RateLimiter
	tracker *monitor.Tracker
	now     func() time.Time
}

func NewService(cfg *config.Config, b *bus.Bus, store *market.Store, api broker.API, cache *AccountCache, tracker *monitor.Tracker) *Service {
	return &Service{
		cfg:     cfg,
		bus:     b,
		store:   store,
		api:     api,
		cache:   cache,
		limiter: NewRateLimiter(cfg.RateLimit()),
		tracker: tracker,
		now:     time.Now,
	}
}

// Run consumes buy signals and polls entry orders until the context is
// canceled.
func (s *Service) Run(ctx context.Context) {
	sub := s.bus.Subscribe("execution", 256)
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(s.cfg.OrderCheckInterval())
	defer ticker.Stop()

	logger.Info("[EXEC] running, rate limit %s per symbol", s.cfg.RateLimit())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollEntryOrders(ctx)
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.Signal != nil && ev.Signal.Action == models.SideBuy {
				s.handleBuy(ctx, *ev.Signal)
			}
		}
	}
}

func (s *Service) handleBuy(ctx context.Context, sig models.Signal) {
	sym := sig.Symbol

	// silent drop: the scalper fires faster than the broker accepts
	if !s.limiter.Allow(sym) {
		logger.Debug("[EXEC] %s: rate limited, dropping", sym)
		return
	}

	if s.tracker.HasExposure(sym) {
		logger.Debug("[EXEC] %s: already exposed, dropping", sym)
		return
	}

	quote, ok := s.store.LastQuote(sym)
	if !ok {
		logger.Warn("[EXEC] %s: %v", sym, ErrNoMarketData)
		return
	}
	price, ok := s.store.LastPrice(sym)
	if !ok || price <= 0 {
		logger.Warn("[EXEC] %s: %v", sym, ErrNoMarketData)
		return
	}

	account, err := s.cache.Summary(ctx)
	if err != nil {
		logger.Error("[EXEC] %s: account fetch failed: %v", sym, err)
		return
	}

	qty, notional, err := ComputeOrderSizing(s.cfg, sym, price, account.BuyingPower)
	if err != nil {
		logger.Warn("[EXEC] %s: sizing: %v", sym, err)
		return
	}

	limitPrice := AggressiveLimitPrice(models.SideBuy, quote.Mid(), quote.Bid, quote.Ask, s.cfg.MicroTrade.AggressionBps)

	req := broker.PlaceOrderRequest{
		Symbol:      sym,
		Side:        broker.Buy,
		OrderType:   broker.Limit,
		Qty:         qty,
		LimitPrice:  limitPrice,
		TimeInForce: s.timeInForce(),
	}
	ack, err := s.api.SubmitOrder(ctx, req)
	if err != nil {
		if errors.Is(err, broker.ErrInsufficientBalance) {
			s.cache.Invalidate()
		}
		logger.Error("[EXEC] %s: submit failed: %v", sym, err)
		return
	}
	s.cache.Invalidate()

	tp := limitPrice * (1 + sig.TakeProfitBps/10000)
	sl := limitPrice * (1 - sig.StopLossBps/10000)
	s.tracker.AddPending(models.PendingOrder{
		OrderID:    ack.ID,
		Symbol:     sym,
		Side:       models.SideBuy,
		LimitPrice: limitPrice,
		Qty:        qty,
		CreatedAt:  time.Now().UTC(),
		TakeProfit: tp,
		StopLoss:   sl,
	})

	logger.Info("[EXEC] %s: buy submitted id=%s qty=%.6f limit=%.4f notional=%.2f", sym, ack.ID, qty, limitPrice, notional)
	s.bus.Publish(models.Event{Order: &models.OrderRequest{
		Symbol:     sym,
		Action:     models.SideBuy,
		Qty:        qty,
		OrderType:  string(broker.Limit),
		LimitPrice: limitPrice,
	}})
}

func (s *Service) timeInForce() broker.TimeInForce {
	if s.cfg.IsCrypto() {
		return broker.TimeInForce(s.cfg.MicroTrade.CryptoTimeInForce)
	}
	if s.cfg.MicroTrade.LimitOrdersExpireDaily {
		return broker.Day
	}
	return broker.GTC
}

// pollEntryOrders walks the pending buys and reconciles their broker
// state. Fills become positions sized by the broker-reported quantity.
func (s *Service) pollEntryOrders(ctx context.Context) {
	for _, po := range s.tracker.PendingBySide(models.SideBuy) {
		if s.expireStaleBuy(ctx, po) {
			continue
		}
		ack, err := s.api.GetOrder(ctx, po.OrderID)
		if err != nil {
			if errors.Is(err, broker.ErrNotFound) {
				logger.Warn("[EXEC] %s: entry order %s gone at broker, dropping", po.Symbol, po.OrderID)
				s.tracker.RemovePending(po.OrderID)
			} else {
				logger.Warn("[EXEC] %s: poll %s failed: %v", po.Symbol, po.OrderID, err)
			}
			continue
		}

		switch {
		case ack.IsFilled():
			s.handleFill(po, ack)
		case ack.IsCanceled():
			logger.Info("[EXEC] %s: entry order %s %s", po.Symbol, po.OrderID, ack.Status)
			s.tracker.RemovePending(po.OrderID)
		}
	}
}

// expireStaleBuy cancels unfilled entry orders past the configured age.
// A dead GTC buy left tracked would hold the symbol's exposure slot and
// suppress every future signal for it.
func (s *Service) expireStaleBuy(ctx context.Context, po models.PendingOrder) bool {
	days := s.cfg.Defaults.LimitOrderExpireDays
	if days <= 0 {
		return false
	}
	if s.now().Sub(po.CreatedAt) < time.Duration(days)*24*time.Hour {
		return false
	}
	logger.Info("[EXEC] %s: entry order %s older than %dd, cancelling", po.Symbol, po.OrderID, days)
	if err := s.api.CancelOrder(ctx, po.OrderID); err != nil && !errors.Is(err, broker.ErrNotFound) {
		logger.Warn("[EXEC] %s: expiry cancel failed: %v", po.Symbol, err)
		return false
	}
	s.tracker.RemovePending(po.OrderID)
	return true
}

func (s *Service) handleFill(po models.PendingOrder, ack broker.OrderAck) {
	filledQty, ok := ack.FilledQty()
	if !ok || filledQty <= 0 {
		logger.Warn("[EXEC] %s: fill for %s without usable filled_qty, using requested %.6f", po.Symbol, po.OrderID, po.Qty)
		filledQty = po.Qty
	}
	if math.Abs(filledQty-po.Qty) > qtyEpsilon {
		logger.Warn("[EXEC] %s: filled qty %.6f differs from requested %.6f", po.Symbol, filledQty, po.Qty)
	}

	entryPrice := po.LimitPrice
	if avg, ok := ack.FilledAvgPrice(); ok && avg > 0 {
		entryPrice = avg
	}

	// the exit order is created by the monitor's next tick
	s.tracker.SetPosition(models.Position{
		Symbol:     po.Symbol,
		EntryPrice: entryPrice,
		Qty:        filledQty,
		StopLoss:   po.StopLoss,
		TakeProfit: po.TakeProfit,
		Side:       models.SideBuy,
		EntryTime:  time.Now().UTC(),
	})
	s.tracker.RemovePending(po.OrderID)

	logger.Info("[EXEC] %s: entry filled qty=%.6f at %.4f, TP %.4f SL %.4f", po.Symbol, filledQty, entryPrice, po.TakeProfit, po.StopLoss)
	s.bus.Publish(models.Event{Execution: &models.ExecutionReport{
		Symbol:  po.Symbol,
		OrderID: po.OrderID,
		Status:  ack.Status,
		Side:    models.SideBuy,
		Price:   entryPrice,
		Qty:     filledQty,
		Raw:     ack.Raw,
	}})
}
