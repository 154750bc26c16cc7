package engine

import (
	"context"
	"sync"

	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/execution"
	"autohedge/internal/modules/monitor"
	"autohedge/internal/modules/strategy"
	"autohedge/internal/notify"
	"autohedge/pkg/logger"
)

// Engine supervises the trading tasks: the market stream, the strategy,
// the execution pipeline and the lifecycle monitor all run under one
// cancellable context. Start and Stop are idempotent.
type Engine struct {
	cfg       *config.Config
	bus       *bus.Bus
	stream    broker.Stream
	strategy  *strategy.Service
	execution *execution.Service
	monitor   *monitor.Service
	notifier  *notify.Telegram

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(
	cfg *config.Config,
	b *bus.Bus,
	stream broker.Stream,
	strat *strategy.Service,
	exec *execution.Service,
	mon *monitor.Service,
	notifier *notify.Telegram,
) *Engine {
	return &Engine{
		cfg:       cfg,
		bus:       b,
		stream:    stream,
		strategy:  strat,
		execution: exec,
		monitor:   mon,
		notifier:  notifier,
	}
}

// Start launches the trading tasks. A second Start while running is a
// no-op and returns false.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		logger.Info("[ENGINE] already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.spawn(func() {
		if err := e.stream.Run(ctx, e.cfg.Symbols); err != nil && ctx.Err() == nil {
			logger.Error("[ENGINE] stream stopped: %v", err)
		}
	})
	e.spawn(func() { e.monitor.Run(ctx) })
	e.spawn(func() { e.execution.Run(ctx) })
	e.spawn(func() { e.strategy.Run(ctx) })
	e.spawn(func() { e.notifier.Watch(ctx, e.bus) })

	logger.Info("[ENGINE] started: %d symbols, mode=%s", len(e.cfg.Symbols), e.cfg.StrategyMode)
	e.notifier.Sendf("🚀 trading started: %v", e.cfg.Symbols)
	return true
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Stop cancels the tasks and waits for them to unwind.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	logger.Info("[ENGINE] stopped")
	e.notifier.Send("🛑 trading stopped")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
