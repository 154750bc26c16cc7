package strategy

import (
	"context"

	"autohedge/internal/models"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"
)

// Service drives the evaluator off the event fabric and publishes the
// signals it produces.
type Service struct {
	cfg  *config.Config
	bus  *bus.Bus
	eval Evaluator
}

func NewService(cfg *config.Config, b *bus.Bus, eval Evaluator) *Service {
	return &Service{cfg: cfg, bus: b, eval: eval}
}

// Run consumes quotes until the context is canceled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.HFT.Enabled {
		logger.Info("[STRATEGY] disabled by config")
		return
	}

	sub := s.bus.Subscribe("strategy", 1024)
	defer s.bus.Unsubscribe(sub)
	logger.Info("[STRATEGY] running in %s mode", s.cfg.StrategyMode)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.Quote == nil {
				continue
			}
			if sig := s.eval.OnQuote(*ev.Quote); sig != nil {
				s.bus.Publish(models.Event{Signal: sig})
			}
		}
	}
}
