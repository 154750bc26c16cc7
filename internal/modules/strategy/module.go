package strategy

import (
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/llm"
	"autohedge/internal/modules/market"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(cfg *config.Config, store *market.Store, exposure ExposureChecker, queue *llm.Queue) Evaluator {
				var gate Gate
				if cfg.StrategyMode == "hybrid" {
					gate = NewLLMGate(cfg, queue)
				}
				return NewHFTEvaluator(cfg, store, exposure, gate)
			},
			NewService,
		),
	)
}
