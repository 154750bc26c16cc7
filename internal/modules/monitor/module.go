package monitor

import (
	"autohedge/internal/modules/strategy"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			NewTracker,
			NewService,
			func(t *Tracker) strategy.ExposureChecker { return t },
		),
	)
}
