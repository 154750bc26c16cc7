package journal

import (
	"context"

	"autohedge/internal/modules/monitor"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			New,
			func(j *Journal) monitor.Recorder { return j },
		),
		fx.Invoke(func(lc fx.Lifecycle, j *Journal) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					j.Close()
					return nil
				},
			})
		}),
	)
}
