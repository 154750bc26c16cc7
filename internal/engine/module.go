package engine

import (
	"context"

	"autohedge/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(New, notify.NewTelegram),
		fx.Invoke(func(lc fx.Lifecycle, e *Engine) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					e.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					e.Stop()
					return nil
				},
			})
		}),
	)
}
