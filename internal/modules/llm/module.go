package llm

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("llm",
		fx.Provide(NewClient, NewQueue),
		fx.Invoke(func(lc fx.Lifecycle, q *Queue) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					q.Start(context.Background())
					return nil
				},
				OnStop: func(ctx context.Context) error {
					q.Stop()
					return nil
				},
			})
		}),
	)
}
