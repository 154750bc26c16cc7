package market

import (
	"go.uber.org/fx"

	"autohedge/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			func(cfg *config.Config) *Store {
				return NewStore(cfg.HistoryLimit)
			},
		),
	)
}
