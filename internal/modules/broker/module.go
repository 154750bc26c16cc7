package broker

import (
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/market"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config) API { return NewAlpaca(cfg) },
			func(cfg *config.Config, store *market.Store, b *bus.Bus) Stream {
				return NewAlpacaStream(cfg, store, b)
			},
		),
	)
}
