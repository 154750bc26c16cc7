package execution

import (
	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(cfg *config.Config, api broker.API) *AccountCache {
				return NewAccountCache(api, cfg.AccountCacheTTL())
			},
			NewService,
		),
	)
}
