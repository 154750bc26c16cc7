package main

import (
	"context"
	"log"

	"autohedge/internal/engine"
	"autohedge/internal/modules/api"
	"autohedge/internal/modules/broker"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/execution"
	"autohedge/internal/modules/journal"
	"autohedge/internal/modules/llm"
	"autohedge/internal/modules/market"
	"autohedge/internal/modules/monitor"
	"autohedge/internal/modules/strategy"
	"autohedge/pkg/logger"
	"autohedge/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(initObservability),
		bus.Module(),
		market.Module(),
		broker.Module(),
		llm.Module(),
		strategy.Module(),
		execution.Module(),
		monitor.Module(),
		journal.Module(),
		engine.Module(),
		api.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func initObservability(lc fx.Lifecycle, cfg *config.Config) error {
	logger.SetServiceName("autohedge")
	if err := logger.Init(cfg.ChatterLevel); err != nil {
		return err
	}

	if cfg.Tracing.Host == "" {
		return nil
	}
	_, closer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Tracing.Host,
		Port: cfg.Tracing.Port,
	})
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
