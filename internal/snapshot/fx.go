package snapshot

import (
	"context"

	"go.uber.org/fx"

	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/snapshot/ingest"
	"github.com/smallbiznis/flexwatch/internal/snapshot/repository"
)

var Module = fx.Module("snapshot",
	fx.Provide(
		repository.New,
		provideIngestConfig,
		ingest.NewWorker,
	),
	fx.Invoke(runWorker),
)

func provideIngestConfig(cfg appconfig.Config) ingest.Config {
	c := ingest.DefaultConfig()
	c.RawDir = cfg.RawSnapshotDir
	return c
}

func runWorker(lc fx.Lifecycle, worker *ingest.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
