package policy

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/policy/repository"
	"github.com/smallbiznis/flexwatch/internal/policy/service"
)

var Module = fx.Module("policy",
	fx.Provide(
		repository.New,
		newService,
	),
	fx.Invoke(loadOnStart),
)

func newService(p service.Params, cfg appconfig.Config) *service.Service {
	return service.New(p, cfg.OptionsFilePath)
}

func loadOnStart(lc fx.Lifecycle, svc *service.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := svc.Reload(ctx); err != nil {
				// Missing or empty options file is not fatal; the
				// engine degrades to NO_POLICY classification.
				log.Named("policy").Warn("initial policy load skipped", zap.Error(err))
			}
			return nil
		},
	})
}
