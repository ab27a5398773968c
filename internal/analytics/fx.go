package analytics

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/flexwatch/internal/analytics/cache"
	"github.com/smallbiznis/flexwatch/internal/analytics/service"
	appconfig "github.com/smallbiznis/flexwatch/internal/config"
)

var Module = fx.Module("analytics",
	fx.Provide(
		newCache,
		service.New,
	),
)

// newCache returns nil when redis is not configured; the service and
// workers treat a nil cache as disabled.
func newCache(lc fx.Lifecycle, cfg appconfig.Config, log *zap.Logger) *cache.Cache {
	c := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if c != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return c.Close()
			},
		})
	}
	return c
}
