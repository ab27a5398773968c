package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/observability/metrics"
	"github.com/smallbiznis/flexwatch/internal/observability/tracing"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideConfig,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideConfig(cfg appconfig.Config) Config {
	return FromEnv(cfg.AppName, cfg.AppVersion, cfg.Environment, cfg.OTLPEndpoint)
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Protocol != "none",
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.ServiceVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Endpoint,
		ExporterProtocol: cfg.Protocol,
		SamplingRatio:    1,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Protocol != "none",
		ExporterEndpoint: cfg.Endpoint,
		ExporterProtocol: cfg.Protocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
