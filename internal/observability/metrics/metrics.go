package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	snapshotsIngested metric.Int64Counter
	parseFailures     metric.Int64Counter
	aggregateQueries  metric.Int64Counter
	overuseReports    metric.Int64Counter
	policyReloads     metric.Int64Counter
	cacheHits         metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "flexwatch"
	}
	meter := provider.Meter(name)

	snapshotsIngested, err := meter.Int64Counter("flexwatch_snapshots_ingested_total")
	if err != nil {
		return nil, err
	}
	parseFailures, err := meter.Int64Counter("flexwatch_snapshot_parse_failures_total")
	if err != nil {
		return nil, err
	}
	aggregateQueries, err := meter.Int64Counter("flexwatch_aggregate_queries_total")
	if err != nil {
		return nil, err
	}
	overuseReports, err := meter.Int64Counter("flexwatch_overuse_reports_total")
	if err != nil {
		return nil, err
	}
	policyReloads, err := meter.Int64Counter("flexwatch_policy_reloads_total")
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("flexwatch_query_cache_hits_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		snapshotsIngested: snapshotsIngested,
		parseFailures:     parseFailures,
		aggregateQueries:  aggregateQueries,
		overuseReports:    overuseReports,
		policyReloads:     policyReloads,
		cacheHits:         cacheHits,
	}, nil
}

// RecordSnapshotsIngested increments the ingested checkout row count.
func (m *Metrics) RecordSnapshotsIngested(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.snapshotsIngested.Add(ctx, n)
}

// RecordParseFailure counts a raw file or line that could not be parsed.
func (m *Metrics) RecordParseFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.parseFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAggregateQuery counts an aggregation request by granularity.
func (m *Metrics) RecordAggregateQuery(ctx context.Context, granularity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("granularity", strings.TrimSpace(granularity)))
	m.aggregateQueries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOveruseReport counts an overuse detection that found violations.
func (m *Metrics) RecordOveruseReport(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature", strings.TrimSpace(feature)))
	m.overuseReports.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPolicyReload counts an options-file re-ingestion.
func (m *Metrics) RecordPolicyReload(ctx context.Context) {
	if m == nil {
		return
	}
	m.policyReloads.Add(ctx, 1)
}

// RecordCacheHit counts an aggregation response served from cache.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":      {},
	"granularity": {},
	"feature":     {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
