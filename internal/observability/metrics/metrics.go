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
	syncOperations   metric.Int64Counter
	syncReplays      metric.Int64Counter
	syncRejections   metric.Int64Counter
	ordersIngested   metric.Int64Counter
	ledgerSweeps     metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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
		name = "kassa"
	}
	meter := provider.Meter(name)

	syncOperations, err := meter.Int64Counter("kassa_sync_operations_total")
	if err != nil {
		return nil, err
	}
	syncReplays, err := meter.Int64Counter("kassa_sync_replays_total")
	if err != nil {
		return nil, err
	}
	syncRejections, err := meter.Int64Counter("kassa_sync_rejections_total")
	if err != nil {
		return nil, err
	}
	ordersIngested, err := meter.Int64Counter("kassa_orders_ingested_total")
	if err != nil {
		return nil, err
	}
	ledgerSweeps, err := meter.Int64Counter("kassa_ledger_sweeps_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("kassa_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("kassa_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		syncOperations:   syncOperations,
		syncReplays:      syncReplays,
		syncRejections:   syncRejections,
		ordersIngested:   ordersIngested,
		ledgerSweeps:     ledgerSweeps,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordSyncOperation counts a dispatched offline operation by type.
func (m *Metrics) RecordSyncOperation(ctx context.Context, operationType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation_type", strings.TrimSpace(operationType)))
	m.syncOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncReplay counts an idempotent replay of a stored result.
func (m *Metrics) RecordSyncReplay(ctx context.Context, operationType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation_type", strings.TrimSpace(operationType)))
	m.syncReplays.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncRejection counts a domain-rejected operation by reason.
func (m *Metrics) RecordSyncRejection(ctx context.Context, operationType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation_type", strings.TrimSpace(operationType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.syncRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderIngested counts orders created from offline operations.
func (m *Metrics) RecordOrderIngested(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.ordersIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerSweep counts rows removed by the retention sweep.
func (m *Metrics) RecordLedgerSweep(ctx context.Context, removed int64) {
	if m == nil {
		return
	}
	m.ledgerSweeps.Add(ctx, removed)
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, tenantID, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, tenantID, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"tenant_id":      {},
	"endpoint":       {},
	"status_code":    {},
	"operation_type": {},
	"source":         {},
	"reason":         {},
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
