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
	definitionsCreated metric.Int64Counter
	lifecycleChanges   metric.Int64Counter
	bindings           metric.Int64Counter
	bindRejections     metric.Int64Counter
	deletionsBlocked   metric.Int64Counter
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
		name = "metrica"
	}
	meter := provider.Meter(name)

	definitionsCreated, err := meter.Int64Counter("metrica_definitions_created_total")
	if err != nil {
		return nil, err
	}
	lifecycleChanges, err := meter.Int64Counter("metrica_lifecycle_changes_total")
	if err != nil {
		return nil, err
	}
	bindings, err := meter.Int64Counter("metrica_bindings_total")
	if err != nil {
		return nil, err
	}
	bindRejections, err := meter.Int64Counter("metrica_bind_rejections_total")
	if err != nil {
		return nil, err
	}
	deletionsBlocked, err := meter.Int64Counter("metrica_deletions_blocked_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		definitionsCreated: definitionsCreated,
		lifecycleChanges:   lifecycleChanges,
		bindings:           bindings,
		bindRejections:     bindRejections,
		deletionsBlocked:   deletionsBlocked,
	}, nil
}

// RecordDefinitionCreated increments definition creation counts.
func (m *Metrics) RecordDefinitionCreated(ctx context.Context, dataType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("data_type", strings.TrimSpace(dataType)))
	m.definitionsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLifecycleChange increments status transition counts.
func (m *Metrics) RecordLifecycleChange(ctx context.Context, toStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(toStatus)))
	m.lifecycleChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBinding increments successful bind counts.
func (m *Metrics) RecordBinding(ctx context.Context, resourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource_type", strings.TrimSpace(resourceType)))
	m.bindings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBindRejection increments binds refused on a non-published metric.
func (m *Metrics) RecordBindRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.bindRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeletionBlocked increments deletes vetoed by the usage guard.
func (m *Metrics) RecordDeletionBlocked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.deletionsBlocked.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"org_id":        {},
	"endpoint":      {},
	"status_code":   {},
	"data_type":     {},
	"status":        {},
	"resource_type": {},
	"reason":        {},
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
