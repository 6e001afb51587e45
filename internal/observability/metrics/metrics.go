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
	paymentAttempts metric.Int64Counter
	paymentOutcomes metric.Int64Counter
	reconciliations metric.Int64Counter
	ledgerLookups   metric.Int64Counter
	ledgerLatency   metric.Float64Histogram
	rateLimited     metric.Int64Counter
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
		name = "levy"
	}
	meter := provider.Meter(name)

	paymentAttempts, err := meter.Int64Counter("levy_payment_attempts_total")
	if err != nil {
		return nil, err
	}
	paymentOutcomes, err := meter.Int64Counter("levy_payment_outcomes_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("levy_reconciliations_total")
	if err != nil {
		return nil, err
	}
	ledgerLookups, err := meter.Int64Counter("levy_ledger_lookups_total")
	if err != nil {
		return nil, err
	}
	ledgerLatency, err := meter.Float64Histogram("levy_ledger_lookup_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter("levy_rate_limit_decisions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentAttempts: paymentAttempts,
		paymentOutcomes: paymentOutcomes,
		reconciliations: reconciliations,
		ledgerLookups:   ledgerLookups,
		ledgerLatency:   ledgerLatency,
		rateLimited:     rateLimited,
	}, nil
}

// RecordPaymentAttempt increments submitted payment attempts.
func (m *Metrics) RecordPaymentAttempt(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.paymentAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentOutcome increments terminal payment outcomes (recorded, cancelled, invalid, recording_failed).
func (m *Metrics) RecordPaymentOutcome(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation increments reconciliation verdicts.
func (m *Metrics) RecordReconciliation(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerLookup records one ledger fetch by result (found, missing, unavailable, cache_hit).
func (m *Metrics) RecordLedgerLookup(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.ledgerLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ledgerLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed counts requests admitted by a rate limiter.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.recordRateLimit(ctx, endpoint, "allowed")
}

// RecordRateLimitDenied counts requests rejected by a rate limiter.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	m.recordRateLimit(ctx, endpoint, "denied")
}

func (m *Metrics) recordRateLimit(ctx context.Context, endpoint, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("route", strings.TrimSpace(endpoint)),
		attribute.String("result", decision),
	)
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"provider":    {},
	"outcome":     {},
	"status":      {},
	"result":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
	"reason":      {},
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
