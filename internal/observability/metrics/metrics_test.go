package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "paystack"),
		attribute.String("payer_id", "456"),
		attribute.String("outcome", "recorded"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "payer_id" {
			t.Fatalf("expected payer_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentAttempt(context.Background(), "paystack")
	m.RecordReconciliation(context.Background(), "RECONCILED")
	m.RecordLedgerLookup(context.Background(), "found", time.Millisecond)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "levy"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordPaymentOutcome(context.Background(), "paystack", "recorded")
}
