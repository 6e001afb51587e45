package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeRecorded        = "recorded"
	OutcomeDeduplicated    = "deduplicated"
	OutcomeCancelled       = "cancelled"
	OutcomeInvalid         = "invalid_selection"
	OutcomeRecordingFailed = "recording_failed"
	OutcomeGatewayError    = "gateway_error"
)

// PaymentMetrics captures payment and reconciliation signals scraped from /metrics.
type PaymentMetrics struct {
	outcomes          *prometheus.CounterVec
	recordingFailures *prometheus.CounterVec
	duplicatePeriods  prometheus.Counter
	verdicts          *prometheus.CounterVec
	ledgerCache       *prometheus.CounterVec
	anchors           *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payments returns the singleton payment metrics registry.
func Payments() *PaymentMetrics {
	return PaymentsWithConfig(Config{})
}

// PaymentsWithConfig returns the singleton payment metrics registry using config labels.
func PaymentsWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// ResetPaymentMetricsForTest resets the payment metrics singleton for tests.
func ResetPaymentMetricsForTest() {
	paymentMetricsOnce = sync.Once{}
	paymentMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "levy"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &PaymentMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "levy_payment_outcomes_total",
			Help:        "Payment attempts by provider and terminal outcome.",
			ConstLabels: labels,
		}, []string{"provider", "outcome"}),
		recordingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "levy_payment_recording_failures_total",
			Help:        "Gateway approvals that could not be recorded and need manual reconciliation.",
			ConstLabels: labels,
		}, []string{"provider"}),
		duplicatePeriods: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "levy_payment_duplicate_period_total",
			Help:        "Payments recorded for a period the payer had already paid.",
			ConstLabels: labels,
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "levy_reconciliation_verdicts_total",
			Help:        "Reconciliation verdicts by status.",
			ConstLabels: labels,
		}, []string{"status"}),
		ledgerCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "levy_ledger_cache_requests_total",
			Help:        "Ledger record cache lookups by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		anchors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "levy_ledger_anchor_total",
			Help:        "Ledger anchoring attempts by result.",
			ConstLabels: labels,
		}, []string{"result"}),
	}

	registerer.MustRegister(
		m.outcomes,
		m.recordingFailures,
		m.duplicatePeriods,
		m.verdicts,
		m.ledgerCache,
		m.anchors,
	)
	return m
}

func (m *PaymentMetrics) IncOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncRecordingFailure(provider string) {
	if m == nil {
		return
	}
	m.recordingFailures.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *PaymentMetrics) IncDuplicatePeriod() {
	if m == nil {
		return
	}
	m.duplicatePeriods.Inc()
}

func (m *PaymentMetrics) IncVerdict(status string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *PaymentMetrics) IncLedgerCache(result string) {
	if m == nil {
		return
	}
	m.ledgerCache.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) IncAnchor(result string) {
	if m == nil {
		return
	}
	m.anchors.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
