package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"gorm.io/gorm"
)

// Backlog tracks work the anchor sweep and intent resolution still owe.
// It is refreshed from the database before every push.
type Backlog struct {
	registry       *prometheus.Registry
	unanchored     prometheus.Gauge
	pendingIntents *prometheus.GaugeVec
}

func NewBacklog() *Backlog {
	b := &Backlog{
		registry: prometheus.NewRegistry(),
		unanchored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "levy_payments_unanchored",
			Help: "Successful payments without a ledger transaction hash.",
		}),
		pendingIntents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levy_payment_intents_open",
			Help: "Payment intents that are not yet recorded or cancelled, by status.",
		}, []string{"status"}),
	}
	b.registry.MustRegister(b.unanchored, b.pendingIntents)
	return b
}

func (b *Backlog) Refresh(ctx context.Context, db *gorm.DB) error {
	if b == nil || db == nil {
		return nil
	}

	var unanchored int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments WHERE status = ? AND ledger_tx_hash IS NULL`,
		string(paymentdomain.StatusSuccess),
	).Scan(&unanchored).Error; err != nil {
		return err
	}
	b.unanchored.Set(float64(unanchored))

	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM payment_intents WHERE status IN (?, ?, ?) GROUP BY status`,
		string(paymentdomain.IntentPending), string(paymentdomain.IntentApproved), string(paymentdomain.IntentRecordingFailed),
	).Scan(&rows).Error; err != nil {
		return err
	}
	b.pendingIntents.Reset()
	for _, status := range []paymentdomain.IntentStatus{paymentdomain.IntentPending, paymentdomain.IntentApproved, paymentdomain.IntentRecordingFailed} {
		b.pendingIntents.WithLabelValues(string(status)).Set(0)
	}
	for _, r := range rows {
		b.pendingIntents.WithLabelValues(r.Status).Set(float64(r.Total))
	}
	return nil
}

func (b *Backlog) Gatherer() prometheus.Gatherer {
	return b.registry
}
