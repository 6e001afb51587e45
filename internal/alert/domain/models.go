package domain

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// RecordingFailure describes funds captured by the gateway that could not be recorded.
type RecordingFailure struct {
	IntentToken      string
	GatewayProvider  string
	GatewayReference string
	PayerID          string
	ScheduleID       string
	PeriodReference  string
	Amount           int64
	Currency         string
	Cause            string
	OccurredAt       time.Time
}

// Divergence describes a payment whose ledger record disagrees with the database.
type Divergence struct {
	PaymentID    string
	LedgerTxHash string
	Fields       []string
	OccurredAt   time.Time
}

type Service interface {
	NotifyRecordingFailed(ctx context.Context, failure RecordingFailure) error
	NotifyDivergence(ctx context.Context, divergence Divergence) error
}
