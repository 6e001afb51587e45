package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a persisted payment.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// CanTransition reports whether a payment may move from s to next.
// success and failed are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case "":
		return next == StatusPending || next == StatusSuccess || next == StatusFailed
	case StatusPending:
		return next == StatusSuccess || next == StatusFailed
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// IntentStatus tracks a checkout from token issue until it is recorded or abandoned.
type IntentStatus string

const (
	IntentPending         IntentStatus = "pending"
	IntentApproved        IntentStatus = "approved"
	IntentRecorded        IntentStatus = "recorded"
	IntentCancelled       IntentStatus = "cancelled"
	IntentRecordingFailed IntentStatus = "recording_failed"
)

func (s IntentStatus) CanTransition(next IntentStatus) bool {
	switch s {
	case IntentPending:
		return next == IntentApproved || next == IntentCancelled
	case IntentApproved:
		return next == IntentRecorded || next == IntentRecordingFailed
	case IntentRecordingFailed:
		return next == IntentRecorded
	default:
		return false
	}
}

// Resolvable reports whether the gateway may still be consulted for the intent.
func (s IntentStatus) Resolvable() bool {
	return s == IntentPending || s == IntentApproved || s == IntentRecordingFailed
}

type Payment struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	PayerID          string       `json:"payer_id" gorm:"type:varchar(191);not null;index"`
	ScheduleID       snowflake.ID `json:"schedule_id" gorm:"not null;index"`
	ScheduleName     string       `json:"schedule_name" gorm:"type:text;not null"`
	Recurrence       string       `json:"recurrence" gorm:"type:text;not null"`
	Amount           int64        `json:"amount" gorm:"not null"`
	Currency         string       `json:"currency" gorm:"type:text;not null"`
	PeriodReference  string       `json:"period_reference" gorm:"type:text;not null"`
	GatewayReference string       `json:"gateway_reference" gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_gateway,priority:2"`
	GatewayProvider  string       `json:"gateway_provider" gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_gateway,priority:1"`
	IdempotencyKey   string       `json:"idempotency_key" gorm:"type:varchar(191);not null;uniqueIndex"`
	Status           Status       `json:"status" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	LedgerTxHash     *string      `json:"ledger_tx_hash,omitempty" gorm:"type:text"`
	AnchoredAt       *time.Time   `json:"anchored_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Anchored() bool {
	return p.LedgerTxHash != nil && *p.LedgerTxHash != ""
}

// PaymentIntent is written before the gateway is invoked so an approval
// that never got recorded can be found and resolved later.
type PaymentIntent struct {
	Token            string            `json:"token" gorm:"primaryKey;type:varchar(64)"`
	PayerID          string            `json:"payer_id" gorm:"type:varchar(191);not null;index"`
	ScheduleID       snowflake.ID      `json:"schedule_id" gorm:"not null"`
	PeriodReference  string            `json:"period_reference" gorm:"type:text;not null"`
	Amount           int64             `json:"amount" gorm:"not null"`
	Currency         string            `json:"currency" gorm:"type:text;not null"`
	GatewayProvider  string            `json:"gateway_provider" gorm:"type:text;not null"`
	Status           IntentStatus      `json:"status" gorm:"type:text;not null"`
	GatewayReference *string           `json:"gateway_reference,omitempty" gorm:"type:text"`
	PaymentID        *snowflake.ID     `json:"payment_id,omitempty"`
	FailureReason    *string           `json:"failure_reason,omitempty" gorm:"type:text"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

type ListFilter struct {
	PayerID    string
	ScheduleID snowflake.ID
	Status     Status
	AfterID    snowflake.ID
	Limit      int
}

// IntentTransition is a guarded status change; it applies only while the
// stored status still equals From.
type IntentTransition struct {
	Token            string
	From             IntentStatus
	To               IntentStatus
	GatewayReference *string
	PaymentID        *snowflake.ID
	FailureReason    *string
	UpdatedAt        time.Time
}
