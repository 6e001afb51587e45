package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
)

type Status string

const (
	StatusReconciled  Status = "RECONCILED"
	StatusDiverged    Status = "DIVERGED"
	StatusUnavailable Status = "UNAVAILABLE"
)

const (
	FieldAmount          = "amount"
	FieldRevenueType     = "revenue_type"
	FieldPeriodReference = "period_reference"
	FieldRecurrence      = "recurrence"
	FieldLedgerRecord    = "ledger_record"
)

const (
	MessageReconciled  = "Payment verified: the database record matches the ledger record."
	MessageDiverged    = "Payment record does not match the ledger record."
	MessageMissing     = "No ledger record exists for this payment."
	MessageUnavailable = "The ledger could not be reached; verification is not possible right now."
	MessageNotAnchored = "payment has not been anchored yet"
)

const MaxBatchSize = 50

var (
	ErrEmptyBatch    = errors.New("empty_batch")
	ErrBatchTooLarge = errors.New("batch_too_large")
)

// Diff names one field on which the two records disagree.
type Diff struct {
	Field         string `json:"field"`
	DatabaseValue string `json:"databaseValue"`
	LedgerValue   string `json:"ledgerValue"`
}

// DatabaseRecord is the payment as stored locally, shaped for comparison.
type DatabaseRecord struct {
	ID              string    `json:"id"`
	PayerID         string    `json:"payerId"`
	RevenueType     string    `json:"revenueType"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Period          string    `json:"period"`
	PeriodReference string    `json:"periodReference"`
	CreatedAt       time.Time `json:"createdAt"`
	LedgerTxHash    string    `json:"blockchainTxHash,omitempty"`
}

// Result is never persisted. PaymentID ties each verdict to the entity it
// was computed for.
type Result struct {
	PaymentID      string                     `json:"paymentId"`
	Status         Status                     `json:"status"`
	DatabaseRecord *DatabaseRecord            `json:"databaseRecord"`
	LedgerRecord   *ledgerdomain.LedgerRecord `json:"onChainRecord"`
	Diffs          []Diff                     `json:"diffs"`
	Message        string                     `json:"message"`
}

// BatchItem carries either a verdict or the reason none could be computed.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type Service interface {
	Reconcile(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*Result, error)
	ReconcileBatch(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentIDs []snowflake.ID) (map[string]BatchItem, error)
}
