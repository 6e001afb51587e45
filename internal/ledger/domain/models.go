package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
	ErrInvalidTxHash     = errors.New("invalid_tx_hash")
	ErrInvalidAnchor     = errors.New("invalid_anchor_request")
)

// LedgerRecord is the immutable copy of a payment held by the ledger.
// Amount is in minor units; Timestamp is unix seconds.
type LedgerRecord struct {
	TxHash          string          `json:"txHash"`
	RevenueType     string          `json:"revenueType"`
	Amount          decimal.Decimal `json:"amount"`
	Period          string          `json:"period"`
	PeriodReference string          `json:"periodReference"`
	RecordedBy      string          `json:"recordedBy"`
	Timestamp       int64           `json:"timestamp"`
}

// AnchorRequest carries the fields written to the ledger for one payment.
type AnchorRequest struct {
	PaymentID       string          `json:"paymentId"`
	RevenueType     string          `json:"revenueType"`
	Amount          decimal.Decimal `json:"amount"`
	Period          string          `json:"period"`
	PeriodReference string          `json:"periodReference"`
	RecordedBy      string          `json:"recordedBy"`
}

// Client is the read/anchor boundary to the ledger.
//
// GetLedgerRecord returns (nil, nil) when the ledger has no record for the
// hash and ErrLedgerUnavailable when the ledger could not be reached.
type Client interface {
	GetLedgerRecord(ctx context.Context, txHash string) (*LedgerRecord, error)
	Anchor(ctx context.Context, req AnchorRequest) (string, error)
}
