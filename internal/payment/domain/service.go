package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Payment, error)
	FindByGatewayReference(ctx context.Context, db *gorm.DB, provider, reference string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	CountForPeriod(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, periodReference, payerID string, excludeID snowflake.ID) (int64, error)
	FindUnanchored(ctx context.Context, db *gorm.DB, limit int) ([]*Payment, error)
	SetLedgerHash(ctx context.Context, db *gorm.DB, id snowflake.ID, txHash string, anchoredAt time.Time) (bool, error)

	InsertIntent(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindIntent(ctx context.Context, db *gorm.DB, token string) (*PaymentIntent, error)
	TransitionIntent(ctx context.Context, db *gorm.DB, transition IntentTransition) (bool, error)
}

type SubmitRequest struct {
	ScheduleID      snowflake.ID
	Amount          int64
	PeriodReference string
	Provider        string
}

type RecordRequest struct {
	ScheduleID       snowflake.ID
	Amount           int64
	PeriodReference  string
	GatewayReference string
	GatewayProvider  string
}

type ListRequest struct {
	pagination.Pagination
	Scope      authorization.Scope
	ScheduleID snowflake.ID
	Status     Status
}

type ListResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type IntentResolution struct {
	Intent  PaymentIntent `json:"intent"`
	Payment *Payment      `json:"payment,omitempty"`
}

type AnchorSummary struct {
	Claimed  int
	Anchored int
	Failed   int
}

// Service orchestrates payments. The caller identity is always explicit and
// visibility is bounded by the scope the API layer resolved for the caller.
type Service interface {
	Submit(ctx context.Context, principal authdomain.Principal, req SubmitRequest) (*Payment, error)
	Record(ctx context.Context, principal authdomain.Principal, req RecordRequest) (*Payment, error)
	ResolveIntent(ctx context.Context, principal authdomain.Principal, token string) (*IntentResolution, error)
	Get(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, principal authdomain.Principal, req ListRequest) (ListResponse, error)
	AnchorPending(ctx context.Context, limit int) (AnchorSummary, error)
}
