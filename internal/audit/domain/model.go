package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

const (
	ActionPaymentRecorded        = "payment.recorded"
	ActionPaymentRecordingFailed = "payment.recording_failed"
	ActionPaymentDuplicatePeriod = "payment.duplicate_period"
	ActionPaymentAnchored        = "payment.anchored"
	ActionIntentResolved         = "payment_intent.resolved"
	ActionReconciliationDiverged = "reconciliation.diverged"
	ActionAuthorizationDenied    = "authorization.denied"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
