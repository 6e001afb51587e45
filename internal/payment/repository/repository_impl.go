package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const paymentColumns = `id, payer_id, schedule_id, schedule_name, recurrence, amount, currency,
	period_reference, gateway_reference, gateway_provider, idempotency_key, status,
	created_at, ledger_tx_hash, anchored_at`

const intentColumns = `token, payer_id, schedule_id, period_reference, amount, currency,
	gateway_provider, status, gateway_reference, payment_id, failure_reason, metadata,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// skipDuplicate renders as ON CONFLICT DO NOTHING on postgres and sqlite and
// as a no-op ON DUPLICATE KEY UPDATE on mysql.
var skipDuplicate = clause.OnConflict{DoNothing: true}

// InsertPayment reports false when a row with the same idempotency key or
// gateway reference already exists.
func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Clauses(skipDuplicate).Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `idempotency_key = ?`, key)
}

func (r *repo) FindByGatewayReference(ctx context.Context, db *gorm.DB, provider, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `gateway_provider = ? AND gateway_reference = ?`, provider, reference)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE `+where+`
		 LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	var items []*domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{})

	if filter.PayerID != "" {
		stmt = stmt.Where("payer_id = ?", filter.PayerID)
	}
	if filter.ScheduleID != 0 {
		stmt = stmt.Where("schedule_id = ?", filter.ScheduleID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id < ?", filter.AfterID)
	}

	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountForPeriod(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, periodReference, payerID string, excludeID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payments
		 WHERE schedule_id = ? AND period_reference = ? AND payer_id = ?
		   AND status = ? AND id <> ?`,
		scheduleID,
		periodReference,
		payerID,
		domain.StatusSuccess,
		excludeID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindUnanchored(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = ? AND ledger_tx_hash IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		domain.StatusSuccess,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SetLedgerHash writes the anchor once; a payment that already carries a
// hash is left untouched and false is returned.
func (r *repo) SetLedgerHash(ctx context.Context, db *gorm.DB, id snowflake.ID, txHash string, anchoredAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET ledger_tx_hash = ?, anchored_at = ?
		 WHERE id = ? AND ledger_tx_hash IS NULL`,
		txHash,
		anchoredAt,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertIntent(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (`+intentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.Token,
		intent.PayerID,
		intent.ScheduleID,
		intent.PeriodReference,
		intent.Amount,
		intent.Currency,
		intent.GatewayProvider,
		intent.Status,
		intent.GatewayReference,
		intent.PaymentID,
		intent.FailureReason,
		intent.Metadata,
		intent.CreatedAt,
		intent.UpdatedAt,
	).Error
}

func (r *repo) FindIntent(ctx context.Context, db *gorm.DB, token string) (*domain.PaymentIntent, error) {
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT `+intentColumns+`
		 FROM payment_intents
		 WHERE token = ?
		 LIMIT 1`,
		token,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Token == "" {
		return nil, nil
	}
	return &item, nil
}

// TransitionIntent applies the change only while the row is still in
// transition.From. Optional columns keep their stored value when nil.
func (r *repo) TransitionIntent(ctx context.Context, db *gorm.DB, transition domain.IntentTransition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?,
		     gateway_reference = COALESCE(?, gateway_reference),
		     payment_id = COALESCE(?, payment_id),
		     failure_reason = COALESCE(?, failure_reason),
		     updated_at = ?
		 WHERE token = ? AND status = ?`,
		transition.To,
		transition.GatewayReference,
		transition.PaymentID,
		transition.FailureReason,
		transition.UpdatedAt,
		transition.Token,
		transition.From,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
