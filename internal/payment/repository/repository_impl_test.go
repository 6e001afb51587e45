package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Payment{}, &domain.PaymentIntent{}))
	return db
}

func testPayment(id int64, key, gatewayRef string) *domain.Payment {
	return &domain.Payment{
		ID:               snowflake.ID(id),
		PayerID:          "user-1",
		ScheduleID:       100,
		ScheduleName:     "Market Levy",
		Recurrence:       "monthly",
		Amount:           5000,
		Currency:         "NGN",
		PeriodReference:  "2024-03",
		GatewayReference: gatewayRef,
		GatewayProvider:  "paystack",
		IdempotencyKey:   key,
		Status:           domain.StatusSuccess,
		CreatedAt:        time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestInsertPaymentSkipsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	r := Provide()
	ctx := context.Background()

	inserted, err := r.InsertPayment(ctx, db, testPayment(1, "T1", "ref-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.InsertPayment(ctx, db, testPayment(2, "T1", "ref-2"))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = r.InsertPayment(ctx, db, testPayment(3, "paystack:ref-1", "ref-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := r.FindByGatewayReference(ctx, db, "paystack", "ref-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "T1", found.IdempotencyKey)

	var n int64
	require.NoError(t, db.Model(&domain.Payment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestInsertPaymentRendersForMySQL(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "levy:levy@tcp(127.0.0.1:3306)/levy?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	stmt := db.Clauses(skipDuplicate).Create(testPayment(1, "T1", "ref-1")).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, sql, "ON CONFLICT")
}
