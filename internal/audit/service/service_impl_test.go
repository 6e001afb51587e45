package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	"github.com/smallbiznis/levy/internal/audit/repository"
	"github.com/smallbiznis/levy/internal/audit/service"
	"github.com/smallbiznis/levy/internal/clock"
	obscontext "github.com/smallbiznis/levy/internal/observability/context"
	"github.com/smallbiznis/levy/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL
	)`).Error)
	return db
}

func newService(t *testing.T, db *gorm.DB, clk clock.Clock) auditdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return service.NewService(service.Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	})
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))

	ctx := obscontext.WithActor(context.Background(), "taxpayer", "user_42")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "levy-test")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	target := "T1740819600000"
	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionPaymentRecordingFailed, "payment_intent", &target, map[string]any{
		"payer_email": "ada@example.com",
	}))

	var row struct {
		ActorType string
		ActorID   string
		IPAddress string
		Metadata  string
	}
	require.NoError(t, db.Raw(`SELECT actor_type, actor_id, ip_address, metadata FROM audit_logs LIMIT 1`).Scan(&row).Error)
	assert.Equal(t, "user", row.ActorType)
	assert.Equal(t, "user_42", row.ActorID)
	assert.Equal(t, "10.0.0.1", row.IPAddress)
	assert.Contains(t, row.Metadata, `"request_id":"req-1"`)
	assert.NotContains(t, row.Metadata, "ada@example.com")
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc := newService(t, setupTestDB(t), nil)
	err := svc.AuditLog(context.Background(), "system", nil, " ", "payment", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		require.NoError(t, svc.AuditLog(context.Background(), "system", nil, auditdomain.ActionPaymentAnchored, "payment", nil, nil))
	}

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[1].CreatedAt))
}
