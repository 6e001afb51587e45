package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestResolveScope(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	taxpayer := authdomain.Principal{UserID: "1", Role: authdomain.RoleTaxpayer}
	auditor := authdomain.Principal{UserID: "2", Role: authdomain.RoleAuditor}
	officer := authdomain.Principal{UserID: "3", Role: authdomain.RoleOfficer}

	scope, err := svc.ResolveScope(ctx, taxpayer, "")
	require.NoError(t, err)
	assert.Equal(t, ScopeSelf, scope)

	_, err = svc.ResolveScope(ctx, taxpayer, ScopeAll)
	assert.ErrorIs(t, err, ErrForbidden)

	scope, err = svc.ResolveScope(ctx, auditor, "")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope)

	scope, err = svc.ResolveScope(ctx, auditor, ScopeSelf)
	require.NoError(t, err)
	assert.Equal(t, ScopeSelf, scope)

	scope, err = svc.ResolveScope(ctx, officer, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope)
}

func TestAuthorizeRoleInheritance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	officer := authdomain.Principal{UserID: "3", Role: authdomain.RoleOfficer}
	assert.NoError(t, svc.Authorize(ctx, officer, ObjectPayment, ActionPaymentCreate))
	assert.NoError(t, svc.Authorize(ctx, officer, ObjectPaymentIntent, ActionIntentResolve))

	taxpayer := authdomain.Principal{UserID: "1", Role: authdomain.RoleTaxpayer}
	assert.ErrorIs(t, svc.Authorize(ctx, taxpayer, ObjectPaymentIntent, ActionIntentResolve), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, taxpayer, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
}

func TestAuthorizeRejectsAnonymous(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), authdomain.Principal{}, ObjectPayment, ActionPaymentCreate)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope)

	_, err = ParseScope("everyone")
	assert.ErrorIs(t, err, ErrInvalidScope)
}
