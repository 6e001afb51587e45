package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayment        = "payment"
	ObjectPaymentIntent  = "payment_intent"
	ObjectReconciliation = "reconciliation"
	ObjectRevenue        = "revenue"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionPaymentCreate  = "payment.create"
	ActionPaymentViewOwn = "payment.view_own"
	ActionPaymentViewAll = "payment.view_all"

	ActionIntentResolve = "payment_intent.resolve"

	ActionReconciliationRun = "reconciliation.run"

	ActionRevenueView = "revenue.view"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error {
	allowed, err := s.Can(ctx, principal, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, principal, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Can(ctx context.Context, principal authdomain.Principal, object string, action string) (bool, error) {
	if !principal.Valid() {
		return false, ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return false, ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, ErrInvalidAction
	}
	return s.enforcer.Enforce(roleSubject(principal.Role), object, action)
}

func (s *ServiceImpl) ResolveScope(ctx context.Context, principal authdomain.Principal, requested Scope) (Scope, error) {
	canAll, err := s.Can(ctx, principal, ObjectPayment, ActionPaymentViewAll)
	if err != nil {
		return "", err
	}

	switch requested {
	case ScopeAll:
		if !canAll {
			s.auditDenied(ctx, principal, ObjectPayment, ActionPaymentViewAll)
			return "", ErrForbidden
		}
		return ScopeAll, nil
	case ScopeSelf:
		if err := s.Authorize(ctx, principal, ObjectPayment, ActionPaymentViewOwn); err != nil {
			return "", err
		}
		return ScopeSelf, nil
	case "":
		if canAll {
			return ScopeAll, nil
		}
		if err := s.Authorize(ctx, principal, ObjectPayment, ActionPaymentViewOwn); err != nil {
			return "", err
		}
		return ScopeSelf, nil
	default:
		return "", ErrInvalidScope
	}
}

func (s *ServiceImpl) auditDenied(ctx context.Context, principal authdomain.Principal, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("actor_id", principal.UserID),
		zap.String("role", string(principal.Role)),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	actorID := principal.UserID
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, auditdomain.ActionAuthorizationDenied, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"role":    string(principal.Role),
		"subject": principal.Subject(),
	})
}

func roleSubject(role authdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Taxpayer permissions
		{"role:taxpayer", ObjectRevenue, ActionRevenueView},
		{"role:taxpayer", ObjectPayment, ActionPaymentCreate},
		{"role:taxpayer", ObjectPayment, ActionPaymentViewOwn},
		{"role:taxpayer", ObjectReconciliation, ActionReconciliationRun},

		// Auditor permissions
		{"role:auditor", ObjectRevenue, ActionRevenueView},
		{"role:auditor", ObjectPayment, ActionPaymentViewOwn},
		{"role:auditor", ObjectPayment, ActionPaymentViewAll},
		{"role:auditor", ObjectPaymentIntent, ActionIntentResolve},
		{"role:auditor", ObjectReconciliation, ActionReconciliationRun},
		{"role:auditor", ObjectAuditLog, ActionAuditLogView},

		// Officer permissions
		{"role:officer", ObjectPayment, ActionPaymentViewAll},
		{"role:officer", ObjectPaymentIntent, ActionIntentResolve},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Officers collect payments at the counter, so they inherit taxpayer rights.
	if _, err := enforcer.AddGroupingPolicy("role:officer", "role:taxpayer"); err != nil {
		return err
	}
	return nil
}
