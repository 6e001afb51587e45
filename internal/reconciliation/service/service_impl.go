package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/levy/internal/alert/domain"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/clock"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/reconciliation/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Payments   paymentdomain.Service
	Ledger     ledgerdomain.Client
	AuditSvc   auditdomain.Service `optional:"true"`
	AlertSvc   alertdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service compares a recorded payment with its ledger record. It only reads;
// divergence is reported through metrics, audit and alerts.
type Service struct {
	log        *zap.Logger
	payments   paymentdomain.Service
	ledger     ledgerdomain.Client
	auditSvc   auditdomain.Service
	alertSvc   alertdomain.Service
	clock      clock.Clock
	metrics    *obsmetrics.PaymentMetrics
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:        p.Log.Named("reconciliation.service"),
		payments:   p.Payments,
		ledger:     p.Ledger,
		auditSvc:   p.AuditSvc,
		alertSvc:   p.AlertSvc,
		clock:      clk,
		metrics:    obsmetrics.Payments(),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*domain.Result, error) {
	ctx, span := obstracing.StartSpan(ctx, "reconciliation", "reconcile", attribute.String("payment.id", paymentID.String()))
	defer span.End()

	payment, err := s.payments.Get(ctx, principal, scope, paymentID)
	if err != nil {
		obstracing.MarkError(span, err)
		return nil, err
	}

	result := s.reconcile(ctx, payment)
	span.SetAttributes(attribute.String("reconciliation.status", string(result.Status)))
	s.metrics.IncVerdict(string(result.Status))
	s.obsMetrics.RecordReconciliation(ctx, string(result.Status))

	if result.Status == domain.StatusDiverged {
		s.reportDivergence(ctx, principal, result)
	}
	return result, nil
}

// ReconcileBatch computes one verdict per requested id. Each entry is keyed
// by its own payment id; a failure on one id never leaks into another.
func (s *Service) ReconcileBatch(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentIDs []snowflake.ID) (map[string]domain.BatchItem, error) {
	if len(paymentIDs) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(paymentIDs) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}

	results := make(map[string]domain.BatchItem, len(paymentIDs))
	for _, id := range paymentIDs {
		key := id.String()
		if _, seen := results[key]; seen {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.Reconcile(ctx, principal, scope, id)
		if err != nil {
			if !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
				s.log.Warn("batch reconciliation failed", zap.String("payment_id", key), zap.Error(err))
			}
			results[key] = domain.BatchItem{Error: errorCode(err)}
			continue
		}
		results[key] = domain.BatchItem{Result: result}
	}
	return results, nil
}

func (s *Service) reconcile(ctx context.Context, payment *paymentdomain.Payment) *domain.Result {
	db := toDatabaseRecord(payment)
	result := &domain.Result{
		PaymentID:      db.ID,
		DatabaseRecord: &db,
		Diffs:          []domain.Diff{},
	}

	if strings.TrimSpace(db.LedgerTxHash) == "" {
		result.Status = domain.StatusUnavailable
		result.Message = domain.MessageNotAnchored
		return result
	}

	record, err := s.ledger.GetLedgerRecord(ctx, db.LedgerTxHash)
	if err != nil {
		// Any ledger failure means "not provable yet", never "diverged".
		s.log.Warn("ledger lookup failed",
			zap.String("payment_id", db.ID),
			zap.String("tx_hash", db.LedgerTxHash),
			zap.Error(err),
		)
		result.Status = domain.StatusUnavailable
		result.Message = domain.MessageUnavailable
		return result
	}

	result.LedgerRecord = record
	result.Diffs = domain.Compare(db, record)
	result.Status = domain.Verdict(record, result.Diffs)
	switch {
	case result.Status == domain.StatusReconciled:
		result.Message = domain.MessageReconciled
	case record == nil:
		result.Message = domain.MessageMissing
	default:
		result.Message = domain.MessageDiverged
	}
	return result
}

func (s *Service) reportDivergence(ctx context.Context, principal authdomain.Principal, result *domain.Result) {
	fields := make([]string, 0, len(result.Diffs))
	for _, diff := range result.Diffs {
		fields = append(fields, diff.Field)
	}
	txHash := result.DatabaseRecord.LedgerTxHash

	s.log.Warn("payment diverges from ledger",
		zap.String("payment_id", result.PaymentID),
		zap.String("tx_hash", txHash),
		zap.Strings("fields", fields),
	)

	if s.auditSvc != nil {
		actorType := auditdomain.ActorTypeUser
		if principal.IsSystem() {
			actorType = auditdomain.ActorTypeSystem
		}
		actorID := principal.UserID
		targetID := result.PaymentID
		if err := s.auditSvc.AuditLog(ctx, string(actorType), &actorID, auditdomain.ActionReconciliationDiverged, "payment", &targetID, map[string]any{
			"tx_hash": txHash,
			"fields":  fields,
		}); err != nil {
			s.log.Warn("audit log write failed", zap.Error(err))
		}
	}

	if s.alertSvc != nil {
		if err := s.alertSvc.NotifyDivergence(ctx, alertdomain.Divergence{
			PaymentID:    result.PaymentID,
			LedgerTxHash: txHash,
			Fields:       fields,
			OccurredAt:   s.clock.Now(),
		}); err != nil {
			s.log.Warn("divergence alert not delivered", zap.Error(err))
		}
	}
}

func toDatabaseRecord(payment *paymentdomain.Payment) domain.DatabaseRecord {
	record := domain.DatabaseRecord{
		ID:              payment.ID.String(),
		PayerID:         payment.PayerID,
		RevenueType:     payment.ScheduleName,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Period:          payment.Recurrence,
		PeriodReference: payment.PeriodReference,
		CreatedAt:       payment.CreatedAt,
	}
	if payment.LedgerTxHash != nil {
		record.LedgerTxHash = *payment.LedgerTxHash
	}
	return record
}

// errorCode reduces err to its sentinel text for batch responses.
func errorCode(err error) string {
	for _, sentinel := range []error{
		paymentdomain.ErrPaymentNotFound,
		paymentdomain.ErrInvalidPrincipal,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}
