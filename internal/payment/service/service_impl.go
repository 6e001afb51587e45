package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/levy/internal/alert/domain"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway"
	gatewaydomain "github.com/smallbiznis/levy/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
	"github.com/smallbiznis/levy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	"github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/period"
	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
	"github.com/smallbiznis/levy/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const targetPayment = "payment"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       domain.Repository
	Revenue    revenuedomain.Service
	Gateways   *gateway.Registry
	AuditSvc   auditdomain.Service
	Ledger     ledgerdomain.Client         `optional:"true"`
	AlertSvc   alertdomain.Service         `optional:"true"`
	Clock      clock.Clock                 `optional:"true"`
	Runtime    *config.RuntimeConfigHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	repo       domain.Repository
	revenue    revenuedomain.Service
	gateways   *gateway.Registry
	auditSvc   auditdomain.Service
	ledger     ledgerdomain.Client
	alertSvc   alertdomain.Service
	clock      clock.Clock
	runtime    *config.RuntimeConfigHolder
	tokens     *tokenSource
	metrics    *obsmetrics.PaymentMetrics
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		repo:       p.Repo,
		revenue:    p.Revenue,
		gateways:   p.Gateways,
		auditSvc:   p.AuditSvc,
		ledger:     p.Ledger,
		alertSvc:   p.AlertSvc,
		clock:      clk,
		runtime:    p.Runtime,
		tokens:     newTokenSource(clk),
		metrics:    obsmetrics.Payments(),
		obsMetrics: p.ObsMetrics,
	}
}

// Submit runs the full checkout: validate the selection, persist an intent,
// wait on the gateway and record the approval exactly once.
func (s *Service) Submit(ctx context.Context, principal authdomain.Principal, req domain.SubmitRequest) (*domain.Payment, error) {
	if !principal.Valid() {
		return nil, domain.ErrInvalidPrincipal
	}
	provider := s.providerOrDefault(req.Provider)

	ctx, span := obstracing.StartSpan(ctx, "payment", "submit",
		attribute.String("payment.provider", provider),
		attribute.String("payment.schedule_id", req.ScheduleID.String()),
	)
	defer span.End()
	s.obsMetrics.RecordPaymentAttempt(ctx, provider)

	schedule, err := s.validate(ctx, req.ScheduleID, req.Amount, req.PeriodReference)
	if err != nil {
		s.countOutcome(ctx, provider, obsmetrics.OutcomeInvalid)
		obstracing.MarkError(span, err)
		return nil, err
	}

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	intent := &domain.PaymentIntent{
		Token:           s.tokens.Next(),
		PayerID:         principal.UserID,
		ScheduleID:      schedule.ID,
		PeriodReference: strings.TrimSpace(req.PeriodReference),
		Amount:          schedule.Amount,
		Currency:        schedule.Currency,
		GatewayProvider: provider,
		Status:          domain.IntentPending,
		Metadata: datatypes.JSONMap{
			"schedule_name": schedule.Name,
			"payer_email":   principal.Email,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertIntent(ctx, s.db, intent); err != nil {
		obstracing.MarkError(span, err)
		return nil, fmt.Errorf("persist payment intent: %w", err)
	}

	log := logger.WithPayment(s.log, intent.Token, "")
	span.SetAttributes(attribute.String("payment.token", intent.Token))
	log.Info("payment intent created",
		zap.String("provider", provider),
		zap.String("payer_id", principal.UserID),
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("period_reference", intent.PeriodReference),
	)

	outcome, err := gw.Initiate(ctx, gatewaydomain.Checkout{
		Reference: intent.Token,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Email:     principal.Email,
		Metadata: map[string]string{
			"payer_id":         principal.UserID,
			"schedule_id":      schedule.ID.String(),
			"period_reference": intent.PeriodReference,
		},
	})
	if err != nil {
		// The intent stays pending so it can be resolved against the provider later.
		log.Warn("checkout did not complete", zap.Error(err))
		s.countOutcome(ctx, provider, obsmetrics.OutcomeGatewayError)
		obstracing.MarkError(span, err)
		return nil, err
	}

	switch outcome.Status {
	case gatewaydomain.OutcomeApproved:
	case gatewaydomain.OutcomeCancelled:
		s.transitionIntent(ctx, log, domain.IntentTransition{
			Token: intent.Token,
			From:  domain.IntentPending,
			To:    domain.IntentCancelled,
		})
		s.gateways.Forget(provider, intent.Token)
		log.Info("checkout cancelled by payer")
		s.countOutcome(ctx, provider, obsmetrics.OutcomeCancelled)
		return nil, domain.ErrGatewayCancelled
	default:
		s.countOutcome(ctx, provider, obsmetrics.OutcomeGatewayError)
		return nil, fmt.Errorf("%w: checkout %s is still pending", gatewaydomain.ErrGatewayUnavailable, intent.Token)
	}

	// Funds are captured from here on, so recording must outlive the payer's request.
	ctx = context.WithoutCancel(ctx)
	gatewayRef := strings.TrimSpace(outcome.GatewayReference)
	if gatewayRef == "" {
		gatewayRef = intent.Token
	}
	s.transitionIntent(ctx, log, domain.IntentTransition{
		Token:            intent.Token,
		From:             domain.IntentPending,
		To:               domain.IntentApproved,
		GatewayReference: &gatewayRef,
	})
	intent.Status = domain.IntentApproved

	payment, err := s.recordIntent(ctx, principal, intent, schedule, gatewayRef)
	if err != nil {
		obstracing.MarkError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID.String()))
	return payment, nil
}

// Record persists a payment the client already completed with the provider,
// keyed by "<provider>:<gateway reference>".
func (s *Service) Record(ctx context.Context, principal authdomain.Principal, req domain.RecordRequest) (*domain.Payment, error) {
	if !principal.Valid() {
		return nil, domain.ErrInvalidPrincipal
	}
	provider := s.providerOrDefault(req.GatewayProvider)
	gatewayRef := strings.TrimSpace(req.GatewayReference)

	ctx, span := obstracing.StartSpan(ctx, "payment", "record",
		attribute.String("payment.provider", provider),
		attribute.String("payment.gateway_reference", gatewayRef),
	)
	defer span.End()
	s.obsMetrics.RecordPaymentAttempt(ctx, provider)

	if gatewayRef == "" {
		s.countOutcome(ctx, provider, obsmetrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: gateway reference is required", domain.ErrInvalidSelection)
	}
	schedule, err := s.validate(ctx, req.ScheduleID, req.Amount, req.PeriodReference)
	if err != nil {
		s.countOutcome(ctx, provider, obsmetrics.OutcomeInvalid)
		obstracing.MarkError(span, err)
		return nil, err
	}
	if !s.gateways.ProviderExists(provider) {
		return nil, gatewaydomain.ErrUnknownProvider
	}

	key := provider + ":" + gatewayRef
	log := logger.WithPayment(s.log, key, "")

	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.PayerID != principal.UserID {
			log.Warn("gateway reference replayed by another payer", zap.String("payer_id", principal.UserID))
			return nil, fmt.Errorf("%w: gateway reference already recorded", domain.ErrGatewayNotApproved)
		}
		s.countOutcome(ctx, provider, obsmetrics.OutcomeDeduplicated)
		return existing, nil
	}

	if s.cfg.Gateway.VerifyOnRecord {
		if err := s.verifyApproval(ctx, provider, gatewayRef, schedule.Amount); err != nil {
			log.Warn("gateway approval could not be confirmed", zap.Error(err))
			obstracing.MarkError(span, err)
			return nil, err
		}
	}

	candidate := s.newPayment(principal.UserID, schedule, req.PeriodReference, gatewayRef, provider, key)
	payment, inserted, err := s.recordOnce(ctx, candidate)
	if errors.Is(err, errReferenceClaimed) {
		log.Warn("gateway reference replayed for another payment", zap.String("payer_id", principal.UserID))
		s.countOutcome(ctx, provider, obsmetrics.OutcomeInvalid)
		obstracing.MarkError(span, err)
		return nil, fmt.Errorf("%w: gateway reference already recorded", domain.ErrGatewayNotApproved)
	}
	if err != nil {
		s.handleRecordingFailure(ctx, principal, nil, candidate, err)
		obstracing.MarkError(span, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrRecordingFailed, err)
	}
	s.afterRecord(ctx, principal, payment, inserted)
	return payment, nil
}

// ResolveIntent re-queries the provider for an intent whose outcome was never
// recorded and settles it: approved checkouts are recorded once, abandoned
// ones are cancelled.
func (s *Service) ResolveIntent(ctx context.Context, principal authdomain.Principal, token string) (*domain.IntentResolution, error) {
	if !principal.Valid() {
		return nil, domain.ErrInvalidPrincipal
	}
	token = strings.TrimSpace(token)

	ctx, span := obstracing.StartSpan(ctx, "payment", "resolve_intent", attribute.String("payment.token", token))
	defer span.End()

	intent, err := s.repo.FindIntent(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrIntentNotFound
	}
	log := logger.WithPayment(s.log, intent.Token, "")

	if intent.Status == domain.IntentRecorded {
		return s.resolution(ctx, intent.Token)
	}
	if !intent.Status.Resolvable() {
		return nil, domain.ErrIntentNotResolvable
	}
	resolveAfter := s.runtime.Get().Gateway.ResolveAfter
	if intent.Status == domain.IntentPending && s.clock.Now().Sub(intent.CreatedAt) < resolveAfter {
		return nil, domain.ErrIntentTooRecent
	}

	verifier, err := s.gateways.Verifier(intent.GatewayProvider)
	if err != nil {
		return nil, err
	}
	outcome, err := verifier.Verify(ctx, intent.Token)
	if err != nil {
		obstracing.MarkError(span, err)
		return nil, err
	}

	switch outcome.Status {
	case gatewaydomain.OutcomeApproved:
		if outcome.Amount > 0 && outcome.Amount != intent.Amount {
			log.Error("gateway amount does not match intent",
				zap.Int64("intent_amount", intent.Amount),
				zap.Int64("gateway_amount", outcome.Amount),
			)
			return nil, fmt.Errorf("%w: gateway amount %d differs from intent amount %d", domain.ErrIntentConflict, outcome.Amount, intent.Amount)
		}
		gatewayRef := strings.TrimSpace(outcome.GatewayReference)
		if gatewayRef == "" {
			gatewayRef = intent.Token
		}
		if intent.Status == domain.IntentPending {
			s.transitionIntent(ctx, log, domain.IntentTransition{
				Token:            intent.Token,
				From:             domain.IntentPending,
				To:               domain.IntentApproved,
				GatewayReference: &gatewayRef,
			})
			intent.Status = domain.IntentApproved
		}
		schedule, err := s.revenue.Get(ctx, intent.ScheduleID)
		if err != nil {
			return nil, err
		}
		if _, err := s.recordIntent(ctx, principal, intent, schedule, gatewayRef); err != nil {
			obstracing.MarkError(span, err)
			return nil, err
		}
	case gatewaydomain.OutcomeCancelled:
		if intent.Status != domain.IntentPending {
			log.Error("gateway reports cancellation for an approved intent", zap.String("status", string(intent.Status)))
			return nil, fmt.Errorf("%w: intent is %s but gateway reports cancelled", domain.ErrIntentConflict, intent.Status)
		}
		s.transitionIntent(ctx, log, domain.IntentTransition{
			Token: intent.Token,
			From:  domain.IntentPending,
			To:    domain.IntentCancelled,
		})
		s.gateways.Forget(intent.GatewayProvider, intent.Token)
	default:
		log.Info("intent still pending at gateway")
		return s.resolution(ctx, intent.Token)
	}

	result, err := s.resolution(ctx, intent.Token)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, principal, auditdomain.ActionIntentResolved, "payment_intent", intent.Token, map[string]any{
		"status":   string(result.Intent.Status),
		"provider": intent.GatewayProvider,
	})
	return result, nil
}

func (s *Service) Get(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, id snowflake.ID) (*domain.Payment, error) {
	if !principal.Valid() {
		return nil, domain.ErrInvalidPrincipal
	}
	if id == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !visible(principal, scope, item) {
		return nil, domain.ErrPaymentNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, principal authdomain.Principal, req domain.ListRequest) (domain.ListResponse, error) {
	if !principal.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidPrincipal
	}

	filter := domain.ListFilter{
		ScheduleID: req.ScheduleID,
		Status:     req.Status,
		Limit:      req.Limit(),
	}
	if req.Scope != authorization.ScopeAll {
		filter.PayerID = principal.UserID
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterID = id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *domain.Payment) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Payments: payments}, nil
}

// AnchorPending anchors up to limit recorded payments that have no ledger
// hash yet. Per-payment failures are joined into the returned error.
func (s *Service) AnchorPending(ctx context.Context, limit int) (domain.AnchorSummary, error) {
	if s.ledger == nil {
		return domain.AnchorSummary{}, nil
	}
	if limit <= 0 {
		limit = s.runtime.Get().Scheduler.AnchorBatchSize
	}

	items, err := s.repo.FindUnanchored(ctx, s.db, limit)
	if err != nil {
		return domain.AnchorSummary{}, err
	}

	summary := domain.AnchorSummary{Claimed: len(items)}
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		anchored, err := s.anchor(ctx, authdomain.System(), item)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("anchor payment %s: %w", item.ID, err))
			continue
		}
		if anchored {
			summary.Anchored++
		}
	}
	return summary, errors.Join(errs...)
}

func (s *Service) validate(ctx context.Context, scheduleID snowflake.ID, amount int64, periodReference string) (*revenuedomain.RevenueSchedule, error) {
	if scheduleID == 0 {
		return nil, fmt.Errorf("%w: schedule is required", domain.ErrInvalidSelection)
	}
	schedule, err := s.revenue.Get(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, revenuedomain.ErrScheduleNotFound) {
			return nil, fmt.Errorf("%w: schedule %s not found", domain.ErrInvalidSelection, scheduleID)
		}
		return nil, err
	}

	ref := strings.TrimSpace(periodReference)
	ok, err := period.Contains(schedule.Recurrence, s.clock.Now(), ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: period %q is not open for %s", domain.ErrInvalidSelection, ref, schedule.Name)
	}
	if amount != schedule.Amount {
		return nil, fmt.Errorf("%w: amount %d does not match schedule amount %d", domain.ErrInvalidSelection, amount, schedule.Amount)
	}
	return schedule, nil
}

func (s *Service) verifyApproval(ctx context.Context, provider, gatewayRef string, amount int64) error {
	verifier, err := s.gateways.Verifier(provider)
	if errors.Is(err, gatewaydomain.ErrVerifyUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	outcome, err := verifier.Verify(ctx, gatewayRef)
	if err != nil {
		return err
	}
	if !outcome.Approved() {
		return fmt.Errorf("%w: gateway reports %s", domain.ErrGatewayNotApproved, outcome.Status)
	}
	if outcome.Amount > 0 && outcome.Amount != amount {
		return fmt.Errorf("%w: gateway amount %d differs from %d", domain.ErrGatewayNotApproved, outcome.Amount, amount)
	}
	return nil
}

func (s *Service) newPayment(payerID string, schedule *revenuedomain.RevenueSchedule, periodReference, gatewayRef, provider, key string) *domain.Payment {
	return &domain.Payment{
		ID:               s.genID.Generate(),
		PayerID:          payerID,
		ScheduleID:       schedule.ID,
		ScheduleName:     schedule.Name,
		Recurrence:       string(schedule.Recurrence),
		Amount:           schedule.Amount,
		Currency:         schedule.Currency,
		PeriodReference:  strings.TrimSpace(periodReference),
		GatewayReference: gatewayRef,
		GatewayProvider:  provider,
		IdempotencyKey:   key,
		Status:           domain.StatusSuccess,
		CreatedAt:        s.clock.Now(),
	}
}

// recordOnce inserts candidate or, when the key is already taken, returns the
// row that won. inserted reports which happened.
func (s *Service) recordOnce(ctx context.Context, candidate *domain.Payment) (*domain.Payment, bool, error) {
	if !domain.Status("").CanTransition(candidate.Status) {
		return nil, false, domain.ErrInvalidTransition
	}
	inserted, err := s.repo.InsertPayment(ctx, s.db, candidate)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return candidate, true, nil
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, candidate.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		existing, err = s.repo.FindByGatewayReference(ctx, s.db, candidate.GatewayProvider, candidate.GatewayReference)
		if err != nil {
			return nil, false, err
		}
	}
	if existing == nil {
		return nil, false, errors.New("payment insert skipped but no conflicting row found")
	}
	if !sameObligation(existing, candidate) {
		return nil, false, errReferenceClaimed
	}
	return existing, false, nil
}

// errReferenceClaimed reports a gateway reference already recorded for a
// different payer, schedule, period or amount.
var errReferenceClaimed = errors.New("gateway reference recorded for another payment")

func sameObligation(existing, candidate *domain.Payment) bool {
	return existing.PayerID == candidate.PayerID &&
		existing.ScheduleID == candidate.ScheduleID &&
		existing.PeriodReference == candidate.PeriodReference &&
		existing.Amount == candidate.Amount
}

func (s *Service) recordIntent(ctx context.Context, principal authdomain.Principal, intent *domain.PaymentIntent, schedule *revenuedomain.RevenueSchedule, gatewayRef string) (*domain.Payment, error) {
	candidate := s.newPayment(intent.PayerID, schedule, intent.PeriodReference, gatewayRef, intent.GatewayProvider, intent.Token)
	candidate.Amount = intent.Amount
	candidate.Currency = intent.Currency

	payment, inserted, err := s.recordOnce(ctx, candidate)
	if err != nil {
		s.handleRecordingFailure(ctx, principal, intent, candidate, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrRecordingFailed, err)
	}

	log := logger.WithPayment(s.log, intent.Token, payment.ID.String())
	paymentID := payment.ID
	for _, from := range []domain.IntentStatus{domain.IntentApproved, domain.IntentRecordingFailed} {
		if s.transitionIntent(ctx, log, domain.IntentTransition{
			Token:     intent.Token,
			From:      from,
			To:        domain.IntentRecorded,
			PaymentID: &paymentID,
		}) {
			break
		}
	}
	intent.Status = domain.IntentRecorded
	s.gateways.Forget(intent.GatewayProvider, intent.Token)

	s.afterRecord(ctx, principal, payment, inserted)
	return payment, nil
}

func (s *Service) afterRecord(ctx context.Context, principal authdomain.Principal, payment *domain.Payment, inserted bool) {
	log := logger.WithPayment(s.log, payment.IdempotencyKey, payment.ID.String())
	if !inserted {
		log.Info("payment already recorded for idempotency key")
		s.countOutcome(ctx, payment.GatewayProvider, obsmetrics.OutcomeDeduplicated)
		return
	}

	log.Info("payment recorded",
		zap.String("payer_id", payment.PayerID),
		zap.String("gateway_reference", payment.GatewayReference),
		zap.Int64("amount", payment.Amount),
	)
	s.countOutcome(ctx, payment.GatewayProvider, obsmetrics.OutcomeRecorded)
	s.audit(ctx, principal, auditdomain.ActionPaymentRecorded, targetPayment, payment.ID.String(), map[string]any{
		"payer_id":          payment.PayerID,
		"schedule_id":       payment.ScheduleID.String(),
		"period_reference":  payment.PeriodReference,
		"amount":            payment.Amount,
		"gateway_provider":  payment.GatewayProvider,
		"gateway_reference": payment.GatewayReference,
	})

	s.detectDuplicatePeriod(ctx, principal, payment)

	if _, err := s.anchor(ctx, principal, payment); err != nil {
		log.Warn("ledger anchoring deferred to sweep", zap.Error(err))
	}
}

// detectDuplicatePeriod flags, but never rejects, a second payment for the
// same schedule, period and payer.
func (s *Service) detectDuplicatePeriod(ctx context.Context, principal authdomain.Principal, payment *domain.Payment) {
	count, err := s.repo.CountForPeriod(ctx, s.db, payment.ScheduleID, payment.PeriodReference, payment.PayerID, payment.ID)
	if err != nil {
		s.log.Warn("duplicate period check failed", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		return
	}
	if count == 0 {
		return
	}

	s.log.Warn("payment recorded for an already paid period",
		zap.String("payment_id", payment.ID.String()),
		zap.String("payer_id", payment.PayerID),
		zap.String("schedule_id", payment.ScheduleID.String()),
		zap.String("period_reference", payment.PeriodReference),
		zap.Int64("previous_payments", count),
	)
	s.metrics.IncDuplicatePeriod()
	s.audit(ctx, principal, auditdomain.ActionPaymentDuplicatePeriod, targetPayment, payment.ID.String(), map[string]any{
		"schedule_id":       payment.ScheduleID.String(),
		"period_reference":  payment.PeriodReference,
		"previous_payments": count,
	})
}

func (s *Service) anchor(ctx context.Context, principal authdomain.Principal, payment *domain.Payment) (bool, error) {
	if s.ledger == nil || payment.Anchored() {
		return false, nil
	}

	txHash, err := s.ledger.Anchor(ctx, ledgerdomain.AnchorRequest{
		PaymentID:       payment.ID.String(),
		RevenueType:     payment.ScheduleName,
		Amount:          decimal.NewFromInt(payment.Amount),
		Period:          payment.Recurrence,
		PeriodReference: payment.PeriodReference,
		RecordedBy:      payment.PayerID,
	})
	if err != nil {
		return false, err
	}

	anchoredAt := s.clock.Now()
	updated, err := s.repo.SetLedgerHash(ctx, s.db, payment.ID, txHash, anchoredAt)
	if err != nil {
		return false, fmt.Errorf("store ledger hash: %w", err)
	}
	if !updated {
		return false, nil
	}
	payment.LedgerTxHash = &txHash
	payment.AnchoredAt = &anchoredAt

	s.audit(ctx, principal, auditdomain.ActionPaymentAnchored, targetPayment, payment.ID.String(), map[string]any{
		"ledger_tx_hash": txHash,
	})
	return true, nil
}

// handleRecordingFailure covers the window where the gateway captured funds
// but the payment row could not be written. Nothing here is retried; the
// intent, log line, audit entry and alert are the trail for manual resolution.
func (s *Service) handleRecordingFailure(ctx context.Context, principal authdomain.Principal, intent *domain.PaymentIntent, candidate *domain.Payment, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithPayment(s.log, candidate.IdempotencyKey, "")

	if intent != nil {
		reason := cause.Error()
		s.transitionIntent(ctx, log, domain.IntentTransition{
			Token:         intent.Token,
			From:          domain.IntentApproved,
			To:            domain.IntentRecordingFailed,
			FailureReason: &reason,
		})
		intent.Status = domain.IntentRecordingFailed
	}

	log.Error("gateway approved payment could not be recorded",
		zap.String("gateway_provider", candidate.GatewayProvider),
		zap.String("gateway_reference", candidate.GatewayReference),
		zap.String("payer_id", candidate.PayerID),
		zap.String("period_reference", candidate.PeriodReference),
		zap.Int64("amount", candidate.Amount),
		zap.Error(cause),
	)
	s.metrics.IncRecordingFailure(candidate.GatewayProvider)
	s.countOutcome(ctx, candidate.GatewayProvider, obsmetrics.OutcomeRecordingFailed)

	s.audit(ctx, principal, auditdomain.ActionPaymentRecordingFailed, "payment_intent", candidate.IdempotencyKey, map[string]any{
		"gateway_provider":  candidate.GatewayProvider,
		"gateway_reference": candidate.GatewayReference,
		"payer_id":          candidate.PayerID,
		"schedule_id":       candidate.ScheduleID.String(),
		"period_reference":  candidate.PeriodReference,
		"amount":            candidate.Amount,
		"cause":             cause.Error(),
	})

	if s.alertSvc == nil {
		return
	}
	if err := s.alertSvc.NotifyRecordingFailed(ctx, alertdomain.RecordingFailure{
		IntentToken:      candidate.IdempotencyKey,
		GatewayProvider:  candidate.GatewayProvider,
		GatewayReference: candidate.GatewayReference,
		PayerID:          candidate.PayerID,
		ScheduleID:       candidate.ScheduleID.String(),
		PeriodReference:  candidate.PeriodReference,
		Amount:           candidate.Amount,
		Currency:         candidate.Currency,
		Cause:            cause.Error(),
		OccurredAt:       s.clock.Now(),
	}); err != nil {
		log.Warn("recording failure alert not delivered", zap.Error(err))
	}
}

// transitionIntent reports whether the guarded update applied. A lost race
// is logged, not returned, because the stored row already moved on.
func (s *Service) transitionIntent(ctx context.Context, log *zap.Logger, transition domain.IntentTransition) bool {
	if !transition.From.CanTransition(transition.To) {
		log.Error("invalid intent transition", zap.String("from", string(transition.From)), zap.String("to", string(transition.To)))
		return false
	}
	transition.UpdatedAt = s.clock.Now()
	applied, err := s.repo.TransitionIntent(ctx, s.db, transition)
	if err != nil {
		log.Warn("intent transition failed",
			zap.String("from", string(transition.From)),
			zap.String("to", string(transition.To)),
			zap.Error(err),
		)
		return false
	}
	if !applied {
		log.Debug("intent transition skipped", zap.String("from", string(transition.From)), zap.String("to", string(transition.To)))
	}
	return applied
}

func (s *Service) resolution(ctx context.Context, token string) (*domain.IntentResolution, error) {
	intent, err := s.repo.FindIntent(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrIntentNotFound
	}
	result := &domain.IntentResolution{Intent: *intent}
	if intent.PaymentID != nil {
		payment, err := s.repo.FindByID(ctx, s.db, *intent.PaymentID)
		if err != nil {
			return nil, err
		}
		result.Payment = payment
	}
	return result, nil
}

func (s *Service) audit(ctx context.Context, principal authdomain.Principal, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeUser)
	if principal.IsSystem() {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	actorID := principal.UserID
	if err := s.auditSvc.AuditLog(ctx, actorType, &actorID, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) countOutcome(ctx context.Context, provider, outcome string) {
	s.metrics.IncOutcome(provider, outcome)
	s.obsMetrics.RecordPaymentOutcome(ctx, provider, outcome)
}

func (s *Service) providerOrDefault(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = strings.ToLower(strings.TrimSpace(s.cfg.Gateway.DefaultProvider))
	}
	return provider
}

func visible(principal authdomain.Principal, scope authorization.Scope, payment *domain.Payment) bool {
	return scope == authorization.ScopeAll || payment.PayerID == principal.UserID
}
