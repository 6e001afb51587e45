package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	alertdomain "github.com/smallbiznis/levy/internal/alert/domain"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway"
	gatewaydomain "github.com/smallbiznis/levy/internal/gateway/domain"
	"github.com/smallbiznis/levy/internal/gateway/interactive"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
	"github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/payment/repository"
	"github.com/smallbiznis/levy/internal/payment/service"
	revenuerepo "github.com/smallbiznis/levy/internal/revenue/repository"
	revenueservice "github.com/smallbiznis/levy/internal/revenue/service"
	"github.com/smallbiznis/levy/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	monthlyScheduleID = snowflake.ID(100)
	yearlyScheduleID  = snowflake.ID(200)
	levyAmount        = int64(5000)
)

var (
	taxpayer = authdomain.Principal{UserID: "user-1", Email: "ada@example.com", Role: authdomain.RoleTaxpayer}
	other    = authdomain.Principal{UserID: "user-2", Email: "bola@example.com", Role: authdomain.RoleTaxpayer}
	officer  = authdomain.Principal{UserID: "officer-1", Role: authdomain.RoleOfficer}
)

type fakeGateway struct {
	mu        sync.Mutex
	provider  string
	outcome   gatewaydomain.Outcome
	err       error
	verify    gatewaydomain.Outcome
	verifyErr error
	checkouts []gatewaydomain.Checkout
	// initiated runs once the checkout is accepted, before the outcome returns.
	initiated func()
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) Initiate(ctx context.Context, checkout gatewaydomain.Checkout) (gatewaydomain.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, checkout)
	if g.initiated != nil {
		g.initiated()
	}
	return g.outcome, g.err
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (gatewaydomain.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verify, g.verifyErr
}

type fakeLedger struct {
	err     error
	anchors []ledgerdomain.AnchorRequest
}

func (l *fakeLedger) GetLedgerRecord(ctx context.Context, txHash string) (*ledgerdomain.LedgerRecord, error) {
	return nil, nil
}

func (l *fakeLedger) Anchor(ctx context.Context, req ledgerdomain.AnchorRequest) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	l.anchors = append(l.anchors, req)
	return "0xhash-" + req.PaymentID, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *recordingAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, item := range a.actions {
		if item == action {
			return true
		}
	}
	return false
}

type recordingAlert struct {
	failures    []alertdomain.RecordingFailure
	divergences []alertdomain.Divergence
}

func (a *recordingAlert) NotifyRecordingFailed(ctx context.Context, failure alertdomain.RecordingFailure) error {
	a.failures = append(a.failures, failure)
	return nil
}

func (a *recordingAlert) NotifyDivergence(ctx context.Context, divergence alertdomain.Divergence) error {
	a.divergences = append(a.divergences, divergence)
	return nil
}

// flakyRepo fails payment inserts while failInsert is set.
type flakyRepo struct {
	domain.Repository
	failInsert bool
}

func (r *flakyRepo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	if r.failInsert {
		return false, errors.New("connection reset by peer")
	}
	return r.Repository.InsertPayment(ctx, db, payment)
}

type harness struct {
	db      *gorm.DB
	svc     domain.Service
	repo    *flakyRepo
	gateway *fakeGateway
	hub     *interactive.Hub
	ledger  *fakeLedger
	audit   *recordingAudit
	alerts  *recordingAlert
	clock   *clock.FakeClock
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE revenue_schedules (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			amount BIGINT NOT NULL,
			recurrence TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'NGN',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			payer_id TEXT NOT NULL,
			schedule_id BIGINT NOT NULL,
			schedule_name TEXT NOT NULL,
			recurrence TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			period_reference TEXT NOT NULL,
			gateway_reference TEXT NOT NULL,
			gateway_provider TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			ledger_tx_hash TEXT,
			anchored_at TIMESTAMP,
			UNIQUE (gateway_provider, gateway_reference)
		)`,
		`CREATE TABLE payment_intents (
			token TEXT PRIMARY KEY,
			payer_id TEXT NOT NULL,
			schedule_id BIGINT NOT NULL,
			period_reference TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			gateway_provider TEXT NOT NULL,
			status TEXT NOT NULL,
			gateway_reference TEXT,
			payment_id BIGINT,
			failure_reason TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(
		`INSERT INTO revenue_schedules (id, name, description, amount, recurrence, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?, ?)`,
		monthlyScheduleID, "Market Levy", "monthly market stall levy", levyAmount, "monthly", "NGN", now, now,
		yearlyScheduleID, "Tenement Rate", "", int64(250000), "yearly", "NGN", now, now,
	).Error)
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{
		provider: "paystack",
		outcome:  gatewaydomain.Outcome{Status: gatewaydomain.OutcomeApproved, GatewayReference: "ref-approved", Amount: levyAmount},
		verify:   gatewaydomain.Outcome{Status: gatewaydomain.OutcomeApproved, Amount: levyAmount},
	}
	hub := interactive.NewHub()
	h := &harness{
		db:      db,
		repo:    &flakyRepo{Repository: repository.Provide()},
		gateway: gw,
		hub:     hub,
		ledger:  &fakeLedger{},
		audit:   &recordingAudit{},
		alerts:  &recordingAlert{},
		clock:   clk,
	}

	revenueSvc := revenueservice.NewService(revenueservice.Params{DB: db, Log: log, Repo: revenuerepo.Provide()})
	h.svc = service.NewService(service.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Cfg: config.Config{Gateway: config.GatewayConfig{
			DefaultProvider: "paystack",
			VerifyOnRecord:  true,
		}},
		Repo:     h.repo,
		Revenue:  revenueSvc,
		Gateways: gateway.NewRegistry(gw, hub),
		AuditSvc: h.audit,
		Ledger:   h.ledger,
		AlertSvc: h.alerts,
		Clock:    clk,
	})
	return h
}

func (h *harness) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Raw("SELECT COUNT(1) FROM "+table).Scan(&n).Error)
	return n
}

func (h *harness) intent(t *testing.T, token string) *domain.PaymentIntent {
	t.Helper()
	intent, err := repository.Provide().FindIntent(context.Background(), h.db, token)
	require.NoError(t, err)
	require.NotNil(t, intent)
	return intent
}

func monthlySubmit() domain.SubmitRequest {
	return domain.SubmitRequest{ScheduleID: monthlyScheduleID, Amount: levyAmount, PeriodReference: "2024-03", Provider: "paystack"}
}

func TestSubmitRecordsApprovedPayment(t *testing.T) {
	h := newHarness(t)

	payment, err := h.svc.Submit(context.Background(), taxpayer, monthlySubmit())
	require.NoError(t, err)
	require.NotNil(t, payment)

	assert.Equal(t, domain.StatusSuccess, payment.Status)
	assert.Equal(t, "user-1", payment.PayerID)
	assert.Equal(t, "Market Levy", payment.ScheduleName)
	assert.Equal(t, "monthly", payment.Recurrence)
	assert.Equal(t, "ref-approved", payment.GatewayReference)
	assert.Equal(t, "T1710496800000", payment.IdempotencyKey)

	require.Len(t, h.gateway.checkouts, 1)
	checkout := h.gateway.checkouts[0]
	assert.Equal(t, payment.IdempotencyKey, checkout.Reference)
	assert.Equal(t, levyAmount, checkout.Amount)
	assert.Equal(t, "ada@example.com", checkout.Email)

	intent := h.intent(t, payment.IdempotencyKey)
	assert.Equal(t, domain.IntentRecorded, intent.Status)
	require.NotNil(t, intent.PaymentID)
	assert.Equal(t, payment.ID, *intent.PaymentID)

	require.Len(t, h.ledger.anchors, 1)
	assert.True(t, payment.Anchored())
	assert.True(t, h.audit.has(auditdomain.ActionPaymentRecorded))
	assert.True(t, h.audit.has(auditdomain.ActionPaymentAnchored))
	assert.Equal(t, int64(1), h.count(t, "payments"))
}

func TestSubmitRejectsInvalidSelectionWithoutWrites(t *testing.T) {
	cases := map[string]domain.SubmitRequest{
		"amount mismatch":  {ScheduleID: monthlyScheduleID, Amount: levyAmount + 1, PeriodReference: "2024-03"},
		"period not open":  {ScheduleID: monthlyScheduleID, Amount: levyAmount, PeriodReference: "2023-12"},
		"malformed period": {ScheduleID: monthlyScheduleID, Amount: levyAmount, PeriodReference: "March"},
		"yearly too old":   {ScheduleID: yearlyScheduleID, Amount: 250000, PeriodReference: "2019"},
		"unknown schedule": {ScheduleID: snowflake.ID(999), Amount: levyAmount, PeriodReference: "2024-03"},
		"missing schedule": {Amount: levyAmount, PeriodReference: "2024-03"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Submit(context.Background(), taxpayer, req)
			require.ErrorIs(t, err, domain.ErrInvalidSelection)
			assert.Empty(t, h.gateway.checkouts)
			assert.Zero(t, h.count(t, "payments"))
			assert.Zero(t, h.count(t, "payment_intents"))
		})
	}
}

func TestSubmitAcceptsOldestYearlyPeriod(t *testing.T) {
	h := newHarness(t)
	payment, err := h.svc.Submit(context.Background(), taxpayer, domain.SubmitRequest{
		ScheduleID:      yearlyScheduleID,
		Amount:          250000,
		PeriodReference: "2020",
	})
	require.NoError(t, err)
	assert.Equal(t, "2020", payment.PeriodReference)
}

func TestSubmitCancelledLeavesNoPayment(t *testing.T) {
	h := newHarness(t)
	h.gateway.outcome = gatewaydomain.Outcome{Status: gatewaydomain.OutcomeCancelled}

	payment, err := h.svc.Submit(context.Background(), taxpayer, monthlySubmit())
	require.ErrorIs(t, err, domain.ErrGatewayCancelled)
	assert.Nil(t, payment)
	assert.Zero(t, h.count(t, "payments"))

	intent := h.intent(t, h.gateway.checkouts[0].Reference)
	assert.Equal(t, domain.IntentCancelled, intent.Status)
}

func TestSubmitThroughInteractiveCheckout(t *testing.T) {
	h := newHarness(t)
	req := monthlySubmit()
	req.Provider = interactive.Provider

	go func() {
		for len(h.hub.Pending()) == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = h.hub.Approve(h.hub.Pending()[0].Reference, "popup-ref-1")
	}()

	payment, err := h.svc.Submit(context.Background(), taxpayer, req)
	require.NoError(t, err)
	assert.Equal(t, "popup-ref-1", payment.GatewayReference)
	assert.Equal(t, interactive.Provider, payment.GatewayProvider)

	// The recorded intent no longer pins its outcome in the hub.
	outcome, err := h.hub.Verify(context.Background(), payment.IdempotencyKey)
	require.NoError(t, err)
	assert.NotEqual(t, gatewaydomain.OutcomeApproved, outcome.Status)
}

func TestSubmitAbortedContextKeepsIntentPending(t *testing.T) {
	h := newHarness(t)
	req := monthlySubmit()
	req.Provider = interactive.Provider

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(h.hub.Pending()) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := h.svc.Submit(ctx, taxpayer, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.count(t, "payments"))

	var status string
	require.NoError(t, h.db.Raw("SELECT status FROM payment_intents LIMIT 1").Scan(&status).Error)
	assert.Equal(t, string(domain.IntentPending), status)
}

func TestSubmitRecordsEvenWhenPayerDisconnectsAfterApproval(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gateway.initiated = cancel

	payment, err := h.svc.Submit(ctx, taxpayer, monthlySubmit())
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, int64(1), h.count(t, "payments"))

	intent := h.intent(t, payment.IdempotencyKey)
	assert.Equal(t, domain.IntentRecorded, intent.Status)
	assert.Empty(t, h.alerts.failures)
}

func TestSubmitUnknownProvider(t *testing.T) {
	h := newHarness(t)
	req := monthlySubmit()
	req.Provider = "flutterwave"

	_, err := h.svc.Submit(context.Background(), taxpayer, req)
	require.ErrorIs(t, err, gatewaydomain.ErrUnknownProvider)
	assert.Zero(t, h.count(t, "payment_intents"))
}

func TestSubmitRequiresPrincipal(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Submit(context.Background(), authdomain.Principal{}, monthlySubmit())
	require.ErrorIs(t, err, domain.ErrInvalidPrincipal)
}

func TestRecordingFailureIsAlertedAndResolvable(t *testing.T) {
	h := newHarness(t)
	h.repo.failInsert = true

	_, err := h.svc.Submit(context.Background(), taxpayer, monthlySubmit())
	require.ErrorIs(t, err, domain.ErrRecordingFailed)
	assert.Zero(t, h.count(t, "payments"))

	token := h.gateway.checkouts[0].Reference
	intent := h.intent(t, token)
	assert.Equal(t, domain.IntentRecordingFailed, intent.Status)
	require.NotNil(t, intent.FailureReason)
	assert.Contains(t, *intent.FailureReason, "connection reset")

	require.Len(t, h.alerts.failures, 1)
	assert.Equal(t, token, h.alerts.failures[0].IntentToken)
	assert.Equal(t, "ref-approved", h.alerts.failures[0].GatewayReference)
	assert.True(t, h.audit.has(auditdomain.ActionPaymentRecordingFailed))

	h.repo.failInsert = false
	h.gateway.verify = gatewaydomain.Outcome{Status: gatewaydomain.OutcomeApproved, GatewayReference: "ref-approved", Amount: levyAmount}

	resolution, err := h.svc.ResolveIntent(context.Background(), officer, token)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentRecorded, resolution.Intent.Status)
	require.NotNil(t, resolution.Payment)
	assert.Equal(t, "user-1", resolution.Payment.PayerID)
	assert.Equal(t, token, resolution.Payment.IdempotencyKey)
	assert.True(t, h.audit.has(auditdomain.ActionIntentResolved))

	again, err := h.svc.ResolveIntent(context.Background(), officer, token)
	require.NoError(t, err)
	assert.Equal(t, resolution.Payment.ID, again.Payment.ID)
	assert.Equal(t, int64(1), h.count(t, "payments"))
}

func TestResolveIntentWaitsThenCancels(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = gatewaydomain.ErrGatewayUnavailable

	_, err := h.svc.Submit(context.Background(), taxpayer, monthlySubmit())
	require.ErrorIs(t, err, gatewaydomain.ErrGatewayUnavailable)
	token := h.gateway.checkouts[0].Reference
	assert.Equal(t, domain.IntentPending, h.intent(t, token).Status)

	_, err = h.svc.ResolveIntent(context.Background(), officer, token)
	require.ErrorIs(t, err, domain.ErrIntentTooRecent)

	h.clock.Advance(2 * time.Minute)
	h.gateway.verify = gatewaydomain.Outcome{Status: gatewaydomain.OutcomePending}
	resolution, err := h.svc.ResolveIntent(context.Background(), officer, token)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPending, resolution.Intent.Status)

	h.gateway.verify = gatewaydomain.Outcome{Status: gatewaydomain.OutcomeCancelled}
	resolution, err = h.svc.ResolveIntent(context.Background(), officer, token)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentCancelled, resolution.Intent.Status)
	assert.Nil(t, resolution.Payment)

	_, err = h.svc.ResolveIntent(context.Background(), officer, token)
	require.ErrorIs(t, err, domain.ErrIntentNotResolvable)

	_, err = h.svc.ResolveIntent(context.Background(), officer, "T0")
	require.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func recordRequest(ref string) domain.RecordRequest {
	return domain.RecordRequest{
		ScheduleID:       monthlyScheduleID,
		Amount:           levyAmount,
		PeriodReference:  "2024-03",
		GatewayReference: ref,
		GatewayProvider:  "paystack",
	}
}

func TestRecordIsIdempotentPerGatewayReference(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_1"))
	require.NoError(t, err)
	second, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "paystack:ps_ref_1", first.IdempotencyKey)
	assert.Equal(t, int64(1), h.count(t, "payments"))

	_, err = h.svc.Record(context.Background(), other, recordRequest("ps_ref_1"))
	require.ErrorIs(t, err, domain.ErrGatewayNotApproved)
}

func TestRecordRejectsReferenceClaimedThroughCheckout(t *testing.T) {
	h := newHarness(t)
	h.gateway.outcome = gatewaydomain.Outcome{Status: gatewaydomain.OutcomeApproved, GatewayReference: "ps_ref_A", Amount: levyAmount}

	submitted, err := h.svc.Submit(context.Background(), taxpayer, monthlySubmit())
	require.NoError(t, err)

	payment, err := h.svc.Record(context.Background(), other, recordRequest("ps_ref_A"))
	require.ErrorIs(t, err, domain.ErrGatewayNotApproved)
	assert.Nil(t, payment)
	assert.Empty(t, h.alerts.failures)
	assert.Equal(t, int64(1), h.count(t, "payments"))

	own, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_A"))
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, own.ID)
}

func TestRecordRequiresGatewayApproval(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = gatewaydomain.Outcome{Status: gatewaydomain.OutcomePending}

	_, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_2"))
	require.ErrorIs(t, err, domain.ErrGatewayNotApproved)

	h.gateway.verify = gatewaydomain.Outcome{Status: gatewaydomain.OutcomeApproved, Amount: 100}
	_, err = h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_2"))
	require.ErrorIs(t, err, domain.ErrGatewayNotApproved)

	_, err = h.svc.Record(context.Background(), taxpayer, recordRequest(""))
	require.ErrorIs(t, err, domain.ErrInvalidSelection)
	assert.Zero(t, h.count(t, "payments"))
}

func TestDuplicatePeriodIsFlaggedNotRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_a"))
	require.NoError(t, err)
	assert.False(t, h.audit.has(auditdomain.ActionPaymentDuplicatePeriod))

	_, err = h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_b"))
	require.NoError(t, err)
	assert.True(t, h.audit.has(auditdomain.ActionPaymentDuplicatePeriod))
	assert.Equal(t, int64(2), h.count(t, "payments"))
}

func TestConcurrentRecordsYieldOnePayment(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	ids := make([]snowflake.ID, 4)
	errs := make([]error, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payment, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_ref_race"))
			errs[i] = err
			if payment != nil {
				ids[i] = payment.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), h.count(t, "payments"))
}

func TestGetAndListHonourScope(t *testing.T) {
	h := newHarness(t)

	mine1, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_1"))
	require.NoError(t, err)
	_, err = h.svc.Record(context.Background(), taxpayer, recordRequest("ps_2"))
	require.NoError(t, err)
	theirs, err := h.svc.Record(context.Background(), other, recordRequest("ps_3"))
	require.NoError(t, err)

	_, err = h.svc.Get(context.Background(), taxpayer, authorization.ScopeSelf, theirs.ID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	got, err := h.svc.Get(context.Background(), officer, authorization.ScopeAll, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-2", got.PayerID)
	got, err = h.svc.Get(context.Background(), taxpayer, authorization.ScopeSelf, mine1.ID)
	require.NoError(t, err)
	assert.Equal(t, mine1.ID, got.ID)

	own, err := h.svc.List(context.Background(), taxpayer, domain.ListRequest{Scope: authorization.ScopeSelf})
	require.NoError(t, err)
	assert.Len(t, own.Payments, 2)
	for _, p := range own.Payments {
		assert.Equal(t, "user-1", p.PayerID)
	}

	page, err := h.svc.List(context.Background(), officer, domain.ListRequest{
		Scope:      authorization.ScopeAll,
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, page.Payments, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, theirs.ID, page.Payments[0].ID)

	rest, err := h.svc.List(context.Background(), officer, domain.ListRequest{
		Scope:      authorization.ScopeAll,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest.Payments, 1)
	assert.Equal(t, mine1.ID, rest.Payments[0].ID)
	assert.False(t, rest.HasMore)

	_, err = h.svc.List(context.Background(), officer, domain.ListRequest{
		Scope:      authorization.ScopeAll,
		Pagination: pagination.Pagination{PageToken: "not-a-token"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestAnchorPendingSweepsUnanchoredPayments(t *testing.T) {
	h := newHarness(t)
	h.ledger.err = fmt.Errorf("%w: connection refused", ledgerdomain.ErrLedgerUnavailable)

	payment, err := h.svc.Record(context.Background(), taxpayer, recordRequest("ps_anchor"))
	require.NoError(t, err)
	assert.False(t, payment.Anchored())

	summary, err := h.svc.AnchorPending(context.Background(), 10)
	require.ErrorIs(t, err, ledgerdomain.ErrLedgerUnavailable)
	assert.Equal(t, domain.AnchorSummary{Claimed: 1, Failed: 1}, summary)

	h.ledger.err = nil
	summary, err = h.svc.AnchorPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AnchorSummary{Claimed: 1, Anchored: 1}, summary)

	stored, err := h.svc.Get(context.Background(), taxpayer, authorization.ScopeSelf, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LedgerTxHash)
	assert.Equal(t, "0xhash-"+payment.ID.String(), *stored.LedgerTxHash)

	summary, err = h.svc.AnchorPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
}
