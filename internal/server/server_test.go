package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/auth/token"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway"
	gatewaydomain "github.com/smallbiznis/levy/internal/gateway/domain"
	"github.com/smallbiznis/levy/internal/gateway/interactive"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	receiptdomain "github.com/smallbiznis/levy/internal/receipt/domain"
	reconciliationdomain "github.com/smallbiznis/levy/internal/reconciliation/domain"
	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var (
	taxpayer = authdomain.Principal{UserID: "user-1", Email: "ada@example.com", Role: authdomain.RoleTaxpayer}
	neighbor = authdomain.Principal{UserID: "user-2", Role: authdomain.RoleTaxpayer}
	officer  = authdomain.Principal{UserID: "officer-1", Role: authdomain.RoleOfficer}
	auditor  = authdomain.Principal{UserID: "auditor-1", Role: authdomain.RoleAuditor}
)

type fakePayments struct {
	paymentdomain.Service

	mu        sync.Mutex
	lastScope authorization.Scope
	lastList  paymentdomain.ListRequest
	submitErr error
	resolveFn func(token string) (*paymentdomain.IntentResolution, error)
	recorded  []paymentdomain.RecordRequest
}

func (f *fakePayments) Submit(ctx context.Context, principal authdomain.Principal, req paymentdomain.SubmitRequest) (*paymentdomain.Payment, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &paymentdomain.Payment{ID: 7, PayerID: principal.UserID, ScheduleID: req.ScheduleID, Status: paymentdomain.StatusSuccess}, nil
}

func (f *fakePayments) Record(ctx context.Context, principal authdomain.Principal, req paymentdomain.RecordRequest) (*paymentdomain.Payment, error) {
	f.mu.Lock()
	f.recorded = append(f.recorded, req)
	f.mu.Unlock()
	return &paymentdomain.Payment{
		ID:               8,
		PayerID:          principal.UserID,
		ScheduleID:       req.ScheduleID,
		PeriodReference:  req.PeriodReference,
		GatewayReference: req.GatewayReference,
		GatewayProvider:  req.GatewayProvider,
		Status:           paymentdomain.StatusSuccess,
	}, nil
}

func (f *fakePayments) ResolveIntent(ctx context.Context, principal authdomain.Principal, token string) (*paymentdomain.IntentResolution, error) {
	if f.resolveFn != nil {
		return f.resolveFn(token)
	}
	return &paymentdomain.IntentResolution{Intent: paymentdomain.PaymentIntent{Token: token, Status: paymentdomain.IntentRecorded}}, nil
}

func (f *fakePayments) Get(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, id snowflake.ID) (*paymentdomain.Payment, error) {
	f.mu.Lock()
	f.lastScope = scope
	f.mu.Unlock()
	if id != 42 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &paymentdomain.Payment{ID: id, PayerID: taxpayer.UserID, Status: paymentdomain.StatusSuccess}, nil
}

func (f *fakePayments) List(ctx context.Context, principal authdomain.Principal, req paymentdomain.ListRequest) (paymentdomain.ListResponse, error) {
	f.mu.Lock()
	f.lastList = req
	f.mu.Unlock()
	return paymentdomain.ListResponse{Payments: []paymentdomain.Payment{{ID: 42, PayerID: principal.UserID}}}, nil
}

type fakeReconciliation struct {
	batchIDs []snowflake.ID
}

func (f *fakeReconciliation) Reconcile(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*reconciliationdomain.Result, error) {
	if paymentID != 42 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &reconciliationdomain.Result{
		PaymentID: paymentID.String(),
		Status:    reconciliationdomain.StatusUnavailable,
		Diffs:     []reconciliationdomain.Diff{},
		Message:   reconciliationdomain.MessageUnavailable,
	}, nil
}

func (f *fakeReconciliation) ReconcileBatch(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentIDs []snowflake.ID) (map[string]reconciliationdomain.BatchItem, error) {
	f.batchIDs = paymentIDs
	out := make(map[string]reconciliationdomain.BatchItem, len(paymentIDs))
	for _, id := range paymentIDs {
		out[id.String()] = reconciliationdomain.BatchItem{Result: &reconciliationdomain.Result{
			PaymentID: id.String(),
			Status:    reconciliationdomain.StatusReconciled,
		}}
	}
	return out, nil
}

type fakeReceipts struct{}

func (fakeReceipts) Render(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*receiptdomain.Receipt, error) {
	if paymentID == 43 {
		return nil, receiptdomain.ErrReceiptUnavailable
	}
	return &receiptdomain.Receipt{FileName: "receipt-market-levy-2024-03-42.pdf", Content: []byte("%PDF-1.4")}, nil
}

type fakeRevenue struct{}

func (fakeRevenue) Get(ctx context.Context, id snowflake.ID) (*revenuedomain.RevenueSchedule, error) {
	if id != 1 {
		return nil, revenuedomain.ErrScheduleNotFound
	}
	return &revenuedomain.RevenueSchedule{ID: 1, Name: "Market Levy", Amount: 5000, Recurrence: revenuedomain.RecurrenceMonthly, Currency: "NGN"}, nil
}

func (fakeRevenue) List(ctx context.Context) ([]revenuedomain.RevenueSchedule, error) {
	schedule, _ := fakeRevenue{}.Get(ctx, 1)
	return []revenuedomain.RevenueSchedule{*schedule}, nil
}

type fakeAudit struct{}

func (fakeAudit) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	return auditdomain.ListAuditLogResponse{}, nil
}

// hostedGateway lists checkouts the way a redirect-based provider does.
type hostedGateway struct {
	waiting []gatewaydomain.Checkout
}

func (g *hostedGateway) Provider() string { return "paystack" }

func (g *hostedGateway) Initiate(ctx context.Context, checkout gatewaydomain.Checkout) (gatewaydomain.Outcome, error) {
	return gatewaydomain.Outcome{}, gatewaydomain.ErrGatewayUnavailable
}

func (g *hostedGateway) Pending() []gatewaydomain.Checkout { return g.waiting }

type testServer struct {
	srv      *Server
	verifier *token.Verifier
	payments *fakePayments
	recon    *fakeReconciliation
	hub      *interactive.Hub
	hosted   *hostedGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	verifier, err := token.NewVerifier(config.Config{AuthJWTSecret: "test-secret", AuthJWTIssuer: "levy-test"}, clk)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		verifier: verifier,
		payments: &fakePayments{},
		recon:    &fakeReconciliation{},
		hub:      interactive.NewHub(),
		hosted:   &hostedGateway{},
	}
	ts.srv = NewServer(ServerParams{
		Gin:               engine,
		Cfg:               config.Config{Environment: "test"},
		Clock:             clk,
		Verifier:          verifier,
		AuthzSvc:          authorization.NewService(authorization.Params{Log: zaptest.NewLogger(t), Enforcer: enforcer}),
		AuditSvc:          fakeAudit{},
		RevenueSvc:        fakeRevenue{},
		PaymentSvc:        ts.payments,
		ReconciliationSvc: ts.recon,
		ReceiptSvc:        fakeReceipts{},
		CheckoutHub:       ts.hub,
		Gateways:          gateway.NewRegistry(ts.hub, ts.hosted),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, principal *authdomain.Principal, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if principal != nil {
		signed, err := ts.verifier.Issue(*principal, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+signed)
	}

	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, nil, http.MethodGet, "/api/revenue-types", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	req := httptest.NewRequest(http.MethodGet, "/api/revenue-types", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/revenue-types", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListPeriods(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/revenue-types/1/periods?as_of=2024-03-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data periodOptionsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Periods, 12)
	assert.Equal(t, "2024-01", resp.Data.Periods[0])
	assert.False(t, resp.Data.FreeDate)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/revenue-types/1/periods?as_of=15-03-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/revenue-types/9/periods", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPaymentsResolvesScope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, authorization.ScopeSelf, ts.payments.lastList.Scope)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/payments?scope=all", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &officer, http.MethodGet, "/api/payments?schedule_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, authorization.ScopeAll, ts.payments.lastList.Scope)
	assert.Equal(t, snowflake.ID(1), ts.payments.lastList.ScheduleID)

	rec = ts.do(t, &officer, http.MethodGet, "/api/payments/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, authorization.ScopeSelf, ts.payments.lastList.Scope)

	rec = ts.do(t, &officer, http.MethodGet, "/api/payments?scope=everything", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPayment(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/payments/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, authorization.ScopeSelf, ts.payments.lastScope)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/payments/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "payment not found", decodeError(t, rec).Message)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/payments/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordPayment(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodPost, "/api/payments", gin.H{
		"scheduleId":       "1",
		"amount":           5000,
		"periodReference":  "2024-03",
		"gatewayReference": "psk_1",
		"gatewayProvider":  "paystack",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.payments.recorded, 1)
	assert.Equal(t, "psk_1", ts.payments.recorded[0].GatewayReference)

	rec = ts.do(t, &taxpayer, http.MethodPost, "/api/payments", gin.H{"scheduleId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutCancelled(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.submitErr = paymentdomain.ErrGatewayCancelled

	rec := ts.do(t, &taxpayer, http.MethodPost, "/api/payments/checkout", gin.H{
		"scheduleId":      "1",
		"amount":          5000,
		"periodReference": "2024-03",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"cancelled"}}`, rec.Body.String())
}

func TestCheckoutErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{paymentdomain.ErrInvalidSelection, http.StatusBadRequest},
		{gatewaydomain.ErrUnknownProvider, http.StatusBadRequest},
		{paymentdomain.ErrRecordingFailed, http.StatusBadGateway},
		{gatewaydomain.ErrGatewayUnavailable, http.StatusBadGateway},
		{revenuedomain.ErrScheduleNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.payments.submitErr = fmt.Errorf("submit: %w", tc.err)
			rec := ts.do(t, &taxpayer, http.MethodPost, "/api/payments/checkout", gin.H{"scheduleId": "1", "amount": 5000})
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestResolveIntentRequiresOfficer(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodPost, "/api/payments/intents/tok_1/resolve", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &officer, http.MethodPost, "/api/payments/intents/tok_1/resolve", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.payments.resolveFn = func(string) (*paymentdomain.IntentResolution, error) {
		return nil, paymentdomain.ErrIntentTooRecent
	}
	rec = ts.do(t, &officer, http.MethodPost, "/api/payments/intents/tok_1/resolve", nil)
	assert.Equal(t, http.StatusTooEarly, rec.Code)

	ts.payments.resolveFn = func(string) (*paymentdomain.IntentResolution, error) {
		return nil, paymentdomain.ErrIntentNotResolvable
	}
	rec = ts.do(t, &officer, http.MethodPost, "/api/payments/intents/tok_1/resolve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerifyPayment(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/payments/verify/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result reconciliationdomain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, reconciliationdomain.StatusUnavailable, result.Status)
	assert.Equal(t, "42", result.PaymentID)

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/payments/verify/77", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyPaymentsKeysEachVerdict(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodPost, "/api/payments/verify", gin.H{"ids": []string{"42", "43", "bogus"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results map[string]reconciliationdomain.BatchItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "42", resp.Results["42"].Result.PaymentID)
	assert.Equal(t, "43", resp.Results["43"].Result.PaymentID)
	assert.Equal(t, "payment_not_found", resp.Results["bogus"].Error)
	assert.ElementsMatch(t, []snowflake.ID{42, 43}, ts.recon.batchIDs)

	rec = ts.do(t, &taxpayer, http.MethodPost, "/api/payments/verify", gin.H{"ids": []string{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "empty_batch", payload.Errors[0].Code)
	assert.Equal(t, "ids", payload.Errors[0].Field)

	ids := make([]string, reconciliationdomain.MaxBatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprint(i + 1)
	}
	rec = ts.do(t, &taxpayer, http.MethodPost, "/api/payments/verify", gin.H{"ids": ids})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentReceipt(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/payments/42/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt-market-levy-2024-03-42.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = ts.do(t, &taxpayer, http.MethodGet, "/api/payments/43/receipt", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInteractiveCheckoutOwnership(t *testing.T) {
	ts := newTestServer(t)

	done := make(chan gatewaydomain.Outcome, 1)
	go func() {
		outcome, _ := ts.hub.Initiate(context.Background(), gatewaydomain.Checkout{
			Reference: "tok_9",
			Amount:    5000,
			Currency:  "NGN",
			Metadata:  map[string]string{"payer_id": taxpayer.UserID, "schedule_id": "1", "period_reference": "2024-03"},
		})
		done <- outcome
	}()
	require.Eventually(t, func() bool { return len(ts.hub.Pending()) == 1 }, time.Second, time.Millisecond)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/checkouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tok_9")

	rec = ts.do(t, &neighbor, http.MethodGet, "/api/checkouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tok_9")

	rec = ts.do(t, &neighbor, http.MethodPost, "/api/checkouts/tok_9/approve", gin.H{"gatewayReference": "psk_9"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, &taxpayer, http.MethodPost, "/api/checkouts/tok_9/approve", gin.H{"gatewayReference": "psk_9"})
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case outcome := <-done:
		assert.Equal(t, gatewaydomain.OutcomeApproved, outcome.Status)
		assert.Equal(t, "psk_9", outcome.GatewayReference)
	case <-time.After(time.Second):
		t.Fatal("checkout was not resolved")
	}

	rec = ts.do(t, &taxpayer, http.MethodPost, "/api/checkouts/tok_9/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCheckoutsIncludesHostedPaymentPage(t *testing.T) {
	ts := newTestServer(t)
	ts.hosted.waiting = []gatewaydomain.Checkout{{
		Reference:        "T1710496800000",
		Amount:           5000,
		Currency:         "NGN",
		Metadata:         map[string]string{"payer_id": taxpayer.UserID, "schedule_id": "1", "period_reference": "2024-03"},
		AuthorizationURL: "https://checkout.paystack.com/abc",
	}}

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/checkouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []checkoutView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "paystack", resp.Data[0].Provider)
	assert.Equal(t, "https://checkout.paystack.com/abc", resp.Data[0].AuthorizationURL)
	assert.Equal(t, "2024-03", resp.Data[0].PeriodReference)

	rec = ts.do(t, &neighbor, http.MethodGet, "/api/checkouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "checkout.paystack.com")
}

func TestListAuditLogs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, &taxpayer, http.MethodGet, "/api/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &officer, http.MethodGet, "/api/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, &auditor, http.MethodGet, "/api/audit-logs?start_at=2024-03-01&end_at=2024-03-31", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, &auditor, http.MethodGet, "/api/audit-logs?start_at=2024-03-31&end_at=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, &auditor, http.MethodGet, "/api/audit-logs?start_at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, nil, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer   abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("Bearer "))
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(paymentdomain.ErrRecordingFailed)
	assert.Equal(t, "dependency", kind)
	assert.Equal(t, "recording_failed", code)

	kind, _ = classifyErrorForLog(authorization.ErrForbidden)
	assert.Equal(t, "auth", kind)

	kind, _ = classifyErrorForLog(context.Canceled)
	assert.Equal(t, "client_cancelled", kind)
}
