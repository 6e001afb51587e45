package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway/domain"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	"go.uber.org/zap"
)

const Provider = "paystack"

var errReferenceNotFound = errors.New("reference_not_found")

type paystackResponse[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type initializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency,omitempty"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Client drives Paystack's hosted checkout: initialize, then poll verify
// until the transaction reaches a terminal state.
type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
	runtime   *config.RuntimeConfigHolder
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]domain.Checkout
}

func New(cfg config.Config, runtime *config.RuntimeConfigHolder, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Gateway.PaystackBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: strings.TrimSpace(cfg.Gateway.PaystackSecretKey),
		client:    obstracing.WrapHTTPClient(&http.Client{Timeout: 12 * time.Second}),
		runtime:   runtime,
		log:       log.Named("gateway.paystack"),
		pending:   map[string]domain.Checkout{},
	}
}

func (c *Client) Provider() string { return Provider }

func (c *Client) Initiate(ctx context.Context, checkout domain.Checkout) (domain.Outcome, error) {
	if strings.TrimSpace(checkout.Reference) == "" || checkout.Amount <= 0 || strings.TrimSpace(checkout.Email) == "" {
		return domain.Outcome{}, domain.ErrInvalidCheckout
	}

	var init paystackResponse[initializeData]
	err := c.do(ctx, http.MethodPost, "/transaction/initialize", initializeRequest{
		Email:     strings.TrimSpace(checkout.Email),
		Amount:    checkout.Amount,
		Currency:  strings.ToUpper(checkout.Currency),
		Reference: checkout.Reference,
		Metadata:  checkout.Metadata,
	}, checkout.Reference, &init)
	if err != nil {
		return domain.Outcome{}, err
	}
	c.log.Info("checkout initialized",
		zap.String("reference", checkout.Reference),
		zap.String("authorization_url", init.Data.AuthorizationURL),
	)

	// The payer finds the hosted page through Pending while we poll.
	checkout.Provider = Provider
	checkout.AuthorizationURL = init.Data.AuthorizationURL
	c.mu.Lock()
	c.pending[checkout.Reference] = checkout
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, checkout.Reference)
		c.mu.Unlock()
	}()

	interval := c.runtime.Get().Gateway.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-ticker.C:
		}

		outcome, err := c.Verify(ctx, checkout.Reference)
		if err != nil {
			if errors.Is(err, domain.ErrGatewayUnavailable) && ctx.Err() == nil {
				c.log.Warn("verify failed, retrying", zap.String("reference", checkout.Reference), zap.Error(err))
				continue
			}
			return domain.Outcome{}, err
		}
		if outcome.Status != domain.OutcomePending {
			return outcome, nil
		}
	}
}

// Pending returns the initialized checkouts still being polled.
func (c *Client) Pending() []domain.Checkout {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Checkout, 0, len(c.pending))
	for _, checkout := range c.pending {
		out = append(out, checkout)
	}
	return out
}

func (c *Client) Verify(ctx context.Context, reference string) (domain.Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Outcome{}, domain.ErrInvalidCheckout
	}

	var resp paystackResponse[transactionData]
	err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, "", &resp)
	if errors.Is(err, errReferenceNotFound) {
		// The payer has not reached the hosted page yet.
		return domain.Outcome{Status: domain.OutcomePending, GatewayReference: reference}, nil
	}
	if err != nil {
		return domain.Outcome{}, err
	}

	outcome := domain.Outcome{
		Status:           mapStatus(resp.Data.Status),
		GatewayReference: resp.Data.Reference,
		Amount:           resp.Data.Amount,
		Currency:         strings.ToUpper(resp.Data.Currency),
	}
	if outcome.GatewayReference == "" {
		outcome.GatewayReference = reference
	}
	return outcome, nil
}

func mapStatus(status string) domain.OutcomeStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return domain.OutcomeApproved
	case "abandoned", "failed", "reversed":
		return domain.OutcomeCancelled
	default:
		return domain.OutcomePending
	}
}

func (c *Client) do(ctx context.Context, method string, path string, body any, idempotencyKey string, out any) error {
	if c.secretKey == "" {
		return fmt.Errorf("%w: paystack secret key is not configured", domain.ErrGatewayUnavailable)
	}

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: paystack returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errReferenceNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var paystackErr paystackResponse[json.RawMessage]
		if err := json.NewDecoder(resp.Body).Decode(&paystackErr); err != nil {
			return errors.New("paystack_request_failed")
		}
		message := strings.TrimSpace(paystackErr.Message)
		if message == "" {
			message = "paystack_request_failed"
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidCheckout, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}
