package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/ledger/domain"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	"go.uber.org/zap"
)

type ledgerEnvelope[T any] struct {
	Data  T            `json:"data"`
	Error *ledgerError `json:"error,omitempty"`
}

type ledgerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anchorResponse struct {
	TxHash string `json:"txHash"`
}

// HTTPClient talks to the ledger gateway over REST. It performs exactly one
// bounded request per call; retries are the caller's concern.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	runtime *config.RuntimeConfigHolder
	log     *zap.Logger
}

func NewHTTPClient(cfg config.Config, runtime *config.RuntimeConfigHolder, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Ledger.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.Ledger.APIKey),
		client:  obstracing.WrapHTTPClient(&http.Client{}),
		runtime: runtime,
		log:     log.Named("ledger.client"),
	}
}

func (c *HTTPClient) GetLedgerRecord(ctx context.Context, txHash string) (*domain.LedgerRecord, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, domain.ErrInvalidTxHash
	}

	var envelope ledgerEnvelope[domain.LedgerRecord]
	found, err := c.do(ctx, http.MethodGet, "/records/"+url.PathEscape(txHash), nil, "", &envelope)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	record := envelope.Data
	if record.TxHash == "" {
		record.TxHash = txHash
	}
	return &record, nil
}

func (c *HTTPClient) Anchor(ctx context.Context, req domain.AnchorRequest) (string, error) {
	if strings.TrimSpace(req.PaymentID) == "" || !req.Amount.IsPositive() {
		return "", domain.ErrInvalidAnchor
	}

	// The ledger deduplicates on the key, so a replayed anchor returns the first hash.
	key := anchorKey(req.PaymentID)
	var envelope ledgerEnvelope[anchorResponse]
	found, err := c.do(ctx, http.MethodPost, "/records", req, key, &envelope)
	if err != nil {
		return "", err
	}
	if !found || strings.TrimSpace(envelope.Data.TxHash) == "" {
		return "", fmt.Errorf("%w: anchor returned no transaction hash", domain.ErrLedgerUnavailable)
	}
	c.log.Info("payment anchored",
		zap.String("payment_id", req.PaymentID),
		zap.String("tx_hash", envelope.Data.TxHash),
		zap.String("idempotency_key", key),
	)
	return envelope.Data.TxHash, nil
}

// anchorKey is stable per payment so a sweep re-anchoring after a lost
// response cannot create a second ledger record.
func anchorKey(paymentID string) string {
	return "levy-payment-" + strings.TrimSpace(paymentID)
}

func (c *HTTPClient) timeout() time.Duration {
	timeout := c.runtime.Get().Ledger.Timeout
	if timeout <= 0 {
		return config.DefaultRuntimeConfig().Ledger.Timeout
	}
	return timeout
}

// do returns found=false on 404. Transport failures, timeouts and 5xx map to
// ErrLedgerUnavailable.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("%w: ledger base url is not configured", domain.ErrLedgerUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	payload := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return false, fmt.Errorf("%w: ledger returned %d", domain.ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		var envelope ledgerEnvelope[json.RawMessage]
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error == nil {
			return false, fmt.Errorf("ledger request failed with status %d", resp.StatusCode)
		}
		message := strings.TrimSpace(envelope.Error.Message)
		if message == "" {
			message = "ledger_request_failed"
		}
		return false, errors.New(message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", domain.ErrLedgerUnavailable, err)
	}
	return true, nil
}
