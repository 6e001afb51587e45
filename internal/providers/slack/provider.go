package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/levy/internal/config"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

// NewFromConfig returns a webhook provider, or a no-op when no webhook is configured.
func NewFromConfig(cfg config.Config) Provider {
	url := strings.TrimSpace(cfg.Alert.SlackWebhookURL)
	if url == "" {
		return &NoOpProvider{}
	}
	return NewWebhookProvider(url)
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhookProvider(url string) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		client: obstracing.WrapHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	}
}

type webhookMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	body, err := json.Marshal(webhookMessage{Channel: strings.TrimSpace(channelID), Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
