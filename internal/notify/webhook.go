package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/bondledger/internal/crypto"
)

// WebhookSender delivers notifications to an operator-controlled HTTP
// endpoint. Every request carries an HMAC signature header so the receiver
// can verify the payload came from this ledger.
type WebhookSender struct {
	endpoint string
	signer   *crypto.WebhookSigner
	client   *http.Client
}

// NewWebhookSender creates a WebhookSender. signer may be nil to send
// unsigned requests.
func NewWebhookSender(endpoint string, signer *crypto.WebhookSigner) (*WebhookSender, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("notify: invalid webhook endpoint: %w", err)
	}
	return &WebhookSender{
		endpoint: endpoint,
		signer:   signer,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name returns the sender identifier.
func (s *WebhookSender) Name() string {
	return "webhook"
}

// Send posts the notification as JSON to the configured endpoint.
func (s *WebhookSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(map[string]string{
		"title":   title,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("notify: webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.signer != nil {
		for k, v := range s.signer.Headers(http.MethodPost, req.URL.Path, string(body)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
