package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set
const SignatureHeader = "X-Havoc-Signature"

// WebhookNotifier posts events as JSON
type WebhookNotifier struct {
	config *config.WebhookNotificationConfig
	client *http.Client
}

// WebhookPayload is the JSON body sent to the webhook endpoint
type WebhookPayload struct {
	EventType    string  `json:"event_type"`
	RunID        string  `json:"run_id"`
	Repo         string  `json:"repo"`
	IssueNumber  int     `json:"issue_number"`
	IssueTitle   string  `json:"issue_title"`
	Confidence   int     `json:"confidence"`
	PRURL        string  `json:"pr_url,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	DurationSecs float64 `json:"duration_seconds"`
	Timestamp    string  `json:"timestamp"` // RFC3339
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookNotificationConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the event to the configured URL
func (w *WebhookNotifier) Send(ctx context.Context, event *Event) error {
	if w.config.URL == "" {
		return fmt.Errorf("webhook URL is not configured")
	}

	body, err := json.Marshal(WebhookPayload{
		EventType:    string(event.Type),
		RunID:        event.RunID,
		Repo:         event.Repo,
		IssueNumber:  event.IssueNumber,
		IssueTitle:   event.IssueTitle,
		Confidence:   event.Confidence,
		PRURL:        event.PRURL,
		ErrorMessage: event.ErrorMessage,
		DurationSecs: event.Duration.Seconds(),
		Timestamp:    event.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", consts.ServiceName+"-notifier/"+consts.Version)
	if w.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.config.Secret, body))
	}

	logger.Debug("Sending webhook notification",
		zap.String("url", w.config.URL),
		zap.String("event_type", string(event.Type)))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-success status: %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Sign returns "sha256=<hex hmac>" of payload
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
