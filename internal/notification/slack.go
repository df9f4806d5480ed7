package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AlecFritsch/inito/internal/config"
)

// SlackNotifier posts to a Slack incoming webhook
type SlackNotifier struct {
	config *config.SlackNotificationConfig
	client *http.Client
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(cfg *config.SlackNotificationConfig) *SlackNotifier {
	return &SlackNotifier{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the notifier name
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts the event to Slack
func (s *SlackNotifier) Send(ctx context.Context, event *Event) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL is not configured")
	}

	body, err := json.Marshal(s.buildMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack request: %w", err)
	}
	defer resp.Body.Close()

	// Slack answers a plain "ok"
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("slack returned error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *SlackNotifier) buildMessage(event *Event) *SlackMessage {
	var emoji, color, status string
	switch event.Type {
	case EventRunCompleted:
		emoji, color, status = ":white_check_mark:", "good", "opened a pull request"
	case EventRunBlocked:
		emoji, color, status = ":warning:", "warning", "was blocked by policy gates"
	default:
		emoji, color, status = ":x:", "danger", "failed"
	}

	fields := []SlackField{
		{Title: "Repository", Value: event.Repo, Short: true},
		{Title: "Issue", Value: fmt.Sprintf("#%d", event.IssueNumber), Short: true},
		{Title: "Run", Value: event.RunID, Short: true},
		{Title: "Confidence", Value: fmt.Sprintf("%d/100", event.Confidence), Short: true},
	}
	if event.Duration > 0 {
		fields = append(fields, SlackField{Title: "Duration", Value: event.Duration.Round(time.Second).String(), Short: true})
	}
	if !event.IsSuccess() && event.ErrorMessage != "" {
		fields = append(fields, SlackField{Title: "Error", Value: truncate(event.ErrorMessage, 500)})
	}

	msg := &SlackMessage{
		Channel: s.config.Channel,
		Text:    fmt.Sprintf("%s *Run for %s#%d %s*", emoji, event.Repo, event.IssueNumber, status),
		Attachments: []SlackAttachment{{
			Color:     color,
			Title:     event.IssueTitle,
			TitleLink: event.PRURL,
			Fields:    fields,
			Footer:    "havoc",
			Timestamp: event.Timestamp.Unix(),
		}},
	}
	return msg
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
