// Package notification sends run outcomes to a chat or webhook channel.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// EventType represents the outcome being reported
type EventType string

const (
	// EventRunCompleted is sent when a pull request was opened
	EventRunCompleted EventType = "run_completed"
	// EventRunBlocked is sent when the policy gates rejected the change
	EventRunBlocked EventType = "run_blocked"
	// EventRunFailed is sent when the pipeline failed before publishing
	EventRunFailed EventType = "run_failed"
)

// sendTimeout bounds one notification
const sendTimeout = 30 * time.Second

// Event is the outcome of one run
type Event struct {
	Type         EventType     `json:"type"`
	RunID        string        `json:"run_id"`
	Repo         string        `json:"repo"`
	IssueNumber  int           `json:"issue_number"`
	IssueTitle   string        `json:"issue_title"`
	Confidence   int           `json:"confidence"`
	PRURL        string        `json:"pr_url,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

// IsSuccess reports whether the run opened a pull request
func (e *Event) IsSuccess() bool {
	return e.Type == EventRunCompleted
}

// Notifier is implemented by every channel
type Notifier interface {
	// Name returns the channel name (e.g., "webhook", "slack")
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Manager filters events by the configured list and dispatches them
type Manager struct {
	cfg      config.NotificationConfig
	notifier Notifier
}

// NewManager creates a manager for cfg. A disabled config yields a manager
// whose Notify does nothing.
func NewManager(cfg config.NotificationConfig) *Manager {
	m := &Manager{cfg: cfg}
	switch cfg.Channel {
	case config.NotificationChannelWebhook:
		m.notifier = NewWebhookNotifier(&m.cfg.Webhook)
	case config.NotificationChannelSlack:
		m.notifier = NewSlackNotifier(&m.cfg.Slack)
	case config.NotificationChannelNone:
	default:
		logger.Warn("Unknown notification channel", zap.String("channel", string(cfg.Channel)))
	}
	return m
}

// IsEnabled reports whether a channel is active
func (m *Manager) IsEnabled() bool {
	return m != nil && m.notifier != nil
}

// Notify sends event when its type is enabled
func (m *Manager) Notify(ctx context.Context, event *Event) error {
	if !m.IsEnabled() {
		return nil
	}
	if !m.cfg.HasEvent(string(event.Type)) {
		logger.Debug("Notification event not enabled, skipping", zap.String("event_type", string(event.Type)))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := m.notifier.Send(ctx, event); err != nil {
		logger.Error("Failed to send notification",
			zap.String("channel", m.notifier.Name()),
			zap.String("event_type", string(event.Type)),
			zap.String("run_id", event.RunID),
			zap.Error(err))
		return fmt.Errorf("failed to send notification via %s: %w", m.notifier.Name(), err)
	}

	logger.Info("Notification sent",
		zap.String("channel", m.notifier.Name()),
		zap.String("event_type", string(event.Type)),
		zap.String("run_id", event.RunID))
	return nil
}

// NotifyRun reports the outcome of a finished run
func (m *Manager) NotifyRun(ctx context.Context, run *model.Run, result pipeline.Result) error {
	return m.Notify(ctx, EventFromRun(run, result))
}

// EventFromRun maps a finished run to its notification event
func EventFromRun(run *model.Run, result pipeline.Result) *Event {
	ev := &Event{
		Type:         EventRunFailed,
		RunID:        run.ID,
		Repo:         run.FullRepo(),
		IssueNumber:  run.IssueNumber,
		IssueTitle:   run.IssueTitle,
		Confidence:   result.ConfidenceScore,
		PRURL:        result.PRURL,
		ErrorMessage: result.Error,
		Duration:     run.Duration(),
		Timestamp:    time.Now(),
	}
	switch {
	case result.Success:
		ev.Type = EventRunCompleted
	case result.Error == pipeline.ReasonPolicyFailed:
		ev.Type = EventRunBlocked
	}
	return ev
}
