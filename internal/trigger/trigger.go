// Package trigger decides whether a webhook event should start a run.
package trigger

import (
	"context"
	"strings"
	"time"

	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/model"
)

// DefaultDedupTTL is how long a delivery id is remembered
const DefaultDedupTTL = time.Hour

const dedupKeyPrefix = "delivery:"

var (
	commands = []string{"/havoc", "/havoc run"}
	labels   = []string{"havoc", "havoc-run"}
)

// Decision is the outcome of matching an event
type Decision struct {
	Triggered bool
	Source    model.TriggerSource
	Reason    string // why the event was ignored
}

func ignore(reason string) Decision {
	return Decision{Reason: reason}
}

// IsCommand reports whether the first non-blank line of body is a trigger command
func IsCommand(body string) bool {
	first := strings.TrimSpace(body)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	first = strings.Join(strings.Fields(first), " ")
	for _, c := range commands {
		if first == c {
			return true
		}
	}
	return false
}

// IsTriggerLabel reports whether name is one of the trigger labels.
// GitHub label names are case-insensitive.
func IsTriggerLabel(name string) bool {
	name = strings.TrimSpace(name)
	for _, l := range labels {
		if strings.EqualFold(name, l) {
			return true
		}
	}
	return false
}

// Match inspects a parsed webhook event
func Match(ev *provider.WebhookEvent) Decision {
	if ev == nil {
		return ignore("empty event")
	}
	if ev.Issue == nil {
		return ignore("event has no issue")
	}
	if ev.Issue.IsPullRequest {
		return ignore("pull requests are not supported")
	}

	switch ev.Type {
	case provider.EventTypeIssueComment:
		if ev.Action != "created" {
			return ignore("comment action " + ev.Action)
		}
		if !IsCommand(ev.CommentBody) {
			return ignore("comment is not a command")
		}
		return Decision{Triggered: true, Source: model.TriggerSourceComment}
	case provider.EventTypeIssues:
		if ev.Action != "labeled" {
			return ignore("issues action " + ev.Action)
		}
		if !IsTriggerLabel(ev.Label) {
			return ignore("label " + ev.Label + " is not a trigger")
		}
		return Decision{Triggered: true, Source: model.TriggerSourceLabel}
	default:
		return ignore("event type " + string(ev.Type))
	}
}

// Deduper remembers delivery ids so redelivered webhooks start no second run
type Deduper struct {
	store authstore.Store
	ttl   time.Duration
}

// NewDeduper creates a deduper; ttl <= 0 uses DefaultDedupTTL
func NewDeduper(store authstore.Store, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduper{store: store, ttl: ttl}
}

// FirstSeen records deliveryID and reports whether it was new.
// An empty delivery id is always treated as new.
func (d *Deduper) FirstSeen(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return true, nil
	}
	return d.store.PutIfAbsent(ctx, dedupKeyPrefix+deliveryID, []byte("1"), d.ttl)
}

// Forget drops a delivery id so a retried delivery can trigger again
func (d *Deduper) Forget(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	return d.store.Delete(ctx, dedupKeyPrefix+deliveryID)
}
