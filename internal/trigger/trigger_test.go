package trigger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	os.Exit(m.Run())
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"/havoc", true},
		{"  /havoc run  ", true},
		{"/havoc   run", true},
		{"/havoc\nplease fix this quickly", true},
		{"\n\n/havoc run\nthanks", true},
		{"/havocrun", false},
		{"/havoc now", false},
		{"please /havoc", false},
		{"thanks\n/havoc", false},
		{"/HAVOC", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCommand(tt.body))
		})
	}
}

func TestIsTriggerLabel(t *testing.T) {
	assert.True(t, IsTriggerLabel("havoc"))
	assert.True(t, IsTriggerLabel("Havoc-Run"))
	assert.False(t, IsTriggerLabel("bug"))
}

func issueEvent(typ provider.WebhookEventType, action string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type:   typ,
		Action: action,
		Owner:  "acme",
		Repo:   "web",
		Issue:  &provider.Issue{Number: 3, Title: "Broken"},
	}
}

func TestMatch(t *testing.T) {
	ev := issueEvent(provider.EventTypeIssueComment, "created")
	ev.CommentBody = "/havoc"
	d := Match(ev)
	assert.True(t, d.Triggered)
	assert.Equal(t, model.TriggerSourceComment, d.Source)

	ev = issueEvent(provider.EventTypeIssueComment, "edited")
	ev.CommentBody = "/havoc"
	assert.False(t, Match(ev).Triggered)

	ev = issueEvent(provider.EventTypeIssues, "labeled")
	ev.Label = "havoc-run"
	d = Match(ev)
	assert.True(t, d.Triggered)
	assert.Equal(t, model.TriggerSourceLabel, d.Source)

	ev.Label = "bug"
	assert.False(t, Match(ev).Triggered)

	ev = issueEvent(provider.EventTypeIssues, "labeled")
	ev.Label = "havoc"
	ev.Issue.IsPullRequest = true
	d = Match(ev)
	assert.False(t, d.Triggered)
	assert.Contains(t, d.Reason, "pull requests")

	assert.False(t, Match(&provider.WebhookEvent{Type: provider.EventTypePing}).Triggered)
	assert.False(t, Match(nil).Triggered)
}

func TestDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewDeduper(authstore.NewMemory(), 0)

	first, err := d.FirstSeen(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "delivery-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, "delivery-1"))
	retry, err := d.FirstSeen(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, retry)

	anon, err := d.FirstSeen(ctx, "")
	require.NoError(t, err)
	assert.True(t, anon)
}
