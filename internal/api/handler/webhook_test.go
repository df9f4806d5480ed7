package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/git/provider/providertest"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/trigger"
	"github.com/AlecFritsch/inito/pkg/errors"
)

func commentEvent(delivery, body string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type:           provider.EventTypeIssueComment,
		DeliveryID:     delivery,
		Provider:       "github",
		Action:         "created",
		Owner:          "acme",
		Repo:           "widgets",
		Sender:         "octocat",
		InstallationID: 42,
		CommentBody:    body,
		Issue: &provider.Issue{
			Number: 7,
			Title:  "Crash on empty config",
			Body:   "parseConfig panics when the file is empty",
			State:  "open",
		},
	}
}

func setupWebhook(fake *providertest.Fake, sub *fakeSubmitter) *gin.Engine {
	h := NewWebhookHandler(fake, "", sub, trigger.NewDeduper(authstore.NewMemory(), 0))
	r := gin.New()
	r.POST("/webhooks/github", h.HandleGitHub)
	return r
}

func TestWebhook_CommentCommandStartsRun(t *testing.T) {
	fake := providertest.New()
	fake.Webhook = commentEvent("d-1", "/havoc")
	sub := &fakeSubmitter{}

	w := doJSON(t, setupWebhook(fake, sub), http.MethodPost, "/webhooks/github", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	runs := sub.submitted()
	require.Len(t, runs, 1)
	assert.Equal(t, runs[0].ID, decode(t, w)["run_id"])

	run := runs[0]
	assert.Equal(t, "acme", run.RepoOwner)
	assert.Equal(t, "widgets", run.RepoName)
	assert.Equal(t, 7, run.IssueNumber)
	assert.Equal(t, "Crash on empty config", run.IssueTitle)
	assert.Equal(t, "octocat", run.TriggeredBy)
	assert.Equal(t, model.TriggerSourceComment, run.TriggerSource)
	assert.Equal(t, int64(42), run.InstallationID)
	assert.Equal(t, "d-1", run.DeliveryID)
}

func TestWebhook_LabelStartsRun(t *testing.T) {
	fake := providertest.New()
	ev := commentEvent("d-2", "")
	ev.Type = provider.EventTypeIssues
	ev.Action = "labeled"
	ev.Label = "Havoc"
	fake.Webhook = ev
	sub := &fakeSubmitter{}

	w := doJSON(t, setupWebhook(fake, sub), http.MethodPost, "/webhooks/github", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sub.submitted(), 1)
	assert.Equal(t, model.TriggerSourceLabel, sub.submitted()[0].TriggerSource)
}

func TestWebhook_Ignored(t *testing.T) {
	tests := []struct {
		name  string
		event func() *provider.WebhookEvent
	}{
		{"plain comment", func() *provider.WebhookEvent { return commentEvent("d", "looks good to me") }},
		{"edited comment", func() *provider.WebhookEvent {
			ev := commentEvent("d", "/havoc")
			ev.Action = "edited"
			return ev
		}},
		{"pull request comment", func() *provider.WebhookEvent {
			ev := commentEvent("d", "/havoc")
			ev.Issue.IsPullRequest = true
			return ev
		}},
		{"other label", func() *provider.WebhookEvent {
			ev := commentEvent("d", "")
			ev.Type = provider.EventTypeIssues
			ev.Action = "labeled"
			ev.Label = "bug"
			return ev
		}},
		{"unknown event", func() *provider.WebhookEvent {
			return &provider.WebhookEvent{Type: "push", Owner: "acme", Repo: "widgets"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := providertest.New()
			fake.Webhook = tt.event()
			sub := &fakeSubmitter{}

			w := doJSON(t, setupWebhook(fake, sub), http.MethodPost, "/webhooks/github", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, "ignored", body["message"])
			assert.NotEmpty(t, body["reason"])
			assert.Empty(t, sub.submitted())
		})
	}
}

func TestWebhook_Ping(t *testing.T) {
	fake := providertest.New()
	fake.Webhook = &provider.WebhookEvent{Type: provider.EventTypePing}
	sub := &fakeSubmitter{}

	w := doJSON(t, setupWebhook(fake, sub), http.MethodPost, "/webhooks/github", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sub.submitted())
}

func TestWebhook_InvalidPayload(t *testing.T) {
	fake := providertest.New()
	fake.WebhookErr = errors.New(errors.ErrCodeGitWebhook, "signature mismatch")
	sub := &fakeSubmitter{}

	w := doJSON(t, setupWebhook(fake, sub), http.MethodPost, "/webhooks/github", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrCodeGitWebhook), decode(t, w)["code"])
	assert.Empty(t, sub.submitted())
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	fake := providertest.New()
	fake.Webhook = commentEvent("d-dup", "/havoc run")
	sub := &fakeSubmitter{}
	r := setupWebhook(fake, sub)

	w := doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate delivery", decode(t, w)["message"])
	assert.Len(t, sub.submitted(), 1)
}

func TestWebhook_SubmitFailureAllowsRedelivery(t *testing.T) {
	fake := providertest.New()
	fake.Webhook = commentEvent("d-full", "/havoc")
	sub := &fakeSubmitter{err: errors.New(errors.ErrCodeQueueFull, "run queue is full")}
	r := setupWebhook(fake, sub)

	w := doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(errors.ErrCodeQueueFull), decode(t, w)["code"])

	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()

	w = doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, sub.submitted(), 1)
}

func TestWebhook_WithoutDeduper(t *testing.T) {
	fake := providertest.New()
	fake.Webhook = commentEvent("d-3", "/havoc")
	sub := &fakeSubmitter{}
	h := NewWebhookHandler(fake, "", sub, nil)
	r := gin.New()
	r.POST("/webhooks/github", h.HandleGitHub)

	doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	doJSON(t, r, http.MethodPost, "/webhooks/github", nil)
	assert.Len(t, sub.submitted(), 2)
}
