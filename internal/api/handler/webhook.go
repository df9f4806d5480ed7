package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/trigger"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// WebhookHandler turns GitHub webhook deliveries into runs
type WebhookHandler struct {
	provider provider.Provider
	secret   string
	engine   Submitter
	deduper  *trigger.Deduper
}

// NewWebhookHandler creates a webhook handler. A nil deduper disables
// redelivery detection.
func NewWebhookHandler(p provider.Provider, secret string, engine Submitter, deduper *trigger.Deduper) *WebhookHandler {
	return &WebhookHandler{
		provider: p,
		secret:   secret,
		engine:   engine,
		deduper:  deduper,
	}
}

// HandleGitHub handles POST /api/v1/webhooks/github
func (h *WebhookHandler) HandleGitHub(c *gin.Context) {
	event, err := h.provider.ParseWebhook(c.Request, h.secret)
	if err != nil {
		logger.Warn("Rejected webhook", zap.String("ip", c.ClientIP()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeGitWebhook,
			"message": "invalid webhook payload",
		})
		return
	}

	if event.Type == provider.EventTypePing {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
		return
	}

	decision := trigger.Match(event)
	if !decision.Triggered {
		logger.Debug("Webhook ignored",
			zap.String("delivery_id", event.DeliveryID),
			zap.String("type", string(event.Type)),
			zap.String("reason", decision.Reason))
		c.JSON(http.StatusOK, gin.H{"message": "ignored", "reason": decision.Reason})
		return
	}

	ctx := c.Request.Context()
	if h.deduper != nil {
		first, err := h.deduper.FirstSeen(ctx, event.DeliveryID)
		if err != nil {
			// dedup errors fail open
			logger.Warn("Delivery dedup unavailable", zap.String("delivery_id", event.DeliveryID), zap.Error(err))
		} else if !first {
			logger.Info("Duplicate webhook delivery", zap.String("delivery_id", event.DeliveryID))
			c.JSON(http.StatusOK, gin.H{"message": "duplicate delivery"})
			return
		}
	}

	run := runFromEvent(event, decision.Source)
	if err := h.engine.Submit(run); err != nil {
		if h.deduper != nil {
			if ferr := h.deduper.Forget(ctx, event.DeliveryID); ferr != nil {
				logger.Warn("Failed to forget delivery", zap.String("delivery_id", event.DeliveryID), zap.Error(ferr))
			}
		}
		logger.Error("Failed to submit run from webhook",
			zap.String("delivery_id", event.DeliveryID),
			zap.String("repo", run.FullRepo()),
			zap.Error(err))
		respondError(c, err)
		return
	}

	logger.Info("Run triggered by webhook",
		zap.String("run_id", run.ID),
		zap.String("repo", run.FullRepo()),
		zap.Int("issue", run.IssueNumber),
		zap.String("source", string(run.TriggerSource)),
		zap.String("sender", run.TriggeredBy))
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

func runFromEvent(ev *provider.WebhookEvent, source model.TriggerSource) *model.Run {
	return &model.Run{
		RepoOwner:      ev.Owner,
		RepoName:       ev.Repo,
		IssueNumber:    ev.Issue.Number,
		IssueTitle:     ev.Issue.Title,
		IssueBody:      ev.Issue.Body,
		InstallationID: ev.InstallationID,
		TriggeredBy:    ev.Sender,
		TriggerSource:  source,
		DeliveryID:     ev.DeliveryID,
	}
}
