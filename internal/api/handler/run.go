package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/api/middleware"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// EventSource returns the buffered events of a run
type EventSource interface {
	Snapshot(runID string) []events.Event
}

// RunHandler serves the run API
type RunHandler struct {
	store    store.Store
	engine   Submitter
	provider provider.Provider
	events   EventSource
}

// NewRunHandler creates a run handler. A nil event source serves empty event lists.
func NewRunHandler(s store.Store, engine Submitter, p provider.Provider, ev EventSource) *RunHandler {
	return &RunHandler{
		store:    s,
		engine:   engine,
		provider: p,
		events:   ev,
	}
}

// CreateRunRequest is the body of POST /api/v1/runs
type CreateRunRequest struct {
	Owner       string `json:"owner" binding:"required"`
	Repo        string `json:"repo" binding:"required"`
	IssueNumber int    `json:"issue_number" binding:"required,gt=0"`
}

// List handles GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	filter := model.RunFilter{Limit: parseLimit(c, defaultLimit, maxLimit)}

	if repo := c.Query("repo"); repo != "" {
		owner, name, ok := provider.SplitFullName(repo)
		if !ok {
			badRequest(c, "repo must be owner/name")
			return
		}
		filter.RepoOwner, filter.RepoName = owner, name
	}
	if status := c.Query("status"); status != "" {
		s := model.RunStatus(strings.ToLower(status))
		if !s.IsValid() {
			badRequest(c, "unknown status "+status)
			return
		}
		filter.Status = s
	}

	runs, total, err := h.store.Run().List(filter)
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to list runs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs, "total": total})
}

// Get handles GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.store.Run().GetByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Events handles GET /api/v1/runs/:id/events
func (h *RunHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Run().GetByID(id); err != nil {
		respondError(c, err)
		return
	}

	list := []events.Event{}
	if h.events != nil {
		if snap := h.events.Snapshot(id); snap != nil {
			list = snap
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Logs handles GET /api/v1/runs/:id/logs
func (h *RunHandler) Logs(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Run().GetByID(id); err != nil {
		respondError(c, err)
		return
	}

	level := model.LogLevel(strings.ToLower(c.Query("level")))
	logs, err := h.store.RunLog().GetByRunID(id, level, parseLimit(c, defaultLogLimit, maxLogLimit))
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load run logs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// Create handles POST /api/v1/runs.
// The issue is fetched from GitHub so the run carries its current title and body.
func (h *RunHandler) Create(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	issue, err := h.provider.GetIssue(c.Request.Context(), req.Owner, req.Repo, req.IssueNumber)
	if err != nil {
		logger.Warn("Failed to fetch issue for manual run",
			zap.String("repo", provider.FullName(req.Owner, req.Repo)),
			zap.Int("issue", req.IssueNumber),
			zap.Error(err))
		respondError(c, errors.Wrap(errors.ErrCodeValidation, "issue not found or not accessible", err))
		return
	}
	if issue.IsPullRequest {
		badRequest(c, "pull requests are not supported")
		return
	}

	run := &model.Run{
		RepoOwner:     req.Owner,
		RepoName:      req.Repo,
		IssueNumber:   issue.Number,
		IssueTitle:    issue.Title,
		IssueBody:     issue.Body,
		TriggeredBy:   c.GetString(middleware.SubjectKey),
		TriggerSource: model.TriggerSourceAPI,
	}
	if err := h.engine.Submit(run); err != nil {
		respondError(c, err)
		return
	}

	logger.Info("Run triggered by API",
		zap.String("run_id", run.ID),
		zap.String("repo", run.FullRepo()),
		zap.Int("issue", run.IssueNumber),
		zap.String("subject", run.TriggeredBy))
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// QueueStatus handles GET /api/v1/queue/status
func (h *RunHandler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetQueueStats())
}
