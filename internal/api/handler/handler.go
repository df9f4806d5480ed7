// Package handler provides the HTTP handlers of the API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AlecFritsch/inito/internal/engine"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/errors"
)

// Listing limits
const (
	defaultLimit    = 20
	maxLimit        = 100
	defaultLogLimit = 500
	maxLogLimit     = 5000
)

// Submitter queues runs for execution
type Submitter interface {
	Submit(run *model.Run) error
	GetQueueStats() engine.QueueStats
}

// respondError writes err as {"code", "message"} with the status of its code
func respondError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		_ = c.Error(err)
		msg := appErr.Message
		if appErr.HTTPStatus() >= http.StatusInternalServerError && gin.Mode() != gin.DebugMode {
			msg = "Internal server error"
		}
		c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{"code": appErr.Code, "message": msg})
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":    errors.ErrCodeInternal,
		"message": "Internal server error",
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":    errors.ErrCodeValidation,
		"message": msg,
	})
}

// parseLimit reads ?limit=, clamped to [1, max]
func parseLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
