// Package router sets up the API routes of the server.
// The one-shot CLI does not use it.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/internal/api/handler"
	"github.com/AlecFritsch/inito/internal/api/middleware"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/internal/trigger"
)

// Deps holds the collaborators the routes are served from
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Engine   handler.Submitter
	Provider provider.Provider
	Deduper  *trigger.Deduper
	Events   handler.EventSource
}

// Setup configures all API routes
func Setup(r *gin.Engine, d Deps) {
	cfg := d.Config

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))
	r.Use(otelgin.Middleware(consts.ServiceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	// Webhooks authenticate with the webhook secret, not a bearer token
	webhookHandler := handler.NewWebhookHandler(d.Provider, cfg.GitHub.WebhookSecret, d.Engine, d.Deduper)
	v1.POST("/webhooks/github", webhookHandler.HandleGitHub)

	auth := middleware.JWTAuth(middleware.NewHMACValidator(cfg.API.JWTSecret))
	runHandler := handler.NewRunHandler(d.Store, d.Engine, d.Provider, d.Events)

	runs := v1.Group("/runs")
	runs.Use(auth)
	{
		runs.GET("", runHandler.List)
		runs.POST("", runHandler.Create)
		runs.GET("/:id", runHandler.Get)
		runs.GET("/:id/events", runHandler.Events)
		runs.GET("/:id/logs", runHandler.Logs)
	}

	v1.GET("/queue/status", auth, runHandler.QueueStatus)
}
