package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/api/middleware"
	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/engine"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/git/provider/providertest"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/internal/trigger"
	"github.com/AlecFritsch/inito/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type nopEngine struct{}

func (nopEngine) Submit(run *model.Run) error {
	run.ID = "r1"
	return nil
}

func (nopEngine) GetQueueStats() engine.QueueStats { return engine.QueueStats{} }

func setup(t *testing.T, secret string) (*gin.Engine, store.Store) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	cfg := config.Default()
	cfg.API.JWTSecret = secret
	cfg.Server.CORSOrigins = []string{"http://localhost:3000"}

	fake := providertest.New()
	fake.Webhook = &provider.WebhookEvent{Type: provider.EventTypePing}

	r := gin.New()
	Setup(r, Deps{
		Config:   cfg,
		Store:    s,
		Engine:   nopEngine{},
		Provider: fake,
		Deduper:  trigger.NewDeduper(authstore.NewMemory(), 0),
		Events:   events.NewRing(10),
	})
	return r, s
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetup_Health(t *testing.T) {
	r, _ := setup(t, "")

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSetup_Routes(t *testing.T) {
	r, _ := setup(t, "")

	routes := make(map[string]bool)
	for _, rt := range r.Routes() {
		routes[rt.Method+" "+rt.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"POST /api/v1/webhooks/github",
		"GET /api/v1/runs",
		"POST /api/v1/runs",
		"GET /api/v1/runs/:id",
		"GET /api/v1/runs/:id/events",
		"GET /api/v1/runs/:id/logs",
		"GET /api/v1/queue/status",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}

func TestSetup_OpenWithoutSecret(t *testing.T) {
	r, _ := setup(t, "")

	w := serve(r, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetup_AuthRequiredWithSecret(t *testing.T) {
	const secret = "s3cret"
	r, s := setup(t, secret)
	run := store.CreateTestRun(t, s)

	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/" + run.ID, "/api/v1/queue/status"} {
		w := serve(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	token, err := middleware.IssueToken(secret, "ci", time.Hour)
	require.NoError(t, err)
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/" + run.ID, "/api/v1/queue/status"} {
		w := serve(r, http.MethodGet, path, token)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetup_WebhookIsPublic(t *testing.T) {
	r, _ := setup(t, "s3cret")

	w := serve(r, http.MethodPost, "/api/v1/webhooks/github", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetup_CORSPreflight(t *testing.T) {
	r, _ := setup(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
