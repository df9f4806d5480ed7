// Package server runs the HTTP server and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/api/router"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// HTTP server timeout configuration
const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	deps       router.Deps
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
}

// New creates a server. deps.Config is set to cfg.
func New(cfg *config.Config, deps router.Deps) *Server {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	deps.Config = cfg

	return &Server{
		cfg:    cfg,
		deps:   deps,
		router: gin.New(),
		errCh:  make(chan error, 1),
	}
}

// SetupRoutes registers the API routes
func (s *Server) SetupRoutes() {
	router.Setup(s.router, s.deps)
}

// Start binds the configured address and serves in the background.
// Bind errors are returned; later serve errors are reported by Wait.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	logger.Info("Starting HTTP server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("debug", s.cfg.Server.Debug))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// WaitForShutdown blocks until SIGINT/SIGTERM, ctx is done or the server
// fails, then shuts the server down gracefully. A second signal forces exit.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal, starting graceful shutdown (press Ctrl+C again to force exit)",
			zap.String("signal", sig.String()))
		go func() {
			sig := <-quit
			logger.Warn("Received second shutdown signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		}()
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err, ok := <-s.errCh:
		if ok && err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
