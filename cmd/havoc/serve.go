package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/internal/api/router"
	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/notification"
	"github.com/AlecFritsch/inito/internal/server"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/internal/trigger"
	"github.com/AlecFritsch/inito/pkg/logger"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

const telemetryShutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and the run engine",
	Long: `Start the HTTP server that receives GitHub webhooks and serves the run API.

Comment "/havoc" on an issue, or add the "havoc" label, to start a run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		if err := logger.Init(cfg.Logging); err != nil {
			return err
		}
	}
	defer logger.Sync()

	consts.SetStartedAt(time.Now())
	logger.Info("Starting havoc", zap.String("version", Version))

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, appOptions{acknowledge: true})
	defer a.close()
	if err != nil {
		return err
	}

	cleanup := store.NewRunLogCleanupService(a.store.RunLog(), store.DefaultRunLogRetentionDays)
	if err := cleanup.Start(); err != nil {
		logger.Warn("Failed to start run log cleanup", zap.Error(err))
	} else {
		defer cleanup.Stop()
	}

	notifier := notification.NewManager(cfg.Notifications)
	a.engine.SetOnComplete(func(run *model.Run, result pipeline.Result) {
		logger.Info("Run finished",
			zap.String("run_id", run.ID),
			zap.String("repo", run.FullRepo()),
			zap.Bool("success", result.Success),
			zap.Int("confidence", result.ConfidenceScore),
			zap.String("pr_url", result.PRURL),
			zap.String("error", result.Error))

		if !notifier.IsEnabled() {
			return
		}
		if stored, err := a.store.Run().GetByID(run.ID); err == nil {
			run = stored
		}
		// failures are logged by the notifier
		_ = notifier.NotifyRun(context.Background(), run, result)
	})
	if err := a.engine.Start(); err != nil {
		return err
	}
	defer a.engine.Stop()

	dedupTTL := time.Duration(cfg.Engine.DedupWindowMinutes) * time.Minute
	srv := server.New(cfg, router.Deps{
		Store:    a.store,
		Engine:   a.engine,
		Provider: a.provider,
		Deduper:  trigger.NewDeduper(a.authStore, dedupTTL),
		Events:   a.ring,
	})
	srv.SetupRoutes()
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("havoc is running",
		zap.String("address", srv.Addr()),
		zap.Bool("auth", cfg.API.JWTSecret != ""))

	err = srv.WaitForShutdown(ctx)
	logger.Info("havoc stopped", zap.Duration("uptime", consts.GetUptime()))
	return err
}
