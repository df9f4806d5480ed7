package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AlecFritsch/inito/internal/artifact"
	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/credentials"
	"github.com/AlecFritsch/inito/internal/database"
	"github.com/AlecFritsch/inito/internal/engine"
	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/llm"
	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// app holds the wired collaborators shared by serve and run
type app struct {
	cfg       *config.Config
	store     store.Store
	authStore authstore.Store
	provider  provider.Provider
	ring      *events.Ring
	engine    *engine.Engine

	closers []func()
}

// appOptions varies the wiring between the server and the one-shot CLI
type appOptions struct {
	// extraSink receives run events in addition to the ring buffer
	extraSink events.Sink
	// acknowledge posts a start comment on the issue
	acknowledge bool
}

// newApp opens the database and wires the pipeline and engine.
// close must be called even when an error is returned.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, ring: events.NewRing(0)}

	if err := database.InitWithPath(cfg.Database.Path); err != nil {
		return a, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.onClose(func() {
		if err := database.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	})
	a.store = store.NewStore(database.Get())

	runLogs := store.NewRunLogWriter(a.store.RunLog())
	logger.SetRunLogHook(runLogs, zapcore.InfoLevel)
	a.onClose(runLogs.Close)

	sink := events.Multi{a.ring}
	if cfg.Redis.Enabled() {
		rs, err := authstore.NewRedisFromURL(ctx, cfg.Redis.URL)
		if err != nil {
			return a, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.authStore = rs
		stream := events.NewRedisStream(rs.Client(), cfg.Redis.EventStreamMaxLen)
		sink = append(sink, stream)
		a.onClose(stream.Close)
	} else {
		mem := authstore.NewMemory()
		a.authStore = mem
		sweeper := authstore.NewSweeper(mem, cfg.Engine.AuthSweepSchedule)
		if err := sweeper.Start(); err != nil {
			logger.Warn("Failed to start auth store sweeper", zap.Error(err))
		} else {
			a.onClose(sweeper.Stop)
		}
	}
	a.onClose(func() { _ = a.authStore.Close() })
	if opts.extraSink != nil {
		sink = append(sink, opts.extraSink)
	}

	tokens, err := credentials.FromConfig(&cfg.GitHub, a.authStore)
	if err != nil {
		return a, err
	}
	a.provider, err = provider.Create("github", &provider.ProviderOptions{
		Tokens:             tokens,
		BaseURL:            cfg.GitHub.BaseURL,
		InsecureSkipVerify: cfg.GitHub.InsecureSkipVerify,
	})
	if err != nil {
		return a, fmt.Errorf("failed to create GitHub provider: %w", err)
	}

	llmCfg := llm.NewClientConfig(cfg.LLM.Provider).
		WithAPIKey(cfg.LLM.APIKey).
		WithModels(cfg.LLM.Models.Fast, cfg.LLM.Models.Strong)
	if cfg.LLM.Timeout > 0 {
		llmCfg.DefaultTimeout = time.Duration(cfg.LLM.Timeout) * time.Second
	}
	client, err := llm.Create(cfg.LLM.Provider, llmCfg)
	if err != nil {
		return a, err
	}

	sandboxes, err := sandbox.NewDockerManager(sandbox.Options{
		Image:       cfg.Sandbox.Image,
		MemoryBytes: cfg.Sandbox.MemoryMB << 20,
		NanoCPUs:    int64(cfg.Sandbox.CPUs * 1e9),
		Network:     cfg.Sandbox.Network,
	})
	if err != nil {
		return a, err
	}
	a.onClose(func() { _ = sandboxes.Close() })
	if err := sandboxes.Ping(ctx); err != nil {
		return a, err
	}

	lang, err := config.ParseLanguage(cfg.Language)
	if err != nil {
		return a, err
	}

	p := pipeline.New(pipeline.Deps{
		Store:     a.store.Run(),
		Provider:  a.provider,
		Sandboxes: sandboxes,
		LLM:       client,
		Events:    sink,
		Archiver:  artifact.FromConfig(ctx, cfg.Artifacts),
	}, pipeline.Options{
		WorkspaceRoot:  cfg.Sandbox.WorkspaceDir,
		RunTimeout:     time.Duration(cfg.Engine.RunTimeoutMinutes) * time.Minute,
		CommandTimeout: cfg.Sandbox.CommandTimeoutDuration(),
		Language:       lang,
		Acknowledge:    opts.acknowledge,
	})

	a.engine, err = engine.NewEngine(cfg.Engine, a.store.Run(), p, cfg.Sandbox.WorkspaceDir)
	if err != nil {
		return a, err
	}
	return a, nil
}

// defer_ registers a cleanup; cleanups run in reverse order
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
