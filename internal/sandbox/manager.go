package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// ContainerPrefix prefixes every sandbox container name
const ContainerPrefix = "havoc-"

// Options configures provisioned containers
type Options struct {
	Image       string
	MemoryBytes int64
	NanoCPUs    int64
	Network     string
	Env         []string
}

// DefaultOptions returns the standard sandbox limits: 2 GiB memory, one CPU, bridged network
func DefaultOptions() Options {
	return Options{
		Image:       "node:20-bookworm",
		MemoryBytes: 2 << 30,
		NanoCPUs:    1_000_000_000,
		Network:     "bridge",
		Env:         []string{"CI=true", "GIT_TERMINAL_PROMPT=0"},
	}
}

// DockerManager provisions sandboxes as Docker containers
type DockerManager struct {
	backend backend
	opts    Options
}

// NewDockerManager connects to the Docker engine configured by the environment (DOCKER_HOST etc.)
func NewDockerManager(opts Options) (*DockerManager, error) {
	b, err := newDockerBackend()
	if err != nil {
		return nil, errors.ErrProvisioning("container runtime unavailable", err)
	}
	return newManager(b, opts), nil
}

func newManager(b backend, opts Options) *DockerManager {
	def := DefaultOptions()
	if opts.Image == "" {
		opts.Image = def.Image
	}
	if opts.MemoryBytes <= 0 {
		opts.MemoryBytes = def.MemoryBytes
	}
	if opts.NanoCPUs <= 0 {
		opts.NanoCPUs = def.NanoCPUs
	}
	if opts.Network == "" {
		opts.Network = def.Network
	}
	if opts.Env == nil {
		opts.Env = def.Env
	}
	return &DockerManager{backend: b, opts: opts}
}

// Ping checks that the Docker engine is reachable
func (m *DockerManager) Ping(ctx context.Context) error {
	if err := m.backend.Ping(ctx); err != nil {
		return errors.ErrProvisioning("container runtime unavailable", err)
	}
	return nil
}

// Close releases the Docker client
func (m *DockerManager) Close() error {
	return m.backend.Close()
}

// Create provisions and starts the container for a run.
// A partially created container is removed before the error is returned.
func (m *DockerManager) Create(ctx context.Context, runID, workspaceDir string, timeout time.Duration) (Sandbox, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	absDir, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, errors.ErrProvisioning("invalid workspace directory", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, errors.ErrProvisioning("failed to create workspace directory", err)
	}

	log := logger.WithRun(runID)

	if err := m.backend.Ping(ctx); err != nil {
		return nil, errors.ErrProvisioning("container runtime unavailable", err)
	}

	name := ContainerPrefix + runID
	id, err := m.backend.CreateContainer(ctx, containerSpec{
		Name:        name,
		Image:       m.opts.Image,
		HostDir:     absDir,
		MemoryBytes: m.opts.MemoryBytes,
		NanoCPUs:    m.opts.NanoCPUs,
		Network:     m.opts.Network,
		Env:         m.opts.Env,
	})
	if err != nil {
		return nil, errors.ErrProvisioning("failed to create sandbox container", err)
	}

	sb := &dockerSandbox{
		backend:      m.backend,
		id:           id,
		name:         name,
		runID:        runID,
		workspaceDir: absDir,
		timeout:      timeout,
		log:          log,
	}

	if err := m.backend.StartContainer(ctx, id); err != nil {
		sb.Cleanup(context.WithoutCancel(ctx))
		return nil, errors.ErrProvisioning("failed to start sandbox container", err)
	}

	log.Info("Sandbox provisioned",
		zap.String("container", name),
		zap.String("image", m.opts.Image),
		zap.String("workspace", absDir),
		zap.Duration("command_timeout", timeout),
	)
	return sb, nil
}

// dockerSandbox is a running container owned by one run
type dockerSandbox struct {
	backend      backend
	id           string
	name         string
	runID        string
	workspaceDir string
	timeout      time.Duration
	log          *zap.Logger

	cleanupOnce sync.Once
}

func (s *dockerSandbox) ID() string           { return s.id }
func (s *dockerSandbox) WorkspaceDir() string { return s.workspaceDir }

// Exec runs argv in the container, bounded by the sandbox command timeout
func (s *dockerSandbox) Exec(ctx context.Context, argv []string) (*ExecResult, error) {
	return s.exec(ctx, argv, nil)
}

// ExecEnv runs argv with env added to the container environment
func (s *dockerSandbox) ExecEnv(ctx context.Context, argv, env []string) (*ExecResult, error) {
	return s.exec(ctx, argv, env)
}

func (s *dockerSandbox) exec(ctx context.Context, argv, env []string) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeSandboxExec, "empty command")
	}

	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	start := time.Now()

	type outcome struct {
		code int
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		code, err := s.backend.Exec(execCtx, s.id, argv, env, &stdout, &stderr)
		done <- outcome{code, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-execCtx.Done():
		// give the backend a moment to observe the closed stream
		select {
		case res = <-done:
		case <-time.After(2 * time.Second):
			res = outcome{-1, execCtx.Err()}
		}
	}
	duration := time.Since(start)

	telemetry.GetMetrics().RecordSandboxExec(ctx, argv[0], res.code, duration.Seconds())

	if res.err != nil && execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		s.kill(argv)
		s.log.Warn("Sandbox command timed out",
			zap.Strings("argv", argv),
			zap.Duration("timeout", s.timeout),
		)
		return nil, errors.ErrTimeout(
			fmt.Sprintf("command %q exceeded %s", strings.Join(argv, " "), s.timeout), execCtx.Err())
	}
	if res.err != nil {
		if ctx.Err() != nil {
			return nil, errors.ErrTimeout("run deadline exceeded", ctx.Err())
		}
		return nil, errors.Wrap(errors.ErrCodeSandboxExec, "sandbox exec failed", res.err)
	}

	return &ExecResult{
		ExitCode: res.code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}

// kill terminates a timed-out command with a second exec
func (s *dockerSandbox) kill(argv []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pattern := strings.Join(argv, " ")
	var discard bytes.Buffer
	if _, err := s.backend.Exec(ctx, s.id, []string{"pkill", "-KILL", "-f", pattern}, nil, &discard, &discard); err != nil {
		s.log.Warn("Failed to kill timed out command", zap.String("pattern", pattern), zap.Error(err))
	}
}

// Cleanup stops and removes the container and deletes the workspace
func (s *dockerSandbox) Cleanup(ctx context.Context) {
	s.cleanupOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if s.id != "" {
			if err := s.backend.StopContainer(ctx, s.id, int(stopGrace.Seconds())); err != nil {
				s.log.Warn("Failed to stop sandbox container", zap.String("container", s.name), zap.Error(err))
			}
			if err := s.backend.RemoveContainer(ctx, s.id); err != nil {
				s.log.Warn("Failed to remove sandbox container", zap.String("container", s.name), zap.Error(err))
			}
		}

		if s.workspaceDir != "" {
			if err := os.RemoveAll(s.workspaceDir); err != nil {
				s.log.Warn("Failed to remove workspace", zap.String("dir", s.workspaceDir), zap.Error(err))
			}
		}

		s.log.Info("Sandbox cleaned up", zap.String("container", s.name))
	})
}
