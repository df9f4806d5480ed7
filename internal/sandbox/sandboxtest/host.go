// Package sandboxtest runs sandbox commands directly on the host so the
// pipeline can be exercised end to end without a container runtime.
// Commands are not isolated; use it in tests only.
package sandboxtest

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/pkg/errors"
)

// HostManager creates HostSandboxes
type HostManager struct {
	// Home is used as $HOME for every command so git config --global stays local
	Home string
	// CreateErr fails every Create when set
	CreateErr error

	mu      sync.Mutex
	created []*HostSandbox
}

// NewHostManager returns a manager whose commands see home as $HOME
func NewHostManager(home string) *HostManager {
	return &HostManager{Home: home}
}

// Create implements sandbox.Manager
func (m *HostManager) Create(_ context.Context, runID, workspaceDir string, timeout time.Duration) (sandbox.Sandbox, error) {
	if m.CreateErr != nil {
		return nil, errors.ErrProvisioning("host sandbox unavailable", m.CreateErr)
	}
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, errors.ErrProvisioning("failed to create workspace directory", err)
	}
	s := &HostSandbox{id: sandbox.ContainerPrefix + runID, dir: workspaceDir, home: m.Home, timeout: timeout}
	m.mu.Lock()
	m.created = append(m.created, s)
	m.mu.Unlock()
	return s, nil
}

// Ping implements sandbox.Manager
func (m *HostManager) Ping(context.Context) error { return nil }

// Close implements sandbox.Manager
func (m *HostManager) Close() error { return nil }

// Sandboxes returns every sandbox created so far
func (m *HostManager) Sandboxes() []*HostSandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*HostSandbox(nil), m.created...)
}

// HostSandbox maps sandbox.WorkDir onto a host directory
type HostSandbox struct {
	id      string
	dir     string
	home    string
	timeout time.Duration

	mu       sync.Mutex
	commands [][]string
	cleaned  bool
}

func (s *HostSandbox) ID() string           { return s.id }
func (s *HostSandbox) WorkspaceDir() string { return s.dir }

// Commands returns the argv of every Exec call, before path rewriting
func (s *HostSandbox) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.commands...)
}

// Cleaned reports whether Cleanup ran
func (s *HostSandbox) Cleaned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaned
}

// Exec runs argv on the host with sandbox.WorkDir replaced by the workspace directory
func (s *HostSandbox) Exec(ctx context.Context, argv []string) (*sandbox.ExecResult, error) {
	return s.ExecEnv(ctx, argv, nil)
}

// ExecEnv is Exec with env appended to the command environment
func (s *HostSandbox) ExecEnv(ctx context.Context, argv, env []string) (*sandbox.ExecResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, argv)
	s.mu.Unlock()

	if len(argv) == 0 {
		return &sandbox.ExecResult{ExitCode: -1, Stderr: "empty command"}, nil
	}

	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = strings.ReplaceAll(a, sandbox.WorkDir, s.dir)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.dir
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "HOME="+s.home, "GIT_CONFIG_NOSYSTEM=1", "CI=true", "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &sandbox.ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.ErrTimeout("command timed out: "+strings.Join(argv, " "), ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case stderrors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = 127
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res, nil
}

// Cleanup removes the workspace directory
func (s *HostSandbox) Cleanup(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return
	}
	s.cleaned = true
	_ = os.RemoveAll(s.dir)
}

var (
	_ sandbox.Manager = (*HostManager)(nil)
	_ sandbox.Sandbox = (*HostSandbox)(nil)
)
