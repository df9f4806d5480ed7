// Package sandbox runs repository commands inside an isolated container.
//
// The Manager provisions one container per run with the run's workspace
// bind-mounted at /workspace. The Runner layers the command allow-list,
// an audit log and file/git helpers on top of a Sandbox.
package sandbox

import (
	"context"
	"time"
)

// WorkDir is the mount point of the run workspace inside the sandbox
const WorkDir = "/workspace"

// DefaultCommandTimeout bounds a single command when no timeout is configured
const DefaultCommandTimeout = 10 * time.Minute

// ExecResult is the outcome of one command
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Success reports a zero exit code
func (r *ExecResult) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns stdout followed by stderr
func (r *ExecResult) Output() string {
	if r == nil {
		return ""
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs a command vector inside an environment
type Executor interface {
	// Exec runs argv with WorkDir as working directory. A command that runs
	// past the sandbox deadline is killed and a timeout error (E2103) is returned.
	Exec(ctx context.Context, argv []string) (*ExecResult, error)
}

// Sandbox is a provisioned, running environment bound to one run
type Sandbox interface {
	Executor

	// ExecEnv is Exec with extra environment variables in KEY=value form.
	// The variables are visible to argv only and never appear in it.
	ExecEnv(ctx context.Context, argv, env []string) (*ExecResult, error)

	// ID returns the container id
	ID() string

	// WorkspaceDir returns the host directory mounted at WorkDir
	WorkspaceDir() string

	// Cleanup stops and removes the environment and deletes the workspace.
	// It never fails; problems are logged. Safe to call more than once.
	Cleanup(ctx context.Context)
}

// Manager provisions sandboxes
type Manager interface {
	// Create provisions a sandbox for runID with workspaceDir mounted read-write.
	// timeout bounds every command executed in it. Fails with a provisioning error (E2101).
	Create(ctx context.Context, runID, workspaceDir string, timeout time.Duration) (Sandbox, error)

	// Ping checks that the container runtime is reachable
	Ping(ctx context.Context) error

	Close() error
}
