package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// ExitCodeNotAllowed is the exit code reported for commands rejected by the allow-list
const ExitCodeNotAllowed = 126

// writeChunkSize keeps each printf argument below the kernel's per-argument limit
const writeChunkSize = 64 * 1024

// ErrFileNotFound is returned by ReadFile for a missing file
var ErrFileNotFound = stderrors.New("file not found")

// AuditEntry records one attempted command
type AuditEntry struct {
	Command  string    `json:"command"`
	Allowed  bool      `json:"allowed"`
	ExitCode int       `json:"exit_code"`
	At       time.Time `json:"at"`
}

// Runner executes repository commands in a sandbox behind an allow-list.
//
// Commands passed to Run are checked against the allow-list, split into argv
// without a shell, and recorded in the audit log. File and git helpers use
// fixed internal commands that bypass the allow-list.
type Runner struct {
	exec    Executor
	allowed []string
	log     *zap.Logger

	mu    sync.Mutex
	audit []AuditEntry

	gitOnce sync.Once
}

// NewRunner creates a Runner over exec with the given allow-list entries
func NewRunner(exec Executor, allowed []string, log *zap.Logger) *Runner {
	if log == nil {
		log = logger.Get()
	}
	entries := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			entries = append(entries, a)
		}
	}
	return &Runner{exec: exec, allowed: entries, log: log}
}

// IsAllowed reports whether command equals an allow-list entry or starts with
// an entry followed by a space. "git" allows "git status" but not "gitx status".
func (r *Runner) IsAllowed(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, entry := range r.allowed {
		if command == entry || strings.HasPrefix(command, entry+" ") {
			return true
		}
	}
	return false
}

// Run executes command if allowed. It never returns an error: rejected
// commands yield exit code 126, execution failures yield exit code -1.
func (r *Runner) Run(ctx context.Context, command string) *ExecResult {
	res, err := r.RunErr(ctx, command)
	if err != nil {
		return &ExecResult{ExitCode: -1, Stderr: err.Error()}
	}
	return res
}

// RunErr is Run but surfaces sandbox errors (timeouts in particular) to the caller.
// A rejected command is still a result, not an error.
func (r *Runner) RunErr(ctx context.Context, command string) (*ExecResult, error) {
	command = strings.TrimSpace(command)

	if !r.IsAllowed(command) {
		token := firstToken(command)
		res := &ExecResult{
			ExitCode: ExitCodeNotAllowed,
			Stderr:   "command not allowed: " + token,
		}
		r.record(command, false, res.ExitCode)
		telemetry.GetMetrics().RecordSandboxRejected(ctx, token)
		r.log.Warn("Rejected command not in allow-list", zap.String("command", command))
		return res, nil
	}

	argv, err := SplitCommand(command)
	if err != nil {
		res := &ExecResult{ExitCode: 2, Stderr: "invalid command: " + err.Error()}
		r.record(command, true, res.ExitCode)
		return res, nil
	}

	res, err := r.exec.Exec(ctx, argv)
	if err != nil {
		r.record(command, true, -1)
		r.log.Warn("Command failed to execute", zap.String("command", command), zap.Error(err))
		return nil, err
	}

	r.record(command, true, res.ExitCode)
	r.log.Debug("Command finished",
		zap.String("command", command),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// RunAll runs commands in order and stops after the first non-zero exit
func (r *Runner) RunAll(ctx context.Context, commands []string) []*ExecResult {
	results := make([]*ExecResult, 0, len(commands))
	for _, c := range commands {
		res := r.Run(ctx, c)
		results = append(results, res)
		if res.ExitCode != 0 {
			break
		}
	}
	return results
}

// AuditLog returns a copy of every attempted command
func (r *Runner) AuditLog() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.audit))
	copy(out, r.audit)
	return out
}

func (r *Runner) record(command string, allowed bool, exitCode int) {
	r.mu.Lock()
	r.audit = append(r.audit, AuditEntry{
		Command:  command,
		Allowed:  allowed,
		ExitCode: exitCode,
		At:       time.Now(),
	})
	r.mu.Unlock()
}

// InstallCommand picks the install command from the lockfiles present
func (r *Runner) InstallCommand(ctx context.Context) string {
	switch {
	case r.FileExists(ctx, "pnpm-lock.yaml"):
		return "pnpm install --frozen-lockfile"
	case r.FileExists(ctx, "yarn.lock"):
		return "yarn install --frozen-lockfile"
	default:
		return "npm install"
	}
}

// InstallDependencies installs packages with the package manager matching the lockfile
func (r *Runner) InstallDependencies(ctx context.Context) (*ExecResult, error) {
	command := r.InstallCommand(ctx)
	if strings.HasPrefix(command, "pnpm") {
		// node images ship pnpm through corepack only
		_, _ = r.internal(ctx, "corepack", "enable")
	}
	return r.RunErr(ctx, command)
}

// internal runs a fixed helper command, bypassing the allow-list and audit log
func (r *Runner) internal(ctx context.Context, argv ...string) (*ExecResult, error) {
	return r.exec.Exec(ctx, argv)
}

// resolve maps a repository relative path to an absolute path under WorkDir
func resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	var full string
	if path.IsAbs(p) {
		full = path.Clean(p)
	} else {
		full = path.Join(WorkDir, p)
	}
	if full != WorkDir && !strings.HasPrefix(full, WorkDir+"/") {
		return "", fmt.Errorf("path %q escapes the workspace", p)
	}
	return full, nil
}

// FileExists reports whether path is a regular file
func (r *Runner) FileExists(ctx context.Context, p string) bool {
	full, err := resolve(p)
	if err != nil {
		return false
	}
	res, err := r.internal(ctx, "test", "-f", full)
	return err == nil && res.ExitCode == 0
}

// ReadFile returns the content of path. Missing files yield ErrFileNotFound.
func (r *Runner) ReadFile(ctx context.Context, p string) (string, error) {
	full, err := resolve(p)
	if err != nil {
		return "", err
	}
	if !r.FileExists(ctx, p) {
		return "", fmt.Errorf("%s: %w", p, ErrFileNotFound)
	}
	res, err := r.internal(ctx, "cat", "--", full)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("failed to read %s: %s", p, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// WriteFile writes content to path through sh and printf, then verifies the file exists.
// Content is single-quote escaped so no shell expansion takes place.
func (r *Runner) WriteFile(ctx context.Context, p, content string) error {
	full, err := resolve(p)
	if err != nil {
		return err
	}

	redirect := ">"
	for offset := 0; ; offset += writeChunkSize {
		end := offset + writeChunkSize
		if end > len(content) {
			end = len(content)
		}
		script := fmt.Sprintf("printf '%%s' %s %s %s", shellQuote(content[offset:end]), redirect, shellQuote(full))
		res, err := r.internal(ctx, "sh", "-c", script)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("failed to write %s: %s", p, strings.TrimSpace(res.Stderr))
		}
		redirect = ">>"
		if end >= len(content) {
			break
		}
	}

	if !r.FileExists(ctx, p) {
		return fmt.Errorf("write to %s could not be verified", p)
	}
	return nil
}

// Mkdir creates path and any missing parents
func (r *Runner) Mkdir(ctx context.Context, p string) error {
	full, err := resolve(p)
	if err != nil {
		return err
	}
	res, err := r.internal(ctx, "mkdir", "-p", full)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to create directory %s: %s", p, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// DeleteFile removes path; a missing file is not an error
func (r *Runner) DeleteFile(ctx context.Context, p string) error {
	full, err := resolve(p)
	if err != nil {
		return err
	}
	res, err := r.internal(ctx, "rm", "-f", "--", full)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to delete %s: %s", p, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ListFiles returns repository relative file paths under dir up to maxDepth,
// skipping .git and node_modules. Results are sorted.
func (r *Runner) ListFiles(ctx context.Context, dir string, maxDepth int) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	full, err := resolve(dir)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = 4
	}

	res, err := r.internal(ctx, "find", full,
		"-maxdepth", fmt.Sprint(maxDepth),
		"-type", "f",
		"-not", "-path", "*/.git/*",
		"-not", "-path", "*/node_modules/*",
	)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("failed to list %s: %s", dir, strings.TrimSpace(res.Stderr))
	}

	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, strings.TrimPrefix(line, WorkDir+"/"))
	}
	sort.Strings(files)
	return files, nil
}

// git runs a git subcommand in the workspace
func (r *Runner) git(ctx context.Context, args ...string) (*ExecResult, error) {
	r.gitOnce.Do(func() {
		// the bind mount is owned by the host user, not the container user
		_, _ = r.internal(ctx, "git", "config", "--global", "--add", "safe.directory", WorkDir)
	})
	res, err := r.internal(ctx, append([]string{"git", "-C", WorkDir}, args...)...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, errors.New(errors.ErrCodeSandboxExec,
			fmt.Sprintf("git %s failed: %s", args[0], strings.TrimSpace(res.Output())))
	}
	return res, nil
}

// StageAll stages every change in the workspace
func (r *Runner) StageAll(ctx context.Context) error {
	_, err := r.git(ctx, "add", "-A")
	return err
}

// StagedDiff returns the diff of the index against HEAD
func (r *Runner) StagedDiff(ctx context.Context) (string, error) {
	res, err := r.git(ctx, "diff", "--cached")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// StagedFiles returns the paths with staged changes
func (r *Runner) StagedFiles(ctx context.Context) ([]string, error) {
	res, err := r.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CreateBranch creates and checks out a new branch
func (r *Runner) CreateBranch(ctx context.Context, name string) error {
	_, err := r.git(ctx, "checkout", "-b", name)
	return err
}

// Commit sets the bot identity and commits the staged changes
func (r *Runner) Commit(ctx context.Context, message string) error {
	if _, err := r.git(ctx, "config", "user.name", consts.BotName); err != nil {
		return err
	}
	if _, err := r.git(ctx, "config", "user.email", consts.BotEmail); err != nil {
		return err
	}
	_, err := r.git(ctx, "commit", "-m", message)
	return err
}
