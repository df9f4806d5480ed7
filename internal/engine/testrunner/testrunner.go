// Package testrunner installs dependencies, runs the repository's tests and lint
// inside the sandbox and normalizes their output.
//
// Dependencies are installed only when the repository has a package.json.
// Other repositories go straight to their test command, which is expected to
// bring whatever it needs.
package testrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// maxOutput bounds the output kept on results
const maxOutput = 8 * 1024

// npmDefaultTestScript is what npm init writes; it is not a real test suite
const npmDefaultTestScript = `echo "Error: no test specified" && exit 1`

// CommandRunner is the slice of *sandbox.Runner used here
type CommandRunner interface {
	RunErr(ctx context.Context, command string) (*sandbox.ExecResult, error)
	InstallDependencies(ctx context.Context) (*sandbox.ExecResult, error)
	FileExists(ctx context.Context, path string) bool
	ReadFile(ctx context.Context, path string) (string, error)
}

// TestRunner runs tests and lint through a CommandRunner
type TestRunner struct {
	runner CommandRunner
	log    *zap.Logger
}

// New creates a TestRunner
func New(runner CommandRunner, log *zap.Logger) *TestRunner {
	if log == nil {
		log = logger.Get()
	}
	return &TestRunner{runner: runner, log: log}
}

// RunTests installs dependencies and runs testCommand, detecting it when empty.
// Only sandbox timeouts are returned as errors; every other problem is
// reported on the result with Ran=false.
func (t *TestRunner) RunTests(ctx context.Context, testCommand string) (*model.TestResults, error) {
	start := time.Now()

	if t.runner.FileExists(ctx, "package.json") {
		install, err := t.runner.InstallDependencies(ctx)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeTimeout) {
				return nil, err
			}
			return &model.TestResults{Error: "dependency install failed: " + err.Error(), Duration: time.Since(start)}, nil
		}
		if !install.Success() {
			t.log.Warn("Dependency install failed, skipping tests", zap.Int("exit_code", install.ExitCode))
			return &model.TestResults{
				Error:    "dependency install failed: " + tail(strings.TrimSpace(install.Output()), 2000),
				Output:   tail(install.Output(), maxOutput),
				Duration: time.Since(start),
			}, nil
		}
	}

	if strings.TrimSpace(testCommand) == "" {
		testCommand = t.DetectTestCommand(ctx)
	}
	if testCommand == "" {
		return &model.TestResults{Error: "no test command configured or detected", Duration: time.Since(start)}, nil
	}

	res, err := t.runner.RunErr(ctx, testCommand)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeTimeout) {
			return nil, err
		}
		return &model.TestResults{Command: testCommand, Error: err.Error(), Duration: time.Since(start)}, nil
	}
	if res.ExitCode == sandbox.ExitCodeNotAllowed && strings.HasPrefix(res.Stderr, "command not allowed") {
		return &model.TestResults{Command: testCommand, Error: res.Stderr, Duration: time.Since(start)}, nil
	}

	output := stripANSI(res.Output())
	counts, parser := ParseOutput(output)

	results := &model.TestResults{
		Ran:         true,
		Passed:      res.ExitCode == 0 && counts.Failed == 0,
		Command:     testCommand,
		Total:       counts.Total,
		PassedCount: counts.Passed,
		Failed:      counts.Failed,
		Skipped:     counts.Skipped,
		Parser:      parser,
		Duration:    time.Since(start),
		Output:      tail(output, maxOutput),
	}
	if counts.Total > 0 {
		results.PassRate = float64(counts.Passed) / float64(counts.Total) * 100
	}

	t.log.Info("Tests finished",
		zap.String("command", testCommand),
		zap.Int("exit_code", res.ExitCode),
		zap.String("parser", parser),
		zap.Int("total", results.Total),
		zap.Int("failed", results.Failed),
		zap.Float64("pass_rate", results.PassRate),
	)
	return results, nil
}

// DetectTestCommand guesses the test command from the project files
func (t *TestRunner) DetectTestCommand(ctx context.Context) string {
	if content, err := t.runner.ReadFile(ctx, "package.json"); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal([]byte(content), &pkg) == nil {
			if script := strings.TrimSpace(pkg.Scripts["test"]); script != "" && script != npmDefaultTestScript {
				return "npm test"
			}
		}
	}

	switch {
	case t.runner.FileExists(ctx, "go.mod"):
		return "go test ./..."
	case t.runner.FileExists(ctx, "pytest.ini"), t.runner.FileExists(ctx, "pyproject.toml"):
		return "pytest"
	case t.runner.FileExists(ctx, "Cargo.toml"):
		return "cargo test"
	}
	return ""
}

// RunLint runs the lint command best-effort. Failures of any kind yield Ran=false, never an error.
func (t *TestRunner) RunLint(ctx context.Context, lintCommand string) *model.LintResults {
	if strings.TrimSpace(lintCommand) == "" {
		return &model.LintResults{}
	}

	res, err := t.runner.RunErr(ctx, lintCommand)
	if err != nil {
		t.log.Warn("Lint could not run", zap.String("command", lintCommand), zap.Error(err))
		return &model.LintResults{Output: err.Error()}
	}
	if res.ExitCode == sandbox.ExitCodeNotAllowed && strings.HasPrefix(res.Stderr, "command not allowed") {
		return &model.LintResults{Output: res.Stderr}
	}

	output := stripANSI(res.Output())
	lower := strings.ToLower(output)
	return &model.LintResults{
		Ran:      true,
		Passed:   res.ExitCode == 0,
		Errors:   strings.Count(lower, "error"),
		Warnings: strings.Count(lower, "warning"),
		Output:   tail(output, maxOutput),
	}
}

// tail keeps the last n bytes of s
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("...(truncated)\n%s", s[len(s)-n:])
}
