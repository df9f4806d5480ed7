package sandbox

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/pkg/errors"
)

func TestRunner_IsAllowed(t *testing.T) {
	r := NewRunner(newFakeExecutor(), []string{"npm", "git", "npx jest", " "}, nil)

	tests := []struct {
		command string
		want    bool
	}{
		{"npm", true},
		{"npm test", true},
		{"git status", true},
		{"gitX status", false},
		{"npmx install", false},
		{"npx jest --ci", true},
		{"npx vitest", false},
		{"rm -rf /", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsAllowed(tt.command))
		})
	}
}

func TestRunner_RunRejected(t *testing.T) {
	fe := newFakeExecutor()
	r := NewRunner(fe, []string{"npm"}, nil)

	res := r.Run(context.Background(), "curl http://evil.example")
	assert.Equal(t, ExitCodeNotAllowed, res.ExitCode)
	assert.Equal(t, "command not allowed: curl", res.Stderr)
	assert.Zero(t, fe.callCount())

	audit := r.AuditLog()
	require.Len(t, audit, 1)
	assert.False(t, audit[0].Allowed)
	assert.Equal(t, "curl http://evil.example", audit[0].Command)
	assert.Equal(t, ExitCodeNotAllowed, audit[0].ExitCode)
}

func TestRunner_RunAllowed(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("npm test -- --ci", &ExecResult{ExitCode: 1, Stdout: "Tests: 1 failed"})
	r := NewRunner(fe, []string{"npm"}, nil)

	res := r.Run(context.Background(), "npm test -- --ci")
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "Tests: 1 failed", res.Stdout)

	audit := r.AuditLog()
	require.Len(t, audit, 1)
	assert.True(t, audit[0].Allowed)
	assert.Equal(t, 1, audit[0].ExitCode)
}

func TestRunner_RunRejectsShellOperators(t *testing.T) {
	fe := newFakeExecutor()
	r := NewRunner(fe, []string{"npm"}, nil)

	res := r.Run(context.Background(), "npm test; rm -rf /")
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, res.Stderr, "invalid command")
	assert.Zero(t, fe.callCount())
}

func TestRunner_RunInvalidSyntax(t *testing.T) {
	fe := newFakeExecutor()
	r := NewRunner(fe, []string{"npm"}, nil)

	res := r.Run(context.Background(), "npm run 'broken")
	assert.Equal(t, 2, res.ExitCode)
	assert.Zero(t, fe.callCount())
}

func TestRunner_RunErrSurfacesTimeout(t *testing.T) {
	fe := newFakeExecutor()
	fe.errs["npm test"] = errors.ErrTimeout("command exceeded", context.DeadlineExceeded)
	r := NewRunner(fe, []string{"npm"}, nil)

	_, err := r.RunErr(context.Background(), "npm test")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))

	res := r.Run(context.Background(), "npm test")
	assert.Equal(t, -1, res.ExitCode)

	audit := r.AuditLog()
	require.Len(t, audit, 2)
	assert.Equal(t, -1, audit[0].ExitCode)
}

func TestRunner_RunAllStopsOnFailure(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("npm run build", &ExecResult{ExitCode: 2})
	r := NewRunner(fe, []string{"npm"}, nil)

	results := r.RunAll(context.Background(), []string{"npm ci", "npm run build", "npm test"})
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ExitCode)
	assert.Equal(t, 2, results[1].ExitCode)
	assert.False(t, fe.called("npm test"))
}

func TestRunner_InstallCommand(t *testing.T) {
	tests := []struct {
		name     string
		lockfile string
		want     string
	}{
		{"pnpm", "pnpm-lock.yaml", "pnpm install --frozen-lockfile"},
		{"yarn", "yarn.lock", "yarn install --frozen-lockfile"},
		{"npm fallback", "", "npm install"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFakeExecutor()
			fe.fallback = func(argv []string) *ExecResult {
				if argv[0] == "test" {
					if tt.lockfile != "" && argv[2] == WorkDir+"/"+tt.lockfile {
						return &ExecResult{}
					}
					return &ExecResult{ExitCode: 1}
				}
				return &ExecResult{}
			}
			r := NewRunner(fe, []string{"npm", "yarn", "pnpm"}, nil)
			assert.Equal(t, tt.want, r.InstallCommand(context.Background()))
		})
	}
}

func TestRunner_InstallDependenciesUsesAllowList(t *testing.T) {
	fe := newFakeExecutor()
	fe.fallback = func(argv []string) *ExecResult {
		if argv[0] == "test" {
			return &ExecResult{ExitCode: 1}
		}
		return &ExecResult{}
	}
	r := NewRunner(fe, []string{"yarn"}, nil)

	res, err := r.InstallDependencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitCodeNotAllowed, res.ExitCode)
	assert.False(t, fe.called("npm install"))
}

func TestRunner_ReadFile(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("test -f /workspace/src/index.js", &ExecResult{})
	fe.on("cat -- /workspace/src/index.js", &ExecResult{Stdout: "module.exports = 1\n"})
	fe.on("test -f /workspace/missing.js", &ExecResult{ExitCode: 1})
	r := NewRunner(fe, nil, nil)

	content, err := r.ReadFile(context.Background(), "src/index.js")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1\n", content)

	_, err = r.ReadFile(context.Background(), "missing.js")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrFileNotFound))

	_, err = r.ReadFile(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, ErrFileNotFound))
}

func TestRunner_WriteFile(t *testing.T) {
	fe := newFakeExecutor()
	r := NewRunner(fe, nil, nil)

	err := r.WriteFile(context.Background(), "src/a.js", "const s = 'x';\n")
	require.NoError(t, err)

	require.Len(t, fe.calls, 2)
	assert.Equal(t, "sh", fe.calls[0][0])
	assert.Equal(t, `printf '%s' 'const s = '\''x'\'';`+"\n"+`' > '/workspace/src/a.js'`, fe.calls[0][2])
	assert.Equal(t, []string{"test", "-f", "/workspace/src/a.js"}, fe.calls[1])
}

func TestRunner_WriteFileChunksLargeContent(t *testing.T) {
	fe := newFakeExecutor()
	r := NewRunner(fe, nil, nil)

	content := strings.Repeat("a", writeChunkSize+10)
	require.NoError(t, r.WriteFile(context.Background(), "big.txt", content))

	require.Len(t, fe.calls, 3)
	assert.Contains(t, fe.calls[0][2], " > '/workspace/big.txt'")
	assert.Contains(t, fe.calls[1][2], " >> '/workspace/big.txt'")
}

func TestRunner_WriteFileVerifyFails(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("test -f /workspace/a.js", &ExecResult{ExitCode: 1})
	r := NewRunner(fe, nil, nil)

	assert.Error(t, r.WriteFile(context.Background(), "a.js", "x"))
}

func TestRunner_ListFiles(t *testing.T) {
	fe := newFakeExecutor()
	fe.fallback = func(argv []string) *ExecResult {
		if argv[0] == "find" {
			return &ExecResult{Stdout: "/workspace/src/b.js\n/workspace/package.json\n/workspace/src/a.js\n"}
		}
		return &ExecResult{}
	}
	r := NewRunner(fe, nil, nil)

	files, err := r.ListFiles(context.Background(), "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", "src/a.js", "src/b.js"}, files)
}

func TestRunner_GitHelpers(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("git -C /workspace diff --cached --name-only", &ExecResult{Stdout: "src/a.js\nREADME.md\n"})
	fe.on("git -C /workspace diff --cached", &ExecResult{Stdout: "diff --git a/src/a.js b/src/a.js\n"})
	r := NewRunner(fe, nil, nil)
	ctx := context.Background()

	require.NoError(t, r.CreateBranch(ctx, "havoc/issue-1-abc"))
	require.NoError(t, r.StageAll(ctx))

	files, err := r.StagedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.js", "README.md"}, files)

	diff, err := r.StagedDiff(ctx)
	require.NoError(t, err)
	assert.Contains(t, diff, "src/a.js")

	require.NoError(t, r.Commit(ctx, "fix: thing"))
	assert.True(t, fe.called("git config --global --add safe.directory /workspace"))
	assert.True(t, fe.called("git -C /workspace config user.name havoc[bot]"))
	assert.True(t, fe.called("git -C /workspace commit -m fix: thing"))

	// git helpers bypass the allow-list audit
	assert.Empty(t, r.AuditLog())
}

func TestRunner_GitFailure(t *testing.T) {
	fe := newFakeExecutor()
	fe.on("git -C /workspace commit -m msg", &ExecResult{ExitCode: 1, Stdout: "nothing to commit"})
	r := NewRunner(fe, nil, nil)

	err := r.Commit(context.Background(), "msg")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSandboxExec))
	assert.Contains(t, err.Error(), "nothing to commit")
}

func TestResolve(t *testing.T) {
	p, err := resolve("src/../lib/x.js")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/lib/x.js", p)

	p, err = resolve("/workspace/a")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/a", p)

	_, err = resolve("/etc/passwd")
	assert.Error(t, err)
	_, err = resolve("")
	assert.Error(t, err)
}
