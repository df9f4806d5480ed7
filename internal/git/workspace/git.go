// Package workspace runs the git plumbing of a run inside its sandbox:
// cloning the target repository into the workspace and pushing the result branch.
package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// GitOperationTimeout bounds a single clone or push
	GitOperationTimeout = 5 * time.Minute

	// tokenEnv carries the token to the credential helper so it never appears in argv
	tokenEnv = "HAVOC_GIT_TOKEN"

	// tokenAuthUser is the username GitHub expects for token authentication
	tokenAuthUser = "x-access-token"
)

// credentialHelper answers git credential requests from the environment
const credentialHelper = `!f() { echo username=` + tokenAuthUser + `; echo "password=$` + tokenEnv + `"; }; f`

// Executor runs a command inside the run sandbox
type Executor interface {
	ExecEnv(ctx context.Context, argv, env []string) (*sandbox.ExecResult, error)
}

// authFailurePatterns mark git stderr output caused by credentials or permissions
var authFailurePatterns = []string{
	"Authentication failed",
	"could not read Username",
	"could not read Password",
	"Permission denied",
	"Write access to repository not granted",
	"The requested URL returned error: 401",
	"The requested URL returned error: 403",
	"Invalid username or password",
}

// CloneOptions describes a clone into Dest, a path inside the sandbox
type CloneOptions struct {
	URL    string
	Token  string
	Dest   string // sandbox.WorkDir when empty
	Branch string
	Depth  int
}

// PushOptions describes pushing the current HEAD of the workspace to Branch
type PushOptions struct {
	URL    string // remote URL; "origin" when empty
	Token  string
	Branch string
}

// MaskToken masks a token for safe logging, showing first 4 and last 4 characters
// Returns "****" for tokens <= 8 characters, or "xxxx...xxxx" format for longer tokens
func MaskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactToken replaces every occurrence of token in text with its masked form
func RedactToken(text, token string) string {
	if token == "" {
		return text
	}
	return strings.ReplaceAll(text, token, MaskToken(token))
}

// Clone clones opts.URL into the sandbox workspace. Credential or permission
// failures are returned as E2002, everything else as E2001.
func Clone(ctx context.Context, ex Executor, opts CloneOptions) error {
	dest := opts.Dest
	if dest == "" {
		dest = sandbox.WorkDir
	}

	args := []string{"clone", "--no-tags"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, opts.URL, dest)

	logger.Info("Cloning repository",
		zap.String("url", opts.URL),
		zap.String("dest", dest),
		zap.String("token", MaskToken(opts.Token)),
	)

	stderr, err := runGit(ctx, ex, opts.Token, args...)
	if err != nil {
		return classify("clone", opts.Token, stderr, err)
	}
	return nil
}

// Push pushes HEAD of the sandbox workspace to refs/heads/<opts.Branch>
func Push(ctx context.Context, ex Executor, opts PushOptions) error {
	remote := opts.URL
	if remote == "" {
		remote = "origin"
	}

	args := []string{"-c", "safe.directory=*", "-C", sandbox.WorkDir, "push", remote, "HEAD:refs/heads/" + opts.Branch}

	logger.Info("Pushing branch",
		zap.String("branch", opts.Branch),
		zap.String("token", MaskToken(opts.Token)),
	)

	stderr, err := runGit(ctx, ex, opts.Token, args...)
	if err != nil {
		return classify("push", opts.Token, stderr, err)
	}
	return nil
}

// gitCommand builds the argv of a git invocation. With a token, inherited
// credential helpers are cleared and replaced by one reading $HAVOC_GIT_TOKEN.
func gitCommand(token string, args ...string) []string {
	argv := []string{"git"}
	if token != "" {
		argv = append(argv, "-c", "credential.helper=", "-c", "credential.helper="+credentialHelper)
	}
	return append(argv, args...)
}

func runGit(ctx context.Context, ex Executor, token string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, GitOperationTimeout)
	defer cancel()

	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if token != "" {
		env = append(env, tokenEnv+"="+token)
	}

	res, err := ex.ExecEnv(ctx, gitCommand(token, args...), env)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.IsCode(err, errors.ErrCodeTimeout) {
			return "", errors.ErrTimeout(fmt.Sprintf("git %s timed out after %v", args[0], GitOperationTimeout), err)
		}
		return "", err
	}
	if !res.Success() {
		return res.Stderr, fmt.Errorf("git exited with code %d", res.ExitCode)
	}
	return res.Stderr, nil
}

// classify maps a failed git operation to the pipeline error taxonomy
func classify(op, token, stderr string, err error) error {
	if errors.IsCode(err, errors.ErrCodeTimeout) {
		return err
	}

	detail := strings.TrimSpace(RedactToken(stderr, token))
	cause := fmt.Errorf("%s", RedactToken(err.Error(), token))
	if detail != "" {
		cause = fmt.Errorf("%s: %s", cause, detail)
	}

	if IsAuthFailure(stderr) {
		return errors.ErrAuth(fmt.Sprintf("git %s: authentication or permission denied", op), cause)
	}
	if op == "push" {
		return errors.Wrap(errors.ErrCodeGitPush, "git push failed", cause)
	}
	return errors.ErrClone("git clone failed", cause)
}

// IsAuthFailure reports whether git output indicates a credential problem
func IsAuthFailure(stderr string) bool {
	for _, p := range authFailurePatterns {
		if strings.Contains(stderr, p) {
			return true
		}
	}
	return false
}
