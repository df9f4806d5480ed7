// Package pipeline runs one issue through the full state machine:
// clone, analyze, plan, edit, test, review, score, gate and publish.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/agent"
	"github.com/AlecFritsch/inito/internal/artifact"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/git/workspace"
	"github.com/AlecFritsch/inito/internal/llm"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/output"
	"github.com/AlecFritsch/inito/internal/prompt"
	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// ReasonPolicyFailed is the terminal error of a run blocked by policy gates
const ReasonPolicyFailed = "policy gates not passed"

// cleanupTimeout bounds sandbox teardown after the run context is gone
const cleanupTimeout = 30 * time.Second

// Result is what the caller of Run gets back. Run never returns an error;
// failures are reported here.
type Result struct {
	RunID           string `json:"run_id"`
	Success         bool   `json:"success"`
	ConfidenceScore int    `json:"confidence_score"`
	PolicyPassed    bool   `json:"policy_passed"`
	Error           string `json:"error,omitempty"`
	PRURL           string `json:"pr_url,omitempty"`
}

// Deps are the collaborators of a pipeline
type Deps struct {
	Store     store.RunStore
	Provider  provider.Provider
	Sandboxes sandbox.Manager
	LLM       llm.Client
	Events    events.Sink
	Archiver  artifact.Archiver

	// Clone and Push run git inside the run sandbox; they default to the
	// workspace package
	Clone func(ctx context.Context, ex workspace.Executor, opts workspace.CloneOptions) error
	Push  func(ctx context.Context, ex workspace.Executor, opts workspace.PushOptions) error
}

// Options tunes a pipeline
type Options struct {
	// WorkspaceRoot holds one directory per run
	WorkspaceRoot string
	// RunTimeout bounds a run whose repository does not set timeout_minutes
	RunTimeout time.Duration
	// CommandTimeout bounds each sandbox command
	CommandTimeout time.Duration
	// Language is the output language of the intent card
	Language *config.LanguageConfig
	// CloneDepth is passed to git clone; zero clones full history
	CloneDepth int
	// MaxListedFiles caps the file listing sent to the model
	MaxListedFiles int
	// Acknowledge posts a short comment on the issue when a run starts
	Acknowledge bool
}

// Pipeline executes runs. It is safe for concurrent use; all per-run state
// lives in an execution.
type Pipeline struct {
	deps     Deps
	opts     Options
	renderer *prompt.Renderer
}

// New creates a pipeline
func New(deps Deps, opts Options) *Pipeline {
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Archiver == nil {
		deps.Archiver = artifact.Noop{}
	}
	if deps.Clone == nil {
		deps.Clone = workspace.Clone
	}
	if deps.Push == nil {
		deps.Push = workspace.Push
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = "./workspace"
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = sandbox.DefaultCommandTimeout
	}
	if opts.MaxListedFiles <= 0 {
		opts.MaxListedFiles = 300
	}
	return &Pipeline{deps: deps, opts: opts, renderer: prompt.NewRenderer()}
}

// execution is the state of one run
type execution struct {
	run      *model.Run
	log      *zap.Logger
	started  time.Time
	dir      string
	token    string
	cloneURL string
	base     string
	repoCfg  *config.RepoConfig
	sandbox  sandbox.Sandbox
	runner   *sandbox.Runner
	agent    *agent.Agent
	comments *output.Commenter
	files    []string
	diff     string
	changed  []string
	tests    *model.TestResults
	lint     *model.LintResults
	intent   string
	result   Result
}

func (e *execution) issue() prompt.Issue {
	return prompt.Issue{
		Owner:  e.run.RepoOwner,
		Repo:   e.run.RepoName,
		Number: e.run.IssueNumber,
		Title:  e.run.IssueTitle,
		Body:   e.run.IssueBody,
	}
}

// Run executes run to a terminal state. The run must already be persisted
// in pending state. Cleanup always happens.
func (p *Pipeline) Run(ctx context.Context, run *model.Run) Result {
	ex := &execution{
		run:     run,
		log:     logger.WithRun(run.ID),
		started: time.Now(),
		dir:     filepath.Join(p.opts.WorkspaceRoot, run.ID),
		result:  Result{RunID: run.ID},
	}
	ex.comments = output.NewCommenter(p.deps.Provider, run.RepoOwner, run.RepoName, ex.log)
	ex.agent = agent.New(llm.NewCollaborator(p.deps.LLM, ex.log), p.renderer, run.ID, ex.log)

	ctx, span := telemetry.StartRun(ctx, run.ID, run.FullRepo(), run.IssueNumber)
	defer span.End()

	metrics := telemetry.GetMetrics()
	metrics.RecordRunStarted(ctx, run.FullRepo())

	ex.log.Info("Run started",
		zap.String("repo", run.FullRepo()),
		zap.Int("issue", run.IssueNumber),
		zap.String("trigger", string(run.TriggerSource)))

	if p.opts.Acknowledge {
		ex.comments.PostBestEffort(ctx, run.IssueNumber, output.Acknowledgement(run.ID))
	}

	err := func() error {
		defer p.cleanup(ex)
		return p.execute(ctx, ex)
	}()

	status := "done"
	if err != nil {
		status = "failed"
		p.fail(ctx, ex, err)
	} else if !ex.result.Success {
		status = "rejected"
	}
	telemetry.Finish(span, err)
	telemetry.SetRunOutcome(span, ex.result.ConfidenceScore, ex.result.PolicyPassed)
	metrics.RecordRunCompleted(ctx, status, time.Since(ex.started).Seconds())

	p.deps.Events.Emit(run.ID, events.Event{
		Type:    events.TypeComplete,
		Message: status,
		Data: map[string]interface{}{
			"success":    ex.result.Success,
			"confidence": ex.result.ConfidenceScore,
			"pr_url":     ex.result.PRURL,
			"error":      ex.result.Error,
		},
	})
	ex.log.Info("Run finished",
		zap.String("status", status),
		zap.Int("confidence", ex.result.ConfidenceScore),
		zap.Bool("policy_passed", ex.result.PolicyPassed),
		zap.String("pr_url", ex.result.PRURL),
		zap.Duration("duration", time.Since(ex.started)))
	return ex.result
}

// execute runs the stages in order and returns the first error.
// A panic in any stage becomes an internal error.
func (p *Pipeline) execute(ctx context.Context, ex *execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ex.log.Error("Run panicked",
				zap.String("stage", string(ex.run.Status)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = errors.New(errors.ErrCodeInternal, fmt.Sprintf("run panicked during %s: %v", ex.run.Status, r))
		}
	}()

	cloneCtx, cancelClone := context.WithTimeout(ctx, p.opts.RunTimeout)
	err = p.stage(cloneCtx, ex, model.RunStatusCloning, p.clone)
	cancelClone()
	if err != nil {
		return err
	}

	// The repository may set its own run timeout; it counts from the start of the run.
	timeout := p.opts.RunTimeout
	if ex.repoCfg.TimeoutMinutes > 0 {
		timeout = time.Duration(ex.repoCfg.TimeoutMinutes) * time.Minute
	}
	runCtx, cancel := context.WithDeadline(ctx, ex.started.Add(timeout))
	defer cancel()

	stages := []struct {
		status model.RunStatus
		fn     func(context.Context, *execution) error
	}{
		{model.RunStatusAnalyzing, p.analyze},
		{model.RunStatusPlanning, p.plan},
		{model.RunStatusEditing, p.edit},
		{model.RunStatusTesting, p.test},
		{model.RunStatusReviewing, p.review},
		{model.RunStatusPublishing, p.publish},
	}
	for _, s := range stages {
		if err := p.stage(runCtx, ex, s.status, s.fn); err != nil {
			if runCtx.Err() == context.DeadlineExceeded && !errors.IsCode(err, errors.ErrCodeTimeout) {
				return errors.ErrTimeout(fmt.Sprintf("run exceeded %s during %s", timeout, s.status), err)
			}
			return err
		}
	}
	return nil
}

// stage persists the transition, then runs fn inside a span
func (p *Pipeline) stage(ctx context.Context, ex *execution, status model.RunStatus, fn func(context.Context, *execution) error) error {
	if err := p.deps.Store.UpdateStatus(ex.run.ID, status, ""); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to record status "+string(status), err)
	}
	ex.run.Status = status
	p.deps.Events.Emit(ex.run.ID, events.Event{
		Type:    events.TypeStatus,
		Message: string(status),
		Data:    map[string]interface{}{"status": string(status)},
	})
	ex.log.Info("Stage started", zap.String("stage", string(status)))

	ctx, span := telemetry.StartStage(ctx, ex.run.ID, string(status))
	defer span.End()

	start := time.Now()
	err := fn(ctx, ex)
	telemetry.GetMetrics().RecordStage(ctx, string(status), err == nil, time.Since(start).Seconds())
	telemetry.Finish(span, err)
	if err != nil {
		ex.log.Warn("Stage failed", zap.String("stage", string(status)), zap.Error(err))
		return err
	}
	return nil
}

// fail records the terminal failure and tells the issue about it
func (p *Pipeline) fail(ctx context.Context, ex *execution, err error) {
	msg := workspace.RedactToken(err.Error(), ex.token)
	ex.result.Success = false
	ex.result.Error = msg

	ex.log.Error("Run failed", zap.String("stage", string(ex.run.Status)), zap.Error(err))

	if uerr := p.deps.Store.UpdateStatus(ex.run.ID, model.RunStatusFailed, msg); uerr != nil {
		ex.log.Warn("Failed to record run failure", zap.Error(uerr))
	}
	p.deps.Events.Emit(ex.run.ID, events.Event{
		Type:    events.TypeError,
		Message: msg,
		Data:    map[string]interface{}{"stage": string(ex.run.Status)},
	})

	// The run context may be the reason we failed; commenting gets its own budget.
	commentCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	ex.comments.PostBestEffort(commentCtx, ex.run.IssueNumber, output.ErrorComment(ex.run.ID, msg))
}

// cleanup tears down the sandbox and the workspace directory
func (p *Pipeline) cleanup(ex *execution) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if ex.sandbox != nil {
		ex.sandbox.Cleanup(ctx)
	}
	if err := os.RemoveAll(ex.dir); err != nil {
		ex.log.Warn("Failed to remove workspace", zap.String("dir", ex.dir), zap.Error(err))
	}
}
