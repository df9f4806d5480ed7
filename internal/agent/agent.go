// Package agent implements the model backed pipeline stages: issue analysis,
// plan generation, code generation, self-review and the intent card.
package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/engine/executor"
	"github.com/AlecFritsch/inito/internal/llm"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/prompt"
	"github.com/AlecFritsch/inito/pkg/errors"
)

// Stage names, also used as llm request metadata
const (
	StageAnalyze = "analyze"
	StagePlan    = "plan"
	StageCodegen = "codegen"
	StageReview  = "review"
	StageIntent  = "intent"
)

// Agent runs the model backed stages of a single run
type Agent struct {
	collab   *llm.Collaborator
	renderer *prompt.Renderer
	runID    string
	log      *zap.Logger
}

// New creates an Agent for runID
func New(collab *llm.Collaborator, renderer *prompt.Renderer, runID string, log *zap.Logger) *Agent {
	if renderer == nil {
		renderer = prompt.NewRenderer()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{collab: collab, renderer: renderer, runID: runID, log: log}
}

// Analyze summarizes the issue and estimates its complexity
func (a *Agent) Analyze(ctx context.Context, data prompt.AnalyzeData) (*model.Analysis, error) {
	a.warnInjection(data.Issue)

	text, err := a.renderer.Analyze(data)
	if err != nil {
		return nil, errors.ErrGeneration("render analyze prompt", err)
	}

	var out model.Analysis
	if err := a.collab.AskStructured(ctx, a.call(StageAnalyze, text, llm.TierFast), &out); err != nil {
		return nil, err
	}
	if out.AffectedAreas == nil {
		out.AffectedAreas = []string{}
	}
	return &out, nil
}

// Plan produces the task list for the issue
func (a *Agent) Plan(ctx context.Context, data prompt.PlanData) (*model.Plan, error) {
	text, err := a.renderer.Plan(data)
	if err != nil {
		return nil, errors.ErrGeneration("render plan prompt", err)
	}

	var out model.Plan
	if err := a.collab.AskStructured(ctx, a.call(StagePlan, text, llm.TierStrong), &out); err != nil {
		return nil, err
	}
	for i := range out.Tasks {
		out.Tasks[i].File = strings.TrimPrefix(strings.TrimSpace(out.Tasks[i].File), "./")
	}
	return &out, nil
}

// Review self-reviews the staged diff. An empty diff yields the fixed
// no-changes review without calling the model.
func (a *Agent) Review(ctx context.Context, data prompt.ReviewData) (*model.ReviewResult, error) {
	if strings.TrimSpace(data.Diff) == "" {
		return model.NoChangesReview(), nil
	}

	text, err := a.renderer.Review(data)
	if err != nil {
		return nil, errors.ErrGeneration("render review prompt", err)
	}

	var out model.ReviewResult
	if err := a.collab.AskStructured(ctx, a.call(StageReview, text, llm.TierFast), &out); err != nil {
		return nil, err
	}
	normalizeReview(&out)
	return &out, nil
}

// IntentCard writes the reviewer facing summary of the change
func (a *Agent) IntentCard(ctx context.Context, data prompt.IntentData) (string, error) {
	text, err := a.renderer.Intent(data)
	if err != nil {
		return "", errors.ErrGeneration("render intent prompt", err)
	}
	return a.collab.Ask(ctx, a.call(StageIntent, text, llm.TierFast))
}

// Coder returns the executor.CodeGenerator backed by this agent
func (a *Agent) Coder() executor.CodeGenerator {
	return &coder{agent: a}
}

func (a *Agent) call(stage, text string, tier llm.ModelTier) llm.Call {
	return llm.Call{Stage: stage, Prompt: text, Tier: tier, RunID: a.runID}
}

func (a *Agent) warnInjection(issue prompt.Issue) {
	if llm.DetectPromptInjection(issue.Title) || llm.DetectPromptInjection(issue.Body) {
		a.log.Warn("Issue text looks like a prompt injection attempt",
			zap.String("run_id", a.runID),
			zap.Int("issue", issue.Number))
	}
}

func normalizeReview(r *model.ReviewResult) {
	if r.Issues == nil {
		r.Issues = []model.ReviewItem{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []model.ReviewItem{}
	}
	if r.Risks == nil {
		r.Risks = []model.ReviewItem{}
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
}

type coder struct {
	agent *Agent
}

func (c *coder) GenerateCode(ctx context.Context, instruction string, gc executor.GenContext) (string, error) {
	return c.generate(ctx, prompt.CodeData{
		File:        gc.File,
		Instruction: instruction,
		Language:    gc.Language,
		Framework:   gc.Framework,
		IssueTitle:  gc.IssueTitle,
		Summary:     gc.Summary,
	})
}

func (c *coder) EditCode(ctx context.Context, current, change string, gc executor.GenContext) (string, error) {
	return c.generate(ctx, prompt.CodeData{
		File:        gc.File,
		Instruction: change,
		Current:     current,
		Language:    gc.Language,
		Framework:   gc.Framework,
		IssueTitle:  gc.IssueTitle,
		Summary:     gc.Summary,
	})
}

func (c *coder) generate(ctx context.Context, data prompt.CodeData) (string, error) {
	text, err := c.agent.renderer.Code(data)
	if err != nil {
		return "", errors.ErrGeneration("render code prompt", err)
	}
	return c.agent.collab.GenerateCode(ctx, c.agent.call(StageCodegen, text, llm.TierStrong))
}
