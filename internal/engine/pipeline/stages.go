package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/artifact"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/engine/confidence"
	"github.com/AlecFritsch/inito/internal/engine/executor"
	"github.com/AlecFritsch/inito/internal/engine/planner"
	"github.com/AlecFritsch/inito/internal/engine/policy"
	"github.com/AlecFritsch/inito/internal/engine/testrunner"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/workspace"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/prompt"
	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// clone provisions the sandbox, clones the repository into it and reads
// its .havoc config. All access to the workspace goes through the sandbox.
func (p *Pipeline) clone(ctx context.Context, ex *execution) error {
	run := ex.run

	token, err := p.deps.Provider.Token(ctx, run.RepoOwner, run.RepoName)
	if err != nil {
		return errors.ErrAuth("failed to resolve repository credentials", err)
	}
	ex.token = token
	ex.cloneURL = p.deps.Provider.CloneURL(run.RepoOwner, run.RepoName)

	base, err := p.deps.Provider.GetDefaultBranch(ctx, run.RepoOwner, run.RepoName)
	if err != nil {
		return err
	}
	ex.base = base

	if err := os.MkdirAll(p.opts.WorkspaceRoot, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to create workspace root", err)
	}

	sb, err := p.deps.Sandboxes.Create(ctx, run.ID, ex.dir, p.opts.CommandTimeout)
	if err != nil {
		return err
	}
	ex.sandbox = sb

	start := time.Now()
	err = p.deps.Clone(ctx, sb, workspace.CloneOptions{
		URL:    ex.cloneURL,
		Token:  token,
		Branch: base,
		Depth:  p.opts.CloneDepth,
	})
	telemetry.GetMetrics().RecordGitClone(ctx, p.deps.Provider.Name(), err == nil, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	// internal reads bypass the allow-list, so none is needed yet
	cfg, name, err := config.LoadRepoConfig(ctx, sandbox.NewRunner(sb, nil, ex.log))
	if err != nil {
		return err
	}
	ex.repoCfg = cfg
	if name != "" {
		ex.log.Info("Loaded repository config", zap.String("file", name))
	}
	ex.runner = sandbox.NewRunner(sb, cfg.AllowedCommands, ex.log)
	return nil
}

// analyze lists the repository and asks the model to analyze the issue
func (p *Pipeline) analyze(ctx context.Context, ex *execution) error {
	files, err := ex.runner.ListFiles(ctx, ".", 4)
	if err != nil {
		ex.log.Warn("Failed to list repository files", zap.Error(err))
	}
	if len(files) > p.opts.MaxListedFiles {
		files = files[:p.opts.MaxListedFiles]
	}
	ex.files = files

	analysis, err := ex.agent.Analyze(ctx, prompt.AnalyzeData{Issue: ex.issue(), Files: files})
	if err != nil {
		return err
	}
	ex.run.Analysis = analysis
	if err := p.deps.Store.UpdateAnalysis(ex.run.ID, analysis); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store analysis", err)
	}
	p.emit(ex, events.TypeStage, "analysis complete", map[string]interface{}{
		"complexity":     string(analysis.Complexity),
		"affected_areas": analysis.AffectedAreas,
	})
	return nil
}

// plan asks the model for a plan, validates it and sorts the tasks
func (p *Pipeline) plan(ctx context.Context, ex *execution) error {
	plan, err := ex.agent.Plan(ctx, prompt.PlanData{
		Issue:          ex.issue(),
		Analysis:       ex.run.Analysis,
		Files:          ex.files,
		MaxTasks:       ex.repoCfg.MaxIterations,
		ProtectedFiles: ex.repoCfg.ProtectedFiles,
		TestCommand:    ex.repoCfg.TestCommand,
	})
	if err != nil {
		return err
	}

	if v := planner.Validate(plan); !v.Valid {
		return errors.Wrap(errors.ErrCodeInvalidPlan, "generated plan is invalid", v)
	}
	if len(plan.Tasks) == 0 {
		return errors.New(errors.ErrCodeNoChanges, "no changes generated: plan has no tasks")
	}
	plan.Tasks = planner.Sort(plan.Tasks)

	ex.run.Plan = plan
	if err := p.deps.Store.UpdatePlan(ex.run.ID, plan); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store plan", err)
	}
	p.emit(ex, events.TypeStage, "plan ready", map[string]interface{}{"tasks": len(plan.Tasks)})
	return nil
}

// edit executes the plan and stages the result
func (p *Pipeline) edit(ctx context.Context, ex *execution) error {
	gc := executor.GenContext{IssueTitle: ex.run.IssueTitle}
	if a := ex.run.Analysis; a != nil {
		gc.Language = a.Language
		gc.Framework = a.Framework
		gc.Summary = a.Summary
	}

	exec := executor.New(ex.runner, ex.agent.Coder(), ex.repoCfg, executor.Options{
		MaxTasks: ex.repoCfg.MaxIterations,
		Context:  gc,
		OnResult: func(task model.Task, res model.TaskResult) {
			p.emit(ex, events.TypeTask, fmt.Sprintf("task %d %s %s", task.ID, res.Action, res.File),
				map[string]interface{}{
					"task_id": task.ID,
					"file":    res.File,
					"action":  string(res.Action),
					"success": res.Success,
					"error":   res.Error,
				})
		},
	}, ex.log)

	results := exec.Execute(ctx, ex.run.Plan.Tasks)
	ex.run.TaskResults = results
	if err := p.deps.Store.UpdateTaskResults(ex.run.ID, results); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store task results", err)
	}
	if err := ctx.Err(); err != nil {
		return errors.ErrTimeout("run deadline reached while editing", err)
	}

	if err := ex.runner.StageAll(ctx); err != nil {
		return err
	}
	diff, err := ex.runner.StagedDiff(ctx)
	if err != nil {
		return err
	}

	if strings.TrimSpace(diff) == "" {
		for _, r := range results {
			if r.Success && r.Diff != "" {
				return errors.ErrSync(fmt.Sprintf(
					"task %d reported changes to %s but nothing is staged in the workspace", r.TaskID, r.File))
			}
		}
		return errors.New(errors.ErrCodeNoChanges, "no changes generated")
	}
	ex.diff = diff

	changed, err := ex.runner.StagedFiles(ctx)
	if err != nil {
		return err
	}
	ex.changed = changed
	return nil
}

// test runs the repository tests and lint. Only a timeout fails the run.
func (p *Pipeline) test(ctx context.Context, ex *execution) error {
	tr := testrunner.New(ex.runner, ex.log)

	tests, err := tr.RunTests(ctx, ex.repoCfg.TestCommand)
	if err != nil {
		return err
	}
	ex.tests = tests
	ex.lint = tr.RunLint(ctx, ex.repoCfg.EffectiveLintCommand())

	p.emit(ex, events.TypeStage, "tests finished", map[string]interface{}{
		"tests_ran":    tests.Ran,
		"tests_passed": tests.Passed,
		"pass_rate":    tests.PassRate,
		"lint_ran":     ex.lint.Ran,
		"lint_passed":  ex.lint.Passed,
	})
	return nil
}

// review self-reviews the diff, scores confidence, evaluates the gates and writes the intent card
func (p *Pipeline) review(ctx context.Context, ex *execution) error {
	run := ex.run

	planSummary := ""
	if run.Plan != nil {
		planSummary = run.Plan.Summary
	}
	rev, err := ex.agent.Review(ctx, prompt.ReviewData{
		Issue:       ex.issue(),
		PlanSummary: planSummary,
		Diff:        ex.diff,
		Tests:       ex.tests,
	})
	if err != nil {
		return err
	}
	run.Review = rev

	breakdown := confidence.Calculate(confidence.Input{
		Tests:        ex.tests,
		Lint:         ex.lint,
		Plan:         run.Plan,
		Results:      run.TaskResults,
		Review:       rev,
		ChangedFiles: ex.changed,
	})
	run.Confidence = &breakdown
	run.ConfidenceScore = breakdown.Overall

	gates := policy.Evaluate(policy.Input{
		Confidence: breakdown.Overall,
		Tests:      ex.tests,
		Lint:       ex.lint,
		Review:     rev,
	}, policy.ThresholdsFrom(ex.repoCfg))
	run.PolicyResult = &gates
	run.PolicyPassed = gates.Passed

	ex.result.ConfidenceScore = breakdown.Overall
	ex.result.PolicyPassed = gates.Passed
	telemetry.GetMetrics().RecordConfidence(ctx, breakdown.Overall, gates.Passed)

	ex.intent = p.intentCard(ctx, ex)
	run.IntentCard = ex.intent

	if err := p.deps.Store.UpdateArtifacts(run.ID, model.RunArtifacts{
		IntentCard:   ex.intent,
		Review:       rev,
		Confidence:   &breakdown,
		PolicyResult: &gates,
		ChangedFiles: ex.changed,
	}); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store run artifacts", err)
	}

	p.deps.Archiver.Archive(ctx, run.ID, artifact.Bundle{
		IntentCard: ex.intent,
		Diff:       ex.diff,
		Plan:       run.Plan,
		Review:     rev,
		Confidence: &breakdown,
		Policy:     &gates,
	})

	p.emit(ex, events.TypeStage, "review complete", map[string]interface{}{
		"assessment":    string(rev.Assessment),
		"confidence":    breakdown.Overall,
		"policy_passed": gates.Passed,
		"blockers":      gates.Blockers,
	})
	return nil
}

// intentCard asks the model for the card and falls back to a plain summary
func (p *Pipeline) intentCard(ctx context.Context, ex *execution) string {
	outLang := ""
	if p.opts.Language != nil && !p.opts.Language.IsEnglish() {
		outLang = p.opts.Language.PromptInstruction()
	}
	card, err := ex.agent.IntentCard(ctx, prompt.IntentData{
		Issue:          ex.issue(),
		Plan:           ex.run.Plan,
		Results:        ex.run.TaskResults,
		Tests:          ex.tests,
		Review:         ex.run.Review,
		Confidence:     ex.run.ConfidenceScore,
		OutputLanguage: outLang,
	})
	if err == nil && strings.TrimSpace(card) != "" {
		return card
	}
	ex.log.Warn("Intent card generation failed, using fallback", zap.Error(err))
	return fallbackIntentCard(ex)
}

func fallbackIntentCard(ex *execution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Intent\n\nAddress issue #%d: %s\n\n", ex.run.IssueNumber, ex.run.IssueTitle)
	if ex.run.Plan != nil && ex.run.Plan.Summary != "" {
		b.WriteString("## Plan\n\n" + ex.run.Plan.Summary + "\n\n")
	}
	if len(ex.changed) > 0 {
		b.WriteString("## Changed files\n\n")
		for _, f := range ex.changed {
			b.WriteString("- `" + f + "`\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Confidence\n\n%d/100\n", ex.run.ConfidenceScore)
	return b.String()
}

func (p *Pipeline) emit(ex *execution, typ, msg string, data map[string]interface{}) {
	p.deps.Events.Emit(ex.run.ID, events.Event{Type: typ, Message: msg, Data: data})
}
