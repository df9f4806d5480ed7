package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/git/workspace"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/output"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/idgen"
)

// BranchName returns the branch a run pushes to
func BranchName(issueNumber int, runID string) string {
	return fmt.Sprintf("%s%d-%s", consts.BranchPrefix, issueNumber, idgen.Short(runID, consts.BranchRunIDSize))
}

// publish opens a pull request when the gates passed and reports the
// failure on the issue otherwise
func (p *Pipeline) publish(ctx context.Context, ex *execution) error {
	if ex.run.PolicyResult == nil || !ex.run.PolicyPassed {
		return p.reject(ctx, ex)
	}

	run := ex.run
	branch := BranchName(run.IssueNumber, run.ID)

	if err := ex.runner.CreateBranch(ctx, branch); err != nil {
		return err
	}
	if err := ex.runner.Commit(ctx, output.CommitMessage(run.IssueNumber, run.IssueTitle)); err != nil {
		return err
	}
	if err := p.deps.Push(ctx, ex.sandbox, workspace.PushOptions{
		URL:    ex.cloneURL,
		Token:  ex.token,
		Branch: branch,
	}); err != nil {
		return err
	}
	ex.log.Info("Branch pushed", zap.String("branch", branch))

	pr, err := p.deps.Provider.CreatePullRequest(ctx, run.RepoOwner, run.RepoName, &provider.NewPullRequest{
		Title: output.PRTitle(run.IssueNumber, run.IssueTitle),
		Body: output.PRBody(output.PRInput{
			RunID:        run.ID,
			IssueNumber:  run.IssueNumber,
			IssueTitle:   run.IssueTitle,
			Plan:         run.Plan,
			Results:      run.TaskResults,
			Tests:        ex.tests,
			Confidence:   run.Confidence,
			IntentCard:   ex.intent,
			ChangedFiles: ex.changed,
		}),
		Head: branch,
		Base: ex.base,
	})
	if err != nil {
		return err
	}

	if err := p.deps.Store.UpdatePR(run.ID, pr.URL, pr.Number, branch); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store pull request", err)
	}
	run.PRURL = pr.URL
	run.PRNumber = pr.Number
	run.BranchName = branch

	if run.Review != nil {
		ex.comments.PostBestEffort(ctx, pr.Number, output.ReviewComment(run.ID, run.Review))
	}
	ex.comments.PostBestEffort(ctx, pr.Number, output.PolicyComment(run.ID, *run.PolicyResult, run.Confidence))

	if err := p.deps.Store.UpdateStatus(run.ID, model.RunStatusDone, ""); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to record completion", err)
	}
	run.Status = model.RunStatusDone
	ex.result.Success = true
	ex.result.PRURL = pr.URL

	p.emit(ex, events.TypeStage, "pull request opened", map[string]interface{}{
		"pr_url":    pr.URL,
		"pr_number": pr.Number,
		"branch":    branch,
	})
	return nil
}

// reject posts the failure report on the issue. Nothing is pushed.
func (p *Pipeline) reject(ctx context.Context, ex *execution) error {
	run := ex.run
	var gates model.PolicyResult
	if run.PolicyResult != nil {
		gates = *run.PolicyResult
	}

	ex.comments.PostBestEffort(ctx, run.IssueNumber, output.FailureReport(run.ID, gates, run.Confidence, ex.intent))

	if err := p.deps.Store.UpdateStatus(run.ID, model.RunStatusFailed, ReasonPolicyFailed); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to record rejection", err)
	}
	run.Status = model.RunStatusFailed
	run.Error = ReasonPolicyFailed
	ex.result.Error = ReasonPolicyFailed

	p.emit(ex, events.TypeStage, "policy gates not passed", map[string]interface{}{
		"code":     errors.ErrCodePolicyViolation,
		"blockers": gates.Blockers,
	})
	return nil
}
