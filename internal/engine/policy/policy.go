// Package policy evaluates the publication gates of a run.
package policy

import (
	"fmt"
	"strings"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/model"
)

// Gate names
const (
	GateMinConfidence    = "Minimum Confidence"
	GateTestPassRate     = "Test Pass Rate"
	GateTestsExecuted    = "Tests Executed"
	GateLintClean        = "Lint Clean"
	GateNoCriticalIssues = "No Critical Issues"
	GateReviewAssessment = "Review Assessment"
)

// Input is the run outcome the gates look at
type Input struct {
	Confidence int
	Tests      *model.TestResults
	Lint       *model.LintResults
	Review     *model.ReviewResult
}

// Thresholds are the configurable gate limits
type Thresholds struct {
	MinConfidence   int
	MinTestPassRate int
}

// ThresholdsFrom reads the gate limits from a repository config
func ThresholdsFrom(cfg *config.RepoConfig) Thresholds {
	if cfg == nil {
		cfg = config.DefaultRepoConfig()
	}
	return Thresholds{MinConfidence: cfg.MinConfidence, MinTestPassRate: cfg.MinTestPassRate}
}

// Evaluate runs the six gates in order. Failed required gates are blockers,
// failed optional gates are warnings; the result passes iff there are no blockers.
func Evaluate(in Input, th Thresholds) model.PolicyResult {
	tests := in.Tests
	if tests == nil {
		tests = &model.TestResults{}
	}
	lint := in.Lint
	if lint == nil {
		lint = &model.LintResults{}
	}

	gates := []model.GateResult{
		minConfidence(in.Confidence, th.MinConfidence),
		testPassRate(tests, th.MinTestPassRate),
		testsExecuted(tests),
		lintClean(lint),
		noCriticalIssues(in.Review),
		reviewAssessment(in.Review),
	}

	res := model.PolicyResult{Gates: gates, Blockers: []string{}, Warnings: []string{}}
	for _, g := range gates {
		if g.Passed {
			continue
		}
		if g.Required {
			res.Blockers = append(res.Blockers, g.Message)
		} else {
			res.Warnings = append(res.Warnings, g.Message)
		}
	}
	res.Passed = len(res.Blockers) == 0
	return res
}

func minConfidence(score, min int) model.GateResult {
	g := model.GateResult{
		Name:      GateMinConfidence,
		Required:  true,
		Passed:    score >= min,
		Actual:    fmt.Sprintf("%d", score),
		Threshold: fmt.Sprintf(">= %d", min),
	}
	if g.Passed {
		g.Message = fmt.Sprintf("Confidence %d meets the minimum of %d", score, min)
	} else {
		g.Message = fmt.Sprintf("Confidence score %d is below the minimum of %d", score, min)
	}
	return g
}

func testPassRate(t *model.TestResults, min int) model.GateResult {
	g := model.GateResult{
		Name:      GateTestPassRate,
		Required:  true,
		Threshold: fmt.Sprintf(">= %d%%", min),
	}
	if !t.Ran {
		g.Passed = true
		g.Actual = "n/a"
		g.Message = "Tests did not run; pass rate gate skipped"
		return g
	}
	g.Actual = fmt.Sprintf("%.1f%%", t.PassRate)
	g.Passed = t.PassRate >= float64(min)
	if g.Passed {
		g.Message = fmt.Sprintf("Test pass rate %.1f%% meets the minimum of %d%%", t.PassRate, min)
	} else {
		g.Message = fmt.Sprintf("Test pass rate %.1f%% is below the minimum of %d%%", t.PassRate, min)
	}
	return g
}

func testsExecuted(t *model.TestResults) model.GateResult {
	g := model.GateResult{
		Name:      GateTestsExecuted,
		Passed:    t.Ran,
		Actual:    yesNo(t.Ran),
		Threshold: "yes",
	}
	if t.Ran {
		g.Message = "Tests were executed"
	} else {
		g.Message = "Tests were not executed"
		if t.Error != "" {
			g.Message += ": " + firstLine(t.Error)
		}
	}
	return g
}

func lintClean(l *model.LintResults) model.GateResult {
	g := model.GateResult{
		Name:      GateLintClean,
		Passed:    l.Ran && l.Passed,
		Threshold: "clean",
	}
	switch {
	case !l.Ran:
		g.Actual = "not run"
		g.Message = "Lint did not run"
	case l.Passed:
		g.Actual = "clean"
		g.Message = "Lint passed"
	default:
		g.Actual = fmt.Sprintf("%d errors, %d warnings", l.Errors, l.Warnings)
		g.Message = fmt.Sprintf("Lint reported %d errors and %d warnings", l.Errors, l.Warnings)
	}
	return g
}

func noCriticalIssues(r *model.ReviewResult) model.GateResult {
	critical := 0
	if r != nil {
		for _, issue := range r.Issues {
			if strings.EqualFold(string(issue.Severity), string(model.SeverityCritical)) {
				critical++
			}
		}
	}
	g := model.GateResult{
		Name:      GateNoCriticalIssues,
		Required:  true,
		Passed:    critical == 0,
		Actual:    fmt.Sprintf("%d", critical),
		Threshold: "0",
	}
	if g.Passed {
		g.Message = "No critical issues found in self-review"
	} else {
		g.Message = fmt.Sprintf("Self-review found %d critical issue(s)", critical)
	}
	return g
}

func reviewAssessment(r *model.ReviewResult) model.GateResult {
	assessment := model.Assessment("none")
	if r != nil && r.Assessment != "" {
		assessment = r.Assessment
	}
	g := model.GateResult{
		Name:      GateReviewAssessment,
		Passed:    assessment != model.AssessmentRequestChanges,
		Actual:    string(assessment),
		Threshold: "not request_changes",
	}
	if g.Passed {
		g.Message = fmt.Sprintf("Self-review assessment: %s", assessment)
	} else {
		g.Message = "Self-review requested changes"
	}
	return g
}

// FormatSummary renders the gate outcomes as a Markdown section
func FormatSummary(r model.PolicyResult) string {
	var b strings.Builder

	if r.Passed {
		b.WriteString("### ✅ Policy gates passed\n\n")
	} else {
		b.WriteString("### ❌ Policy gates not passed\n\n")
	}

	b.WriteString("| Gate | Result | Required | Actual | Threshold |\n")
	b.WriteString("|------|--------|----------|--------|-----------|\n")
	for _, g := range r.Gates {
		status := "✅ pass"
		if !g.Passed {
			if g.Required {
				status = "❌ fail"
			} else {
				status = "⚠️ warn"
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", g.Name, status, yesNo(g.Required), escapeCell(g.Actual), escapeCell(g.Threshold))
	}

	if len(r.Blockers) > 0 {
		b.WriteString("\n**Blockers**\n\n")
		for _, m := range r.Blockers {
			b.WriteString("- " + m + "\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n**Warnings**\n\n")
		for _, m := range r.Warnings {
			b.WriteString("- " + m + "\n")
		}
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
