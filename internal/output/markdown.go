// Package output renders the Markdown posted to GitHub: pull request bodies,
// review and policy comments, failure reports and error comments.
// Every rendered body carries a hidden marker with the run id.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlecFritsch/inito/internal/engine/policy"
	"github.com/AlecFritsch/inito/internal/model"
)

// MarkerPrefix starts the hidden HTML comment that tags a body with its run
const MarkerPrefix = "<!-- havoc:run:"

// Marker returns the hidden run marker
func Marker(runID string) string {
	return MarkerPrefix + runID + " -->"
}

// RunIDFromBody extracts the run id from a body rendered by this package
func RunIDFromBody(body string) (string, bool) {
	i := strings.Index(body, MarkerPrefix)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(MarkerPrefix):]
	j := strings.Index(rest, " -->")
	if j <= 0 {
		return "", false
	}
	return rest[:j], true
}

func footer(b *strings.Builder, runID string) {
	fmt.Fprintf(b, "\n---\n<sub>Havoc run `%s`</sub>\n%s\n", runID, Marker(runID))
}

// PRInput is what the pull request body is built from
type PRInput struct {
	RunID        string
	IssueNumber  int
	IssueTitle   string
	Plan         *model.Plan
	Results      []model.TaskResult
	Tests        *model.TestResults
	Confidence   *model.ConfidenceBreakdown
	IntentCard   string
	ChangedFiles []string
}

// PRTitle returns the pull request title for an issue
func PRTitle(issueNumber int, issueTitle string) string {
	return fmt.Sprintf("fix: %s (#%d)", strings.TrimSpace(issueTitle), issueNumber)
}

// CommitMessage returns the commit subject for an issue
func CommitMessage(issueNumber int, issueTitle string) string {
	return PRTitle(issueNumber, issueTitle)
}

// PRBody renders the pull request description
func PRBody(in PRInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Closes #%d\n\n", in.IssueNumber)

	b.WriteString("## Summary\n\n")
	if in.Plan != nil && in.Plan.Summary != "" {
		b.WriteString(in.Plan.Summary + "\n\n")
	} else {
		fmt.Fprintf(&b, "Automated change for issue #%d: %s\n\n", in.IssueNumber, in.IssueTitle)
	}

	if len(in.Results) > 0 {
		b.WriteString("## Changes\n\n")
		for _, r := range in.Results {
			mark := "✅"
			if !r.Success {
				mark = "❌"
			}
			fmt.Fprintf(&b, "- %s `%s` %s\n", mark, r.File, r.Action)
		}
		b.WriteString("\n")
	}

	if in.Tests != nil {
		b.WriteString("## Tests\n\n")
		b.WriteString(TestSummary(in.Tests) + "\n\n")
	}

	if in.Confidence != nil {
		fmt.Fprintf(&b, "**Confidence:** %d/100\n\n", in.Confidence.Overall)
	}

	if in.IntentCard != "" {
		b.WriteString("<details>\n<summary>Intent card</summary>\n\n")
		b.WriteString(strings.TrimSpace(in.IntentCard))
		b.WriteString("\n\n</details>\n")
	}

	footer(&b, in.RunID)
	return b.String()
}

// TestSummary renders one line describing a test run
func TestSummary(t *model.TestResults) string {
	if t == nil || !t.Ran {
		return "Tests were not run."
	}
	status := "passed"
	if !t.Passed {
		status = "failed"
	}
	line := fmt.Sprintf("`%s` %s: %d passed, %d failed, %d skipped (%.0f%%)",
		t.Command, status, t.PassedCount, t.Failed, t.Skipped, t.PassRate)
	if t.Total == 0 {
		line = fmt.Sprintf("`%s` %s; no test counts found in output", t.Command, status)
	}
	return line
}

var severityOrder = map[model.Severity]int{
	model.SeverityCritical: 0,
	model.SeverityHigh:     1,
	model.SeverityMedium:   2,
	model.SeverityLow:      3,
}

var severityIcon = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityHigh:     "🟠",
	model.SeverityMedium:   "🟡",
	model.SeverityLow:      "🔵",
}

func writeItems(b *strings.Builder, title string, items []model.ReviewItem) {
	if len(items) == 0 {
		return
	}
	sorted := append([]model.ReviewItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityOrder[sorted[i].Severity] < severityOrder[sorted[j].Severity]
	})

	fmt.Fprintf(b, "### %s\n\n", title)
	for _, it := range sorted {
		loc := ""
		switch {
		case it.File != "" && it.Line > 0:
			loc = fmt.Sprintf(" `%s:%d`", it.File, it.Line)
		case it.File != "":
			loc = fmt.Sprintf(" `%s`", it.File)
		}
		fmt.Fprintf(b, "- %s **%s**%s %s\n", severityIcon[it.Severity], it.Severity, loc, it.Message)
	}
	b.WriteString("\n")
}

// ReviewComment renders the self-review as a PR comment
func ReviewComment(runID string, r *model.ReviewResult) string {
	var b strings.Builder
	b.WriteString("## 🔍 Self-review\n\n")
	if r == nil {
		b.WriteString("No review available.\n")
		footer(&b, runID)
		return b.String()
	}

	fmt.Fprintf(&b, "**Assessment:** `%s` · **Reviewer confidence:** %d/100\n\n", r.Assessment, r.Confidence)
	if r.Summary != "" {
		b.WriteString(r.Summary + "\n\n")
	}
	writeItems(&b, "Issues", r.Issues)
	writeItems(&b, "Risks", r.Risks)
	writeItems(&b, "Suggestions", r.Suggestions)

	footer(&b, runID)
	return b.String()
}

// ConfidenceTable renders the factor breakdown
func ConfidenceTable(c *model.ConfidenceBreakdown) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Confidence: %d/100**\n\n", c.Overall)
	b.WriteString("| Factor | Score | Weight |\n")
	b.WriteString("|--------|-------|--------|\n")
	rows := []struct {
		name   string
		score  int
		weight float64
	}{
		{"Tests passing", c.TestsPassing, model.WeightTestsPassing},
		{"Lint clean", c.LintClean, model.WeightLintClean},
		{"Change complexity", c.ChangeComplexity, model.WeightChangeComplexity},
		{"Dependency risk", c.DependencyRisk, model.WeightDependencyRisk},
		{"Behavior risk", c.BehaviorRisk, model.WeightBehaviorRisk},
		{"Self-review", c.SelfReview, model.WeightSelfReview},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d | %.0f%% |\n", r.name, r.score, r.weight*100)
	}
	return b.String()
}

// PolicyComment renders the gate table and confidence breakdown as a PR comment
func PolicyComment(runID string, p model.PolicyResult, c *model.ConfidenceBreakdown) string {
	var b strings.Builder
	b.WriteString(policy.FormatSummary(p))
	if table := ConfidenceTable(c); table != "" {
		b.WriteString("\n")
		b.WriteString(table)
	}
	footer(&b, runID)
	return b.String()
}

// FailureReport is posted on the issue when policy gates block publishing
func FailureReport(runID string, p model.PolicyResult, c *model.ConfidenceBreakdown, intentCard string) string {
	var b strings.Builder
	b.WriteString("## 🛑 Havoc did not open a pull request\n\n")
	b.WriteString("The generated change did not pass the policy gates for this repository.\n\n")
	b.WriteString(policy.FormatSummary(p))
	if table := ConfidenceTable(c); table != "" {
		b.WriteString("\n")
		b.WriteString(table)
	}
	if strings.TrimSpace(intentCard) != "" {
		b.WriteString("\n## Intent card\n\n")
		b.WriteString(strings.TrimSpace(intentCard))
		b.WriteString("\n")
	}
	footer(&b, runID)
	return b.String()
}

// ErrorComment is the terse note posted when a run fails on an infrastructure error
func ErrorComment(runID, message string) string {
	var b strings.Builder
	b.WriteString("## ⚠️ Havoc run failed\n\n")
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "unknown error"
	}
	fmt.Fprintf(&b, "```\n%s\n```\n", strings.ReplaceAll(msg, "```", "'''"))
	footer(&b, runID)
	return b.String()
}

// Acknowledgement is posted when a trigger is accepted
func Acknowledgement(runID string) string {
	var b strings.Builder
	b.WriteString("👀 Havoc picked this up and is working on it.\n")
	footer(&b, runID)
	return b.String()
}
