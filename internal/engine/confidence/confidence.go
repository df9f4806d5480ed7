// Package confidence computes the deterministic confidence score of a run.
//
// Six factors are scored 0-100 and combined with fixed weights:
//
//	tests passing      0.30
//	lint clean         0.10
//	change complexity  0.20
//	dependency risk    0.15
//	behavior risk      0.15
//	self review        0.10
//
// The constants below are scoring policy; scenario tests depend on them exactly.
package confidence

import (
	"math"
	"strings"

	"github.com/AlecFritsch/inito/internal/model"
)

// Input is everything the scorer looks at
type Input struct {
	Tests        *model.TestResults
	Lint         *model.LintResults
	Plan         *model.Plan
	Results      []model.TaskResult
	Review       *model.ReviewResult
	ChangedFiles []string
}

var (
	dependencyKeywords  = []string{"npm install", "yarn add", "pnpm add", "new dependency", "add dependency", "install"}
	externalAPIKeywords = []string{"external api", "third-party", "third party", "api key", "webhook"}
	planRiskKeywords    = []string{"dependency", "package"}

	dataKeywords     = []string{"migration", "database", "schema"}
	securityKeywords = []string{"auth", "security", "password"}
	configKeywords   = []string{"config", ".env"}
)

// Calculate scores in. It is a pure function of its input.
func Calculate(in Input) model.ConfidenceBreakdown {
	b := model.ConfidenceBreakdown{
		TestsPassing:     TestsPassing(in.Tests),
		LintClean:        LintClean(in.Lint),
		ChangeComplexity: ChangeComplexity(in.Results, changedFileCount(in)),
		DependencyRisk:   DependencyRisk(in.Plan),
		BehaviorRisk:     BehaviorRisk(in.Plan, in.Review),
		SelfReview:       SelfReview(in.Review),
	}

	sum := float64(b.TestsPassing)*model.WeightTestsPassing +
		float64(b.LintClean)*model.WeightLintClean +
		float64(b.ChangeComplexity)*model.WeightChangeComplexity +
		float64(b.DependencyRisk)*model.WeightDependencyRisk +
		float64(b.BehaviorRisk)*model.WeightBehaviorRisk +
		float64(b.SelfReview)*model.WeightSelfReview

	b.Overall = clamp(int(math.Round(sum)))
	return b
}

// TestsPassing is 50 when tests did not run, pass rate minus 20 when they failed, else the pass rate
func TestsPassing(t *model.TestResults) int {
	if t == nil || !t.Ran {
		return 50
	}
	rate := int(math.Round(t.PassRate))
	if !t.Passed {
		return max(0, rate-20)
	}
	return rate
}

// LintClean is 70 when lint did not run, 100 when it passed, else reduced by error and warning counts
func LintClean(l *model.LintResults) int {
	if l == nil || !l.Ran {
		return 70
	}
	if l.Passed {
		return 100
	}
	return max(0, 100-min(50, l.Errors*10)-min(20, l.Warnings*2))
}

// ChangeComplexity starts at the task success ratio and penalizes large plans and wide changes
func ChangeComplexity(results []model.TaskResult, changedFiles int) int {
	score := 50.0
	if len(results) > 0 {
		ok := 0
		for _, r := range results {
			if r.Success {
				ok++
			}
		}
		score = float64(ok) / float64(len(results)) * 100
	}
	if n := len(results); n > 10 {
		score -= float64(2 * (n - 10))
	}
	if changedFiles > 5 {
		score -= float64(3 * (changedFiles - 5))
	}
	return clamp(int(math.Round(score)))
}

// DependencyRisk penalizes tasks that add dependencies or call external APIs, and package related plan risks
func DependencyRisk(plan *model.Plan) int {
	score := 100
	if plan == nil {
		return score
	}
	for _, t := range plan.Tasks {
		text := taskText(t)
		if containsAny(text, dependencyKeywords) {
			score -= 15
		}
		if containsAny(text, externalAPIKeywords) {
			score -= 10
		}
	}
	for _, risk := range plan.Risks {
		if containsAny(strings.ToLower(risk), planRiskKeywords) {
			score -= 10
		}
	}
	return max(0, score)
}

// BehaviorRisk penalizes tasks touching data, security or configuration, and review risks by severity
func BehaviorRisk(plan *model.Plan, review *model.ReviewResult) int {
	score := 100
	if plan != nil {
		for _, t := range plan.Tasks {
			text := taskText(t)
			if containsAny(text+" "+strings.ToLower(t.File), dataKeywords) {
				score -= 15
			}
			if containsAny(text, securityKeywords) {
				score -= 10
			}
			if containsAny(text, configKeywords) {
				score -= 5
			}
		}
	}
	if review != nil {
		for _, r := range review.Risks {
			score -= severityPenalty(r.Severity, 25, 15, 8, 3)
		}
	}
	return max(0, score)
}

// SelfReview adjusts the reviewer's confidence by its assessment, then subtracts per issue
func SelfReview(review *model.ReviewResult) int {
	if review == nil {
		return 50
	}
	score := review.Confidence
	switch review.Assessment {
	case model.AssessmentApprove:
		score = max(score, 70)
	case model.AssessmentRequestChanges:
		score = min(score, 50)
	case model.AssessmentNeedsDiscussion:
		score = min(score, 60)
	}
	for _, issue := range review.Issues {
		score -= severityPenalty(issue.Severity, 30, 20, 10, 3)
	}
	return clamp(score)
}

func severityPenalty(s model.Severity, critical, high, medium, low int) int {
	switch model.Severity(strings.ToLower(string(s))) {
	case model.SeverityCritical:
		return critical
	case model.SeverityHigh:
		return high
	case model.SeverityMedium:
		return medium
	case model.SeverityLow:
		return low
	}
	return 0
}

func changedFileCount(in Input) int {
	if in.ChangedFiles != nil {
		return len(in.ChangedFiles)
	}
	seen := make(map[string]bool)
	for _, r := range in.Results {
		if r.Success && r.Diff != "" {
			seen[r.File] = true
		}
	}
	return len(seen)
}

func taskText(t model.Task) string {
	return strings.ToLower(t.Description + " " + t.Details)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func clamp(v int) int {
	return max(0, min(100, v))
}
