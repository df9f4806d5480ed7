package output

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/git/provider/providertest"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	os.Exit(m.Run())
}

func TestMarkerRoundTrip(t *testing.T) {
	body := ErrorComment("c0ffee", "boom")
	id, ok := RunIDFromBody(body)
	require.True(t, ok)
	assert.Equal(t, "c0ffee", id)

	_, ok = RunIDFromBody("plain comment")
	assert.False(t, ok)
}

func TestPRTitle(t *testing.T) {
	assert.Equal(t, "fix: Login button broken (#12)", PRTitle(12, "  Login button broken "))
	assert.Equal(t, PRTitle(3, "x"), CommitMessage(3, "x"))
}

func TestPRBody(t *testing.T) {
	body := PRBody(PRInput{
		RunID:       "run1",
		IssueNumber: 7,
		IssueTitle:  "Add greeting",
		Plan:        &model.Plan{Summary: "Adds a greeting helper"},
		Results: []model.TaskResult{
			{TaskID: 1, Success: true, File: "src/greet.js", Action: model.TaskActionCreated},
			{TaskID: 2, Success: false, File: "src/app.js", Action: model.TaskActionSkipped},
		},
		Tests:      &model.TestResults{Ran: true, Passed: true, Command: "npm test", Total: 4, PassedCount: 4, PassRate: 100},
		Confidence: &model.ConfidenceBreakdown{Overall: 88},
		IntentCard: "## Intent\nGreets users.",
	})

	assert.True(t, strings.HasPrefix(body, "Closes #7\n"))
	assert.Contains(t, body, "Adds a greeting helper")
	assert.Contains(t, body, "- ✅ `src/greet.js` created")
	assert.Contains(t, body, "- ❌ `src/app.js` skipped")
	assert.Contains(t, body, "`npm test` passed: 4 passed, 0 failed, 0 skipped (100%)")
	assert.Contains(t, body, "**Confidence:** 88/100")
	assert.Contains(t, body, "<summary>Intent card</summary>")
	assert.Contains(t, body, Marker("run1"))
}

func TestTestSummary(t *testing.T) {
	assert.Equal(t, "Tests were not run.", TestSummary(nil))
	assert.Equal(t, "Tests were not run.", TestSummary(&model.TestResults{}))
	assert.Contains(t, TestSummary(&model.TestResults{Ran: true, Command: "npm test"}), "no test counts")
}

func TestReviewComment_SortsBySeverity(t *testing.T) {
	body := ReviewComment("run1", &model.ReviewResult{
		Summary:    "Looks fine",
		Assessment: model.AssessmentApprove,
		Confidence: 80,
		Issues: []model.ReviewItem{
			{Severity: model.SeverityLow, Message: "nit"},
			{Severity: model.SeverityCritical, File: "a.js", Line: 3, Message: "sql injection"},
		},
	})

	assert.Contains(t, body, "**Assessment:** `approve`")
	crit := strings.Index(body, "sql injection")
	low := strings.Index(body, "nit")
	assert.True(t, crit > 0 && crit < low)
	assert.Contains(t, body, "`a.js:3`")
	assert.NotContains(t, body, "### Risks")

	assert.Contains(t, ReviewComment("r", nil), "No review available.")
}

func TestFailureReport(t *testing.T) {
	p := model.PolicyResult{
		Passed:   false,
		Gates:    []model.GateResult{{Name: "min_confidence", Passed: false, Required: true, Actual: "40", Threshold: "70"}},
		Blockers: []string{"confidence 40 below 70"},
	}
	body := FailureReport("run9", p, &model.ConfidenceBreakdown{Overall: 40, TestsPassing: 50}, "## Intent\nDoes things")

	assert.Contains(t, body, "did not open a pull request")
	assert.Contains(t, body, "Policy gates not passed")
	assert.Contains(t, body, "| Tests passing | 50 | 30% |")
	assert.Contains(t, body, "## Intent card")
	assert.Contains(t, body, "Does things")
	assert.Contains(t, body, Marker("run9"))
}

func TestPolicyComment(t *testing.T) {
	body := PolicyComment("run1", model.PolicyResult{Passed: true}, nil)
	assert.Contains(t, body, "Policy gates passed")
	assert.NotContains(t, body, "| Factor |")
}

func TestErrorComment(t *testing.T) {
	body := ErrorComment("run1", "clone failed ```x```")
	assert.Contains(t, body, "Havoc run failed")
	assert.NotContains(t, body, "```x```")
	assert.Contains(t, ErrorComment("run1", "  "), "unknown error")
}

func TestCommenter(t *testing.T) {
	fake := providertest.New()
	c := NewCommenter(fake, "acme", "web", nil)

	require.NoError(t, c.Post(context.Background(), 5, "hello"))
	assert.Equal(t, []string{"hello"}, fake.CommentsOn(5))
	assert.Equal(t, "acme", fake.Comments[0].Owner)

	fake.CommentErr = errors.New("rate limited")
	assert.False(t, c.PostBestEffort(context.Background(), 5, "again"))
	assert.Len(t, fake.Comments, 1)
}
