package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/model"
)

var testIssue = Issue{
	Owner:  "acme",
	Repo:   "shop",
	Number: 42,
	Title:  "Cart total ignores <discount>",
	Body:   "Steps:\n1. add item\n2. apply code",
}

func TestRenderer_AnalyzeFencesIssue(t *testing.T) {
	out, err := NewRenderer().Analyze(AnalyzeData{Issue: testIssue, Files: []string{"src/cart.ts"}})
	require.NoError(t, err)

	assert.Contains(t, out, "Repository: acme/shop")
	assert.Contains(t, out, "Issue #42")
	assert.Contains(t, out, "<issue_title>\nCart total ignores &lt;discount&gt;\n</issue_title>")
	assert.Contains(t, out, "- src/cart.ts")
}

func TestRenderer_Plan(t *testing.T) {
	out, err := NewRenderer().Plan(PlanData{
		Issue: testIssue,
		Analysis: &model.Analysis{
			Summary:       "discount not applied",
			Approach:      "apply discount in total()",
			Complexity:    model.ComplexityLow,
			AffectedAreas: []string{"cart", "pricing"},
		},
		MaxTasks:       5,
		ProtectedFiles: []string{".env"},
		TestCommand:    "npm test",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Use at most 5 tasks")
	assert.Contains(t, out, "Affected areas: cart, pricing")
	assert.Contains(t, out, "- .env")
	assert.Contains(t, out, "Tests are run with: npm test")
}

func TestRenderer_PlanWithoutAnalysis(t *testing.T) {
	out, err := NewRenderer().Plan(PlanData{Issue: testIssue, MaxTasks: 3})
	require.NoError(t, err)
	assert.NotContains(t, out, "## Analysis")
	assert.NotContains(t, out, "Never touch")
}

func TestRenderer_CodeSelectsTemplate(t *testing.T) {
	r := NewRenderer()

	create, err := r.Code(CodeData{File: "a.ts", Instruction: "add a helper", Language: "TypeScript"})
	require.NoError(t, err)
	assert.Contains(t, create, "new file")
	assert.Contains(t, create, "Language: TypeScript")
	assert.NotContains(t, create, "<current_file>")

	edit, err := r.Code(CodeData{File: "a.ts", Instruction: "rename x", Current: "const x = 1;"})
	require.NoError(t, err)
	assert.Contains(t, edit, "<current_file>\nconst x = 1;\n</current_file>")
}

func TestRenderer_ReviewTruncatesDiff(t *testing.T) {
	diff := strings.Repeat("+x\n", maxDiffChars)
	out, err := NewRenderer().Review(ReviewData{
		Issue: testIssue,
		Diff:  diff,
		Tests: &model.TestResults{Ran: true, Total: 10, PassedCount: 9, Failed: 1},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "9/10 passed, 1 failed")
	assert.Contains(t, out, "... (truncated)")
	assert.Less(t, len(out), len(diff))
}

func TestRenderer_Intent(t *testing.T) {
	out, err := NewRenderer().Intent(IntentData{
		Issue:          testIssue,
		Plan:           &model.Plan{Summary: "fix discount", Risks: []string{"pricing regressions"}},
		Results:        []model.TaskResult{{File: "src/cart.ts", Action: model.TaskActionModified}},
		Tests:          &model.TestResults{Ran: false},
		Review:         &model.ReviewResult{Summary: "looks fine", Assessment: model.AssessmentApprove},
		Confidence:     88,
		OutputLanguage: "German",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Write it in German.")
	assert.Contains(t, out, "- Risk: pricing regressions")
	assert.Contains(t, out, "- modified src/cart.ts")
	assert.Contains(t, out, "not run")
	assert.Contains(t, out, "looks fine (approve)")
	assert.Contains(t, out, "Confidence score: 88/100")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	_, err := NewRenderer().Render("nope", nil)
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", bullet(nil))
	assert.Equal(t, "- a\n- b\n", bullet([]string{"a", "b"}))
	assert.Equal(t, "1. a\n2. b\n", numbered([]string{"a", "b"}))
	assert.Equal(t, "> a\n> b", quote("a\nb"))
	assert.Equal(t, "  a\n  b", indent(2, "a\nb"))
	assert.Equal(t, "abc", truncate(5, "abc"))
	assert.Equal(t, "ab\n... (truncated)", truncate(2, "abc"))
}
