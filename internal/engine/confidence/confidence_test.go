package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AlecFritsch/inito/internal/model"
)

func happyInput() Input {
	return Input{
		Tests: &model.TestResults{Ran: true, Passed: true, Total: 10, PassedCount: 10, PassRate: 100},
		Lint:  &model.LintResults{Ran: true, Passed: true},
		Plan: &model.Plan{Tasks: []model.Task{
			{ID: 1, Kind: model.TaskKindModify, File: "src/a.ts", Description: "Add null check"},
			{ID: 2, Kind: model.TaskKindModify, File: "src/b.ts", Description: "Handle empty input"},
			{ID: 3, Kind: model.TaskKindTest, File: "src/a.test.ts", Description: "Cover null input"},
		}},
		Results: []model.TaskResult{
			{TaskID: 1, Success: true, File: "src/a.ts", Diff: "d"},
			{TaskID: 2, Success: true, File: "src/b.ts", Diff: "d"},
			{TaskID: 3, Success: true, File: "src/a.test.ts", Diff: "d"},
		},
		Review:       &model.ReviewResult{Assessment: model.AssessmentApprove, Confidence: 90},
		ChangedFiles: []string{"src/a.ts", "src/b.ts", "src/a.test.ts"},
	}
}

func TestCalculate_ReferenceExampleScores99(t *testing.T) {
	b := Calculate(happyInput())

	assert.Equal(t, model.ConfidenceBreakdown{
		TestsPassing:     100,
		LintClean:        100,
		ChangeComplexity: 100,
		DependencyRisk:   100,
		BehaviorRisk:     100,
		SelfReview:       90,
		Overall:          99,
	}, b)
}

func TestCalculate_Deterministic(t *testing.T) {
	in := happyInput()
	in.Tests = &model.TestResults{Ran: true, Passed: false, PassRate: 66.6}
	in.Review.Issues = []model.ReviewItem{{Severity: model.SeverityHigh}}

	first := Calculate(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Calculate(in))
	}
	assert.GreaterOrEqual(t, first.Overall, 0)
	assert.LessOrEqual(t, first.Overall, 100)
}

func TestCalculate_WorstCaseFloorsFactors(t *testing.T) {
	var tasks []model.Task
	var results []model.TaskResult
	for i := 1; i <= 20; i++ {
		tasks = append(tasks, model.Task{ID: i, Description: "npm install an external api for auth database config"})
		results = append(results, model.TaskResult{TaskID: i})
	}
	in := Input{
		Tests:   &model.TestResults{Ran: true, Passed: false, PassRate: 10},
		Lint:    &model.LintResults{Ran: true, Errors: 100, Warnings: 100},
		Plan:    &model.Plan{Tasks: tasks, Risks: []string{"new package"}},
		Results: results,
		Review: &model.ReviewResult{
			Assessment: model.AssessmentRequestChanges,
			Confidence: 10,
			Issues:     []model.ReviewItem{{Severity: model.SeverityCritical}},
			Risks:      []model.ReviewItem{{Severity: model.SeverityCritical}},
		},
	}

	b := Calculate(in)
	// only lint keeps points: 30 * 0.10
	assert.Equal(t, 3, b.Overall)
	assert.Equal(t, 0, b.TestsPassing)
	assert.Equal(t, 30, b.LintClean)
	assert.Equal(t, 0, b.ChangeComplexity)
	assert.Equal(t, 0, b.DependencyRisk)
	assert.Equal(t, 0, b.BehaviorRisk)
	assert.Equal(t, 0, b.SelfReview)
}

func TestTestsPassing(t *testing.T) {
	assert.Equal(t, 50, TestsPassing(nil))
	assert.Equal(t, 50, TestsPassing(&model.TestResults{Ran: false, PassRate: 100}))
	assert.Equal(t, 60, TestsPassing(&model.TestResults{Ran: true, Passed: false, PassRate: 80}))
	assert.Equal(t, 0, TestsPassing(&model.TestResults{Ran: true, Passed: false, PassRate: 15}))
	assert.Equal(t, 95, TestsPassing(&model.TestResults{Ran: true, Passed: true, PassRate: 95}))
}

func TestLintClean(t *testing.T) {
	assert.Equal(t, 70, LintClean(nil))
	assert.Equal(t, 70, LintClean(&model.LintResults{}))
	assert.Equal(t, 100, LintClean(&model.LintResults{Ran: true, Passed: true, Errors: 3}))
	assert.Equal(t, 66, LintClean(&model.LintResults{Ran: true, Errors: 3, Warnings: 2}))
	assert.Equal(t, 30, LintClean(&model.LintResults{Ran: true, Errors: 9, Warnings: 50}))
}

func TestChangeComplexity(t *testing.T) {
	assert.Equal(t, 50, ChangeComplexity(nil, 0))

	half := []model.TaskResult{{Success: true}, {Success: false}}
	assert.Equal(t, 50, ChangeComplexity(half, 2))

	var twelve []model.TaskResult
	for i := 0; i < 12; i++ {
		twelve = append(twelve, model.TaskResult{Success: true})
	}
	// 100 - 2*2 - 3*3
	assert.Equal(t, 87, ChangeComplexity(twelve, 8))
}

func TestDependencyRisk(t *testing.T) {
	plan := &model.Plan{
		Tasks: []model.Task{
			{Description: "Add lodash", Details: "run yarn add lodash"},
			{Description: "Call the third-party geocoder"},
			{Description: "Rename variable"},
		},
		Risks: []string{"Package upgrade may break build", "Logic may be off"},
	}
	// 100 - 15 - 10 - 10
	assert.Equal(t, 65, DependencyRisk(plan))
	assert.Equal(t, 100, DependencyRisk(nil))
}

func TestBehaviorRisk(t *testing.T) {
	plan := &model.Plan{Tasks: []model.Task{
		{File: "db/migrations/002.sql", Description: "Add column"},
		{File: "src/login.ts", Description: "Fix password reset"},
		{File: "src/app.ts", Description: "Read timeout from config"},
	}}
	review := &model.ReviewResult{Risks: []model.ReviewItem{
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityLow},
	}}
	// 100 - 15 - 10 - 5 - 15 - 3
	assert.Equal(t, 52, BehaviorRisk(plan, review))
}

func TestSelfReview(t *testing.T) {
	assert.Equal(t, 50, SelfReview(nil))
	assert.Equal(t, 70, SelfReview(&model.ReviewResult{Assessment: model.AssessmentApprove, Confidence: 40}))
	assert.Equal(t, 50, SelfReview(&model.ReviewResult{Assessment: model.AssessmentRequestChanges, Confidence: 95}))
	assert.Equal(t, 60, SelfReview(&model.ReviewResult{Assessment: model.AssessmentNeedsDiscussion, Confidence: 95}))

	withIssues := &model.ReviewResult{
		Assessment: model.AssessmentApprove,
		Confidence: 90,
		Issues: []model.ReviewItem{
			{Severity: model.SeverityMedium},
			{Severity: model.SeverityLow},
		},
	}
	// 90 - 10 - 3
	assert.Equal(t, 77, SelfReview(withIssues))
}
