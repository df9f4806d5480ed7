package model

import "time"

// TaskKind is the operation a plan task performs
type TaskKind string

const (
	TaskKindCreate TaskKind = "create"
	TaskKindModify TaskKind = "modify"
	TaskKindDelete TaskKind = "delete"
	TaskKindTest   TaskKind = "test"
)

// Task is one step of a plan. DependsOn may only reference lower task ids.
type Task struct {
	ID          int      `json:"id"`
	Kind        TaskKind `json:"type" enum:"create,modify,delete,test"`
	File        string   `json:"file"`
	Description string   `json:"description"`
	Details     string   `json:"details,omitempty"`
	DependsOn   []int    `json:"dependencies,omitempty"`
}

// Plan is the ordered list of tasks produced by the plan generator
type Plan struct {
	Summary      string   `json:"summary"`
	Tasks        []Task   `json:"tasks"`
	Risks        []string `json:"risks,omitempty"`
	TestStrategy string   `json:"testStrategy,omitempty"`
}

// TaskAction is what actually happened to the target file
type TaskAction string

const (
	TaskActionCreated  TaskAction = "created"
	TaskActionModified TaskAction = "modified"
	TaskActionDeleted  TaskAction = "deleted"
	TaskActionSkipped  TaskAction = "skipped"
)

// TaskResult is the outcome of executing one task
type TaskResult struct {
	TaskID  int        `json:"task_id"`
	Success bool       `json:"success"`
	File    string     `json:"file"`
	Action  TaskAction `json:"action"`
	Error   string     `json:"error,omitempty"`
	Diff    string     `json:"diff,omitempty"`
}

// TestResults is the normalized outcome of the repository's test command
type TestResults struct {
	Ran         bool          `json:"ran"`
	Passed      bool          `json:"passed"`
	Command     string        `json:"command,omitempty"`
	Total       int           `json:"total"`
	PassedCount int           `json:"passed_count"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	PassRate    float64       `json:"pass_rate"` // 0-100, 0 when total is 0
	Parser      string        `json:"parser,omitempty"`
	Duration    time.Duration `json:"duration"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// LintResults is the outcome of the best-effort lint command
type LintResults struct {
	Ran      bool   `json:"ran"`
	Passed   bool   `json:"passed"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	Output   string `json:"output,omitempty"`
}

// Severity of a review finding
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Assessment is the reviewer's overall verdict
type Assessment string

const (
	AssessmentApprove         Assessment = "approve"
	AssessmentRequestChanges  Assessment = "request_changes"
	AssessmentNeedsDiscussion Assessment = "needs_discussion"
)

// ReviewItem is a single finding from the self-review
type ReviewItem struct {
	Severity Severity `json:"severity" enum:"low,medium,high,critical"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

// ReviewResult is the self-review of the staged diff
type ReviewResult struct {
	Summary     string       `json:"summary"`
	Issues      []ReviewItem `json:"issues"`
	Suggestions []ReviewItem `json:"suggestions"`
	Risks       []ReviewItem `json:"risks"`
	Assessment  Assessment   `json:"overallAssessment" enum:"approve,request_changes,needs_discussion"`
	Confidence  int          `json:"confidence"`
}

// NoChangesReview is the fixed review used when there is no diff to look at
func NoChangesReview() *ReviewResult {
	return &ReviewResult{
		Summary:     "No changes to review",
		Issues:      []ReviewItem{},
		Suggestions: []ReviewItem{},
		Risks:       []ReviewItem{},
		Assessment:  AssessmentApprove,
		Confidence:  100,
	}
}

// Confidence factor weights
const (
	WeightTestsPassing     = 0.30
	WeightLintClean        = 0.10
	WeightChangeComplexity = 0.20
	WeightDependencyRisk   = 0.15
	WeightBehaviorRisk     = 0.15
	WeightSelfReview       = 0.10
)

// ConfidenceBreakdown holds the six factor scores (each 0-100) and the weighted overall score
type ConfidenceBreakdown struct {
	TestsPassing     int `json:"testsPassing"`
	LintClean        int `json:"lintClean"`
	ChangeComplexity int `json:"changeComplexity"`
	DependencyRisk   int `json:"dependencyRisk"`
	BehaviorRisk     int `json:"behaviorRisk"`
	SelfReview       int `json:"selfReview"`
	Overall          int `json:"overall"`
}

// GateResult is the outcome of one policy gate
type GateResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Required  bool   `json:"required"`
	Actual    string `json:"actual"`
	Threshold string `json:"threshold"`
	Message   string `json:"message"`
}

// PolicyResult aggregates gate outcomes. Passed is true iff there are no blockers.
type PolicyResult struct {
	Passed   bool         `json:"passed"`
	Gates    []GateResult `json:"gates"`
	Blockers []string     `json:"blockers"`
	Warnings []string     `json:"warnings"`
}

// Complexity is the analyzer's estimate of how large a fix is
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Analysis is the analyzer stage output
type Analysis struct {
	Summary       string     `json:"summary"`
	AffectedAreas []string   `json:"affectedAreas"`
	Approach      string     `json:"approach"`
	Complexity    Complexity `json:"complexity" enum:"low,medium,high"`
	Language      string     `json:"language,omitempty"`
	Framework     string     `json:"framework,omitempty"`
}
