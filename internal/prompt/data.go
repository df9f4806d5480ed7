// Package prompt renders the prompts sent to the model by each pipeline stage.
package prompt

import (
	"github.com/AlecFritsch/inito/internal/model"
)

// Issue is the issue a run works on. Title and Body are user supplied and are
// fenced as untrusted input when rendered.
type Issue struct {
	Owner  string
	Repo   string
	Number int
	Title  string
	Body   string
}

// AnalyzeData feeds the analysis prompt
type AnalyzeData struct {
	Issue Issue
	Files []string
}

// PlanData feeds the planning prompt
type PlanData struct {
	Issue          Issue
	Analysis       *model.Analysis
	Files          []string
	MaxTasks       int
	ProtectedFiles []string
	TestCommand    string
}

// CodeData feeds both code generation prompts. Current is empty for new files.
type CodeData struct {
	File        string
	Instruction string
	Current     string
	Language    string
	Framework   string
	IssueTitle  string
	Summary     string
}

// ReviewData feeds the self-review prompt
type ReviewData struct {
	Issue       Issue
	PlanSummary string
	Diff        string
	Tests       *model.TestResults
}

// IntentData feeds the intent card prompt
type IntentData struct {
	Issue          Issue
	Plan           *model.Plan
	Results        []model.TaskResult
	Tests          *model.TestResults
	Review         *model.ReviewResult
	Confidence     int
	OutputLanguage string
}
