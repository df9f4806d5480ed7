package model

import (
	"fmt"
	"time"
)

// RunStatus represents the pipeline state of a run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusCloning    RunStatus = "cloning"
	RunStatusAnalyzing  RunStatus = "analyzing"
	RunStatusPlanning   RunStatus = "planning"
	RunStatusEditing    RunStatus = "editing"
	RunStatusTesting    RunStatus = "testing"
	RunStatusReviewing  RunStatus = "reviewing"
	RunStatusPublishing RunStatus = "publishing"
	RunStatusDone       RunStatus = "done"
	RunStatusFailed     RunStatus = "failed"
)

// AllRunStatuses lists every status in pipeline order
var AllRunStatuses = []RunStatus{
	RunStatusPending,
	RunStatusCloning,
	RunStatusAnalyzing,
	RunStatusPlanning,
	RunStatusEditing,
	RunStatusTesting,
	RunStatusReviewing,
	RunStatusPublishing,
	RunStatusDone,
	RunStatusFailed,
}

// IsTerminal reports whether no further transitions are allowed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// IsValid reports whether s is a known status
func (s RunStatus) IsValid() bool {
	for _, known := range AllRunStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TriggerSource identifies what started a run
type TriggerSource string

const (
	TriggerSourceComment TriggerSource = "comment"
	TriggerSourceLabel   TriggerSource = "label"
	TriggerSourceCLI     TriggerSource = "cli"
	TriggerSourceAPI     TriggerSource = "api"
)

// Run is one end-to-end execution of the pipeline for a single issue.
// Inputs are fixed at creation; the state fields are written only by the
// orchestrator through the store and are frozen once the run is done or failed.
type Run struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Inputs
	RepoOwner      string        `gorm:"size:255;not null;index:idx_runs_repo,priority:1" json:"repo_owner"`
	RepoName       string        `gorm:"size:255;not null;index:idx_runs_repo,priority:2" json:"repo_name"`
	IssueNumber    int           `gorm:"not null;index" json:"issue_number"`
	IssueTitle     string        `gorm:"size:1024" json:"issue_title"`
	IssueBody      string        `gorm:"type:text" json:"issue_body"`
	InstallationID int64         `json:"installation_id,omitempty"`
	TriggeredBy    string        `gorm:"size:255" json:"triggered_by,omitempty"`
	TriggerSource  TriggerSource `gorm:"size:20;not null;default:cli" json:"trigger_source"`
	DeliveryID     string        `gorm:"size:64;index" json:"delivery_id,omitempty"` // webhook delivery that created the run

	// State
	Status          RunStatus            `gorm:"size:20;not null;default:pending;index" json:"status"`
	Analysis        *Analysis            `gorm:"serializer:json;type:text" json:"analysis,omitempty"`
	Plan            *Plan                `gorm:"serializer:json;type:text" json:"plan,omitempty"`
	TaskResults     []TaskResult         `gorm:"serializer:json;type:text" json:"task_results,omitempty"`
	IntentCard      string               `gorm:"type:text" json:"intent_card,omitempty"`
	Review          *ReviewResult        `gorm:"serializer:json;type:text" json:"review,omitempty"`
	ConfidenceScore int                  `gorm:"default:0" json:"confidence_score"`
	Confidence      *ConfidenceBreakdown `gorm:"serializer:json;type:text" json:"confidence,omitempty"`
	PolicyResult    *PolicyResult        `gorm:"serializer:json;type:text" json:"policy_result,omitempty"`
	PolicyPassed    bool                 `gorm:"default:false" json:"policy_passed"`
	ChangedFiles    StringArray          `gorm:"type:text" json:"changed_files,omitempty"`

	// Publishing
	PRURL      string `gorm:"size:512" json:"pr_url,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	BranchName string `gorm:"size:255" json:"branch_name,omitempty"`

	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// FullRepo returns "owner/name"
func (r *Run) FullRepo() string {
	return fmt.Sprintf("%s/%s", r.RepoOwner, r.RepoName)
}

// Duration returns the wall time of a finished run, or zero
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// RunFilter holds list query parameters
type RunFilter struct {
	RepoOwner string
	RepoName  string
	Status    RunStatus
	Limit     int
	Offset    int
}

// RunArtifacts groups the outputs written after review and scoring
type RunArtifacts struct {
	IntentCard   string
	Review       *ReviewResult
	Confidence   *ConfidenceBreakdown
	PolicyResult *PolicyResult
	ChangedFiles []string
}
