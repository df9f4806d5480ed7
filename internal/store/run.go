package store

import (
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/errors"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New(errors.ErrCodeRunNotFound, "run not found")

// ErrRunTerminal is returned when an update targets a run that is already done or failed
var ErrRunTerminal = errors.New(errors.ErrCodeRunTerminal, "run is already finished and cannot be modified")

var terminalStatuses = []model.RunStatus{model.RunStatusDone, model.RunStatusFailed}

// RunStore persists pipeline runs. Every mutating method refuses to touch a
// run whose status is terminal and returns ErrRunTerminal instead.
type RunStore interface {
	Create(run *model.Run) error
	GetByID(id string) (*model.Run, error)

	// UpdateStatus moves a run to status. errMsg is stored when non-empty.
	// started_at is set on the first move out of pending; completed_at on a terminal status.
	UpdateStatus(id string, status model.RunStatus, errMsg string) error
	UpdateAnalysis(id string, analysis *model.Analysis) error
	UpdatePlan(id string, plan *model.Plan) error
	UpdateTaskResults(id string, results []model.TaskResult) error
	UpdateArtifacts(id string, artifacts model.RunArtifacts) error
	UpdatePR(id string, url string, number int, branch string) error

	List(filter model.RunFilter) ([]model.Run, int64, error)
	ListActive() ([]model.Run, error)
	CountByStatus() (map[model.RunStatus]int64, error)

	// FailInterrupted marks every run that had started but not finished as
	// failed with reason. Pending runs are left alone so they can be requeued.
	FailInterrupted(reason string) (int64, error)
}

type runStore struct {
	db *gorm.DB
}

func newRunStore(db *gorm.DB) RunStore {
	return &runStore{db: db}
}

func (s *runStore) Create(run *model.Run) error {
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	if run.TriggerSource == "" {
		run.TriggerSource = model.TriggerSourceCLI
	}
	return s.db.Create(run).Error
}

func (s *runStore) GetByID(id string) (*model.Run, error) {
	var run model.Run
	err := s.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load run", err)
	}
	return &run, nil
}

func (s *runStore) UpdateStatus(id string, status model.RunStatus, errMsg string) error {
	if !status.IsValid() {
		return errors.ErrValidation("unknown run status: " + string(status))
	}

	now := time.Now()
	values := &model.Run{Status: status, Error: errMsg, UpdatedAt: now}
	columns := []string{"status", "updated_at"}
	if errMsg != "" {
		columns = append(columns, "error")
	}
	if status.IsTerminal() {
		values.CompletedAt = &now
		columns = append(columns, "completed_at")
	}

	if err := s.updateMutable(id, values, columns...); err != nil {
		return err
	}

	if status != model.RunStatusPending {
		if err := s.db.Model(&model.Run{}).
			Where("id = ? AND started_at IS NULL", id).
			Update("started_at", now).Error; err != nil {
			return errors.Wrap(errors.ErrCodeDBQuery, "failed to set run start time", err)
		}
	}
	return nil
}

func (s *runStore) UpdateAnalysis(id string, analysis *model.Analysis) error {
	return s.updateMutable(id, &model.Run{Analysis: analysis, UpdatedAt: time.Now()}, "analysis", "updated_at")
}

func (s *runStore) UpdatePlan(id string, plan *model.Plan) error {
	return s.updateMutable(id, &model.Run{Plan: plan, UpdatedAt: time.Now()}, "plan", "updated_at")
}

func (s *runStore) UpdateTaskResults(id string, results []model.TaskResult) error {
	return s.updateMutable(id, &model.Run{TaskResults: results, UpdatedAt: time.Now()}, "task_results", "updated_at")
}

func (s *runStore) UpdateArtifacts(id string, artifacts model.RunArtifacts) error {
	values := &model.Run{
		IntentCard:   artifacts.IntentCard,
		Review:       artifacts.Review,
		Confidence:   artifacts.Confidence,
		PolicyResult: artifacts.PolicyResult,
		ChangedFiles: model.StringArray(artifacts.ChangedFiles),
		UpdatedAt:    time.Now(),
	}
	columns := []string{"intent_card", "review", "confidence", "policy_result", "changed_files", "updated_at"}
	if artifacts.Confidence != nil {
		values.ConfidenceScore = artifacts.Confidence.Overall
		columns = append(columns, "confidence_score")
	}
	if artifacts.PolicyResult != nil {
		values.PolicyPassed = artifacts.PolicyResult.Passed
		columns = append(columns, "policy_passed")
	}
	return s.updateMutable(id, values, columns...)
}

func (s *runStore) UpdatePR(id string, url string, number int, branch string) error {
	values := &model.Run{PRURL: url, PRNumber: number, BranchName: branch, UpdatedAt: time.Now()}
	return s.updateMutable(id, values, "pr_url", "pr_number", "branch_name", "updated_at")
}

// updateMutable writes the selected columns only while the run is not terminal
func (s *runStore) updateMutable(id string, values *model.Run, columns ...string) error {
	result := s.db.Model(&model.Run{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Select(columns).
		Updates(values)
	if result.Error != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to update run", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.Model(&model.Run{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to check run", err)
	}
	if count == 0 {
		return ErrRunNotFound
	}
	return ErrRunTerminal
}

func (s *runStore) List(filter model.RunFilter) ([]model.Run, int64, error) {
	var runs []model.Run
	var total int64

	query := s.db.Model(&model.Run{})
	if filter.RepoOwner != "" {
		query = query.Where("repo_owner = ?", filter.RepoOwner)
	}
	if filter.RepoName != "" {
		query = query.Where("repo_name = ?", filter.RepoName)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&runs).Error
	return runs, total, err
}

func (s *runStore) ListActive() ([]model.Run, error) {
	var runs []model.Run
	err := s.db.Where("status NOT IN ?", terminalStatuses).
		Order("created_at ASC").
		Find(&runs).Error
	return runs, err
}

func (s *runStore) CountByStatus() (map[model.RunStatus]int64, error) {
	var rows []struct {
		Status model.RunStatus
		Count  int64
	}
	err := s.db.Model(&model.Run{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.RunStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *runStore) FailInterrupted(reason string) (int64, error) {
	now := time.Now()
	result := s.db.Model(&model.Run{}).
		Where("status NOT IN ? AND status <> ?", terminalStatuses, model.RunStatusPending).
		Updates(map[string]interface{}{
			"status":       model.RunStatusFailed,
			"error":        reason,
			"completed_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}
