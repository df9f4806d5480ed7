// Package planner validates generated plans and orders their tasks for execution.
package planner

import (
	"fmt"
	"strings"

	"github.com/AlecFritsch/inito/internal/model"
)

// ValidationResult lists every problem found in a plan
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Error joins the collected problems into one message
func (v ValidationResult) Error() string {
	return strings.Join(v.Errors, "; ")
}

// Validate checks that every dependency exists and points to a strictly lower
// task id. All violations are collected. Duplicate ids and tasks without a
// target file are reported as well.
func Validate(plan *model.Plan) ValidationResult {
	var errs []string
	if plan == nil {
		return ValidationResult{Valid: false, Errors: []string{"plan is nil"}}
	}

	ids := make(map[int]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if ids[t.ID] {
			errs = append(errs, fmt.Sprintf("task %d: duplicate task id", t.ID))
		}
		ids[t.ID] = true
	}

	for _, t := range plan.Tasks {
		if strings.TrimSpace(t.File) == "" {
			errs = append(errs, fmt.Sprintf("task %d: missing file path", t.ID))
		}
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				errs = append(errs, fmt.Sprintf("task %d: dependency %d does not exist", t.ID, dep))
				continue
			}
			if dep >= t.ID {
				errs = append(errs, fmt.Sprintf("task %d: dependency %d must have a lower id", t.ID, dep))
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Sort returns tasks in dependency order using a depth-first post-order walk.
// Each task is emitted once, dependencies first; unknown dependencies are
// ignored and cycles cannot loop. Input order is kept where dependencies allow.
func Sort(tasks []model.Task) []model.Task {
	byID := make(map[int]int, len(tasks))
	for i, t := range tasks {
		if _, dup := byID[t.ID]; !dup {
			byID[t.ID] = i
		}
	}

	visited := make([]bool, len(tasks))
	sorted := make([]model.Task, 0, len(tasks))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, dep := range tasks[i].DependsOn {
			if j, ok := byID[dep]; ok {
				visit(j)
			}
		}
		sorted = append(sorted, tasks[i])
	}

	for i := range tasks {
		visit(i)
	}
	return sorted
}
