package store

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/AlecFritsch/inito/internal/database"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/idgen"
)

var testIssueCounter int64

// SetupTestDB creates a migrated SQLite database in a temp dir for testing.
// It returns a Store instance and a cleanup function.
func SetupTestDB(t *testing.T) (Store, func()) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return NewStore(db), cleanup
}

// CreateTestRun creates a pending run with default values.
// Fields can be overridden by passing functions that modify the run.
func CreateTestRun(t *testing.T, s Store, overrides ...func(*model.Run)) *model.Run {
	t.Helper()

	n := atomic.AddInt64(&testIssueCounter, 1)
	run := &model.Run{
		ID:            idgen.NewRunID(),
		RepoOwner:     "acme",
		RepoName:      "widgets",
		IssueNumber:   int(n),
		IssueTitle:    fmt.Sprintf("Test issue %d", n),
		IssueBody:     "Something is broken",
		TriggerSource: model.TriggerSourceCLI,
		Status:        model.RunStatusPending,
	}

	for _, override := range overrides {
		override(run)
	}

	if err := s.Run().Create(run); err != nil {
		t.Fatalf("Failed to create test run: %v", err)
	}
	return run
}
