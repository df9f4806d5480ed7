package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/pkg/errors"
)

// fakeRunner finishes every run as done, or blocks while hold is set
type fakeRunner struct {
	runs   store.RunStore
	hold   chan struct{}
	panics bool

	mu  sync.Mutex
	ran []string
}

func (f *fakeRunner) Run(ctx context.Context, run *model.Run) pipeline.Result {
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
		}
	}
	if f.panics {
		panic("runner exploded")
	}
	f.mu.Lock()
	f.ran = append(f.ran, run.ID)
	f.mu.Unlock()
	_ = f.runs.UpdateStatus(run.ID, model.RunStatusDone, "")
	return pipeline.Result{RunID: run.ID, Success: true}
}

func (f *fakeRunner) Ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

func newTestEngine(t *testing.T, cfg config.EngineConfig) (*Engine, store.Store, *fakeRunner) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	runner := &fakeRunner{runs: s.Run()}
	e, err := NewEngine(cfg, s.Run(), runner, t.TempDir())
	require.NoError(t, err)
	return e, s, runner
}

func newRun(repo string, issue int) *model.Run {
	return &model.Run{
		RepoOwner:     "acme",
		RepoName:      repo,
		IssueNumber:   issue,
		IssueTitle:    "Broken button",
		TriggerSource: model.TriggerSourceAPI,
	}
}

func TestEngine_SubmitRunsThroughPipeline(t *testing.T) {
	e, s, runner := newTestEngine(t, config.EngineConfig{MaxConcurrent: 2, QueueSize: 10})

	completed := make(chan pipeline.Result, 1)
	e.SetOnComplete(func(run *model.Run, res pipeline.Result) { completed <- res })

	require.NoError(t, e.Start())
	defer e.Stop()

	run := newRun("web", 7)
	require.NoError(t, e.Submit(run))
	assert.NotEmpty(t, run.ID)

	select {
	case res := <-completed:
		assert.Equal(t, run.ID, res.RunID)
		assert.True(t, res.Success)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}

	stored, err := s.Run().GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, stored.Status)
	assert.Equal(t, []string{run.ID}, runner.Ran())
}

func TestEngine_SubmitValidates(t *testing.T) {
	e, _, _ := newTestEngine(t, config.EngineConfig{})

	err := e.Submit(&model.Run{RepoOwner: "acme", IssueNumber: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	err = e.Submit(&model.Run{RepoOwner: "acme", RepoName: "web"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	assert.Error(t, e.Submit(nil))
}

func TestEngine_QueueFullFailsRun(t *testing.T) {
	e, s, _ := newTestEngine(t, config.EngineConfig{MaxConcurrent: 1, QueueSize: 1})

	// Not started: nothing drains the queue
	require.NoError(t, e.Submit(newRun("web", 1)))

	overflow := newRun("web", 2)
	err := e.Submit(overflow)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeQueueFull))

	stored, err := s.Run().GetByID(overflow.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "queue is full")
}

func TestEngine_StartRecoversRuns(t *testing.T) {
	e, s, runner := newTestEngine(t, config.EngineConfig{MaxConcurrent: 1, QueueSize: 10})

	interrupted := store.CreateTestRun(t, s)
	require.NoError(t, s.Run().UpdateStatus(interrupted.ID, model.RunStatusTesting, ""))
	pending := store.CreateTestRun(t, s)

	require.NoError(t, e.Start())
	defer e.Stop()

	got, err := s.Run().GetByID(interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, ReasonInterrupted, got.Error)

	waitFor(t, func() bool { return len(runner.Ran()) == 1 })
	assert.Equal(t, []string{pending.ID}, runner.Ran())
}

func TestEngine_Execute(t *testing.T) {
	e, s, runner := newTestEngine(t, config.EngineConfig{})

	run := newRun("web", 3)
	res, err := e.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{run.ID}, runner.Ran())

	stored, err := s.Run().GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerSourceAPI, stored.TriggerSource)
}

func TestEngine_ExecuteRecoversRunnerPanic(t *testing.T) {
	e, s, runner := newTestEngine(t, config.EngineConfig{})
	runner.panics = true

	run := newRun("web", 4)
	var res pipeline.Result
	require.NotPanics(t, func() {
		var err error
		res, err = e.Execute(context.Background(), run)
		require.NoError(t, err)
	})
	assert.False(t, res.Success)
	assert.Equal(t, run.ID, res.RunID)
	assert.Contains(t, res.Error, "runner exploded")

	stored, err := s.Run().GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "runner exploded")
}

func TestEngine_QueuedRunPanicKeepsWorkerAlive(t *testing.T) {
	e, s, runner := newTestEngine(t, config.EngineConfig{MaxConcurrent: 1, QueueSize: 10})
	runner.panics = true

	completed := make(chan pipeline.Result, 1)
	e.SetOnComplete(func(run *model.Run, res pipeline.Result) { completed <- res })

	require.NoError(t, e.Start())
	defer e.Stop()

	run := newRun("web", 5)
	require.NoError(t, e.Submit(run))

	select {
	case res := <-completed:
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "panicked")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}

	stored, err := s.Run().GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
}

func TestEngine_StopCancelsInFlight(t *testing.T) {
	e, _, runner := newTestEngine(t, config.EngineConfig{MaxConcurrent: 1})
	runner.hold = make(chan struct{})
	require.NoError(t, e.Start())

	run := newRun("web", 4)
	require.NoError(t, e.Submit(run))
	waitFor(t, func() bool { return e.GetQueueStats().TotalRunning == 1 })
	assert.True(t, e.IsQueued(run.ID))

	e.Stop()
	assert.Equal(t, []string{run.ID}, runner.Ran())
	assert.Error(t, e.Context().Err())
}

func TestNewEngine_InvalidJanitorSchedule(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()
	_, err := NewEngine(config.EngineConfig{JanitorSchedule: "not a schedule"}, s.Run(), &fakeRunner{}, t.TempDir())
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestJanitor_Sweep(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	mk := func(name string, mtime time.Time) string {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.Chtimes(dir, mtime, mtime))
		return dir
	}
	stale := mk("stale", old)
	active := mk("active", old)
	fresh := mk("fresh", time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0644))
	require.NoError(t, os.Chtimes(filepath.Join(root, "file.txt"), old, old))

	j, err := NewJanitor(root, 24*time.Hour, "", func(id string) bool { return id == "active" })
	require.NoError(t, err)

	assert.Equal(t, 1, j.Sweep())
	assert.NoDirExists(t, stale)
	assert.DirExists(t, active)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "file.txt"))
}

func TestJanitor_MissingRoot(t *testing.T) {
	j, err := NewJanitor(filepath.Join(t.TempDir(), "missing"), 0, "@every 1h", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, j.Sweep())

	j.Start()
	j.Stop()
}
