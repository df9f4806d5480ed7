package logger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureWriter struct {
	mu      sync.Mutex
	entries []RunLogEntry
}

func (w *captureWriter) WriteRunLog(entry RunLogEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
}

func TestRunLogHook_ForwardsRunScopedEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	writer := &captureWriter{}
	log := zap.New(NewRunLogHook(writer, zapcore.WarnLevel).WrapCore(core))

	log.With(zap.String(FieldRunID, "run-1")).Warn("Lint failed", zap.Int("errors", 3))
	log.With(zap.String(FieldRunID, "run-1")).Info("Below threshold")
	log.Error("No run id", zap.Error(errors.New("boom")))

	assert.Equal(t, 3, logs.Len(), "every entry still reaches the wrapped core")

	require.Len(t, writer.entries, 1)
	got := writer.entries[0]
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "Lint failed", got.Message)
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, int64(3), got.Fields["errors"])
	assert.NotContains(t, got.Fields, FieldRunID)
}

func TestRunLogHook_NestedWithKeepsRunID(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	writer := &captureWriter{}
	log := zap.New(NewRunLogHook(writer, zapcore.InfoLevel).WrapCore(core))

	stage := log.With(zap.String(FieldRunID, "run-2")).With(zap.String("stage", "testing"))
	stage.Info("Tests finished",
		zap.Bool("passed", false),
		zap.Duration("duration", 2*time.Second),
		zap.Error(errors.New("exit status 1")),
		zap.Uint("retries", 1))

	require.Len(t, writer.entries, 1)
	fields := writer.entries[0].Fields
	assert.Equal(t, "run-2", writer.entries[0].RunID)
	assert.Equal(t, "testing", fields["stage"])
	assert.Equal(t, false, fields["passed"])
	assert.Equal(t, "2s", fields["duration"])
	assert.Equal(t, "exit status 1", fields["error"])
	assert.Equal(t, uint64(1), fields["retries"])
}

func TestRunLogHook_EntryFieldCanCarryRunID(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	writer := &captureWriter{}
	log := zap.New(NewRunLogHook(writer, zapcore.InfoLevel).WrapCore(core))

	log.Info("Run submitted", zap.String(FieldRunID, "run-3"))

	require.Len(t, writer.entries, 1)
	assert.Equal(t, "run-3", writer.entries[0].RunID)
}
