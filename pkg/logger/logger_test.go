package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resetGlobal clears the global logger for one test and restores it afterwards
func resetGlobal(t *testing.T) {
	t.Helper()
	prevLogger, prevHook := globalLogger, runLogHook
	globalLogger, runLogHook = nil, nil
	once = sync.Once{}
	t.Cleanup(func() {
		globalLogger, runLogHook = prevLogger, prevHook
		once = sync.Once{}
	})
}

func textLogger(buf *bytes.Buffer) *zap.Logger {
	core := zapcore.NewCore(newKVEncoder(false), zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestKVEncoder_RunContextBeforeEntryFields(t *testing.T) {
	var buf bytes.Buffer
	log := textLogger(&buf).With(zap.String(FieldRunID, "r1"))

	log.Warn("Stage failed",
		zap.String("stage", "testing"),
		zap.Int("exit_code", 2),
		zap.Duration("took", 1500*time.Millisecond),
		zap.Error(errors.New("boom")))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "["), line)
	assert.Contains(t, line, "[WARN] Stage failed")
	for _, kv := range []string{"run_id=r1", "stage=testing", "exit_code=2", "took=1.5s", "error=boom"} {
		assert.Contains(t, line, kv)
	}
	assert.Less(t, strings.Index(line, "run_id="), strings.Index(line, "stage="))
	assert.NotContains(t, line, "\x1b[")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestKVEncoder_WithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := textLogger(&buf)

	parent.With(zap.String(FieldRunID, "child")).Info("Child entry")
	parent.Info("Parent entry")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "run_id=child")
	assert.NotContains(t, lines[1], "run_id")
}

func TestKVEncoder_LevelColorOnConsoleOnly(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	assert.Contains(t, newKVEncoder(true).level(zapcore.ErrorLevel), "\x1b[")
	assert.Equal(t, "[ERROR]", newKVEncoder(false).level(zapcore.ErrorLevel))
	assert.Equal(t, "[DEBUG]", newKVEncoder(false).level(zapcore.DebugLevel))
}

func TestKVEncoder_StackOnNewLine(t *testing.T) {
	enc := newKVEncoder(false)
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.ErrorLevel,
		Time:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Message: "Run panicked",
		Stack:   "goroutine 1 [running]:",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 10:00:00] [ERROR] Run panicked\ngoroutine 1 [running]:\n", buf.String())
}

func TestInit_JSONFile(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "logs", "havoc.log")

	require.NoError(t, Init(Config{Level: "info", Format: "json", File: path}))
	WithRun("run-42").Info("Run started", zap.Int("issue", 7))
	Debug("Filtered out")
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Run started", entry["msg"])
	assert.Equal(t, "run-42", entry[FieldRunID])
	assert.Equal(t, float64(7), entry["issue"])
	assert.Contains(t, entry, "caller")
}

func TestInit_TextFileHasNoColor(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "havoc.log")

	require.NoError(t, Init(Config{Level: "debug", Format: "text", File: path}))
	WithRun("run-7").Debug("Stage started", zap.String("stage", "cloning"))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "[DEBUG]")
	assert.Contains(t, line, "logger_test.go")
	assert.Contains(t, line, "run_id=run-7 stage=cloning")
	assert.NotContains(t, line, "\x1b[")
}

func TestInit_FirstCallWins(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, Init(Config{Level: "info", Format: "json", File: first}))
	require.NoError(t, Init(Config{Level: "info", Format: "json", File: second}))
	Info("Only once")
	_ = Sync()

	assert.FileExists(t, first)
	assert.NoFileExists(t, second)
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "havoc.log")

	require.NoError(t, Init(Config{Level: "verbose", Format: "json", File: path}))
	Debug("Hidden")
	Warn("Shown")
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Hidden")
	assert.Contains(t, string(data), "Shown")
}

func TestGet_BeforeInitIsNoop(t *testing.T) {
	resetGlobal(t)

	require.NotNil(t, Get())
	WithRun("abc").Info("Dropped")
	Named("engine").Warn("Dropped")
	assert.NoError(t, Sync())

	SetRunLogHook(&captureWriter{}, zapcore.InfoLevel)
	assert.Nil(t, runLogHook)
}

func TestWithRun_ReachesRunLogHook(t *testing.T) {
	resetGlobal(t)
	require.NoError(t, Init(Config{Level: "debug", Format: "json", File: filepath.Join(t.TempDir(), "h.log")}))

	writer := &captureWriter{}
	SetRunLogHook(writer, zapcore.InfoLevel)

	log := WithRun("run-9")
	log.Debug("Below hook level")
	log.Info("Cloning repository", zap.String("branch", "main"))
	Warn("Engine warning without run")

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.entries, 1)
	got := writer.entries[0]
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, "Cloning repository", got.Message)
	assert.Equal(t, "info", got.Level)
	assert.Equal(t, "main", got.Fields["branch"])
}
