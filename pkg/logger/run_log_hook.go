package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// FieldRunID is the field key for the pipeline run ID in log entries
const FieldRunID = "run_id"

// RunLogEntry is a log line captured for a specific run
type RunLogEntry struct {
	RunID   string
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]any
}

// RunLogWriter receives captured run log entries.
// Implementations must not block.
type RunLogWriter interface {
	WriteRunLog(entry RunLogEntry)
}

// RunLogHook captures logs containing a run_id field and forwards them to a writer.
type RunLogHook struct {
	writer   RunLogWriter
	minLevel zapcore.Level
}

// NewRunLogHook creates a new RunLogHook
func NewRunLogHook(writer RunLogWriter, minLevel zapcore.Level) *RunLogHook {
	return &RunLogHook{writer: writer, minLevel: minLevel}
}

// runLogCore wraps a zapcore.Core and remembers context fields added via With.
type runLogCore struct {
	zapcore.Core
	hook   *RunLogHook
	fields []zapcore.Field
}

// WrapCore wraps a zapcore.Core with the hook
func (h *RunLogHook) WrapCore(core zapcore.Core) zapcore.Core {
	return &runLogCore{Core: core, hook: h}
}

// With creates a new Core with additional fields.
func (c *runLogCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)

	return &runLogCore{
		Core:   c.Core.With(fields),
		hook:   c.hook,
		fields: merged,
	}
}

// Check determines whether the supplied Entry should be logged.
func (c *runLogCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

// Write writes to the underlying core, then forwards run-scoped entries.
func (c *runLogCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if err := c.Core.Write(entry, fields); err != nil {
		return err
	}
	if entry.Level < c.hook.minLevel {
		return nil
	}

	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	runID := extractRunID(all)
	if runID == "" {
		return nil
	}

	c.hook.writer.WriteRunLog(RunLogEntry{
		RunID:   runID,
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
		Fields:  serializeFields(all),
	})
	return nil
}

// extractRunID returns the run ID carried by the fields, if any.
func extractRunID(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key == FieldRunID && field.Type == zapcore.StringType {
			return field.String
		}
	}
	return ""
}

// serializeFields converts zap fields to a plain map, skipping the run ID.
func serializeFields(fields []zapcore.Field) map[string]any {
	data := make(map[string]any, len(fields))
	for _, field := range fields {
		if field.Key == FieldRunID {
			continue
		}

		switch field.Type {
		case zapcore.StringType:
			data[field.Key] = field.String
		case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
			data[field.Key] = field.Integer
		case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
			data[field.Key] = uint64(field.Integer)
		case zapcore.BoolType:
			data[field.Key] = field.Integer == 1
		case zapcore.DurationType:
			data[field.Key] = time.Duration(field.Integer).String()
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok && err != nil {
				data[field.Key] = err.Error()
			}
		default:
			if field.Interface != nil {
				data[field.Key] = fmt.Sprint(field.Interface)
			}
		}
	}
	return data
}
