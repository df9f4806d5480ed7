// Package logger holds the process-wide zap logger.
//
// Entries go to stdout and, when a file is configured, to a lumberjack
// rotated file as well. The "json" format is zap's JSON encoder; "text"
// prints one line per entry with fields as key=value, colored on a terminal.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when Config leaves them unset
const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
	defaultMaxBackups = 5
)

// textTimeLayout is the timestamp of the text format
const textTimeLayout = "2006-01-02 15:04:05"

var (
	globalLogger *zap.Logger
	once         sync.Once

	// runLogHook mirrors run-scoped entries to the run's event stream
	runLogHook *RunLogHook

	bufferpool = buffer.NewPool()
)

// Config holds the logger configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is the output format (json, text)
	Format string `yaml:"format"`
	// File additionally writes entries to this path when set
	File string `yaml:"file"`
	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int `yaml:"max_size"`
	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"max_age"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `yaml:"compress"`
	// AccessLog logs successful HTTP requests at info level
	AccessLog bool `yaml:"access_log"`
}

// Init builds the global logger. Only the first call has an effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		globalLogger, err = build(cfg)
	})
	return err
}

// build assembles the stdout core and the optional file core
func build(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Format, true), zapcore.Lock(os.Stdout), level),
	}
	if w := fileWriter(cfg); w != nil {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format, false), w, level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// fileWriter returns the rotated file sink, or nil when no file is configured
// or its directory cannot be created
func fileWriter(cfg Config) zapcore.WriteSyncer {
	if cfg.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v, using console only\n", err)
		return nil
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSize, defaultMaxSizeMB),
		MaxAge:     orDefault(cfg.MaxAge, defaultMaxAgeDays),
		MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
		Compress:   cfg.Compress,
	}
	return zapcore.AddSync(rotated)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newEncoder returns the encoder for format. console enables level colors.
func newEncoder(format string, console bool) zapcore.Encoder {
	if format == "text" {
		return newKVEncoder(console)
	}
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}

// parseLevel converts a string level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

// Get returns the global logger, or a no-op logger before Init
func Get() *zap.Logger {
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// Named creates a child logger with the given name
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// WithRun creates a child logger tagged with the run ID. Entries written
// through it reach the run log hook.
//
//	log := logger.WithRun(run.ID)
//	log.Info("Cloning repository")
func WithRun(runID string) *zap.Logger {
	return Get().With(zap.String(FieldRunID, runID))
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// SetRunLogHook installs a hook that forwards entries carrying a run_id field
// at or above minLevel to writer. Call after Init().
func SetRunLogHook(writer RunLogWriter, minLevel zapcore.Level) {
	if globalLogger == nil {
		return
	}

	runLogHook = NewRunLogHook(writer, minLevel)
	globalLogger = globalLogger.WithOptions(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return runLogHook.WrapCore(core)
		}),
	)
}

// kvEncoder renders "[time] [LEVEL] caller message key=value ...".
// Context fields added through With are kept in the embedded map encoder
// and printed before the entry's own fields.
type kvEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newKVEncoder(color bool) *kvEncoder {
	return &kvEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

// Clone implements zapcore.Encoder
func (e *kvEncoder) Clone() zapcore.Encoder {
	clone := newKVEncoder(e.color)
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return clone
}

// EncodeEntry implements zapcore.Encoder
func (e *kvEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := bufferpool.Get()

	buf.AppendString("[" + ent.Time.Format(textTimeLayout) + "] ")
	buf.AppendString(e.level(ent.Level))
	buf.AppendByte(' ')
	if ent.Caller.Defined {
		buf.AppendString(ent.Caller.TrimmedPath())
		buf.AppendByte(' ')
	}
	buf.AppendString(ent.Message)

	appendKV(buf, e.Fields)
	for _, f := range fields {
		m := zapcore.NewMapObjectEncoder()
		f.AddTo(m)
		appendKV(buf, m.Fields)
	}

	if ent.Stack != "" {
		buf.AppendByte('\n')
		buf.AppendString(ent.Stack)
	}
	buf.AppendString(zapcore.DefaultLineEnding)
	return buf, nil
}

func (e *kvEncoder) level(l zapcore.Level) string {
	tag := "[" + l.CapitalString() + "]"
	if !e.color {
		return tag
	}
	switch {
	case l >= zapcore.ErrorLevel:
		return color.RedString(tag)
	case l == zapcore.WarnLevel:
		return color.YellowString(tag)
	case l == zapcore.InfoLevel:
		return color.BlueString(tag)
	default:
		return color.MagentaString(tag)
	}
}

// appendKV writes fields in key order
func appendKV(buf *buffer.Buffer, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.AppendByte(' ')
		buf.AppendString(k)
		buf.AppendByte('=')
		fmt.Fprint(buf, fields[k])
	}
}
