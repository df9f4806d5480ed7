package model

import "time"

// LogLevel represents the log level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// RunLog is a log line captured for a run by the logger hook
type RunLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	RunID   string   `gorm:"size:20;not null;index" json:"run_id"`
	Level   LogLevel `gorm:"size:10;not null;index" json:"level"`
	Message string   `gorm:"type:text;not null" json:"message"`
	Fields  JSONMap  `gorm:"type:text" json:"fields,omitempty"`
}

// TableName specifies the table name for RunLog
func (RunLog) TableName() string {
	return "run_logs"
}

// AllModels returns every model managed by auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Run{},
		&RunLog{},
	}
}
