package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventJournalEntryCreated = "JournalEntryCreated"
	EventCommitmentDetected  = "CommitmentDetected"
)

// Event is an immutable, append-only fact published for subscribers.
type Event struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	Type          string          `db:"type"           json:"type"`
	Payload       json.RawMessage `db:"payload"        json:"payload"`
	Source        string          `db:"source"         json:"source"`
	CorrelationID *string         `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
}

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// ValidLogLevel reports whether level is one of the known log levels.
func ValidLogLevel(level string) bool {
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// LogEntry is one append-only agent log line.
type LogEntry struct {
	ID        int64          `db:"id"         json:"id"`
	AgentType string         `db:"agent_type" json:"agent_type"`
	Level     string         `db:"level"      json:"level"`
	Message   string         `db:"message"    json:"message"`
	Context   map[string]any `db:"context"    json:"context,omitempty"`
	JobID     *uuid.UUID     `db:"job_id"     json:"job_id,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// LogFilter narrows a log query. Empty fields match everything.
type LogFilter struct {
	AgentType string
	Level     string
	Limit     int
}
