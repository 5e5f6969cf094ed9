package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusReady     = "ready"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusDead      = "dead"
	JobStatusCancelled = "cancelled"
)

const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
	BackoffFixed       = "fixed"
)

const (
	DefaultIntent      = "execute"
	DefaultTTLSec      = 600
	DefaultMaxAttempts = 3
)

// Job is a unit of work targeting one agent type. The job store owns it;
// the orchestrator only ever holds a copy for the duration of a dispatch.
type Job struct {
	MessageID       uuid.UUID       `db:"message_id"       json:"message_id"`
	AgentType       AgentType       `db:"agent_type"       json:"agent_type"`
	Task            string          `db:"task"             json:"task"`
	Intent          string          `db:"intent"           json:"intent"`
	Payload         json.RawMessage `db:"payload"          json:"payload"`
	Dependencies    []uuid.UUID     `db:"dependencies"     json:"dependencies"`
	RunAt           time.Time       `db:"run_at"           json:"run_at"`
	TTLSec          int             `db:"ttl_sec"          json:"ttl_sec"`
	Status          string          `db:"status"           json:"status"`
	Attempts        int             `db:"attempts"         json:"attempts"`
	MaxAttempts     int             `db:"max_attempts"     json:"max_attempts"`
	BackoffStrategy string          `db:"backoff_strategy" json:"backoff_strategy"`
	Result          json.RawMessage `db:"result"           json:"result,omitempty"`
	LastError       *string         `db:"last_error"       json:"last_error,omitempty"`
	StartedAt       *time.Time      `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"       json:"updated_at"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusDead, JobStatusCancelled:
		return true
	}
	return false
}

// NewJob describes a job to be created. Zero values are replaced with defaults
// by the store.
type NewJob struct {
	AgentType       AgentType
	Task            string
	Intent          string
	Payload         json.RawMessage
	Dependencies    []uuid.UUID
	RunAt           time.Time
	TTLSec          int
	MaxAttempts     int
	BackoffStrategy string
}
