package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

var (
	ErrUnknownAgentType = errors.New("unknown agent type")
	ErrNoHandler        = errors.New("no handler registered")
	ErrAlreadyRunning   = errors.New("orchestrator already running")
	ErrInvalidLogLevel  = errors.New("invalid log level")
)

// TransientJobError wraps a job store failure during claim or a state
// transition. The job is left to the store's retry policy.
type TransientJobError struct {
	Op    string
	JobID uuid.UUID
	Err   error
}

func (e *TransientJobError) Error() string {
	if e.JobID == uuid.Nil {
		return fmt.Sprintf("job store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("job store %s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *TransientJobError) Unwrap() error { return e.Err }

// HandlerExecutionError is an error returned, or a panic raised, by an
// agent's Execute.
type HandlerExecutionError struct {
	AgentType models.AgentType
	JobID     uuid.UUID
	Panic     bool
	Err       error
}

func (e *HandlerExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s handler panicked on job %s: %v", e.AgentType, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s handler failed on job %s: %v", e.AgentType, e.JobID, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// BatchLoopError is anything that aborted one agent's batch in a poll
// iteration. The loop logs it and carries on.
type BatchLoopError struct {
	AgentType models.AgentType
	Err       error
}

func (e *BatchLoopError) Error() string {
	return fmt.Sprintf("%s batch: %v", e.AgentType, e.Err)
}

func (e *BatchLoopError) Unwrap() error { return e.Err }
