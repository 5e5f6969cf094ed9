package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/internal/metrics"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

const (
	DispatchCompleted = "completed"
	DispatchFailed    = "failed"
)

// DispatchResult is the outcome of running one job.
type DispatchResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Dispatch starts job, hands its envelope to h and records the outcome.
// A handler error or panic is a failed dispatch, not an error: the job is
// failed with retry allowed and the store decides whether it is dead. The
// returned error is reserved for job store failures.
func (o *Orchestrator) Dispatch(ctx context.Context, job *models.Job, h agent.Handler) (DispatchResult, error) {
	agentType := job.AgentType

	if reg := o.registration(agentType); reg != nil {
		if err := reg.sem.Acquire(ctx, 1); err != nil {
			return DispatchResult{}, fmt.Errorf("acquire %s slot: %w", agentType, err)
		}
		defer reg.sem.Release(1)
	}

	// Handlers are never cancelled mid-flight.
	ctx = context.WithoutCancel(ctx)

	if err := o.store.Start(ctx, job.MessageID); err != nil {
		return DispatchResult{}, &TransientJobError{Op: "start", JobID: job.MessageID, Err: err}
	}

	env := models.EnvelopeFromJob(job, models.Provenance{
		Dispatcher:   o.dispatcherID,
		DispatchedAt: o.now().UTC(),
	})

	began := time.Now()
	result, execErr := execute(ctx, h, env)
	metrics.DispatchDurationSeconds.WithLabelValues(string(agentType)).Observe(time.Since(began).Seconds())

	var raw json.RawMessage
	if execErr == nil {
		b, err := json.Marshal(result)
		if err != nil {
			execErr = &HandlerExecutionError{AgentType: agentType, JobID: job.MessageID,
				Err: fmt.Errorf("marshal result: %w", err)}
		} else {
			raw = b
		}
	}

	if execErr != nil {
		if err := o.store.Fail(ctx, job.MessageID, execErr.Error(), true); err != nil {
			return DispatchResult{}, &TransientJobError{Op: "fail", JobID: job.MessageID, Err: err}
		}
		metrics.JobsDispatchedTotal.WithLabelValues(string(agentType), metrics.StatusFailed).Inc()
		_ = o.Log(ctx, agentType, models.LogLevelError, "job failed",
			map[string]any{"error": execErr.Error(), "attempt": job.Attempts + 1, "max_attempts": job.MaxAttempts},
			&job.MessageID)
		return DispatchResult{Status: DispatchFailed, Error: execErr.Error()}, nil
	}

	if err := o.store.Complete(ctx, job.MessageID, raw); err != nil {
		return DispatchResult{}, &TransientJobError{Op: "complete", JobID: job.MessageID, Err: err}
	}
	metrics.JobsDispatchedTotal.WithLabelValues(string(agentType), metrics.StatusCompleted).Inc()
	_ = o.Log(ctx, agentType, models.LogLevelInfo, "job completed",
		map[string]any{"task": job.Task, "duration_ms": time.Since(began).Milliseconds()}, &job.MessageID)

	return DispatchResult{Status: DispatchCompleted, Result: raw}, nil
}

// execute runs h.Execute, turning a returned error or a panic into a
// HandlerExecutionError.
func execute(ctx context.Context, h agent.Handler, env models.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent handler panicked", "agent_type", env.Actor, "job_id", env.MessageID, "panic", r)
			err = &HandlerExecutionError{AgentType: env.Actor, JobID: env.MessageID, Panic: true,
				Err: fmt.Errorf("%v", r)}
		}
	}()

	result, err = h.Execute(ctx, env)
	if err != nil {
		return nil, &HandlerExecutionError{AgentType: env.Actor, JobID: env.MessageID, Err: err}
	}
	return result, nil
}
