// Package agent defines the contract every specialist agent implements and
// the Base it embeds for emitting events and writing logs under its own name.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// ErrInvalidPayload marks an envelope whose payload does not match the
// shape the agent expects.
var ErrInvalidPayload = errors.New("invalid payload")

// Config is the metadata an agent declares at construction. The
// orchestrator enforces RateLimitPerMin and MaxConcurrent on dispatch.
type Config struct {
	Name            models.AgentType
	Version         string
	RateLimitPerMin int
	MaxConcurrent   int
}

// Validate rejects configs with missing identity or non-positive limits.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("agent %s: version is required", c.Name)
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("agent %s: rate_limit_per_min must be positive, got %d", c.Name, c.RateLimitPerMin)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("agent %s: max_concurrent must be positive, got %d", c.Name, c.MaxConcurrent)
	}
	return nil
}

// Handler is implemented by every agent registered with the orchestrator.
type Handler interface {
	Config() Config
	Execute(ctx context.Context, env models.Envelope) (any, error)
}

// Runtime is the side-effect surface the orchestrator offers to agents.
type Runtime interface {
	Emit(ctx context.Context, eventType string, payload any, source string, correlationID *string) (uuid.UUID, error)
	Log(ctx context.Context, agentType models.AgentType, level, message string, fields map[string]any, jobID *uuid.UUID) error
}

// Base carries an agent's Config and binds Emit and Log to its name.
type Base struct {
	cfg Config
	rt  Runtime
}

func NewBase(cfg Config, rt Runtime) Base {
	return Base{cfg: cfg, rt: rt}
}

func (b Base) Config() Config { return b.cfg }

// Emit publishes an event sourced from this agent, correlated with the job
// that produced it.
func (b Base) Emit(ctx context.Context, env models.Envelope, eventType string, payload any) (uuid.UUID, error) {
	corr := env.MessageID.String()
	return b.rt.Emit(ctx, eventType, payload, string(b.cfg.Name), &corr)
}

// Log writes an agent log line tagged with this agent's name and the job id.
func (b Base) Log(ctx context.Context, env models.Envelope, level, message string, fields map[string]any) error {
	jobID := env.MessageID
	return b.rt.Log(ctx, b.cfg.Name, level, message, fields, &jobID)
}

// DecodePayload unmarshals the envelope payload into a JournalEntryPayload
// and checks the fields every specialist needs.
func DecodePayload(env models.Envelope) (models.JournalEntryPayload, error) {
	var p models.JournalEntryPayload
	if len(env.Payload) == 0 {
		return p, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.EntryID == "" {
		return p, fmt.Errorf("%w: entry_id is required", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return p, fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}
	return p, nil
}
