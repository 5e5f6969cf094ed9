// Package agenttest provides a recording agent.Runtime for tests.
package agenttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// EmittedEvent is one call to Emit.
type EmittedEvent struct {
	ID            uuid.UUID
	Type          string
	Payload       json.RawMessage
	Source        string
	CorrelationID *string
}

// LoggedLine is one call to Log.
type LoggedLine struct {
	AgentType models.AgentType
	Level     string
	Message   string
	Fields    map[string]any
	JobID     *uuid.UUID
}

// Runtime records every Emit and Log call. EmitFunc and LogFunc, when set,
// decide the returned error.
type Runtime struct {
	EmitFunc func(eventType string) error
	LogFunc  func(level string) error

	mu     sync.Mutex
	events []EmittedEvent
	logs   []LoggedLine
}

func (r *Runtime) Emit(_ context.Context, eventType string, payload any, source string, correlationID *string) (uuid.UUID, error) {
	if r.EmitFunc != nil {
		if err := r.EmitFunc(eventType); err != nil {
			return uuid.Nil, err
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	r.mu.Lock()
	r.events = append(r.events, EmittedEvent{ID: id, Type: eventType, Payload: data, Source: source, CorrelationID: correlationID})
	r.mu.Unlock()
	return id, nil
}

func (r *Runtime) Log(_ context.Context, agentType models.AgentType, level, message string, fields map[string]any, jobID *uuid.UUID) error {
	if r.LogFunc != nil {
		if err := r.LogFunc(level); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.logs = append(r.logs, LoggedLine{AgentType: agentType, Level: level, Message: message, Fields: fields, JobID: jobID})
	r.mu.Unlock()
	return nil
}

// Events returns the recorded events of eventType, or all when empty.
func (r *Runtime) Events(eventType string) []EmittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []EmittedEvent{}
	for _, e := range r.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *Runtime) Logs() []LoggedLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LoggedLine(nil), r.logs...)
}

// Envelope builds an envelope around payload for handler tests.
func Envelope(agentType models.AgentType, payload any) models.Envelope {
	data, _ := json.Marshal(payload)
	return models.Envelope{
		MessageID:    uuid.New(),
		Actor:        agentType,
		Intent:       models.DefaultIntent,
		Task:         "process",
		Payload:      data,
		Dependencies: []uuid.UUID{},
		TTLSec:       models.DefaultTTLSec,
	}
}

var _ agent.Runtime = (*Runtime)(nil)
