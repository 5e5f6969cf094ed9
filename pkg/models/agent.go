// Package models contains shared data models used across the lifeledger codebase.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AgentType is the closed set of handler types the orchestrator can route to.
type AgentType string

const (
	AgentEntryClassifier    AgentType = "EntryClassifier"
	AgentCommitmentDetector AgentType = "CommitmentDetector"
)

// AgentTypes lists every known agent type in a stable order.
var AgentTypes = []AgentType{AgentEntryClassifier, AgentCommitmentDetector}

func (t AgentType) Valid() bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t AgentType) String() string { return string(t) }

// Envelope is the normalized structure handed to an agent's Execute.
type Envelope struct {
	MessageID    uuid.UUID       `json:"message_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Actor        AgentType       `json:"actor"`
	Intent       string          `json:"intent"`
	Task         string          `json:"task"`
	Payload      json.RawMessage `json:"payload"`
	Dependencies []uuid.UUID     `json:"dependencies"`
	Provenance   Provenance      `json:"provenance"`
	TTLSec       int             `json:"ttl_sec"`
	Retry        RetryInfo       `json:"retry"`
}

// Provenance records which dispatcher handed the job to the agent.
type Provenance struct {
	Dispatcher   string    `json:"dispatcher"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

type RetryInfo struct {
	Count   int    `json:"count"`
	Max     int    `json:"max"`
	Backoff string `json:"backoff"`
}

// EnvelopeFromJob builds the envelope for a claimed job.
func EnvelopeFromJob(j *Job, prov Provenance) Envelope {
	deps := j.Dependencies
	if deps == nil {
		deps = []uuid.UUID{}
	}
	return Envelope{
		MessageID:    j.MessageID,
		CreatedAt:    j.CreatedAt,
		Actor:        j.AgentType,
		Intent:       j.Intent,
		Task:         j.Task,
		Payload:      j.Payload,
		Dependencies: deps,
		Provenance:   prov,
		TTLSec:       j.TTLSec,
		Retry: RetryInfo{
			Count:   j.Attempts,
			Max:     j.MaxAttempts,
			Backoff: j.BackoffStrategy,
		},
	}
}
