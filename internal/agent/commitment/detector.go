// Package commitment implements the CommitmentDetector agent, which finds
// declared intentions in journal text and records them as commitments.
package commitment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// DefaultConfig is the metadata the CommitmentDetector declares.
var DefaultConfig = agent.Config{
	Name:            models.AgentCommitmentDetector,
	Version:         "1.0.0",
	RateLimitPerMin: 30,
	MaxConcurrent:   3,
}

// commitmentNamespace seeds the deterministic commitment ids.
var commitmentNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8a-9c57-2b4e8d1f7a90")

// Result is returned from Execute and stored as the job result.
type Result struct {
	EntryID     string      `json:"entry_id"`
	Analyses    []Analysis  `json:"analyses"`
	Commitments []uuid.UUID `json:"commitments"`
}

type Agent struct {
	agent.Base
	cfg      agent.Config
	store    store.CommitmentStore
	subjects SubjectExtractor
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithSubjectExtractor replaces the capitalized-word subject heuristic.
func WithSubjectExtractor(s SubjectExtractor) Option {
	return func(a *Agent) {
		if s != nil {
			a.subjects = s
		}
	}
}

func WithConfig(cfg agent.Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func New(rt agent.Runtime, st store.CommitmentStore, opts ...Option) *Agent {
	a := &Agent{
		cfg:      DefaultConfig,
		store:    st,
		subjects: CapitalizedSubjects{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Base = agent.NewBase(a.cfg, rt)
	return a
}

// Execute analyzes every sentence, persists those at or above Threshold and
// emits one CommitmentDetected event per persisted commitment. Commitments
// already stored by an earlier attempt are re-announced, not duplicated.
func (a *Agent) Execute(ctx context.Context, env models.Envelope) (any, error) {
	payload, err := agent.DecodePayload(env)
	if err != nil {
		return nil, err
	}

	analyses := Analyze(payload.Content, a.subjects)
	detectedAt := a.now().UTC()
	persisted := []uuid.UUID{}

	for _, an := range analyses {
		if !an.Persistable() {
			continue
		}

		c := &models.Commitment{
			ID:          CommitmentID(payload.EntryID, an.Index, an.Sentence),
			UserID:      payload.UserID,
			EntryID:     payload.EntryID,
			Statement:   an.Sentence,
			Confidence:  an.Confidence,
			IntentVerbs: an.IntentVerbs,
			Entities:    an.Entities,
			Source:      models.CommitmentSourceJournal,
			Status:      models.CommitmentStatusActive,
			DetectedAt:  detectedAt,
		}
		if _, err := a.store.CreateCommitment(ctx, c); err != nil {
			return nil, fmt.Errorf("persist commitment: %w", err)
		}

		if _, err := a.Emit(ctx, env, models.EventCommitmentDetected, models.CommitmentDetected{
			CommitmentID: c.ID,
			UserID:       c.UserID,
			EntryID:      c.EntryID,
			Statement:    c.Statement,
			Confidence:   c.Confidence,
			Entities:     c.Entities,
		}); err != nil {
			return nil, fmt.Errorf("emit %s: %w", models.EventCommitmentDetected, err)
		}
		persisted = append(persisted, c.ID)
	}

	_ = a.Log(ctx, env, models.LogLevelInfo, "commitments detected", map[string]any{
		"entry_id":    payload.EntryID,
		"sentences":   len(analyses),
		"commitments": len(persisted),
	})

	return Result{EntryID: payload.EntryID, Analyses: analyses, Commitments: persisted}, nil
}

// CommitmentID derives a stable id for the sentence at index in entryID.
func CommitmentID(entryID string, index int, statement string) uuid.UUID {
	return uuid.NewSHA1(commitmentNamespace, []byte(entryID+"\x00"+strconv.Itoa(index)+"\x00"+statement))
}

var _ agent.Handler = (*Agent)(nil)
