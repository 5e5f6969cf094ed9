// Package classifier implements the EntryClassifier agent. It persists a
// journal entry, links it to taxonomy areas and proposes dimension scores.
package classifier

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

const (
	defaultTagStrength = 0.5
	scoreMidpoint      = 2.5
	scorePolarityScale = 2.0
	scoreMin           = 0.0
	scoreMax           = 5.0
)

// DefaultConfig is the metadata the EntryClassifier declares.
var DefaultConfig = agent.Config{
	Name:            models.AgentEntryClassifier,
	Version:         "1.0.0",
	RateLimitPerMin: 60,
	MaxConcurrent:   5,
}

// Result is returned from Execute and stored as the job result.
type Result struct {
	EntryID        string                       `json:"entry_id"`
	Classification []models.EntryClassification `json:"classification"`
	Sentiment      models.Sentiment             `json:"sentiment"`
	ProposedScores []models.ProposedScore       `json:"proposed_scores"`
}

type Agent struct {
	agent.Base
	cfg        agent.Config
	store      store.EntryStore
	sentiment  SentimentAnalyzer
	classifier ContentClassifier
}

// Option configures an Agent.
type Option func(*Agent)

func WithSentimentAnalyzer(a SentimentAnalyzer) Option {
	return func(ag *Agent) {
		if a != nil {
			ag.sentiment = a
		}
	}
}

func WithContentClassifier(c ContentClassifier) Option {
	return func(ag *Agent) {
		if c != nil {
			ag.classifier = c
		}
	}
}

// WithConfig overrides DefaultConfig, e.g. to change declared limits.
func WithConfig(cfg agent.Config) Option {
	return func(ag *Agent) {
		ag.cfg = cfg
	}
}

func New(rt agent.Runtime, st store.EntryStore, opts ...Option) *Agent {
	a := &Agent{
		cfg:        DefaultConfig,
		store:      st,
		sentiment:  NeutralSentiment{},
		classifier: NoopClassifier{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Base = agent.NewBase(a.cfg, rt)
	return a
}

// Execute runs the classification pipeline for one journal entry. Entry,
// links and analysis share one transaction, so a failure leaves nothing
// behind. Reruns after a failed emit overwrite the same rows.
func (a *Agent) Execute(ctx context.Context, env models.Envelope) (any, error) {
	payload, err := agent.DecodePayload(env)
	if err != nil {
		return nil, err
	}

	var (
		classification []models.EntryClassification
		sentiment      models.Sentiment
	)
	err = a.store.InTx(ctx, func(tx store.EntryTx) error {
		if err := tx.UpsertEntry(ctx, &models.JournalEntry{
			ID:        payload.EntryID,
			UserID:    payload.UserID,
			Content:   payload.Content,
			EntryDate: payload.Date,
		}); err != nil {
			return err
		}

		inferred, err := a.classify(ctx, payload)
		if err != nil {
			return err
		}
		classification = inferred

		for _, c := range classification {
			area, err := tx.ResolveArea(ctx, c.AreaCode)
			if err != nil {
				return err
			}
			if err := tx.LinkEntryArea(ctx, &models.EntryAreaLink{
				EntryID:    payload.EntryID,
				AreaID:     area.ID,
				Provenance: models.ProvenanceAgent,
				Strength:   c.Strength,
			}); err != nil {
				return err
			}
		}

		sentiment, err = a.sentiment.Analyze(ctx, payload.Content)
		if err != nil {
			return fmt.Errorf("analyze sentiment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classify entry %s: %w", payload.EntryID, err)
	}

	scores := ProposeScores(classification, sentiment)

	if _, err := a.Emit(ctx, env, models.EventJournalEntryCreated, models.JournalEntryCreated{
		EntryID:        payload.EntryID,
		UserID:         payload.UserID,
		Classification: classification,
		Sentiment:      sentiment,
		ProposedScores: scores,
	}); err != nil {
		return nil, fmt.Errorf("emit %s: %w", models.EventJournalEntryCreated, err)
	}

	_ = a.Log(ctx, env, models.LogLevelInfo, "entry classified", map[string]any{
		"entry_id":        payload.EntryID,
		"areas":           len(classification),
		"proposed_scores": len(scores),
	})

	return Result{
		EntryID:        payload.EntryID,
		Classification: classification,
		Sentiment:      sentiment,
		ProposedScores: scores,
	}, nil
}

// classify prefers explicit tags over the content classifier.
func (a *Agent) classify(ctx context.Context, p models.JournalEntryPayload) ([]models.EntryClassification, error) {
	if len(p.Tags) > 0 {
		out := make([]models.EntryClassification, 0, len(p.Tags))
		for _, tag := range p.Tags {
			strength := defaultTagStrength
			if tag.Strength != nil {
				strength = *tag.Strength
			}
			if strength < 0 || strength > 1 {
				return nil, fmt.Errorf("%w: tag %s strength %v outside [0,1]", agent.ErrInvalidPayload, tag.AreaCode, strength)
			}
			out = append(out, models.EntryClassification{
				EntryID:       p.EntryID,
				AreaCode:      tag.AreaCode,
				DimensionCode: tag.DimensionCode,
				Strength:      strength,
			})
		}
		return out, nil
	}

	out, err := a.classifier.Classify(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("classify content: %w", err)
	}
	if out == nil {
		out = []models.EntryClassification{}
	}
	return out, nil
}

// ProposeScores suggests a score for every classification with a dimension.
func ProposeScores(classification []models.EntryClassification, s models.Sentiment) []models.ProposedScore {
	scores := []models.ProposedScore{}
	for _, c := range classification {
		if c.DimensionCode == nil {
			continue
		}
		scores = append(scores, models.ProposedScore{
			DimensionCode: *c.DimensionCode,
			Score:         clamp(scoreMidpoint+s.Polarity*scorePolarityScale, scoreMin, scoreMax),
			Confidence:    c.Strength,
		})
	}
	return scores
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ agent.Handler = (*Agent)(nil)
