package classifier

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/lifeledger/internal/config"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// SentimentAnalyzer scores the emotional tone of an entry.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, content string) (models.Sentiment, error)
}

// ContentClassifier infers areas for an entry that carries no explicit tags.
type ContentClassifier interface {
	Classify(ctx context.Context, entry models.JournalEntryPayload) ([]models.EntryClassification, error)
}

// SentimentFunc adapts a function to SentimentAnalyzer.
type SentimentFunc func(ctx context.Context, content string) (models.Sentiment, error)

func (f SentimentFunc) Analyze(ctx context.Context, content string) (models.Sentiment, error) {
	return f(ctx, content)
}

// ClassifierFunc adapts a function to ContentClassifier.
type ClassifierFunc func(ctx context.Context, entry models.JournalEntryPayload) ([]models.EntryClassification, error)

func (f ClassifierFunc) Classify(ctx context.Context, entry models.JournalEntryPayload) ([]models.EntryClassification, error) {
	return f(ctx, entry)
}

// NeutralSentiment reports zero polarity and mid subjectivity for any text.
type NeutralSentiment struct{}

func (NeutralSentiment) Analyze(context.Context, string) (models.Sentiment, error) {
	return models.Sentiment{Polarity: 0, Subjectivity: 0.5}, nil
}

// NoopClassifier never proposes an area.
type NoopClassifier struct{}

func (NoopClassifier) Classify(context.Context, models.JournalEntryPayload) ([]models.EntryClassification, error) {
	return []models.EntryClassification{}, nil
}

// NewAnalyzers constructs the analyzers named in cfg.
// Called once at startup.
func NewAnalyzers(cfg config.AgentsConfig) (SentimentAnalyzer, ContentClassifier, error) {
	var (
		sentiment  SentimentAnalyzer
		classifier ContentClassifier
	)

	switch cfg.SentimentAnalyzer {
	case "", "neutral":
		sentiment = NeutralSentiment{}
	default:
		return nil, nil, fmt.Errorf("unknown sentiment analyzer %q: must be neutral", cfg.SentimentAnalyzer)
	}

	switch cfg.ContentClassifier {
	case "", "none":
		classifier = NoopClassifier{}
	default:
		return nil, nil, fmt.Errorf("unknown content classifier %q: must be none", cfg.ContentClassifier)
	}

	return sentiment, classifier, nil
}
