package commitment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

const (
	// Threshold is both the persistence floor and the has-commitment floor.
	Threshold = 0.4

	minSentenceLen = 10
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// Analysis is the outcome for one sentence.
type Analysis struct {
	Index         int             `json:"index"`
	Sentence      string          `json:"sentence"`
	Confidence    float64         `json:"confidence"`
	IntentVerbs   []string        `json:"intent_verbs"`
	Entities      models.Entities `json:"entities"`
	HasCommitment bool            `json:"has_commitment"`
}

// Persistable reports whether the sentence clears the persistence floor.
func (a Analysis) Persistable() bool {
	return a.Confidence >= Threshold
}

// SplitSentences breaks content on runs of . ! ? and drops fragments of
// ten characters or fewer.
func SplitSentences(content string) []string {
	out := []string{}
	for _, part := range sentenceBoundary.Split(content, -1) {
		s := strings.TrimSpace(part)
		if utf8.RuneCountInString(s) <= minSentenceLen {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Analyze scores every sentence of content.
func Analyze(content string, subjects SubjectExtractor) []Analysis {
	if subjects == nil {
		subjects = CapitalizedSubjects{}
	}
	sentences := SplitSentences(content)
	out := make([]Analysis, 0, len(sentences))
	for i, s := range sentences {
		verbs, confidence := matchIntent(s)
		entities := extractEntities(s, subjects)
		out = append(out, Analysis{
			Index:         i,
			Sentence:      s,
			Confidence:    confidence,
			IntentVerbs:   verbs,
			Entities:      entities,
			HasCommitment: confidence >= Threshold && len(entities.Subjects) > 0,
		})
	}
	return out
}
