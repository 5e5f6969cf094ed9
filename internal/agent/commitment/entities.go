package commitment

import (
	"regexp"
	"strings"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// SubjectExtractor finds the subjects a sentence talks about. Swap in a
// named-entity recognizer via WithSubjectExtractor.
type SubjectExtractor interface {
	Subjects(sentence string) []string
}

// SubjectExtractorFunc adapts a function to SubjectExtractor.
type SubjectExtractorFunc func(sentence string) []string

func (f SubjectExtractorFunc) Subjects(sentence string) []string { return f(sentence) }

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// CapitalizedSubjects treats every capitalized word as a subject.
type CapitalizedSubjects struct{}

func (CapitalizedSubjects) Subjects(sentence string) []string {
	return dedupe(capitalizedWord.FindAllString(sentence, -1))
}

type domain struct {
	name     string
	keywords []string
}

var domains = []domain{
	{"Work", []string{"work", "job", "career", "project", "office", "meeting", "client", "boss"}},
	{"Health", []string{"health", "run", "exercise", "gym", "workout", "sleep", "diet", "meditat", "yoga"}},
	{"Family", []string{"family", "kids", "children", "parent", "mom", "dad", "wife", "husband", "son", "daughter"}},
	{"Finance", []string{"finance", "money", "budget", "saving", "invest", "debt", "spend", "salary"}},
	{"Learning", []string{"learn", "study", "course", "read", "book", "class", "practice", "skill"}},
}

// matchDomains returns each domain with at least one keyword in sentence.
func matchDomains(sentence string) []string {
	lower := strings.ToLower(sentence)
	out := []string{}
	for _, d := range domains {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, d.name)
				break
			}
		}
	}
	return out
}

func extractEntities(sentence string, subjects SubjectExtractor) models.Entities {
	s := subjects.Subjects(sentence)
	if s == nil {
		s = []string{}
	}
	return models.Entities{
		Subjects: s,
		Projects: []string{},
		People:   []string{},
		Domains:  matchDomains(sentence),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := []string{}
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
