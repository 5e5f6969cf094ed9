package commitment

import (
	"sort"
	"strings"
)

const (
	StrongConfidence   = 0.95
	ModerateConfidence = 0.75
	WeakConfidence     = 0.5
)

// intentLexicon maps each intent verb to the confidence it implies.
var intentLexicon = map[string]float64{
	"commit":  StrongConfidence,
	"promise": StrongConfidence,
	"vow":     StrongConfidence,
	"pledge":  StrongConfidence,
	"swear":   StrongConfidence,
	"declare": StrongConfidence,

	"will":      ModerateConfidence,
	"plan":      ModerateConfidence,
	"aim":       ModerateConfidence,
	"intend":    ModerateConfidence,
	"determine": ModerateConfidence,
	"resolve":   ModerateConfidence,

	"want":     WeakConfidence,
	"hope":     WeakConfidence,
	"wish":     WeakConfidence,
	"consider": WeakConfidence,
	"might":    WeakConfidence,
	"should":   WeakConfidence,
}

// rankedVerbs is intentLexicon ordered strongest first, then alphabetically.
var rankedVerbs = rankVerbs(intentLexicon)

func rankVerbs(lex map[string]float64) []string {
	verbs := make([]string, 0, len(lex))
	for v := range lex {
		verbs = append(verbs, v)
	}
	sort.Slice(verbs, func(i, j int) bool {
		ci, cj := lex[verbs[i]], lex[verbs[j]]
		if ci != cj {
			return ci > cj
		}
		return verbs[i] < verbs[j]
	})
	return verbs
}

// matchIntent returns every lexicon verb found in sentence (case-insensitive
// substring match) and the highest confidence among them.
func matchIntent(sentence string) ([]string, float64) {
	lower := strings.ToLower(sentence)
	verbs := []string{}
	var confidence float64
	for _, v := range rankedVerbs {
		if !strings.Contains(lower, v) {
			continue
		}
		verbs = append(verbs, v)
		if c := intentLexicon[v]; c > confidence {
			confidence = c
		}
	}
	return verbs, confidence
}
