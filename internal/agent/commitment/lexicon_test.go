package commitment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchIntent_MaxNotSum(t *testing.T) {
	verbs, conf := matchIntent("I will commit to the project")
	assert.Equal(t, []string{"commit", "will"}, verbs)
	assert.Equal(t, StrongConfidence, conf)
}

func TestMatchIntent_Tiers(t *testing.T) {
	tests := []struct {
		sentence string
		expected float64
	}{
		{"I promise to call her back", StrongConfidence},
		{"We plan to repaint the kitchen", ModerateConfidence},
		{"I hope the weather holds", WeakConfidence},
		{"I want, wish and hope for rain", WeakConfidence},
		{"The sky was grey all afternoon", 0},
		{"I SWEAR this time is different", StrongConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.sentence, func(t *testing.T) {
			_, conf := matchIntent(tt.sentence)
			assert.Equal(t, tt.expected, conf)
		})
	}
}

func TestMatchIntent_SubstringSemantics(t *testing.T) {
	verbs, conf := matchIntent("The committee met on Tuesday")
	assert.Equal(t, []string{"commit"}, verbs)
	assert.Equal(t, StrongConfidence, conf)
}

func TestLexiconCoversEveryTier(t *testing.T) {
	counts := map[float64]int{}
	for _, c := range intentLexicon {
		counts[c]++
	}
	assert.Equal(t, map[float64]int{StrongConfidence: 6, ModerateConfidence: 6, WeakConfidence: 6}, counts)
	assert.Len(t, rankedVerbs, 18)
	assert.Equal(t, "commit", rankedVerbs[0])
	assert.Equal(t, "wish", rankedVerbs[len(rankedVerbs)-1])
}

func TestMatchDomains(t *testing.T) {
	assert.Equal(t, []string{"Health"}, matchDomains("I will commit to running 5k daily for Health"))
	assert.Equal(t, []string{"Work", "Learning"}, matchDomains("Finish the project and study Go"))
	assert.Equal(t, []string{}, matchDomains("Nothing relevant here at all"))
	assert.Equal(t, []string{"Finance"}, matchDomains("budget BUDGET Budget"), "deduplicated")
}
