package store_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := store.Backoff{Base: time.Second, Max: 10 * time.Second}

	tests := []struct {
		name     string
		strategy string
		attempts int
		expected time.Duration
	}{
		{"exponential first", models.BackoffExponential, 1, time.Second},
		{"exponential third", models.BackoffExponential, 3, 4 * time.Second},
		{"exponential capped", models.BackoffExponential, 10, 10 * time.Second},
		{"exponential huge attempt capped", models.BackoffExponential, 500, 10 * time.Second},
		{"empty strategy is exponential", "", 2, 2 * time.Second},
		{"unknown strategy is exponential", "fibonacci", 3, 4 * time.Second},
		{"linear", models.BackoffLinear, 3, 3 * time.Second},
		{"linear capped", models.BackoffLinear, 30, 10 * time.Second},
		{"fixed", models.BackoffFixed, 7, time.Second},
		{"case insensitive", "LINEAR", 2, 2 * time.Second},
		{"zero attempts treated as one", models.BackoffLinear, 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, b.Delay(tt.strategy, tt.attempts))
		})
	}
}

func TestBackoffDelay_ZeroValueUsesDefaults(t *testing.T) {
	var b store.Backoff
	assert.Equal(t, store.DefaultBackoff.Base, b.Delay(models.BackoffFixed, 1))
	assert.Equal(t, store.DefaultBackoff.Max, b.Delay(models.BackoffExponential, 64))
}
