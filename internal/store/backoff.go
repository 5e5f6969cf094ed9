package store

import (
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// Backoff decides how long a failed job waits before it is ready again.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used when a store is built without an explicit policy.
var DefaultBackoff = Backoff{Base: time.Second, Max: 5 * time.Minute}

// Delay returns the wait after the given number of failed attempts.
func (b Backoff) Delay(strategy string, attempts int) time.Duration {
	base, max := b.Base, b.Max
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	if max <= 0 {
		max = DefaultBackoff.Max
	}
	if attempts < 1 {
		attempts = 1
	}

	var d time.Duration
	switch strings.ToLower(strategy) {
	case models.BackoffFixed:
		d = base
	case models.BackoffLinear:
		d = time.Duration(attempts) * base
	default:
		// exponential, and anything unrecognised
		factor := math.Pow(2, float64(attempts-1))
		if factor > float64(max/base) {
			return max
		}
		d = time.Duration(factor) * base
	}
	if d > max {
		return max
	}
	return d
}
