package store

import (
	"time"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

type storeOptions struct {
	backoff     Backoff
	maxAttempts int
	now         func() time.Time
}

// Option configures a PostgresStore or MemoryStore.
type Option func(*storeOptions)

// WithBackoff sets the retry delay policy applied by Fail.
func WithBackoff(b Backoff) Option {
	return func(o *storeOptions) {
		o.backoff = b
	}
}

// WithMaxAttempts sets the attempt budget for jobs created without one.
func WithMaxAttempts(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		backoff:     DefaultBackoff,
		maxAttempts: models.DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o storeOptions) utcNow() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}
