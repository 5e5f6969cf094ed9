package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/internal/cache"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"golang.org/x/time/rate"
)

const rateWindow = time.Minute

// Limiter decides whether an agent may take one more job now. When it may
// not, retryAt is the earliest time worth trying again.
type Limiter interface {
	Allow(ctx context.Context, cfg agent.Config) (ok bool, retryAt time.Time, err error)
}

// LocalLimiter enforces RateLimitPerMin with a token bucket per agent.
// Limits are per process.
type LocalLimiter struct {
	now func() time.Time

	mu       sync.Mutex
	limiters map[models.AgentType]*rate.Limiter
}

func NewLocalLimiter(now func() time.Time) *LocalLimiter {
	if now == nil {
		now = time.Now
	}
	return &LocalLimiter{now: now, limiters: make(map[models.AgentType]*rate.Limiter)}
}

func (l *LocalLimiter) Allow(_ context.Context, cfg agent.Config) (bool, time.Time, error) {
	if cfg.RateLimitPerMin <= 0 {
		return true, time.Time{}, nil
	}
	now := l.now()

	l.mu.Lock()
	lim, ok := l.limiters[cfg.Name]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rateWindow/time.Duration(cfg.RateLimitPerMin)), cfg.RateLimitPerMin)
		l.limiters[cfg.Name] = lim
	}
	l.mu.Unlock()

	if lim.AllowN(now, 1) {
		return true, time.Time{}, nil
	}
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, now.Add(delay), nil
}

// CacheLimiter counts dispatches per agent per minute in a shared cache, so
// the limit holds across every orchestrator process.
type CacheLimiter struct {
	cache cache.Cache
	now   func() time.Time
}

func NewCacheLimiter(c cache.Cache, now func() time.Time) *CacheLimiter {
	if now == nil {
		now = time.Now
	}
	return &CacheLimiter{cache: c, now: now}
}

func (l *CacheLimiter) Allow(ctx context.Context, cfg agent.Config) (bool, time.Time, error) {
	if cfg.RateLimitPerMin <= 0 {
		return true, time.Time{}, nil
	}
	now := l.now()
	key := cache.RateLimitKey(string(cfg.Name), rateWindow, now)
	n, err := l.cache.IncrWithExpiry(ctx, key, rateWindow)
	if err != nil {
		return false, time.Time{}, err
	}
	if n > int64(cfg.RateLimitPerMin) {
		return false, now.Truncate(rateWindow).Add(rateWindow), nil
	}
	return true, time.Time{}, nil
}

var (
	_ Limiter = (*LocalLimiter)(nil)
	_ Limiter = (*CacheLimiter)(nil)
)
