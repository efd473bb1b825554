package repository

import (
	"context"
	"sync/atomic"
	"time"

	"storefront/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLimiter uses the primary limiter until it errors, then the fallback.
// The primary is probed again once recoveryInterval has passed.
type FailoverLimiter struct {
	primary   domain.RateLimiter
	fallback  domain.RateLimiter
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverLimiter {
	return &FailoverLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   nopIfNil(logger),
		now:      time.Now,
	}
}

func (r *FailoverLimiter) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
		return r.fallback.Allow(ctx, key, limit, window)
	}

	if r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.logger.Info().Msg("Primary rate limiter recovered")
			r.isDown.Store(false)
			return allowed, nil
		}
		r.lastCheck.Store(r.now().UnixNano())
	}

	return r.fallback.Allow(ctx, key, limit, window)
}
