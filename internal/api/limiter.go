package api

import (
	"sync"

	"storefront/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// clientLimiter keeps one token bucket per client key. A zero RPS disables it.
type clientLimiter struct {
	buckets sync.Map
	limit   rate.Limit
	burst   int
}

func newClientLimiter(cfg config.APIRateLimitConfig) *clientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &clientLimiter{limit: rate.Limit(cfg.RPS), burst: burst}
}

func (l *clientLimiter) allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	v, _ := l.buckets.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	return v.(*rate.Limiter).Allow()
}
