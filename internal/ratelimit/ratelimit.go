// Package ratelimit provides an optional process-wide request limiter.
// Grounded on the teacher's internal/performance.RateLimiter, narrowed
// from its per-key map (one limiter per client/API key) to a single
// shared limiter: this bridge fronts one upstream provider for local
// use, so spec.md §11's rate limiting is resilience-oriented protection
// of the single upstream connection, not multi-tenant fairness (a
// Non-goal, spec.md §14).
package ratelimit

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate for the whole process.
type Limiter struct {
	limiter *rate.Limiter
	hits    int64
}

// New builds a Limiter allowing rps requests per second with a burst
// equal to one second's worth, rounded up to at least 1. rps <= 0
// disables limiting: Allow always succeeds.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether a request may proceed immediately.
func (l *Limiter) Allow() bool {
	if l.limiter == nil {
		return true
	}
	allowed := l.limiter.Allow()
	if !allowed {
		atomic.AddInt64(&l.hits, 1)
	}
	return allowed
}

// Hits returns the number of requests rejected since the process
// started, for the /status diagnostics endpoint.
func (l *Limiter) Hits() int64 {
	return atomic.LoadInt64(&l.hits)
}
