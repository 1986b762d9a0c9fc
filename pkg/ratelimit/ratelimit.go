package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces background work such as archive batches.
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Limit() rate.Limit
	Burst() int
}

// TokenBucketLimiter implements token bucket algorithm
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter allows perSecond events with the given burst. A
// non-positive rate means no limit.
func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Wait blocks until an event is allowed or ctx is done.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

func (l *TokenBucketLimiter) Limit() rate.Limit {
	return l.limiter.Limit()
}

func (l *TokenBucketLimiter) Burst() int {
	return l.limiter.Burst()
}
