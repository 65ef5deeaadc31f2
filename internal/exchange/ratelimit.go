// ratelimit.go implements token-bucket rate limiting for order operations.
//
// The venue allows far more than the bot ever sends, but a conservative
// bucket (50 tokens/s, burst 50) keeps a misbehaving loop from spraying
// orders. The bucket refills continuously rather than in fixed windows.
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Fractional tokens are allowed; every order operation consumes one.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were recalculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill
// rate. The bucket starts full.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now
}

// Acquire blocks until n tokens are available or ctx is cancelled.
// Returns the total time spent waiting.
func (tb *TokenBucket) Acquire(ctx context.Context, n float64) (time.Duration, error) {
	var waited time.Duration
	for {
		tb.mu.Lock()
		tb.refillLocked(time.Now())

		if tb.tokens >= n {
			tb.tokens -= n
			tb.mu.Unlock()
			return waited, nil
		}

		wait := time.Duration((n - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return waited, ctx.Err()
		case <-time.After(wait):
			waited += wait
		}
	}
}

// Wait blocks until a single token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	_, err := tb.Acquire(ctx, 1)
	return err
}

// TryAcquire takes n tokens if immediately available, without blocking.
func (tb *TokenBucket) TryAcquire(n float64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// WaitTime estimates how long Acquire(n) would block right now.
func (tb *TokenBucket) WaitTime(n float64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	if tb.tokens >= n {
		return 0
	}
	return time.Duration((n - tb.tokens) / tb.rate * float64(time.Second))
}
