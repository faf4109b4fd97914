package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a small per-connection limiter. Capacity 1 with one token
// per second keeps websocket clients to one action a second with no burst.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	refillPerSec float64
	tokens       float64
	lastRefill   time.Time
	now          func() time.Time
}

func NewTokenBucket(capacity, refillPerSec float64) *TokenBucket {
	return newTokenBucket(capacity, refillPerSec, time.Now)
}

func newTokenBucket(capacity, refillPerSec float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		refillPerSec: refillPerSec,
		tokens:       capacity,
		lastRefill:   now(),
		now:          now,
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillPerSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
