package mea

import (
	"sync"
	"time"
)

// reconnectLimiter is a token-bucket limiter adapted from the teacher's
// guardian.RateLimiter: there it throttled per-IP HTTP requests, here it
// throttles per-transport reconnect attempts so a flapping MEA device
// cannot busy-loop the dedicated bio worker.
type reconnectLimiter struct {
	mu      sync.Mutex
	tokens  int
	maxReqs int
	window  time.Duration
	last    time.Time
}

func newReconnectLimiter(maxAttempts int, window time.Duration) *reconnectLimiter {
	return &reconnectLimiter{
		tokens:  maxAttempts,
		maxReqs: maxAttempts,
		window:  window,
		last:    time.Now(),
	}
}

// Allow reports whether a reconnect attempt may proceed now, refilling
// tokens proportionally to elapsed time since the last check.
func (l *reconnectLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last)
	refill := int(elapsed.Seconds() / l.window.Seconds() * float64(l.maxReqs))
	if refill > 0 {
		l.tokens += refill
		if l.tokens > l.maxReqs {
			l.tokens = l.maxReqs
		}
		l.last = now
	}

	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}
