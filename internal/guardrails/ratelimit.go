package guardrails

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user sliding-window request limit.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	history map[string][]time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window per user.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		history:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records a request attempt for user and reports whether it is
// admitted. When denied, retryAfterSeconds is how long the client should
// wait: one second past the moment the oldest in-window request expires.
func (rl *RateLimiter) Allow(user string) (allowed bool, retryAfterSeconds int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	kept := rl.history[user][:0]
	for _, t := range rl.history[user] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	rl.history[user] = kept

	if len(kept) >= rl.maxRequests {
		oldest := kept[0]
		retryAfter := int(oldest.Sub(windowStart).Seconds()) + 1
		return false, retryAfter
	}

	rl.history[user] = append(rl.history[user], now)
	return true, 0
}

// Reset clears all recorded history.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.history = make(map[string][]time.Time)
}
