package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("alice")
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, retryAfter := rl.Allow("alice")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)

	// Other users have independent budgets.
	allowed, _ = rl.Allow("bob")
	assert.True(t, allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	now := base
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	allowed, _ := rl.Allow("u")
	assert.True(t, allowed)
	now = base.Add(10 * time.Second)
	allowed, _ = rl.Allow("u")
	assert.True(t, allowed)

	now = base.Add(20 * time.Second)
	allowed, retryAfter := rl.Allow("u")
	assert.False(t, allowed)
	// The oldest request (t=0) leaves the window at t=60, which is 40s
	// past the current window start (t=-40), plus the one-second pad.
	assert.Equal(t, 41, retryAfter)

	// Once the first request ages out, capacity frees up.
	now = base.Add(61 * time.Second)
	allowed, _ = rl.Allow("u")
	assert.True(t, allowed)
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	allowed, _ := rl.Allow("u")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("u")
	assert.False(t, allowed)

	rl.Reset()
	allowed, _ = rl.Allow("u")
	assert.True(t, allowed)
}
