package router

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter per source key
// ARCHITECTURAL DISCOVERY: Per-client state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	clients map[string]*ClientLimit
	now     func() time.Time
}

// ClientLimit tracks one key's current window
type ClientLimit struct {
	count       int
	windowStart time.Time
}

// RateLimitInfo describes the decision for one request
type RateLimitInfo struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter allowing max requests per window
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		clients: make(map[string]*ClientLimit),
		now:     time.Now,
	}
}

// Allow counts one request for key.
// FUNCTIONAL DISCOVERY: Exactly max requests pass per window; the counter resets
// once the window measured from the first request has elapsed
func (rl *RateLimiter) Allow(key string) RateLimitInfo {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	limit, exists := rl.clients[key]
	if !exists || now.Sub(limit.windowStart) >= rl.window {
		limit = &ClientLimit{windowStart: now}
		rl.clients[key] = limit
	}

	reset := limit.windowStart.Add(rl.window)
	if limit.count >= rl.max {
		return RateLimitInfo{
			Allowed:    false,
			Limit:      rl.max,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
		}
	}

	limit.count++
	return RateLimitInfo{
		Allowed:   true,
		Limit:     rl.max,
		Remaining: rl.max - limit.count,
		ResetTime: reset,
	}
}

// Cleanup removes keys whose window has expired (call periodically)
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, limit := range rl.clients {
		if now.Sub(limit.windowStart) >= rl.window {
			delete(rl.clients, key)
		}
	}
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
