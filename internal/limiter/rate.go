package limiter

import (
	"sync"
	"time"
)

// RateLimiter caps the number of requests allowed inside a sliding window.
type RateLimiter struct {
	requestTimes []time.Time
	maxRequests  int
	window       time.Duration
	mu           sync.Mutex
}

// NewRateLimiter returns a limiter allowing maxRequests per second.
func NewRateLimiter(maxRequests int) *RateLimiter {
	return NewRateLimiterWithWindow(maxRequests, time.Second)
}

// NewRateLimiterWithWindow returns a limiter allowing maxRequests per window.
func NewRateLimiterWithWindow(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requestTimes: make([]time.Time, 0, maxRequests),
		maxRequests:  maxRequests,
		window:       window,
	}
}

// Allow reports whether a new request may be made right now. Requests
// older than the window no longer count against the limit.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	validTimes := make([]time.Time, 0, len(r.requestTimes))
	for _, t := range r.requestTimes {
		if t.After(windowStart) {
			validTimes = append(validTimes, t)
		}
	}
	r.requestTimes = validTimes

	if len(r.requestTimes) < r.maxRequests {
		r.requestTimes = append(r.requestTimes, now)
		return true
	}

	return false
}
