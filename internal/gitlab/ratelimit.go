package gitlab

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between calls and a rolling
// per-minute call budget. A zero value is not usable; construct with
// NewRateLimiter. Each Client owns its own limiter so independent
// clients get independent budgets.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	budget      int

	lastCall    time.Time
	windowStart time.Time
	windowCalls int

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)

	onWait func()
}

// NewRateLimiter creates a rate limiter with the given minimum spacing
// between calls and per-minute call budget.
func NewRateLimiter(minInterval time.Duration, perMinuteBudget int) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		budget:      perMinuteBudget,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Wait blocks until the next call is allowed and accounts for it.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Enforce minimum spacing since the previous call.
	if !r.lastCall.IsZero() {
		if elapsed := now.Sub(r.lastCall); elapsed < r.minInterval {
			r.notifyWait()
			r.sleep(r.minInterval - elapsed)
			now = r.now()
		}
	}

	// Rolling per-minute window.
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.windowCalls = 0
	}

	// Sleep out the window once the budget is nearly exhausted.
	if r.windowCalls+1 > r.budget*9/10 {
		remaining := time.Minute - now.Sub(r.windowStart)
		if remaining > 0 {
			r.notifyWait()
			r.sleep(remaining)
		}
		now = r.now()
		r.windowStart = now
		r.windowCalls = 0
	}

	r.windowCalls++
	r.lastCall = now
}

// Reset clears the rolling counters. Called after the server reports 429,
// since the server-imposed wait supersedes whatever the window believed.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastCall = time.Time{}
	r.windowStart = time.Time{}
	r.windowCalls = 0
}

func (r *RateLimiter) notifyWait() {
	if r.onWait != nil {
		r.onWait()
	}
}
