package handlers

import (
	"sync"
	"time"
)

// submissionLimiter throttles expensive endpoints, keyed by client address.
type submissionLimiter interface {
	Allow(key string) bool
}

type limiterWindow struct {
	resetAt time.Time
	count   int
}

// windowLimiter is a fixed-window in-memory counter. It is intentionally
// per-process: a replica-local bound is enough to stop accidental double
// submits and hammering, which is all the submission endpoint needs.
type windowLimiter struct {
	mu      sync.Mutex
	windows map[string]limiterWindow
	limit   int
	period  time.Duration
	clock   func() time.Time
}

func newWindowLimiter(limit int, period time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 {
		limit = 5
	}
	if period <= 0 {
		period = time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		windows: make(map[string]limiterWindow),
		limit:   limit,
		period:  period,
		clock:   clock,
	}
}

// Allow records one hit for key and reports whether it fits in the window.
func (l *windowLimiter) Allow(key string) bool {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	window, ok := l.windows[key]
	if !ok || now.After(window.resetAt) {
		l.windows[key] = limiterWindow{resetAt: now.Add(l.period), count: 1}
		return true
	}

	if window.count >= l.limit {
		return false
	}

	window.count++
	l.windows[key] = window
	return true
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, window := range l.windows {
		if now.After(window.resetAt) {
			delete(l.windows, key)
		}
	}
}
