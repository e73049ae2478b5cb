package ratelimit

import (
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding-window limiter. Its state lives in
// one process only, so it coordinates nothing across instances; use the
// Redis limiter when more than one replica serves traffic.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	log       map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter allows limit requests per key within the trailing window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		log:    make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether key is within quota and records the request if so.
func (l *MemoryLimiter) Allow(key string) bool {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Keys that go quiet would otherwise sit in the map forever; sweep them
	// out at most once per window.
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(windowStart)
		l.lastSweep = now
	}

	kept := l.log[key][:0]
	for _, ts := range l.log[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.log[key] = kept
		return false
	}
	l.log[key] = append(kept, now)
	return true
}

func (l *MemoryLimiter) sweep(windowStart time.Time) {
	for key, entries := range l.log {
		live := false
		for _, ts := range entries {
			if ts.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(l.log, key)
		}
	}
}
