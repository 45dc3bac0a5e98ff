package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter per key.
// Two uses on the auth surface: counting failed logins per identity
// (check with Blocked, count with Record, drop with Reset on success) and
// throttling refresh calls per network origin (count-and-check with Allow).
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*counterWindow
}

type counterWindow struct {
	start time.Time
	count int
}

func New(limit int, window time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]*counterWindow),
	}
}

// Allow counts an attempt and reports whether it fits the window limit
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current(key)
	w.count++
	return w.count <= l.limit
}

// Record counts an attempt without deciding anything
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.current(key).count++
}

// Blocked reports whether the key exhausted its window without counting
func (l *Limiter) Blocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.current(key).count >= l.limit
}

// Reset forgets the key's window
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
}

// RetryAfter returns how long until the key's window opens again
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return 0
	}

	remaining := w.start.Add(l.window).Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// current returns the key's live window, rolling over an elapsed one
func (l *Limiter) current(key string) *counterWindow {
	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &counterWindow{start: now}
		l.windows[key] = w
	}
	return w
}
