// Package ratelimit enforces fixed-window quotas for the HTTP API and the
// realtime channel.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimited is returned when a key has exhausted its quota for the window.
var ErrLimited = errors.New("rate limited")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Err returns ErrLimited for a rejected decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrLimited
}

type bucket struct {
	windowEnd time.Time
	count     int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter counts actions per key in fixed windows. The first max calls in a
// window pass; later calls are rejected without being counted.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter allowing max actions per window per key.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:     max,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the per-window quota.
func (l *Limiter) Max() int { return l.max }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow counts one action for key.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(l.window)}
		l.buckets[key] = b
	}
	if b.count >= l.max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.windowEnd}
	}
	b.count++
	return Decision{Allowed: true, Remaining: l.max - b.count, ResetAt: b.windowEnd}
}

// Exhausted reports whether key has used its whole quota in the current
// window. It does not count an action.
func (l *Limiter) Exhausted(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	return ok && !now.After(b.windowEnd) && b.count >= l.max
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Sweep removes buckets whose window has elapsed and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps expired buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	sweepEvery(ctx, interval, l.Sweep)
}

func sweepEvery(ctx context.Context, interval time.Duration, sweep func() int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
