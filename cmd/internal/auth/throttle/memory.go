package throttle

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often Allow scans every key for expired windows.
const sweepInterval = time.Minute

// MemoryLimiter is a single-process sliding window, used when Redis is not configured.
//
// Keys whose window has fully elapsed are dropped by a periodic sweep, so
// clients that never return do not pin memory.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	hits   []time.Time // oldest first
	window time.Duration
}

// NewMemoryLimiter returns an empty limiter. A nil now uses time.Now.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{buckets: make(map[string]bucket), now: now}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if !limit.Enabled() {
		return Decision{Allowed: true}, nil
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)

	kept := prune(now, m.buckets[key].hits, limit.Window)
	d := evaluateWindow(now, kept, limit)
	if d.Allowed {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		delete(m.buckets, key)
	} else {
		m.buckets[key] = bucket{hits: kept, window: limit.Window}
	}
	return d, nil
}

// sweepLocked drops every bucket whose newest hit has left its window.
func (m *MemoryLimiter) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now

	for key, b := range m.buckets {
		if n := len(b.hits); n == 0 || !b.hits[n-1].After(now.Add(-b.window)) {
			delete(m.buckets, key)
		}
	}
}

// keys reports the number of tracked keys.
func (m *MemoryLimiter) keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// prune drops hits at or before now-window. hits is ordered oldest first.
func prune(now time.Time, hits []time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	i := 0
	for i < len(hits) && !hits[i].After(cut) {
		i++
	}
	return hits[i:]
}

// evaluateWindow decides one hit against in-window hits (oldest first).
// A denial retries once the oldest hit leaves the window.
func evaluateWindow(now time.Time, hits []time.Time, limit Limit) Decision {
	if len(hits) < limit.Max {
		return Decision{Allowed: true, Remaining: limit.Max - len(hits) - 1}
	}

	retry := hits[0].Add(limit.Window).Sub(now)
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}
}
