package throttle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEvaluateWindow(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	limit := Limit{Max: 2, Window: 5 * time.Minute}

	hits := []time.Time{
		now.Add(-2 * time.Minute),
		now.Add(-1 * time.Minute),
	}

	d := evaluateWindow(now, hits, limit)
	if d.Allowed {
		t.Fatalf("expected window throttle to block")
	}
	if d.RetryAfter != 3*time.Minute {
		t.Fatalf("expected retry=3m, got %v", d.RetryAfter)
	}

	d = evaluateWindow(now, hits[1:], limit)
	if !d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected allow with 0 remaining, got %+v", d)
	}
}

func TestPrune(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	hits := []time.Time{
		now.Add(-6 * time.Minute),
		now.Add(-5 * time.Minute),
		now.Add(-4 * time.Minute),
	}

	kept := prune(now, hits, 5*time.Minute)
	if len(kept) != 1 || !kept[0].Equal(now.Add(-4*time.Minute)) {
		t.Fatalf("kept=%v", kept)
	}
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	l := NewMemoryLimiter(clock)
	limit := Limit{Max: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "203.0.113.7", limit)
		if err != nil || !d.Allowed {
			t.Fatalf("hit %d: d=%+v err=%v", i, d, err)
		}
		advance(10 * time.Second)
	}

	d, _ := l.Allow(ctx, "203.0.113.7", limit)
	if d.Allowed {
		t.Fatalf("fourth hit should be denied")
	}
	if d.RetryAfter != 30*time.Second {
		t.Fatalf("retry=%v want 30s", d.RetryAfter)
	}

	// Other keys are independent.
	if d, _ := l.Allow(ctx, "198.51.100.1", limit); !d.Allowed {
		t.Fatalf("other key should be allowed")
	}

	advance(31 * time.Second)
	if d, _ := l.Allow(ctx, "203.0.113.7", limit); !d.Allowed {
		t.Fatalf("hit after the oldest left the window should be allowed")
	}
}

func TestMemoryLimiter_SweepsIdleKeys(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(func() time.Time { return now })
	limit := Limit{Max: 5, Window: 30 * time.Second}
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := l.Allow(ctx, fmt.Sprintf("198.51.100.%d", i), limit); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
	}
	if n := l.keys(); n != 100 {
		t.Fatalf("keys=%d want 100", n)
	}

	// None of the idle clients return; one new hit after the window triggers the sweep.
	now = now.Add(2 * time.Minute)
	if _, err := l.Allow(ctx, "203.0.113.7", limit); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if n := l.keys(); n != 1 {
		t.Fatalf("keys after sweep=%d want 1", n)
	}

	// A key still inside its window survives the next sweep.
	now = now.Add(sweepInterval)
	if _, err := l.Allow(ctx, "192.0.2.1", Limit{Max: 5, Window: time.Hour}); err != nil {
		t.Fatalf("allow: %v", err)
	}
	now = now.Add(sweepInterval)
	if _, err := l.Allow(ctx, "192.0.2.2", limit); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if n := l.keys(); n != 2 {
		t.Fatalf("keys=%d want 2 (long-window key and the latest hit)", n)
	}
}

func TestMemoryLimiter_DisabledLimit(t *testing.T) {
	l := NewMemoryLimiter(nil)
	for i := 0; i < 100; i++ {
		if d, _ := l.Allow(context.Background(), "k", Limit{}); !d.Allowed {
			t.Fatalf("disabled limit must allow")
		}
	}
}

func TestNop(t *testing.T) {
	if d, err := (Nop{}).Allow(context.Background(), "k", Limit{Max: 1, Window: time.Second}); err != nil || !d.Allowed {
		t.Fatalf("Nop: d=%+v err=%v", d, err)
	}
}
