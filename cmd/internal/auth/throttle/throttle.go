// Package throttle limits how often one client key (an IP address) may hit an
// endpoint within a sliding window.
//
// It sits in front of the code flow and never replaces the per-phone cap that
// the store enforces. A denial here is not an auth attempt and is not audited.
package throttle

import (
	"context"
	"time"
)

// Limit is a sliding-window budget: at most Max hits per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool { return l.Max > 0 && l.Window > 0 }

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records a hit for key and reports whether it fits within limit.
// Denied hits are not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Nop allows everything.
type Nop struct{}

// Allow implements Limiter.
func (Nop) Allow(context.Context, string, Limit) (Decision, error) {
	return Decision{Allowed: true}, nil
}
