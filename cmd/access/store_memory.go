package access

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"accessgate/cmd/access/ids"
)

// MemoryStore is a dev-only fallback when DB is not configured, and the
// store used by the orchestrator tests. A single mutex serializes every
// operation, which gives the same atomicity as the Postgres row locks.
type MemoryStore struct {
	mu       sync.Mutex
	codes    map[string]AccessCode
	order    []string           // code IDs in insertion order
	sessions map[string]Session // token hash -> session
	attempts []AttemptLog
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:    make(map[string]AccessCode),
		sessions: make(map[string]Session),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close(_ context.Context) error { return nil }

// CreateCode implements Store.
func (s *MemoryStore) CreateCode(ctx context.Context, in CreateCodeInput) (AccessCode, error) {
	const op = "access.CreateCode"

	if err := ctx.Err(); err != nil {
		return AccessCode{}, err
	}
	c := in.Code
	if strings.TrimSpace(c.PhoneNumber) == "" || c.CodeHash == "" {
		return AccessCode{}, invalid(op, "missing phone number or code hash")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ID == "" {
		id, err := NewID(c.CreatedAt)
		if err != nil {
			return AccessCode{}, err
		}
		c.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.WindowMax > 0 {
		if s.countLocked(c.PhoneNumber, in.WindowStart) >= in.WindowMax {
			return AccessCode{}, OpError{Op: op, Kind: ErrTooManyRequests, Msg: "hourly code cap reached"}
		}
	}

	if _, dup := s.codes[c.ID]; dup {
		return AccessCode{}, ConflictError{Op: op, Field: "id"}
	}
	s.codes[c.ID] = c
	s.order = append(s.order, c.ID)
	return c, nil
}

// CountCodesSince implements Store.
func (s *MemoryStore) CountCodesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.countLocked(phone, since), nil
}

func (s *MemoryStore) countLocked(phone string, since time.Time) int {
	n := 0
	for _, id := range s.order {
		c := s.codes[id]
		if c.PhoneNumber == phone && c.CreatedAt.After(since) {
			n++
		}
	}
	return n
}

// LatestAvailableCode implements Store.
func (s *MemoryStore) LatestAvailableCode(ctx context.Context, phone string, channel Channel, now time.Time) (AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return AccessCode{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  AccessCode
		found bool
	)
	for _, id := range s.order {
		c := s.codes[id]
		if c.PhoneNumber != phone || c.Channel != channel || c.Used || !c.ExpiresAt.After(now) {
			continue
		}
		if !found || !c.CreatedAt.Before(best.CreatedAt) {
			best, found = c, true
		}
	}
	if !found {
		return AccessCode{}, ErrNotFound
	}
	return best, nil
}

// GetCode implements Store.
func (s *MemoryStore) GetCode(ctx context.Context, id string) (AccessCode, error) {
	if !ids.Valid(id) {
		return AccessCode{}, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return AccessCode{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[id]
	if !ok {
		return AccessCode{}, ErrNotFound
	}
	return c, nil
}

// SwapCode implements Store.
func (s *MemoryStore) SwapCode(ctx context.Context, prev, next AccessCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.swapLocked("access.SwapCode", prev, next)
}

// RedeemCode implements Store.
func (s *MemoryStore) RedeemCode(ctx context.Context, prev, next AccessCode, sess Session) error {
	const op = "access.RedeemCode"

	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.TokenHash == "" {
		return invalid(op, "missing token hash")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.ID == "" {
		id, err := NewID(sess.CreatedAt)
		if err != nil {
			return err
		}
		sess.ID = id
	}
	sess.AccessCodeID = next.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.sessions[sess.TokenHash]; dup {
		return ConflictError{Op: op, Field: "token_hash"}
	}
	if err := s.swapLocked(op, prev, next); err != nil {
		return err
	}
	s.sessions[sess.TokenHash] = sess
	return nil
}

func (s *MemoryStore) swapLocked(op string, prev, next AccessCode) error {
	cur, ok := s.codes[prev.ID]
	if !ok {
		return ErrNotFound
	}
	if next.ID != prev.ID {
		return invalid(op, "code id mismatch")
	}
	if cur.AttemptCount != prev.AttemptCount || cur.Used != prev.Used {
		return ConflictError{Op: op, Field: "access_code"}
	}
	cur.AttemptCount = next.AttemptCount
	cur.Used = next.Used
	cur.UsedAt = next.UsedAt
	s.codes[prev.ID] = cur
	return nil
}

// ActiveSessionByTokenHash implements Store.
func (s *MemoryStore) ActiveSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok || !sess.IsActive(now) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// RevokeSessionByTokenHash implements Store.
func (s *MemoryStore) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	s.sessions[tokenHash] = sess.Revoke(now)
	return true, nil
}

// InsertAttempt implements Store.
func (s *MemoryStore) InsertAttempt(ctx context.Context, a AttemptLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ID == "" {
		id, err := NewID(a.CreatedAt)
		if err != nil {
			return err
		}
		a.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, a)
	return nil
}

// RecentCodes implements Store.
func (s *MemoryStore) RecentCodes(ctx context.Context, limit int) ([]AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	out := make([]AccessCode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.codes[id])
	}
	s.mu.Unlock()

	// Stable on insertion order so equal timestamps stay newest-inserted first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Attempts returns a copy of the audit rows, oldest first.
func (s *MemoryStore) Attempts() []AttemptLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AttemptLog, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Sessions returns a copy of every stored session.
func (s *MemoryStore) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
