package access

import (
	"context"
	"time"
)

// CreateCodeInput asks the store to persist Code subject to a per-phone cap.
//
// The store counts codes for Code.PhoneNumber created after WindowStart
// and inserts only when that count is below WindowMax. Count and insert are a
// single atomic step per phone number. WindowMax <= 0 disables the cap.
type CreateCodeInput struct {
	Code        AccessCode
	WindowStart time.Time
	WindowMax   int
}

// Store is the access persistence boundary.
type Store interface {
	// CreateCode inserts a code, failing with ErrTooManyRequests when the window cap is reached.
	CreateCode(ctx context.Context, in CreateCodeInput) (AccessCode, error)

	// CountCodesSince counts codes for phone created strictly after since.
	// It takes no lock; CreateCode remains the authoritative cap.
	CountCodesSince(ctx context.Context, phone string, since time.Time) (int, error)

	// LatestAvailableCode returns the newest unused, unexpired code for (phone, channel).
	// Returns ErrNotFound when there is none.
	LatestAvailableCode(ctx context.Context, phone string, channel Channel, now time.Time) (AccessCode, error)

	// GetCode loads a code by ID. Returns ErrNotFound when missing.
	GetCode(ctx context.Context, id string) (AccessCode, error)

	// SwapCode replaces prev with next if the stored row still matches prev
	// (attempt_count, used). Returns ErrConflict on a stale snapshot.
	SwapCode(ctx context.Context, prev, next AccessCode) error

	// RedeemCode swaps prev for next and inserts sess in one atomic step.
	// Returns ErrConflict on a stale snapshot and ConflictError{Field:"token_hash"}
	// on a duplicate token hash; in both cases nothing is written.
	RedeemCode(ctx context.Context, prev, next AccessCode, sess Session) error

	// ActiveSessionByTokenHash returns the session that is not revoked and not expired at now.
	// Returns ErrNotFound otherwise.
	ActiveSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Session, error)

	// RevokeSessionByTokenHash revokes the not-yet-revoked session (regardless of expiry).
	// Reports whether a session was revoked.
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// InsertAttempt appends an audit row.
	InsertAttempt(ctx context.Context, a AttemptLog) error

	// RecentCodes returns the newest codes first, at most limit.
	RecentCodes(ctx context.Context, limit int) ([]AccessCode, error)
}
