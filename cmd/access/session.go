package access

import "time"

// Session is one issued session.
// IMPORTANT: TokenHash is stored server-side; the raw session token is never stored.
type Session struct {
	ID           string
	AccessCodeID string
	TokenHash    string
	IPAddress    *string
	UserAgent    *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// IsActive reports whether the session is neither revoked nor expired at now.
func (s Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Revoke returns the session revoked at now. Revoking twice keeps the first timestamp.
func (s Session) Revoke(now time.Time) Session {
	if s.RevokedAt != nil {
		return s
	}
	s.RevokedAt = timePtr(now)
	return s
}
