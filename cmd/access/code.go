package access

import "time"

// AccessCode is one issued one-time code.
// IMPORTANT: CodeHash is an adaptive hash; the plain code is never stored.
type AccessCode struct {
	ID           string
	CodeHash     string
	PhoneNumber  string
	Channel      Channel
	ExpiresAt    time.Time
	MaxAttempts  int
	AttemptCount int
	Used         bool
	CreatedAt    time.Time
	UsedAt       *time.Time
}

// IsAvailable reports whether the code can still be redeemed at now.
func (c AccessCode) IsAvailable(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now) && c.AttemptCount < c.MaxAttempts
}

// RegisterFailure returns the code after one more wrong guess.
// Reaching MaxAttempts locks the code (Used=true) even though it was never redeemed.
func (c AccessCode) RegisterFailure(now time.Time) AccessCode {
	if c.Used {
		return c
	}
	c.AttemptCount++
	if c.AttemptCount >= c.MaxAttempts {
		c.AttemptCount = c.MaxAttempts
		c.Used = true
		c.UsedAt = timePtr(now)
	}
	return c
}

// MarkUsed returns the code redeemed at now.
func (c AccessCode) MarkUsed(now time.Time) AccessCode {
	if c.Used {
		return c
	}
	c.Used = true
	c.UsedAt = timePtr(now)
	return c
}

func timePtr(t time.Time) *time.Time { return &t }
