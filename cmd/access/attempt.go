package access

import "time"

// Reason is the short audit code recorded for each request/verify outcome.
type Reason string

const (
	ReasonCodeSent         Reason = "CODE_SENT"
	ReasonAdminIssued      Reason = "ADMIN_ISSUED"
	ReasonDeliveryFailed   Reason = "DELIVERY_FAILED"
	ReasonRateLimited      Reason = "RATE_LIMITED"
	ReasonNoActiveCode     Reason = "NO_ACTIVE_CODE"
	ReasonCodeNotAvailable Reason = "CODE_NOT_AVAILABLE"
	ReasonInvalidCode      Reason = "INVALID_CODE"
	ReasonSuccess          Reason = "SUCCESS"
)

// AttemptLog is an append-only audit row.
type AttemptLog struct {
	ID           string
	AccessCodeID *string
	Success      bool
	Reason       Reason
	PhoneNumber  string
	Channel      Channel
	IPAddress    *string
	UserAgent    *string
	CreatedAt    time.Time
}
