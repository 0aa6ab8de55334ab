package audit

import (
	"context"
	"time"

	"accessgate/cmd/access"
)

// Event is the wire shape of one attempt row.
type Event struct {
	ID           string    `json:"id"`
	AccessCodeID *string   `json:"accessCodeId,omitempty"`
	Success      bool      `json:"success"`
	Reason       string    `json:"reason"`
	PhoneNumber  string    `json:"phoneNumber"`
	Channel      string    `json:"channel"`
	IPAddress    *string   `json:"ipAddress,omitempty"`
	UserAgent    *string   `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromAttempt maps a stored attempt row to its event.
func FromAttempt(a access.AttemptLog) Event {
	return Event{
		ID:           a.ID,
		AccessCodeID: a.AccessCodeID,
		Success:      a.Success,
		Reason:       string(a.Reason),
		PhoneNumber:  a.PhoneNumber,
		Channel:      string(a.Channel),
		IPAddress:    a.IPAddress,
		UserAgent:    a.UserAgent,
		CreatedAt:    a.CreatedAt.UTC(),
	}
}

// Publisher hands attempt events to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
