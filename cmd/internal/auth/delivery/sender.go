package delivery

import (
	"context"
	"log/slog"
	"time"

	"accessgate/cmd/access"
)

// Message is one code dispatch.
// IMPORTANT: Code is the plaintext OTP; implementations must not log it by default.
type Message struct {
	Channel     access.Channel
	PhoneNumber string
	Code        string
	CreatedAt   time.Time
}

// Sender delivers a code. Errors are returned as-is and never retried here.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes a "delivery.mock_send" record instead of delivering.
type LogSender struct {
	Log *slog.Logger

	// IncludeCode adds the plaintext code to the record. Dev only.
	IncludeCode bool
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	attrs := []any{
		"channel", string(msg.Channel),
		"phone", access.MaskPhoneNumber(msg.PhoneNumber),
	}
	if s.IncludeCode {
		attrs = append(attrs, "code", msg.Code)
	}
	log.InfoContext(ctx, "delivery.mock_send", attrs...)
	return nil
}
