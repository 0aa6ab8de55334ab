package access

import "strings"

// Channel is the out-of-band delivery target for a code.
type Channel string

const (
	// ChannelKakao delivers through the Kakao messaging webhook.
	ChannelKakao Channel = "KAKAO"
	// ChannelPass delivers through the PASS carrier webhook.
	ChannelPass Channel = "PASS"
)

// Channels lists the closed set of supported channels.
func Channels() []Channel { return []Channel{ChannelKakao, ChannelPass} }

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelKakao, ChannelPass:
		return true
	default:
		return false
	}
}

// ParseChannel canonicalizes a channel name (trim + upper-case).
// An empty value is reported as missing; anything outside the closed set is rejected.
func ParseChannel(s string) (Channel, error) {
	const op = "access.ParseChannel"

	v := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if v == "" {
		return "", invalid(op, "channel is required")
	}
	if !v.Valid() {
		return "", invalid(op, "unsupported channel")
	}
	return v, nil
}
