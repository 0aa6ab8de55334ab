package access

import (
	"strings"
	"unicode/utf8"
)

const (
	maxIPLen        = 64
	maxUserAgentLen = 400
)

// Client is the caller context snapshot stored on sessions and attempt logs.
type Client struct {
	IPAddress string
	UserAgent string
}

// Normalized returns the stored form of the client context: trimmed and
// truncated, with blank values becoming nil.
func (c Client) Normalized() (ip *string, userAgent *string) {
	return limitOrNil(c.IPAddress, maxIPLen), limitOrNil(c.UserAgent, maxUserAgentLen)
}

func limitOrNil(s string, max int) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	if utf8.RuneCountInString(v) > max {
		v = string([]rune(v)[:max])
	}
	return &v
}
