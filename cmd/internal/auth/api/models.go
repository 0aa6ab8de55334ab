package authapi

import (
	"time"

	"accessgate/cmd/internal/auth/otp"
)

type requestCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Channel     string `json:"channel"`
}

type requestCodeResponse struct {
	Sent              bool      `json:"sent"`
	MaskedPhoneNumber string    `json:"maskedPhoneNumber"`
	Channel           string    `json:"channel"`
	CodeExpiresAt     time.Time `json:"codeExpiresAt"`
	MaxAttempts       int       `json:"maxAttempts"`
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
	Channel     string `json:"channel"`
}

type verifyCodeResponse struct {
	Authenticated    bool      `json:"authenticated"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
}

type sessionStatusResponse struct {
	Authenticated    bool       `json:"authenticated"`
	SessionExpiresAt *time.Time `json:"sessionExpiresAt"`
}

type logoutResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type issueCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Channel     string `json:"channel"`
	TTLMinutes  *int   `json:"ttlMinutes"`
	MaxAttempts *int   `json:"maxAttempts"`
	Send        *bool  `json:"send"`
}

type issueCodeResponse struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phoneNumber"`
	Channel     string    `json:"channel"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expiresAt"`
	MaxAttempts int       `json:"maxAttempts"`
	CreatedAt   time.Time `json:"createdAt"`
}

type codeSummaryResponse struct {
	ID           string     `json:"id"`
	PhoneNumber  string     `json:"phoneNumber"`
	Channel      string     `json:"channel"`
	Used         bool       `json:"used"`
	AttemptCount int        `json:"attemptCount"`
	MaxAttempts  int        `json:"maxAttempts"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	UsedAt       *time.Time `json:"usedAt"`
}

func toIssueCodeResponse(c otp.IssuedCode) issueCodeResponse {
	return issueCodeResponse{
		ID:          c.ID,
		PhoneNumber: c.PhoneNumber,
		Channel:     string(c.Channel),
		Code:        c.Code,
		ExpiresAt:   c.ExpiresAt,
		MaxAttempts: c.MaxAttempts,
		CreatedAt:   c.CreatedAt,
	}
}

func toCodeSummaryResponses(in []otp.CodeSummary) []codeSummaryResponse {
	out := make([]codeSummaryResponse, 0, len(in))
	for _, c := range in {
		out = append(out, codeSummaryResponse{
			ID:           c.ID,
			PhoneNumber:  c.PhoneNumber,
			Channel:      string(c.Channel),
			Used:         c.Used,
			AttemptCount: c.AttemptCount,
			MaxAttempts:  c.MaxAttempts,
			CreatedAt:    c.CreatedAt,
			ExpiresAt:    c.ExpiresAt,
			UsedAt:       c.UsedAt,
		})
	}
	return out
}
