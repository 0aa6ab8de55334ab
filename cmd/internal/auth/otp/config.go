package otp

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	codeTTLMinMinutes      = 1
	codeTTLMaxMinutes      = 60 * 24
	adminTTLMaxMinutes     = 60 * 24 * 14
	codeMaxAttemptsCeiling = 20
	sessionHoursMax        = 24 * 366
	rateWindow             = time.Hour
)

// Config carries the tunables of the code flow.
type Config struct {
	// SessionHours is the lifetime of a session issued by VerifyCode, at most 8784 (366 days).
	SessionHours int

	// CodeTTLMinutes is the default code lifetime, clamped to [1, 1440].
	CodeTTLMinutes int

	// CodeMaxAttempts is the default wrong-guess budget, clamped to [1, 20].
	CodeMaxAttempts int

	// MaxRequestsPerHour caps codes per phone number over a trailing hour.
	MaxRequestsPerHour int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SessionHours:       12,
		CodeTTLMinutes:     5,
		CodeMaxAttempts:    5,
		MaxRequestsPerHour: 10,
	}
}

// LoadConfigFromEnv loads the code flow configuration.
//
// Optional:
//   - ACCESSGATE_AUTH_SESSION_HOURS (1..8784)
//   - ACCESSGATE_AUTH_CODE_TTL_MINUTES (>= 1)
//   - ACCESSGATE_AUTH_CODE_MAX_ATTEMPTS (>= 1)
//   - ACCESSGATE_AUTH_MAX_REQUESTS_PER_HOUR (>= 1)
//
// Returns ErrConfig if a value is present but not a positive integer, or
// when the session lifetime exceeds 366 days.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"ACCESSGATE_AUTH_SESSION_HOURS", &cfg.SessionHours},
		{"ACCESSGATE_AUTH_CODE_TTL_MINUTES", &cfg.CodeTTLMinutes},
		{"ACCESSGATE_AUTH_CODE_MAX_ATTEMPTS", &cfg.CodeMaxAttempts},
		{"ACCESSGATE_AUTH_MAX_REQUESTS_PER_HOUR", &cfg.MaxRequestsPerHour},
	} {
		v := strings.TrimSpace(os.Getenv(f.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, ErrConfig
		}
		*f.dst = n
	}
	if cfg.SessionHours > sessionHoursMax {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

func (c Config) sessionTTL() time.Duration {
	h := c.SessionHours
	if h < 1 {
		h = DefaultConfig().SessionHours
	}
	if h > sessionHoursMax {
		h = sessionHoursMax
	}
	return time.Duration(h) * time.Hour
}

func (c Config) codeTTLMinutes() int {
	return clamp(c.CodeTTLMinutes, codeTTLMinMinutes, codeTTLMaxMinutes)
}

func (c Config) maxAttempts() int {
	return clamp(c.CodeMaxAttempts, 1, codeMaxAttemptsCeiling)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
