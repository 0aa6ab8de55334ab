package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCookieName carries the session token between browser and API.
const DefaultCookieName = "PORTFOLIO_SESSION"

// Config controls auth API behavior and security defaults.
type Config struct {
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	TrustProxy   bool
	MaxBodyBytes int64

	// AuthEnabled turns the session gate on /api/public/ on or off.
	AuthEnabled bool

	// AdminToken is the bearer token for /api/admin/. Empty disables the admin routes.
	AdminToken string

	// Per-IP throttles in front of the code flow. Max 0 disables a throttle.
	RequestCodeIPMax    int
	RequestCodeIPWindow time.Duration
	VerifyCodeIPMax     int
	VerifyCodeIPWindow  time.Duration
}

// DefaultConfig returns the defaults LoadConfigFromEnv starts from.
func DefaultConfig() Config {
	return Config{
		CookieName:          DefaultCookieName,
		CookieSameSite:      http.SameSiteLaxMode,
		MaxBodyBytes:        64 << 10,
		AuthEnabled:         true,
		RequestCodeIPMax:    30,
		RequestCodeIPWindow: time.Hour,
		VerifyCodeIPMax:     60,
		VerifyCodeIPWindow:  10 * time.Minute,
	}
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		CookieName:          envString("ACCESSGATE_AUTH_COOKIE_NAME", def.CookieName),
		CookieDomain:        strings.TrimSpace(os.Getenv("ACCESSGATE_AUTH_COOKIE_DOMAIN")),
		CookieSecure:        envBool("ACCESSGATE_AUTH_COOKIE_SECURE", false),
		CookieSameSite:      parseSameSite(os.Getenv("ACCESSGATE_AUTH_COOKIE_SAMESITE")),
		TrustProxy:          envBool("ACCESSGATE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:        envInt64("ACCESSGATE_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		AuthEnabled:         envBool("ACCESSGATE_AUTH_ENABLED", def.AuthEnabled),
		AdminToken:          strings.TrimSpace(os.Getenv("ACCESSGATE_ADMIN_TOKEN")),
		RequestCodeIPMax:    envLimit("ACCESSGATE_AUTH_REQUEST_CODE_IP_MAX", def.RequestCodeIPMax),
		RequestCodeIPWindow: envDuration("ACCESSGATE_AUTH_REQUEST_CODE_IP_WINDOW", def.RequestCodeIPWindow),
		VerifyCodeIPMax:     envLimit("ACCESSGATE_AUTH_VERIFY_CODE_IP_MAX", def.VerifyCodeIPMax),
		VerifyCodeIPWindow:  envDuration("ACCESSGATE_AUTH_VERIFY_CODE_IP_WINDOW", def.VerifyCodeIPWindow),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envLimit is envInt that also accepts 0 (disabled).
func envLimit(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
