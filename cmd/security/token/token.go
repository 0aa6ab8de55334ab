package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

var (
	// ErrHMACKeyMissing means ACCESSGATE_TOKEN_HMAC_KEY is unset or blank.
	ErrHMACKeyMissing = errors.New("token: HMAC key missing")
	// ErrHMACKeyTooShort means the configured key is below the required byte length.
	ErrHMACKeyTooShort = errors.New("token: HMAC key too short")
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "ACCESSGATE_TOKEN_HMAC_KEY"

	// SessionTokenBytes is the entropy of a session token (256 bits).
	SessionTokenBytes = 32
)

// NewSessionToken returns a fresh hex-encoded session token.
// The value is shown to the client exactly once and must never be logged.
func NewSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Hasher digests session tokens for storage and lookup.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. A non-empty key switches it to HMAC-SHA256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// HasherFromEnv builds a Hasher from ACCESSGATE_TOKEN_HMAC_KEY.
// With requireHMAC the key must be present and at least minBytes long;
// otherwise a missing key falls back to SHA-256.
func HasherFromEnv(requireHMAC bool, minBytes int) (Hasher, error) {
	key, err := HMACKeyFromEnv(minBytes)
	switch {
	case err == nil:
		return NewHasher(key), nil
	case requireHMAC:
		return Hasher{}, err
	case errors.Is(err, ErrHMACKeyMissing):
		return Hasher{}, nil
	default:
		return Hasher{}, err
	}
}

// HMAC reports whether the hasher is keyed.
func (h Hasher) HMAC() bool { return len(h.key) > 0 }

// HashHex returns the 64-char hex digest stored for a session token.
func (h Hasher) HashHex(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}
