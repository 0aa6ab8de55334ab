package app

import (
	"errors"

	"accessgate/cmd/security/token"
)

const minTokenHMACKeyBytes = 32

// ValidateSecurityConfig enforces the token hashing policy at startup.
// Under ACCESSGATE_REQUIRE_TOKEN_HMAC a missing or short key is fatal.
func ValidateSecurityConfig(cfg Config) error {
	_, err := sessionTokenHasher(cfg)
	return err
}

// sessionTokenHasher builds the hasher the runtime uses, so validation and use cannot drift.
func sessionTokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC, minTokenHMACKeyBytes)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return token.Hasher{}, errors.New("security policy: ACCESSGATE_REQUIRE_TOKEN_HMAC=true but ACCESSGATE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return token.Hasher{}, errors.New("security policy: ACCESSGATE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return token.Hasher{}, err
		}
	}

	if cfg.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: ACCESSGATE_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
