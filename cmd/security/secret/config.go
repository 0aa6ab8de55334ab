package secret

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// maxSecretLen bounds the hashed input so a huge candidate cannot burn CPU.
const maxSecretLen = 64

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the single configuration surface for this package.
// Pepper, when set, is appended to every secret before hashing.
type Config struct {
	Params Argon2idParams
	Pepper []byte
}

// DefaultConfig returns the baseline used for one-time codes.
//
// Codes are short-lived and already guarded by an attempt cap, and one hash
// runs on every request-code call, so the cost sits at the OWASP minimum
// (19 MiB, t=2, p=1) instead of interactive-login levels.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - ACCESSGATE_OTP_ARGON2_MEMORY_KIB
//   - ACCESSGATE_OTP_ARGON2_ITERATIONS
//   - ACCESSGATE_OTP_ARGON2_PARALLELISM
//   - ACCESSGATE_OTP_ARGON2_SALT_LEN
//   - ACCESSGATE_OTP_ARGON2_KEY_LEN
//   - ACCESSGATE_OTP_PEPPER
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("ACCESSGATE_OTP_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_MEMORY_KIB: %v", ErrConfig, err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("ACCESSGATE_OTP_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_ITERATIONS: %v", ErrConfig, err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("ACCESSGATE_OTP_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_PARALLELISM: %v", ErrConfig, err)
		}
		if u > math.MaxUint8 {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_PARALLELISM: out of range", ErrConfig)
		}
		cfg.Params.Parallelism = uint8(u)
	}

	if v, ok := os.LookupEnv("ACCESSGATE_OTP_ARGON2_SALT_LEN"); ok {
		u, err := atou32(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_SALT_LEN: %v", ErrConfig, err)
		}
		cfg.Params.SaltLength = u
	}

	if v, ok := os.LookupEnv("ACCESSGATE_OTP_ARGON2_KEY_LEN"); ok {
		u, err := atou32(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: ACCESSGATE_OTP_ARGON2_KEY_LEN: %v", ErrConfig, err)
		}
		cfg.Params.KeyLength = u
	}

	if v := strings.TrimSpace(os.Getenv("ACCESSGATE_OTP_PEPPER")); v != "" {
		cfg.Pepper = []byte(v)
	}

	return cfg, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
