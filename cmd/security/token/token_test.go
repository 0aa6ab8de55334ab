package token

import (
	"strings"
	"testing"
)

func TestNewSessionToken_ShapeAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 1000
	h := Hasher{}
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		tok, err := NewSessionToken()
		if err != nil {
			t.Fatalf("NewSessionToken: %v", err)
		}
		if len(tok) != 64 {
			t.Fatalf("token length=%d want 64", len(tok))
		}
		d := h.HashHex(tok)
		if _, dup := seen[d]; dup {
			t.Fatalf("duplicate token hash after %d tokens", i)
		}
		seen[d] = struct{}{}
	}
}

func TestHasher_Modes(t *testing.T) {
	t.Parallel()

	plain := Hasher{}
	keyed := NewHasher([]byte(strings.Repeat("k", 32)))

	if plain.HMAC() || !keyed.HMAC() {
		t.Fatalf("unexpected HMAC flags")
	}

	if got := plain.HashHex("abc"); got != HashSHA256Hex("abc") {
		t.Fatalf("plain hasher must be SHA-256")
	}
	// Known SHA-256("abc").
	if got := HashSHA256Hex("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("sha256 mismatch: %s", got)
	}

	a := keyed.HashHex("abc")
	if len(a) != 64 || a == plain.HashHex("abc") {
		t.Fatalf("keyed digest should differ from plain: %s", a)
	}
	if a != keyed.HashHex("abc") {
		t.Fatalf("keyed digest must be deterministic")
	}
}

func TestHasherFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	h, err := HasherFromEnv(false, 32)
	if err != nil || h.HMAC() {
		t.Fatalf("missing key without policy should fall back: hmac=%v err=%v", h.HMAC(), err)
	}
	if _, err := HasherFromEnv(true, 32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HasherFromEnv(false, 32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, strings.Repeat("x", 40))
	h, err = HasherFromEnv(true, 32)
	if err != nil || !h.HMAC() {
		t.Fatalf("expected keyed hasher: hmac=%v err=%v", h.HMAC(), err)
	}
}
