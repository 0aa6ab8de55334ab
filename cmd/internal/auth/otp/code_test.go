package otp

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
	"testing/iotest"
)

func TestGenerateCode_Shape(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		c, err := generateCode(rand.Reader)
		if err != nil {
			t.Fatalf("generateCode: %v", err)
		}
		if len(c) != codeDigits {
			t.Fatalf("len=%d want %d (%q)", len(c), codeDigits, c)
		}
		for _, r := range c {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in %q", c)
			}
		}
	}
}

func TestGenerateCode_RejectsBiasedBytes(t *testing.T) {
	t.Parallel()

	// First read: all bytes >= 250 are dropped except the trailing digits.
	first := []byte{250, 251, 252, 253, 254, 255, 255, 255, 9, 19, 29, 39}
	second := []byte{49, 59, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	c, err := generateCode(bytes.NewReader(append(first, second...)))
	if err != nil {
		t.Fatalf("generateCode: %v", err)
	}
	if c != "999999" {
		t.Fatalf("code=%q want 999999", c)
	}
}

func TestGenerateCode_ReaderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("entropy exhausted")
	if _, err := generateCode(iotest.ErrReader(boom)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped reader error, got %v", err)
	}
}
