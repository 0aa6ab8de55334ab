package otp

import (
	"fmt"
	"io"
)

const codeDigits = 6

// generateCode draws codeDigits independent uniform decimal digits from r.
// Bytes >= 250 are rejected so every digit keeps probability exactly 1/10.
func generateCode(r io.Reader) (string, error) {
	out := make([]byte, 0, codeDigits)
	buf := make([]byte, codeDigits*2)

	for len(out) < codeDigits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("otp: random: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == codeDigits {
				break
			}
		}
	}
	return string(out), nil
}
