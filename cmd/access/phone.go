package access

import "strings"

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// PhoneNormalizer canonicalizes a raw phone number into the "+digits" key form.
type PhoneNormalizer interface {
	Normalize(raw string) (string, error)
}

// NationalPlan normalizes numbers written in one national dialing plan.
//
// Numbers with a leading "+" or "00" are taken as international. Bare digits
// that already start with CountryCode are kept, a leading TrunkPrefix is
// replaced by CountryCode, anything else is taken as international.
type NationalPlan struct {
	CountryCode string
	TrunkPrefix string
}

// DefaultNationalPlan is the Korean plan (+82, trunk 0).
func DefaultNationalPlan() NationalPlan {
	return NationalPlan{CountryCode: "82", TrunkPrefix: "0"}
}

// Normalize implements PhoneNormalizer.
func (p NationalPlan) Normalize(raw string) (string, error) {
	const op = "access.NormalizePhone"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid(op, "phone number is required")
	}

	if strings.HasPrefix(raw, "+") {
		return finishPhone(op, digitsOnly(raw[1:]))
	}

	digits := digitsOnly(raw)
	cc := digitsOnly(p.CountryCode)
	trunk := digitsOnly(p.TrunkPrefix)

	switch {
	case strings.HasPrefix(digits, "00"):
		return finishPhone(op, digits[2:])
	case cc != "" && strings.HasPrefix(digits, cc):
		return finishPhone(op, digits)
	case cc != "" && trunk != "" && strings.HasPrefix(digits, trunk):
		return finishPhone(op, cc+digits[len(trunk):])
	default:
		return finishPhone(op, digits)
	}
}

// NormalizePhone normalizes with the default national plan.
func NormalizePhone(raw string) (string, error) {
	return DefaultNationalPlan().Normalize(raw)
}

func finishPhone(op, digits string) (string, error) {
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", invalid(op, "invalid phone number format")
	}
	return "+" + digits, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MaskPhoneNumber hides all but the last 4 characters of a phone number.
func MaskPhoneNumber(phone string) string {
	r := []rune(phone)
	if len(r) < 4 {
		return "***"
	}
	return "***" + string(r[len(r)-4:])
}
