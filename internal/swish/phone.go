package swish

import "strings"

// countryCode is the Swedish calling code used when normalizing payer
// aliases.
const countryCode = "46"

// NormalizePhone converts a free-form phone number to the digits-only alias
// format the provider expects, e.g. "070-123 45 67" -> "46701234567".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		digits = countryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return digits
}
