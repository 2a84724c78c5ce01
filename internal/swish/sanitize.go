package swish

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxMessageLen is the provider's cap on the free-text message field.
const maxMessageLen = 50

// stripMarks decomposes accented letters and drops the combining marks, so
// "Tävlingsavgift" becomes "Tavlingsavgift".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeMessage reduces a message to the provider's accepted character
// subset and length cap. The mapping is deterministic: the same input always
// yields the same output.
func SanitizeMessage(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if !allowedMessageRune(r) {
			continue
		}
		if b.Len() >= maxMessageLen {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func allowedMessageRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(" .,!?()-:;", r)
}
