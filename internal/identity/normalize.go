// ABOUTME: Per-type normalization of guest identifiers
// ABOUTME: Invalid values normalize to the empty string and are treated as absent

package identity

import (
	"regexp"
	"strings"
	"unicode"
)

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lower-cases and shape-checks an email address
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !emailShape.MatchString(s) {
		return ""
	}
	return s
}

// NormalizePhone keeps digits and a leading "+"
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	if strings.HasPrefix(s, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	return b.String()
}

// NormalizeWhatsApp passes the id through untouched apart from surrounding space
func NormalizeWhatsApp(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeDoc strips whitespace and punctuation and upper-cases a document number
func NormalizeDoc(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeWebID trims a web widget id
func NormalizeWebID(s string) string {
	return strings.TrimSpace(s)
}
