package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanRecovered canonicalizes text recovered from a binary payload:
// trims surrounding whitespace, applies Unicode NFC, strips control
// characters other than tab/newline/carriage return, and folds the
// paragraph/line separator code points to plain newlines. Text that is
// nothing but replacement characters collapses to the empty string, which
// callers treat as "no text recovered".
func CleanRecovered(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)

	var sb strings.Builder
	sb.Grow(len(s))
	onlyPlaceholders := true
	for _, r := range s {
		switch {
		case r == '\u2028' || r == '\u2029':
			sb.WriteByte('\n')
		case r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
			continue
		default:
			sb.WriteRune(r)
		}
		if r != '�' && r != '￼' && !unicode.IsSpace(r) {
			onlyPlaceholders = false
		}
	}
	if onlyPlaceholders {
		return ""
	}
	return strings.TrimSpace(sb.String())
}

// HasLetterOrDigit reports whether s contains at least one letter or digit.
// Used to reject structural noise when walking property-list leaves.
func HasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
