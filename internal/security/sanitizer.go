// internal/security/sanitizer.go
package security

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxExpressionLength is the longest function expression accepted, in characters.
const MaxExpressionLength = 100

var (
	// ErrTooLong is returned for expressions over MaxExpressionLength characters.
	ErrTooLong = errors.New("function expression too long")
	// ErrForbiddenTerm is returned when an expression contains a blocked keyword.
	ErrForbiddenTerm = errors.New("invalid function expression: contains forbidden terms")
)

// forbiddenTerms is a blocklist only. The expression parser is the real
// boundary: it accepts nothing but arithmetic, z, constants and known functions.
var forbiddenTerms = []string{"while", "for", "import", "exec", "eval"}

// SanitizeExpression validates a raw function expression and normalizes it
// for the parser.
// - Rejects input longer than MaxExpressionLength characters
// - Rejects input containing a forbidden term, case-insensitively
// - Strips all whitespace
// - Inserts * where a digit meets a letter or underscore ("2z" -> "2*z", "z2" -> "z*2")
func SanitizeExpression(raw string) (string, error) {
	return sanitize(raw, MaxExpressionLength)
}

// SanitizeExpressionN is SanitizeExpression with a configurable length limit.
func SanitizeExpressionN(raw string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxExpressionLength
	}
	return sanitize(raw, maxLen)
}

func sanitize(raw string, maxLen int) (string, error) {
	if utf8.RuneCountInString(raw) > maxLen {
		return "", ErrTooLong
	}

	lower := strings.ToLower(raw)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return "", ErrForbiddenTerm
		}
	}

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	return insertImplicitMultiplication(stripped), nil
}

func insertImplicitMultiplication(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	var prev rune
	for i, r := range s {
		if i > 0 && needsTimes(prev, r) {
			b.WriteByte('*')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// needsTimes only splits digit/letter boundaries; multi-digit literals such
// as 10 are left intact.
func needsTimes(prev, next rune) bool {
	isWordLetter := func(r rune) bool { return unicode.IsLetter(r) || r == '_' }
	return (unicode.IsDigit(prev) && isWordLetter(next)) ||
		(isWordLetter(prev) && unicode.IsDigit(next))
}
