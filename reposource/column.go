package reposource

import (
	"strings"
	"unicode"
)

// column maps a query field name such as "createdAt" or "service-ids" to a
// snake_case column name. Anything that is not a letter or digit becomes a
// single separator, so the result is always a plain identifier.
func column(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 && !sep {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (nextLower && unicode.IsUpper(prev)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			sep = false
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			sep = false
		default:
			if b.Len() > 0 && !sep {
				b.WriteByte('_')
				sep = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
