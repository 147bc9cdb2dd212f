package registry

import "strings"

// Sanitize keeps ASCII letters, digits, '-' and '_' and lower-cases the result.
// Anything else, path separators included, is dropped.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c + ('a' - 'A'))
		}
	}
	return b.String()
}
