package compact

import (
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// escapeField percent-encodes every byte outside the RFC 3986 unreserved set
// (ALPHA / DIGIT / "-" / "_" / "~") and also ".", so the result never
// contains a field separator.
func escapeField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// unescapeField reverses escapeField. "+" is a literal plus, not a space.
func unescapeField(s string) (string, error) {
	return url.PathUnescape(s)
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '~':
		return true
	}
	return false
}
