package tsv

import "strings"

const upperhex = "0123456789ABCDEF"

// Characters that URI encoding keeps literal: unreserved marks plus the
// reserved set and '#'.
const uriSafe = "-_.!~*'();/?:@&=+$,#"

// EncodeURI percent-encodes s as a complete URI: every byte of the UTF-8
// encoding is escaped except ASCII alphanumerics and uriSafe.
func EncodeURI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte(uriSafe, c) >= 0
}
