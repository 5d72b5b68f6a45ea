package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxNameLength caps a display file name, in runes.
const maxNameLength = 255

// CleanFileName normalizes a client-supplied file name for display and
// for the outbound multipart part. Directory components (including the
// "C:\fakepath\" some browsers send) are dropped, invalid UTF-8 becomes
// U+FFFD, control characters are removed and the result is truncated.
func CleanFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = sanitizeUTF8(name)

	var b strings.Builder
	b.Grow(len(name))
	n := 0
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if n == maxNameLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune('\uFFFD')
			s = s[1:]
		} else {
			b.WriteRune(r)
			s = s[size:]
		}
	}
	return b.String()
}
