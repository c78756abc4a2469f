package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lower-cases s, strips accents and joins runs of letters and digits
// with single hyphens. Non-Latin letters are kept, so CJK names still yield a
// usable slug.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(result) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// isMn reports whether r is a non-spacing mark (accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
