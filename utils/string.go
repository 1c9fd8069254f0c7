package utils

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText brings free-form track text into a canonical comparison form:
// NFC composed, lower-cased, trimmed, with inner whitespace runs collapsed to one space.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FoldText is NormalizeText after transliterating to ASCII, so "Beyoncé" and
// "Beyonce" compare equal. Only used for loose matching, never for cache keys.
func FoldText(s string) string {
	return NormalizeText(unidecode.Unidecode(norm.NFC.String(s)))
}

// IsLatin reports whether every letter in s is Latin script. Transliteration
// is only lossless enough to match on for such text; other scripts collapse
// homophones (晴天 and 情天 both become "qing tian").
func IsLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

// TruncateString shortens s to at most max runes, appending "..." when cut.
func TruncateString(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
