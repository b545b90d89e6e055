package strescape

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FileTitle reduces s to a form usable as a file name stem: runes other
// than letters, digits, underscores, spaces and hyphens are dropped,
// surrounding whitespace is trimmed and every remaining run of spaces
// and hyphens collapses to a single underscore.
func FileTitle(s string) string {
	filtered := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			return r
		case r == '-' || unicode.IsSpace(r):
			return r
		}
		return -1
	}, s)
	filtered = strings.TrimSpace(filtered)

	var b strings.Builder
	b.Grow(len(filtered))
	sep := false
	for _, r := range filtered {
		if r == '-' || unicode.IsSpace(r) {
			sep = true
			continue
		}
		if sep {
			b.WriteByte('_')
			sep = false
		}
		b.WriteRune(r)
	}
	if sep {
		b.WriteByte('_')
	}
	return b.String()
}

// SingleLine collapses all whitespace runs in s (including newlines) to
// single spaces and trims surrounding whitespace.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Transcript sanitizes recognized speech for the transcript streams:
// non-graphic runes are dropped, whitespace runs (including newlines)
// collapse to single spaces and surrounding whitespace is trimmed. The
// result is always safe to store as a single transcript line.
func Transcript(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsGraphic(r) && r != utf8.RuneError:
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, s)
	return SingleLine(s)
}

// CannonicalizeNL converts all newline char sequences to \n. Additionally, it
// trims all empty newlines from the right of the string.
func CannonicalizeNL(val string) string {
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\r", "\n")
	val = strings.TrimRight(val, "\n")
	return val
}
