package extract

import (
	"strings"
	"unicode/utf8"
)

// normalize collapses whitespace runs to a single space and trims the ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textLen counts characters, not bytes.
func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
