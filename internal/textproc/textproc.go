// Package textproc holds the text normalization used by documents, the
// index builder and the snapshot codec.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize collapses runs of whitespace into single spaces and trims the result
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CleanForIndexing keeps only ASCII letters and whitespace, lowercased and trimmed.
// Any Unicode space is rewritten as a plain space so Tokenize splits on it.
func CleanForIndexing(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize splits text on runs of whitespace.
// An empty string yields a single empty token.
func Tokenize(text string) []string {
	return whitespaceRegex.Split(text, -1)
}

// FormatList renders items as a bracketed, quoted list: ['a', 'b'].
func FormatList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// ParseList reverses FormatList. Quotes are dropped wherever they appear,
// so names containing an apostrophe do not survive the round trip.
func ParseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return []string{}
	}
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, "'", "")
	return strings.Split(s, ", ")
}
