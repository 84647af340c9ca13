package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultContextSize is the window used by Concordance
	DefaultContextSize = 2
	// MaxContextSize keeps the pattern under the regexp repeat limit
	MaxContextSize = 100
)

// Word and separator classes. RE2's \w and \b only know ASCII.
const (
	wordClass = `[\p{L}\p{N}_]`
	sepClass  = `[^\p{L}\p{N}_]`
)

var wordRegex = regexp.MustCompile(wordClass + `+`)

// ContextRow is one keyword-in-context occurrence
type ContextRow struct {
	Left  string
	Match string
	Right string
}

func (r ContextRow) String() string {
	return r.Left + " " + r.Match + " " + r.Right
}

// FindContext lists every occurrence of keyword as a whole word in the
// space-joined texts, with exactly contextSize words on each side.
// Matching ignores case. Occurrences without a full window on both sides
// are skipped, and matches never overlap: words consumed as the right
// window of one row are not available to the next.
func FindContext(texts []string, keyword string, contextSize int) ([]ContextRow, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	if contextSize < 0 || contextSize > MaxContextSize {
		return nil, fmt.Errorf("context size must be between 0 and %d, got %d", MaxContextSize, contextSize)
	}

	pattern, err := regexp.Compile(fmt.Sprintf(
		`(?i)((?:%[1]s+%[2]s+){%[3]d})(%[4]s)((?:%[2]s+%[1]s+){%[3]d})`,
		wordClass, sepClass, contextSize, regexp.QuoteMeta(keyword),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile context pattern: %w", err)
	}

	text := strings.Join(texts, " ")
	var rows []ContextRow
	for pos := 0; pos < len(text); {
		m := pattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[0], pos+m[1]
		if !atWordBoundary(text, start) || !atWordBoundary(text, end) {
			// started or ended inside a longer token; retry one rune later
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		rows = append(rows, ContextRow{
			Left:  joinWords(text[pos+m[2] : pos+m[3]]),
			Match: text[pos+m[4] : pos+m[5]],
			Right: joinWords(text[pos+m[6] : pos+m[7]]),
		})
		pos = end
	}
	return rows, nil
}

// Concordance flattens FindContext rows with the default window
func Concordance(texts []string, keyword string) ([]string, error) {
	rows, err := FindContext(texts, keyword, DefaultContextSize)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.String()
	}
	return out, nil
}

// atWordBoundary reports whether a token cannot continue across offset i
func atWordBoundary(text string, i int) bool {
	if i == 0 || i == len(text) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(text[:i])
	after, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(before) || !isWordRune(after)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// joinWords drops the separators of a captured window
func joinWords(s string) string {
	return strings.Join(wordRegex.FindAllString(s, -1), " ")
}
