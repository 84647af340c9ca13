// Package document defines the documents collected from the forum and feed
// sources and the author registry built over them.
package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knowledge-engine/corpus/internal/textproc"
)

// Kind tags the concrete variant of a Document
type Kind string

const (
	KindForum Kind = "forum"
	KindFeed  Kind = "feed"
)

// ParseKind validates a stored type tag
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindForum, KindFeed:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

const (
	// EmptyText replaces a missing or blank title or body
	EmptyText = "Empty"
	// UnknownAuthor replaces a missing author
	UnknownAuthor = "Unknown"
)

// Fields are the attributes shared by every document variant
type Fields struct {
	Title  string
	Author string
	Date   time.Time
	URL    string
	Text   string
}

// Document is an immutable record of one forum post or feed entry.
// The Kind decides which of the variant accessors carry data.
type Document struct {
	kind   Kind
	title  string
	author string
	date   time.Time
	url    string
	text   string

	// forum
	commentCount int
	sourceHandle string

	// feed
	coAuthors []string
	apiIndex  int
}

// NewForum builds a forum post document
func NewForum(f Fields, commentCount int, sourceHandle string) *Document {
	d := newDocument(KindForum, f)
	d.commentCount = max(commentCount, 0)
	d.sourceHandle = sourceHandle
	return d
}

// NewFeed builds a feed entry document
func NewFeed(f Fields, coAuthors []string, apiIndex int) *Document {
	d := newDocument(KindFeed, f)
	d.coAuthors = make([]string, 0, len(coAuthors))
	for _, name := range coAuthors {
		if name = textproc.Normalize(name); name != "" {
			d.coAuthors = append(d.coAuthors, name)
		}
	}
	d.apiIndex = max(apiIndex, 0)
	return d
}

// Restore rebuilds a stored document of the given kind. Variant values
// that do not apply to kind are ignored.
func Restore(kind Kind, f Fields, commentCount int, sourceHandle string, coAuthors []string, apiIndex int) (*Document, error) {
	switch kind {
	case KindForum:
		return NewForum(f, commentCount, sourceHandle), nil
	case KindFeed:
		return NewFeed(f, coAuthors, apiIndex), nil
	}
	return nil, fmt.Errorf("unknown document type %q", kind)
}

func newDocument(kind Kind, f Fields) *Document {
	date := f.Date
	if date.IsZero() {
		date = time.Now()
	}
	author := textproc.Normalize(f.Author)
	if author == "" {
		author = UnknownAuthor
	}
	return &Document{
		kind:   kind,
		title:  orEmpty(textproc.Normalize(f.Title)),
		author: author,
		date:   date,
		url:    strings.TrimSpace(f.URL),
		text:   orEmpty(textproc.Normalize(f.Text)),
	}
}

func orEmpty(s string) string {
	if s == "" {
		return EmptyText
	}
	return s
}

func (d *Document) Kind() Kind      { return d.kind }
func (d *Document) Title() string   { return d.title }
func (d *Document) Author() string  { return d.author }
func (d *Document) Date() time.Time { return d.date }
func (d *Document) URL() string     { return d.url }
func (d *Document) Text() string    { return d.text }

// CommentCount is zero for feed documents
func (d *Document) CommentCount() int { return d.commentCount }

// SourceHandle is the forum continuation cursor, empty for feed documents
func (d *Document) SourceHandle() string { return d.sourceHandle }

// APIIndex is the position in the source feed, zero for forum documents
func (d *Document) APIIndex() int { return d.apiIndex }

// CoAuthors returns a copy of the co-author list
func (d *Document) CoAuthors() []string {
	out := make([]string, len(d.coAuthors))
	copy(out, d.coAuthors)
	return out
}

// Authors lists the primary author followed by distinct co-authors
func (d *Document) Authors() []string {
	names := []string{d.author}
	seen := map[string]bool{d.author: true}
	for _, name := range d.coAuthors {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// SourceKey identifies the document inside its source.
// Two documents with the same key are the same post or entry.
func (d *Document) SourceKey() string {
	if d.kind == KindFeed {
		return string(KindFeed) + ":" + strconv.Itoa(d.apiIndex)
	}
	return string(KindForum) + ":" + d.sourceHandle
}

func (d *Document) String() string {
	return fmt.Sprintf("Document(%s, source=%s)", d.title, d.kind)
}
