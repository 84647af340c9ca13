package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/textproc"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a corpus
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrMissingColumn is returned when a snapshot lacks a required column
	ErrMissingColumn = errors.New("snapshot is missing a required column")
)

// Columns is the header written to every snapshot
var Columns = []string{
	"id", "type", "title", "author", "date", "url", "text",
	"comment_count", "source_handle", "co_authors", "api_index",
}

var requiredColumns = []string{"type", "title", "author", "date", "url", "text"}

// legacy layout accepted when reading dates
const plainDateLayout = "2006-01-02 15:04:05"

// SnapshotStore persists the document set of a named corpus
type SnapshotStore interface {
	Exists(name string) bool
	Load(name string) ([]*document.Document, error)
	Save(name string, docs []*document.Document) error
}

// CSVStore keeps one delimited file per corpus under a base directory
type CSVStore struct {
	baseDir   string
	separator rune
	mu        sync.RWMutex
}

// NewCSVStore creates the base directory if needed. separator must be a
// single character.
func NewCSVStore(baseDir, separator string) (*CSVStore, error) {
	sep, size := utf8.DecodeRuneInString(separator)
	if sep == utf8.RuneError || size != len(separator) {
		return nil, fmt.Errorf("invalid snapshot separator %q", separator)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &CSVStore{baseDir: baseDir, separator: sep}, nil
}

// Path returns the snapshot file used for name
func (s *CSVStore) Path(name string) string {
	return filepath.Join(s.baseDir, safeFilename(name))
}

func (s *CSVStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// Load reads a snapshot back in file order
func (s *CSVStore) Load(name string) ([]*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return decode(f, s.separator)
}

// Save writes docs in order, replacing any previous snapshot atomically
func (s *CSVStore) Save(name string, docs []*document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, s.separator, docs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func encode(w io.Writer, sep rune, docs []*document.Document) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	for id, doc := range docs {
		record := []string{
			strconv.Itoa(id),
			string(doc.Kind()),
			doc.Title(),
			doc.Author(),
			doc.Date().Format(time.RFC3339),
			doc.URL(),
			doc.Text(),
			strconv.Itoa(doc.CommentCount()),
			doc.SourceHandle(),
			textproc.FormatList(doc.CoAuthors()),
			strconv.Itoa(doc.APIIndex()),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write snapshot row %d: %w", id, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func decode(r io.Reader, sep rune) ([]*document.Document, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty snapshot", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	field := func(record []string, col string) string {
		if i, ok := index[col]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var docs []*document.Document
	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot row %d: %w", row, err)
		}

		doc, err := decodeRecord(func(col string) string { return field(record, col) })
		if err != nil {
			return nil, fmt.Errorf("snapshot row %d: %w", row, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeRecord(get func(col string) string) (*document.Document, error) {
	kind, err := document.ParseKind(strings.TrimSpace(get("type")))
	if err != nil {
		return nil, err
	}
	date, err := parseDate(get("date"))
	if err != nil {
		return nil, err
	}
	commentCount, err := parseInt(get("comment_count"))
	if err != nil {
		return nil, fmt.Errorf("comment_count: %w", err)
	}
	apiIndex, err := parseInt(get("api_index"))
	if err != nil {
		return nil, fmt.Errorf("api_index: %w", err)
	}

	return document.Restore(kind, document.Fields{
		Title:  get("title"),
		Author: get("author"),
		Date:   date,
		URL:    get("url"),
		Text:   get("text"),
	}, commentCount, get("source_handle"), textproc.ParseList(get("co_authors")), apiIndex)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(plainDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// safeFilename maps a corpus name to a file name
func safeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe + ".csv"
}
