// Package corpus assembles a named document collection from its snapshot
// and the live sources, and exposes retrieval over it.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/fetcher"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/search"
	"github.com/knowledge-engine/corpus/internal/storage"
)

// ErrNotLoaded is returned by operations that need a loaded corpus
var ErrNotLoaded = errors.New("corpus not loaded")

// Acquirer fetches fresh documents for a theme
type Acquirer interface {
	FetchBalanced(ctx context.Context, theme string, count int, cursor fetcher.Cursor) ([]*document.Document, error)
}

// Load origins reported to metrics
const (
	OriginSnapshot = "snapshot"
	OriginFetch    = "fetch"
	OriginTopUp    = "topup"
)

// SortOrder selects the ordering of Documents
type SortOrder int

const (
	SortNone SortOrder = iota
	SortTitle
	SortDate
)

// Corpus is a named set of documents with its author registry and index.
// Load and Save must not run concurrently with anything else; once
// loaded, read methods are safe for concurrent use.
type Corpus struct {
	name     string
	acquirer Acquirer
	store    storage.SnapshotStore
	logger   *logrus.Entry
	metrics  *metrics.Recorder

	docs      []*document.Document
	authors   *document.Registry
	index     *search.Index
	loaded    bool
	persisted bool
}

type Option func(*Corpus)

// WithMetrics reports loads to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Corpus) { c.metrics = rec }
}

// New creates an empty corpus. The name doubles as the fetch keyword.
func New(name string, acquirer Acquirer, store storage.SnapshotStore, logger *logrus.Entry, opts ...Option) *Corpus {
	if logger == nil {
		logger = logrus.WithField("component", "corpus")
	}
	c := &Corpus{
		name:     name,
		acquirer: acquirer,
		store:    store,
		logger:   logger.WithField("corpus", name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fills the corpus with count documents. An existing snapshot is
// restored first and topped up from the sources when it is too small.
// On error the corpus keeps its previous state.
func (c *Corpus) Load(ctx context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("invalid document count %d", count)
	}

	start := time.Now()
	docs, origin, err := c.acquire(ctx, count)
	c.metrics.ObserveLoad(origin, time.Since(start), err)
	if err != nil {
		return err
	}

	if len(docs) < count {
		c.logger.WithFields(logrus.Fields{
			"requested": count,
			"available": len(docs),
		}).Warn("Corpus is smaller than requested")
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text()
	}

	c.docs = docs
	c.authors = document.BuildRegistry(docs)
	c.index = search.Build(texts)
	c.loaded = true
	c.persisted = origin == OriginSnapshot

	c.logger.WithFields(logrus.Fields{
		"origin":     origin,
		"documents":  len(docs),
		"authors":    c.authors.Len(),
		"vocabulary": c.index.Size(),
		"duration":   time.Since(start),
	}).Info("Corpus loaded")
	return nil
}

func (c *Corpus) acquire(ctx context.Context, count int) ([]*document.Document, string, error) {
	if c.store == nil || !c.store.Exists(c.name) {
		fetched, err := c.fetch(ctx, count, fetcher.Cursor{})
		if err != nil {
			return nil, OriginFetch, err
		}
		return dedupe(nil, fetched), OriginFetch, nil
	}

	restored, err := c.store.Load(c.name)
	if err != nil {
		return nil, OriginSnapshot, fmt.Errorf("failed to restore corpus %s: %w", c.name, err)
	}
	if len(restored) >= count {
		return restored[:count], OriginSnapshot, nil
	}

	missing := count - len(restored)
	c.logger.WithFields(logrus.Fields{
		"restored": len(restored),
		"missing":  missing,
	}).Info("Topping up snapshot from sources")

	fetched, err := c.fetch(ctx, missing, continuation(restored))
	if err != nil {
		return nil, OriginTopUp, err
	}
	return dedupe(restored, fetched), OriginTopUp, nil
}

func (c *Corpus) fetch(ctx context.Context, count int, cursor fetcher.Cursor) ([]*document.Document, error) {
	if c.acquirer == nil {
		return nil, fmt.Errorf("corpus %s has no document source", c.name)
	}
	docs, err := c.acquirer.FetchBalanced(ctx, c.name, count, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents for %s: %w", c.name, err)
	}
	return docs, nil
}

// continuation resumes after the last forum post and the highest feed
// position already held
func continuation(docs []*document.Document) fetcher.Cursor {
	var cursor fetcher.Cursor
	for _, doc := range docs {
		switch doc.Kind() {
		case document.KindForum:
			if doc.SourceHandle() != "" {
				cursor.ForumAfter = doc.SourceHandle()
			}
		case document.KindFeed:
			cursor.FeedStart = max(cursor.FeedStart, doc.APIIndex()+1)
		}
	}
	return cursor
}

// dedupe appends the documents of fresh whose source key is not yet present
func dedupe(held, fresh []*document.Document) []*document.Document {
	seen := make(map[string]bool, len(held)+len(fresh))
	out := make([]*document.Document, 0, len(held)+len(fresh))
	for _, doc := range held {
		seen[doc.SourceKey()] = true
		out = append(out, doc)
	}
	for _, doc := range fresh {
		key := doc.SourceKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, doc)
	}
	return out
}

// Save writes the current documents to the snapshot store
func (c *Corpus) Save() error {
	if !c.loaded {
		return ErrNotLoaded
	}
	if c.store == nil {
		return fmt.Errorf("corpus %s has no snapshot store", c.name)
	}
	if err := c.store.Save(c.name, c.docs); err != nil {
		return fmt.Errorf("failed to save corpus %s: %w", c.name, err)
	}
	c.persisted = true
	c.logger.WithField("documents", len(c.docs)).Info("Corpus saved")
	return nil
}

func (c *Corpus) Name() string    { return c.name }
func (c *Corpus) Loaded() bool    { return c.loaded }
func (c *Corpus) Persisted() bool { return c.persisted }

func (c *Corpus) DocumentCount() int { return len(c.docs) }
func (c *Corpus) AuthorCount() int   { return c.authors.Len() }

// IsSame reports whether the corpus is loaded for name with exactly count documents
func (c *Corpus) IsSame(name string, count int) bool {
	return c.loaded && c.name == name && len(c.docs) == count
}

// Document returns the document with the given id
func (c *Corpus) Document(id int) (*document.Document, bool) {
	if id < 0 || id >= len(c.docs) {
		return nil, false
	}
	return c.docs[id], true
}

// Documents returns the documents in the requested order. Sorting is
// stable so equal keys keep id order.
func (c *Corpus) Documents(order SortOrder) []*document.Document {
	out := make([]*document.Document, len(c.docs))
	copy(out, c.docs)
	switch order {
	case SortTitle:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Title() < out[j].Title() })
	case SortDate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date().Before(out[j].Date()) })
	}
	return out
}

// Authors returns authors in first-seen order
func (c *Corpus) Authors() []*document.Author {
	return c.authors.All()
}

func (c *Corpus) Author(name string) (*document.Author, bool) {
	return c.authors.Get(name)
}

// Index exposes the vocabulary and matrices, nil before Load
func (c *Corpus) Index() *search.Index {
	return c.index
}

// Texts returns document texts in id order
func (c *Corpus) Texts() []string {
	texts := make([]string, len(c.docs))
	for i, doc := range c.docs {
		texts[i] = doc.Text()
	}
	return texts
}
