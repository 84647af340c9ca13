package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/corpus"
	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/search"
	"github.com/knowledge-engine/corpus/internal/storage"
)

// ErrUnknownCorpus is returned for a corpus name the engine does not serve
var ErrUnknownCorpus = errors.New("unknown corpus")

// Engine serves a fixed library of named corpora. Each corpus is loaded
// once, on Preload or on first use, and then read concurrently.
type Engine struct {
	Logger  *logrus.Entry
	Metrics *metrics.Recorder

	names              []string
	corpora            map[string]*entry
	preloadConcurrency int
}

type entry struct {
	mu     sync.RWMutex
	corpus *corpus.Corpus
	size   int
}

// CorpusInfo summarizes one served corpus
type CorpusInfo struct {
	Name       string `json:"name"`
	TargetSize int    `json:"target_size"`
	Loaded     bool   `json:"loaded"`
	Persisted  bool   `json:"persisted"`
	Documents  int    `json:"documents"`
	Authors    int    `json:"authors"`
}

// Query is a filtered keyword search
type Query struct {
	Keywords string
	Author   string    // exact primary author, empty for any
	From     time.Time // inclusive, zero for unbounded
	To       time.Time // inclusive, zero for unbounded
	Limit    int       // <= 0 for no limit
}

// SearchResult holds the ranked documents that passed the filters.
// Matched is false when no keyword is in the vocabulary.
type SearchResult struct {
	Matched bool
	Results []corpus.Result
}

// Stats describes the vocabulary of a corpus
type Stats struct {
	Name       string
	Documents  int
	Authors    int
	Vocabulary int
	TopTerms   []search.TermCount
}

// AuthorInfo is an author with the number of documents referencing them
type AuthorInfo struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

// TermProfile holds the highest mean TF and TF-IDF terms of a corpus
type TermProfile struct {
	Name      string
	MeanTF    []search.TermWeight
	MeanTFIDF []search.TermWeight
}

// NewEngine builds one corpus per configured theme, all sharing the
// acquirer and snapshot store.
func NewEngine(cfg *config.Config, logger *logrus.Entry, acquirer corpus.Acquirer, store storage.SnapshotStore, rec *metrics.Recorder) (*Engine, error) {
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}
	if len(cfg.Corpora.Themes) == 0 {
		return nil, fmt.Errorf("no corpora configured")
	}

	e := &Engine{
		Logger:             logger,
		Metrics:            rec,
		corpora:            make(map[string]*entry, len(cfg.Corpora.Themes)),
		preloadConcurrency: max(cfg.Corpora.PreloadConcurrency, 1),
	}
	for _, spec := range cfg.Corpora.Themes {
		if _, dup := e.corpora[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate corpus %q", spec.Name)
		}
		size := spec.Size
		if size <= 0 {
			size = cfg.Corpora.DefaultSize
		}
		e.names = append(e.names, spec.Name)
		e.corpora[spec.Name] = &entry{
			corpus: corpus.New(spec.Name, acquirer, store, logger, corpus.WithMetrics(rec)),
			size:   size,
		}
	}
	return e, nil
}

// Names lists the served corpora in configuration order
func (e *Engine) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Corpora reports the state of every served corpus without loading any
func (e *Engine) Corpora() []CorpusInfo {
	infos := make([]CorpusInfo, 0, len(e.names))
	for _, name := range e.names {
		ent := e.corpora[name]
		ent.mu.RLock()
		c := ent.corpus
		infos = append(infos, CorpusInfo{
			Name:       name,
			TargetSize: ent.size,
			Loaded:     c.Loaded(),
			Persisted:  c.Persisted(),
			Documents:  c.DocumentCount(),
			Authors:    c.AuthorCount(),
		})
		ent.mu.RUnlock()
	}
	return infos
}

// Preload loads every corpus through a bounded worker pool. Failures are
// logged and joined into the returned error; the other corpora still load.
func (e *Engine) Preload(ctx context.Context) error {
	pool, err := ants.NewPool(e.preloadConcurrency)
	if err != nil {
		return fmt.Errorf("failed to create preload pool: %w", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, name := range e.names {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if _, err := e.ensure(ctx, name); err != nil {
				e.Logger.WithError(err).WithField("corpus", name).Error("Failed to preload corpus")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("failed to schedule %s: %w", name, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	e.Logger.WithFields(logrus.Fields{
		"corpora": len(e.names),
		"failed":  len(errs),
	}).Info("Preload finished")
	return errors.Join(errs...)
}

// Load (re)loads a corpus with count documents and saves it when the
// result is not yet on disk.
func (e *Engine) Load(ctx context.Context, name string, count int) (CorpusInfo, error) {
	ent, ok := e.corpora[name]
	if !ok {
		return CorpusInfo{}, fmt.Errorf("%w: %s", ErrUnknownCorpus, name)
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if err := e.load(ctx, ent, count); err != nil {
		return CorpusInfo{}, err
	}
	ent.size = count
	c := ent.corpus
	return CorpusInfo{
		Name:       name,
		TargetSize: ent.size,
		Loaded:     true,
		Persisted:  c.Persisted(),
		Documents:  c.DocumentCount(),
		Authors:    c.AuthorCount(),
	}, nil
}

// ensure returns the entry for name, loading the corpus on first use
func (e *Engine) ensure(ctx context.Context, name string) (*entry, error) {
	ent, ok := e.corpora[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCorpus, name)
	}

	ent.mu.RLock()
	loaded := ent.corpus.Loaded()
	ent.mu.RUnlock()
	if loaded {
		return ent, nil
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.corpus.Loaded() {
		return ent, nil
	}
	if err := e.load(ctx, ent, ent.size); err != nil {
		return nil, err
	}
	return ent, nil
}

// load must be called with ent.mu held for writing
func (e *Engine) load(ctx context.Context, ent *entry, count int) error {
	c := ent.corpus
	if err := c.Load(ctx, count); err != nil {
		return err
	}
	e.Metrics.SetCorpusSize(c.Name(), c.DocumentCount())

	if !c.Persisted() {
		if err := c.Save(); err != nil {
			e.Logger.WithError(err).WithField("corpus", c.Name()).Warn("Failed to save corpus snapshot")
		}
	}
	return nil
}

// read runs fn on a loaded corpus under its read lock
func (e *Engine) read(ctx context.Context, name string, fn func(c *corpus.Corpus) error) error {
	ent, err := e.ensure(ctx, name)
	if err != nil {
		return err
	}
	ent.mu.RLock()
	defer ent.mu.RUnlock()
	return fn(ent.corpus)
}

// Search ranks the corpus against q.Keywords, then keeps the documents
// matching the author and date filters, up to q.Limit.
func (e *Engine) Search(ctx context.Context, name string, q Query) (SearchResult, error) {
	e.Metrics.IncQuery("search")

	var res SearchResult
	err := e.read(ctx, name, func(c *corpus.Corpus) error {
		ranked, matched, err := c.Search(q.Keywords, 0)
		if err != nil {
			return err
		}
		res.Matched = matched
		res.Results = make([]corpus.Result, 0)
		for _, r := range ranked {
			if !q.accepts(r.Document) {
				continue
			}
			res.Results = append(res.Results, r)
			if q.Limit > 0 && len(res.Results) == q.Limit {
				break
			}
		}
		return nil
	})
	return res, err
}

func (q Query) accepts(doc *document.Document) bool {
	if q.Author != "" && doc.Author() != q.Author {
		return false
	}
	if !q.From.IsZero() && doc.Date().Before(q.From) {
		return false
	}
	if !q.To.IsZero() && doc.Date().After(q.To) {
		return false
	}
	return true
}

// Context returns the keyword-in-context rows of a corpus
func (e *Engine) Context(ctx context.Context, name, keyword string, size int) ([]search.ContextRow, error) {
	e.Metrics.IncQuery("context")

	var rows []search.ContextRow
	err := e.read(ctx, name, func(c *corpus.Corpus) error {
		var err error
		rows, err = c.FindContext(keyword, size)
		return err
	})
	return rows, err
}

// Concordance returns the flattened keyword-in-context lines of a corpus
func (e *Engine) Concordance(ctx context.Context, name, keyword string) ([]string, error) {
	e.Metrics.IncQuery("concordance")

	var lines []string
	err := e.read(ctx, name, func(c *corpus.Corpus) error {
		var err error
		lines, err = c.Concordance(keyword)
		return err
	})
	return lines, err
}

func (e *Engine) Stats(ctx context.Context, name string, n int) (Stats, error) {
	e.Metrics.IncQuery("stats")

	var stats Stats
	err := e.read(ctx, name, func(c *corpus.Corpus) error {
		vocabulary, terms, err := c.TopTerms(n)
		if err != nil {
			return err
		}
		stats = Stats{
			Name:       name,
			Documents:  c.DocumentCount(),
			Authors:    c.AuthorCount(),
			Vocabulary: vocabulary,
			TopTerms:   terms,
		}
		return nil
	})
	return stats, err
}

// Authors lists the authors of a corpus in first-seen order
func (e *Engine) Authors(ctx context.Context, name string) ([]AuthorInfo, error) {
	e.Metrics.IncQuery("authors")

	var out []AuthorInfo
	err := e.read(ctx, name, func(c *corpus.Corpus) error {
		authors := c.Authors()
		out = make([]AuthorInfo, len(authors))
		for i, a := range authors {
			out[i] = AuthorInfo{Name: a.Name, Documents: a.DocumentCount()}
		}
		return nil
	})
	return out, err
}

// Compare returns the top n mean TF and TF-IDF terms of two corpora
func (e *Engine) Compare(ctx context.Context, a, b string, n int) ([2]TermProfile, error) {
	e.Metrics.IncQuery("compare")

	var out [2]TermProfile
	for i, name := range []string{a, b} {
		err := e.read(ctx, name, func(c *corpus.Corpus) error {
			tf, err := c.MeanTF(n)
			if err != nil {
				return err
			}
			tfidf, err := c.MeanTFIDF(n)
			if err != nil {
				return err
			}
			out[i] = TermProfile{Name: name, MeanTF: tf, MeanTFIDF: tfidf}
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
