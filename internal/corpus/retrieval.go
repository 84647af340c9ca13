package corpus

import (
	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/search"
)

// Result is a ranked document
type Result struct {
	ID       int
	Score    float64
	Document *document.Document
}

// Search ranks documents against keywords. matched is false when no
// keyword is in the vocabulary.
func (c *Corpus) Search(keywords string, maxResults int) (results []Result, matched bool, err error) {
	if !c.loaded {
		return nil, false, ErrNotLoaded
	}
	hits, matched := c.index.RankByKeywords(keywords, maxResults)
	results = make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{ID: hit.DocID, Score: hit.Score, Document: c.docs[hit.DocID]}
	}
	return results, matched, nil
}

// FindContext returns every occurrence of keyword with size words on each side
func (c *Corpus) FindContext(keyword string, size int) ([]search.ContextRow, error) {
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	return search.FindContext(c.Texts(), keyword, size)
}

// Concordance returns the "left match right" lines of keyword with the
// default window
func (c *Corpus) Concordance(keyword string) ([]string, error) {
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	return search.Concordance(c.Texts(), keyword)
}

// TopTerms returns the vocabulary size and the n most frequent words
func (c *Corpus) TopTerms(n int) (int, []search.TermCount, error) {
	if !c.loaded {
		return 0, nil, ErrNotLoaded
	}
	size, terms := c.index.TopTerms(n)
	return size, terms, nil
}

func (c *Corpus) MeanTF(n int) ([]search.TermWeight, error) {
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	return c.index.MeanTF(n), nil
}

func (c *Corpus) MeanTFIDF(n int) ([]search.TermWeight, error) {
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	return c.index.MeanTFIDF(n), nil
}
