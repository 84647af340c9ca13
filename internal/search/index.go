package search

import (
	"math"
	"slices"

	"github.com/knowledge-engine/corpus/internal/textproc"
)

// Term is one vocabulary entry
type Term struct {
	Word              string
	ID                int
	Frequency         int // occurrences across the corpus
	DocumentFrequency int // documents containing the word
}

// Index is the vocabulary with the term-frequency and TF-IDF matrices of
// a document set. Rows follow document order, columns follow the order in
// which words were first seen. An Index is read-only once built.
type Index struct {
	terms   []Term
	ids     map[string]int
	lengths []int
	tf      *CSR[int]
	tfidf   *CSR[float64]
	norms   []float64
}

// Build indexes texts, one per document
func Build(texts []string) *Index {
	ix := &Index{
		ids:     make(map[string]int),
		lengths: make([]int, len(texts)),
	}

	var words []string
	tfBuilder := NewCSRBuilder[int](len(texts))

	for d, text := range texts {
		counts := make(map[int]int)
		length := 0
		for _, token := range textproc.Tokenize(textproc.CleanForIndexing(text)) {
			if token == "" {
				continue
			}
			id, ok := ix.ids[token]
			if !ok {
				id = len(words)
				ix.ids[token] = id
				words = append(words, token)
			}
			counts[id]++
			length++
		}
		ix.lengths[d] = length

		cols := make([]int, 0, len(counts))
		for id := range counts {
			cols = append(cols, id)
		}
		slices.Sort(cols)
		vals := make([]int, len(cols))
		for k, id := range cols {
			vals[k] = counts[id]
		}
		tfBuilder.AppendRow(cols, vals)
	}

	ix.tf = tfBuilder.Build(len(words))

	frequency := ix.tf.ColumnSums()
	docFrequency := ix.tf.ColumnNonZero()
	ix.terms = make([]Term, len(words))
	for id, word := range words {
		ix.terms[id] = Term{
			Word:              word,
			ID:                id,
			Frequency:         frequency[id],
			DocumentFrequency: docFrequency[id],
		}
	}

	ix.tfidf = ix.buildTFIDF(docFrequency)
	ix.norms = make([]float64, ix.tfidf.Rows())
	for d := range ix.norms {
		ix.norms[d] = ix.tfidf.RowNorm(d)
	}
	return ix
}

// buildTFIDF weighs tf(d,t)/len(d) by ln(N/df(t)). Zero-length documents
// get an empty row and zero weights are not stored.
func (ix *Index) buildTFIDF(docFrequency []int) *CSR[float64] {
	n := float64(ix.tf.Rows())
	idf := make([]float64, len(docFrequency))
	for id, df := range docFrequency {
		if df > 0 {
			idf[id] = math.Log(n / float64(df))
		}
	}

	b := NewCSRBuilder[float64](ix.tf.Rows())
	for d := 0; d < ix.tf.Rows(); d++ {
		length := ix.lengths[d]
		if length == 0 {
			b.AppendRow(nil, nil)
			continue
		}
		cols, counts := ix.tf.Row(d)
		rowCols := make([]int, 0, len(cols))
		rowVals := make([]float64, 0, len(cols))
		for k, id := range cols {
			w := float64(counts[k]) / float64(length) * idf[id]
			if w == 0 {
				continue
			}
			rowCols = append(rowCols, id)
			rowVals = append(rowVals, w)
		}
		b.AppendRow(rowCols, rowVals)
	}
	return b.Build(ix.tf.Cols())
}

// Documents is the number of indexed documents
func (ix *Index) Documents() int { return len(ix.lengths) }

// Size is the vocabulary size
func (ix *Index) Size() int { return len(ix.terms) }

// Length is the token count of document d
func (ix *Index) Length(d int) int { return ix.lengths[d] }

// Vocabulary returns every term in id order
func (ix *Index) Vocabulary() []Term {
	out := make([]Term, len(ix.terms))
	copy(out, ix.terms)
	return out
}

// Lookup finds the vocabulary entry of a word
func (ix *Index) Lookup(word string) (Term, bool) {
	id, ok := ix.ids[word]
	if !ok {
		return Term{}, false
	}
	return ix.terms[id], true
}

// TF is the raw occurrence count matrix
func (ix *Index) TF() *CSR[int] { return ix.tf }

// TFIDF is the weighted matrix used for ranking
func (ix *Index) TFIDF() *CSR[float64] { return ix.tfidf }
