package search

import (
	"math"
	"slices"
	"sort"

	"github.com/knowledge-engine/corpus/internal/textproc"
)

// Hit holds a document id and its similarity to the query
type Hit struct {
	DocID int
	Score float64
}

// RankByKeywords scores every document against a binary query vector built
// from keywords. Words outside the vocabulary are dropped; when none is
// left matched is false and no hits are returned.
// Hits are ordered by descending score, ties keep document order.
// maxResults <= 0 returns every document.
func (ix *Index) RankByKeywords(keywords string, maxResults int) (hits []Hit, matched bool) {
	query := ix.queryVector(keywords)
	if len(query) == 0 {
		return nil, false
	}

	queryNorm := math.Sqrt(float64(len(query)))
	hits = make([]Hit, ix.Documents())
	for d := range hits {
		hits[d] = Hit{DocID: d, Score: ix.cosine(d, query, queryNorm)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, true
}

// queryVector returns the sorted vocabulary ids present in keywords
func (ix *Index) queryVector(keywords string) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, token := range textproc.Tokenize(textproc.CleanForIndexing(keywords)) {
		id, ok := ix.ids[token]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// cosine computes the similarity between row d of the TF-IDF matrix and a
// binary query given by its sorted ids. A zero-norm row scores 0.
func (ix *Index) cosine(d int, query []int, queryNorm float64) float64 {
	rowNorm := ix.norms[d]
	if rowNorm == 0 || queryNorm == 0 {
		return 0
	}

	cols, vals := ix.tfidf.Row(d)
	var dot float64
	i, k := 0, 0
	for i < len(query) && k < len(cols) {
		switch {
		case query[i] == cols[k]:
			dot += vals[k]
			i++
			k++
		case query[i] < cols[k]:
			i++
		default:
			k++
		}
	}
	return dot / (queryNorm * rowNorm)
}
