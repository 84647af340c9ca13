package search

import "sort"

// TermCount pairs a word with its corpus frequency
type TermCount struct {
	Word      string
	Frequency int
}

// TermWeight pairs a word with an averaged weight
type TermWeight struct {
	Word   string
	Weight float64
}

// TopTerms returns the vocabulary size and the n most frequent words,
// ties in first-seen order. n <= 0 returns the whole vocabulary.
func (ix *Index) TopTerms(n int) (int, []TermCount) {
	terms := ix.Vocabulary()
	sort.SliceStable(terms, func(i, j int) bool {
		return terms[i].Frequency > terms[j].Frequency
	})
	terms = truncate(terms, n)

	out := make([]TermCount, len(terms))
	for i, t := range terms {
		out[i] = TermCount{Word: t.Word, Frequency: t.Frequency}
	}
	return ix.Size(), out
}

// MeanTF returns the n words with the highest average raw count per document
func (ix *Index) MeanTF(n int) []TermWeight {
	return ix.topWeights(ix.tf.ColumnMeans(), n)
}

// MeanTFIDF returns the n words with the highest average TF-IDF weight
func (ix *Index) MeanTFIDF(n int) []TermWeight {
	return ix.topWeights(ix.tfidf.ColumnMeans(), n)
}

func (ix *Index) topWeights(means []float64, n int) []TermWeight {
	out := make([]TermWeight, len(means))
	for id, m := range means {
		out[id] = TermWeight{Word: ix.terms[id].Word, Weight: m}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})
	return truncate(out, n)
}

func truncate[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
