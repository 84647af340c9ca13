package search

import (
	"fmt"
	"math"
	"sort"
)

// Number is the element type of a sparse matrix
type Number interface {
	~int | ~float64
}

// CSR is a compressed sparse row matrix.
// Row i holds the column indices indices[indptr[i]:indptr[i+1]] in
// increasing order and the matching values.
type CSR[T Number] struct {
	rows    int
	cols    int
	indptr  []int
	indices []int
	values  []T
}

// CSRBuilder assembles a CSR matrix one row at a time
type CSRBuilder[T Number] struct {
	indptr  []int
	indices []int
	values  []T
}

func NewCSRBuilder[T Number](rowsHint int) *CSRBuilder[T] {
	indptr := make([]int, 1, rowsHint+1)
	return &CSRBuilder[T]{indptr: indptr}
}

// AppendRow adds the next row. cols must be strictly increasing and
// the same length as vals.
func (b *CSRBuilder[T]) AppendRow(cols []int, vals []T) {
	if len(cols) != len(vals) {
		panic(fmt.Sprintf("search: row has %d columns but %d values", len(cols), len(vals)))
	}
	b.indices = append(b.indices, cols...)
	b.values = append(b.values, vals...)
	b.indptr = append(b.indptr, len(b.indices))
}

// Build freezes the builder into a matrix with ncols columns
func (b *CSRBuilder[T]) Build(ncols int) *CSR[T] {
	return &CSR[T]{
		rows:    len(b.indptr) - 1,
		cols:    ncols,
		indptr:  b.indptr,
		indices: b.indices,
		values:  b.values,
	}
}

func (m *CSR[T]) Rows() int { return m.rows }
func (m *CSR[T]) Cols() int { return m.cols }

// NNZ is the number of stored entries
func (m *CSR[T]) NNZ() int { return len(m.values) }

// Row returns the stored columns and values of row i.
// The slices alias the matrix and must not be modified.
func (m *CSR[T]) Row(i int) ([]int, []T) {
	start, end := m.indptr[i], m.indptr[i+1]
	return m.indices[start:end], m.values[start:end]
}

// At returns the entry at (i, j), zero when it is not stored
func (m *CSR[T]) At(i, j int) T {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	var zero T
	return zero
}

// ColumnSums adds up every column
func (m *CSR[T]) ColumnSums() []T {
	sums := make([]T, m.cols)
	for k, j := range m.indices {
		sums[j] += m.values[k]
	}
	return sums
}

// ColumnNonZero counts the non-zero entries of every column
func (m *CSR[T]) ColumnNonZero() []int {
	counts := make([]int, m.cols)
	for k, j := range m.indices {
		if m.values[k] != 0 {
			counts[j]++
		}
	}
	return counts
}

// ColumnMeans averages every column over all rows
func (m *CSR[T]) ColumnMeans() []float64 {
	means := make([]float64, m.cols)
	if m.rows == 0 {
		return means
	}
	for j, s := range m.ColumnSums() {
		means[j] = float64(s) / float64(m.rows)
	}
	return means
}

// RowNorm is the euclidean norm of row i
func (m *CSR[T]) RowNorm(i int) float64 {
	_, vals := m.Row(i)
	var sum float64
	for _, v := range vals {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Dense expands the matrix. Only meant for small matrices.
func (m *CSR[T]) Dense() [][]T {
	out := make([][]T, m.rows)
	for i := range out {
		out[i] = make([]T, m.cols)
		cols, vals := m.Row(i)
		for k, j := range cols {
			out[i][j] = vals[k]
		}
	}
	return out
}
