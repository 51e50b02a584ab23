package matrix

import (
	"fmt"
)

// BoolMatrix carries a per-cell flag.
type BoolMatrix struct {
	rows, cols int
	vals       []bool
}

// NewBoolLike returns an all-false matrix shaped like ref.
func NewBoolLike(ref *NoteMatrix) *BoolMatrix {
	return &BoolMatrix{rows: ref.rows, cols: ref.cols, vals: make([]bool, ref.rows*ref.cols)}
}

// Rows returns the number of rows.
func (b *BoolMatrix) Rows() int { return b.rows }

// Cols returns the number of columns.
func (b *BoolMatrix) Cols() int { return b.cols }

func (b *BoolMatrix) offset(r, c int) int {
	if r < 0 || r >= b.rows || c < 0 || c >= b.cols {
		panic(fmt.Sprintf("matrix: index [%d,%d] out of range %dx%d", r, c, b.rows, b.cols))
	}
	return r*b.cols + c
}

// At returns the flag at row r, column c.
func (b *BoolMatrix) At(r, c int) bool { return b.vals[b.offset(r, c)] }

// Set stores v at row r, column c.
func (b *BoolMatrix) Set(r, c int, v bool) { b.vals[b.offset(r, c)] = v }

// Count returns the number of true cells.
func (b *BoolMatrix) Count() int {
	n := 0
	for _, v := range b.vals {
		if v {
			n++
		}
	}
	return n
}

// RowTrue returns the columns of row r that are true, in column order.
func (b *BoolMatrix) RowTrue(r int) []int {
	var out []int
	for c := 0; c < b.cols; c++ {
		if b.At(r, c) {
			out = append(out, c)
		}
	}
	return out
}

// RealMatrix carries a per-cell scalar.
type RealMatrix struct {
	rows, cols int
	vals       []float64
}

// NewReal returns an all-zero rows x cols matrix.
func NewReal(rows, cols int) *RealMatrix {
	return &RealMatrix{rows: rows, cols: cols, vals: make([]float64, rows*cols)}
}

// NewRealLike returns an all-zero matrix shaped like ref.
func NewRealLike(ref *NoteMatrix) *RealMatrix {
	return NewReal(ref.rows, ref.cols)
}

// Rows returns the number of rows.
func (x *RealMatrix) Rows() int { return x.rows }

// Cols returns the number of columns.
func (x *RealMatrix) Cols() int { return x.cols }

func (x *RealMatrix) offset(r, c int) int {
	if r < 0 || r >= x.rows || c < 0 || c >= x.cols {
		panic(fmt.Sprintf("matrix: index [%d,%d] out of range %dx%d", r, c, x.rows, x.cols))
	}
	return r*x.cols + c
}

// At returns the value at row r, column c.
func (x *RealMatrix) At(r, c int) float64 { return x.vals[x.offset(r, c)] }

// Set stores v at row r, column c.
func (x *RealMatrix) Set(r, c int, v float64) { x.vals[x.offset(r, c)] = v }

// MergeMax combines a and b cell-wise, keeping the larger value.
func MergeMax(a, b *RealMatrix) (*RealMatrix, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("%w: merge %dx%d with %dx%d", ErrDimensionMismatch, a.rows, a.cols, b.rows, b.cols)
	}
	out := &RealMatrix{rows: a.rows, cols: a.cols, vals: make([]float64, len(a.vals))}
	for i := range a.vals {
		out.vals[i] = max(a.vals[i], b.vals[i])
	}
	return out, nil
}
