// Package matrix projects a sparse note list onto dense row x column grids.
//
// Rows are distinct note start times in ascending order. Each NoteMatrix cell
// is either Empty, HoldBody (covered by a hold's sustain), or the index of a
// note in the list the grid was built from. BoolMatrix and RealMatrix carry
// derived per-cell values with the same dimensions as a NoteMatrix.
package matrix

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/starford/keyshift/internal/chart"
)

// Structural errors.
var (
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")
	ErrColumnRange       = errors.New("matrix: column out of range")
	ErrNoColumns         = errors.New("matrix: column count must be at least 1")
)

// Cell is the content of one grid slot.
type Cell int32

const (
	Empty    Cell = -1
	HoldBody Cell = -7
)

// Occupied returns the cell referencing note index i.
func Occupied(i int) Cell {
	if i < 0 {
		panic(fmt.Sprintf("matrix: negative note index %d", i))
	}
	return Cell(i)
}

// IsEmpty reports whether the cell holds nothing.
func (c Cell) IsEmpty() bool { return c == Empty }

// IsHoldBody reports whether the cell is covered by a sustain.
func (c Cell) IsHoldBody() bool { return c == HoldBody }

// Index returns the referenced note index.
func (c Cell) Index() (int, bool) {
	if c < 0 {
		return 0, false
	}
	return int(c), true
}

func (c Cell) String() string {
	switch {
	case c == Empty:
		return "."
	case c == HoldBody:
		return "|"
	default:
		return fmt.Sprintf("%d", int(c))
	}
}

// TimeAxis gives the absolute time of every row.
type TimeAxis []float64

// RowOf returns the row whose time equals t.
func (a TimeAxis) RowOf(t float64) (int, bool) {
	i := sort.SearchFloat64s(a, t)
	if i < len(a) && a[i] == t {
		return i, true
	}
	return 0, false
}

// NoteMatrix is a dense rows x cols grid of cells.
type NoteMatrix struct {
	rows, cols int
	cells      []Cell
}

// New returns an all-Empty grid.
func New(rows, cols int) *NoteMatrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
	cells := make([]Cell, rows*cols)
	for i := range cells {
		cells[i] = Empty
	}
	return &NoteMatrix{rows: rows, cols: cols, cells: cells}
}

// Rows returns the number of rows.
func (m *NoteMatrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *NoteMatrix) Cols() int { return m.cols }

func (m *NoteMatrix) offset(r, c int) int {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(fmt.Sprintf("matrix: index [%d,%d] out of range %dx%d", r, c, m.rows, m.cols))
	}
	return r*m.cols + c
}

// At returns the cell at row r, column c.
func (m *NoteMatrix) At(r, c int) Cell { return m.cells[m.offset(r, c)] }

// Set stores v at row r, column c.
func (m *NoteMatrix) Set(r, c int, v Cell) { m.cells[m.offset(r, c)] = v }

// Row returns a copy of row r.
func (m *NoteMatrix) Row(r int) []Cell {
	m.offset(r, 0)
	return slices.Clone(m.cells[r*m.cols : (r+1)*m.cols])
}

// Occupancy counts cells in row r that reference a note.
func (m *NoteMatrix) Occupancy(r int) int {
	n := 0
	for c := 0; c < m.cols; c++ {
		if _, ok := m.At(r, c).Index(); ok {
			n++
		}
	}
	return n
}

// Count returns the number of cells that reference a note.
func (m *NoteMatrix) Count() int {
	n := 0
	for _, v := range m.cells {
		if v >= 0 {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m *NoteMatrix) Clone() *NoteMatrix {
	return &NoteMatrix{rows: m.rows, cols: m.cols, cells: slices.Clone(m.cells)}
}

// Mirror reverses the column order of every row in place.
func (m *NoteMatrix) Mirror() {
	for r := 0; r < m.rows; r++ {
		row := m.cells[r*m.cols : (r+1)*m.cols]
		for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}

// Clear empties every cell.
func (m *NoteMatrix) Clear() {
	for i := range m.cells {
		m.cells[i] = Empty
	}
}

// SameShape reports whether m and o have identical dimensions.
func (m *NoteMatrix) SameShape(o *NoteMatrix) bool {
	return m.rows == o.rows && m.cols == o.cols
}

// Build projects notes onto a grid of cols columns. Rows are the distinct
// start times in ascending order. When two notes share a (time, column)
// slot the later one in the list wins. With expandHoldBody, empty cells on
// rows strictly inside a hold are marked HoldBody.
func Build(notes []chart.Note, cols int, expandHoldBody bool) (*NoteMatrix, TimeAxis, error) {
	if cols < 1 {
		return nil, nil, ErrNoColumns
	}
	axis := make(TimeAxis, 0, len(notes))
	for _, n := range notes {
		axis = append(axis, n.Start)
	}
	sort.Float64s(axis)
	axis = slices.Compact(axis)

	m := New(len(axis), cols)
	for i, n := range notes {
		if n.Column < 0 || n.Column >= cols {
			return nil, nil, fmt.Errorf("%w: note %d column %d, %d columns", ErrColumnRange, i, n.Column, cols)
		}
		r, _ := axis.RowOf(n.Start)
		m.Set(r, n.Column, Occupied(i))
	}

	if expandHoldBody {
		for _, n := range notes {
			if !n.IsHold() {
				continue
			}
			r, _ := axis.RowOf(n.Start)
			for r++; r < len(axis) && axis[r] < n.End; r++ {
				if m.At(r, n.Column).IsEmpty() {
					m.Set(r, n.Column, HoldBody)
				}
			}
		}
	}
	return m, axis, nil
}

// Concat joins left and right side by side, left columns first.
func Concat(left, right *NoteMatrix) (*NoteMatrix, error) {
	if left.rows != right.rows {
		return nil, fmt.Errorf("%w: concat %d rows with %d rows", ErrDimensionMismatch, left.rows, right.rows)
	}
	out := New(left.rows, left.cols+right.cols)
	for r := 0; r < left.rows; r++ {
		copy(out.cells[r*out.cols:], left.cells[r*left.cols:(r+1)*left.cols])
		copy(out.cells[r*out.cols+left.cols:], right.cells[r*right.cols:(r+1)*right.cols])
	}
	return out, nil
}

// Flatten rebuilds a note list from the grid. Each occupied cell yields a
// copy of notes[idx] placed in the cell's column; output is ordered by
// (start time, column).
func (m *NoteMatrix) Flatten(notes []chart.Note) []chart.Note {
	out := make([]chart.Note, 0, m.Count())
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			idx, ok := m.At(r, c).Index()
			if !ok {
				continue
			}
			n := notes[idx].Clone()
			n.Column = c
			out = append(out, n)
		}
	}
	return out
}
