// Package keycount remaps a chart onto a different number of columns.
//
// Conversion runs in four stages over the grid: time-window segmentation with
// random column assignment, first-wins conflict resolution, refilling of rows
// left empty, and per-row density adjustment. Every random choice is drawn
// from a single seeded generator in a fixed order, so a given chart, option
// set and seed always produce the same output.
package keycount

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/convutil"
	"github.com/starford/keyshift/internal/keymode"
	"github.com/starford/keyshift/internal/matrix"
)

// Options controls a key-count conversion.
type Options struct {
	TargetKeys     int    `json:"target_keys" yaml:"target_keys"`
	MaxKeys        int    `json:"max_keys" yaml:"max_keys"`
	MinKeys        int    `json:"min_keys" yaml:"min_keys"`
	BeatSpeedIndex int    `json:"beat_speed_index" yaml:"beat_speed_index"`
	Seed           *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultOptions returns options converting to target keys with no density
// pressure and a one-beat window.
func DefaultOptions(target int) Options {
	return Options{
		TargetKeys:     target,
		MaxKeys:        target,
		MinKeys:        1,
		BeatSpeedIndex: 4,
	}
}

// Validate checks option ranges.
func (o *Options) Validate() error {
	if err := validation.ValidateStruct(o,
		validation.Field(&o.TargetKeys, validation.Required, validation.Min(1), validation.Max(keymode.MaxKeys)),
		validation.Field(&o.MaxKeys, validation.Required, validation.Min(1), validation.Max(keymode.MaxKeys)),
		validation.Field(&o.MinKeys, validation.Min(0), validation.Max(keymode.MaxKeys)),
		validation.Field(&o.BeatSpeedIndex, validation.Min(0), validation.Max(convutil.MaxBeatSpeedIndex)),
	); err != nil {
		return err
	}
	if o.MinKeys > o.MaxKeys {
		return fmt.Errorf("keycount: min_keys %d exceeds max_keys %d", o.MinKeys, o.MaxKeys)
	}
	return nil
}

// Convert rewrites c in place to opts.TargetKeys columns. A chart already at
// the target width is left untouched.
func Convert(c *chart.Chart, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.TargetKeys == c.Keys {
		return nil
	}
	if len(c.Notes) == 0 {
		c.SetKeys(opts.TargetKeys)
		return nil
	}

	notes := slices.Clone(c.Notes)
	chart.SortNotes(notes)
	grid, axis, err := matrix.Build(notes, c.Keys, false)
	if err != nil {
		return fmt.Errorf("keycount: build grid: %w", err)
	}

	r := convutil.NewRand(convutil.ResolveSeed(opts.Seed, len(notes), c.Keys))
	window := convutil.ConvertTime(c.EffectiveBPM(), opts.BeatSpeedIndex)

	out, notes := Remap(grid, axis, notes, opts.TargetKeys, window, r)
	notes = Resample(out, axis, notes, opts.MinKeys, opts.MaxKeys, r)

	c.Notes = out.Flatten(notes)
	c.SetKeys(opts.TargetKeys)
	return nil
}

// Remap assigns every note of src to a random column of a target-wide grid.
// Rows are grouped into windows of the given length starting at the first
// row; inside a window each column takes only the first note that lands on
// it, and a column stays closed while a hold placed there is sustaining.
// Rows that lose all their notes get one note back in a random free column;
// when every column is sustaining, the hold in the chosen column is cut short.
//
// Cut holds are appended to notes; the returned grid indexes the returned
// slice.
func Remap(src *matrix.NoteMatrix, axis matrix.TimeAxis, notes []chart.Note, target int, window float64, r *rand.Rand) (*matrix.NoteMatrix, []chart.Note) {
	out := matrix.New(src.Rows(), target)
	if src.Rows() == 0 {
		return out, notes
	}
	l := newLanes(target)
	used := make([]bool, target)
	segment := int64(-1)

	for row := 0; row < src.Rows(); row++ {
		t := axis[row]
		if s := segmentOf(t, axis[0], window); s != segment {
			segment = s
			clear(used)
		}

		placed, first := 0, -1
		for c := 0; c < src.Cols(); c++ {
			idx, ok := src.At(row, c).Index()
			if !ok {
				continue
			}
			if first < 0 {
				first = idx
			}
			col := r.IntN(target)
			if used[col] || l.busy(col, t) {
				continue
			}
			used[col] = true
			out.Set(row, col, matrix.Occupied(idx))
			l.hold(col, row, notes[idx])
			placed++
		}

		if placed == 0 && first >= 0 {
			var col int
			if free := freeColumns(out, row, l, t); len(free) > 0 {
				col = free[r.IntN(len(free))]
			} else {
				col = r.IntN(target)
				notes = l.release(out, axis, notes, col, row)
			}
			used[col] = true
			out.Set(row, col, matrix.Occupied(first))
			l.hold(col, row, notes[first])
		}
	}
	return out, notes
}

// Resample enforces per-row density: rows above maxKeys lose random notes,
// non-empty rows below minKeys gain copies of their own notes in random
// columns until they reach minKeys. Columns that are free and leave room for
// the copy are used first; after that a sustaining hold is cut short to open
// its column and a copied hold is cut before the next note in its column.
// Bounds are clamped to the grid width.
//
// Cut notes are appended to notes; m indexes the returned slice.
func Resample(m *matrix.NoteMatrix, axis matrix.TimeAxis, notes []chart.Note, minKeys, maxKeys int, r *rand.Rand) []chart.Note {
	if maxKeys <= 0 || maxKeys > m.Cols() {
		maxKeys = m.Cols()
	}
	minKeys = convutil.Clamp(minKeys, 0, maxKeys)
	l := newLanes(m.Cols())

	for row := 0; row < m.Rows(); row++ {
		t := axis[row]
		occ := occupiedColumns(m, row)

		switch {
		case len(occ) > maxKeys:
			r.Shuffle(len(occ), func(i, j int) { occ[i], occ[j] = occ[j], occ[i] })
			for _, c := range occ[maxKeys:] {
				m.Set(row, c, matrix.Empty)
			}
		case len(occ) > 0 && len(occ) < minKeys:
			sources := slices.Clone(occ)
			free := freeColumns(m, row, l, t)
			r.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
			need := minKeys - len(occ)
			for _, col := range free {
				if need == 0 {
					break
				}
				src := sources[r.IntN(len(sources))]
				idx, _ := m.At(row, src).Index()
				if !fits(m, axis, row, col, notes[idx]) {
					continue
				}
				m.Set(row, col, matrix.Occupied(idx))
				need--
			}
			if need == 0 {
				break
			}

			rest := emptyColumns(m, row)
			r.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
			for _, col := range rest[:min(need, len(rest))] {
				if l.busy(col, t) {
					notes = l.release(m, axis, notes, col, row)
				}
				src := sources[r.IntN(len(sources))]
				idx, _ := m.At(row, src).Index()
				if n := clip(m, axis, row, col, notes[idx]); n.Kind != notes[idx].Kind || n.End != notes[idx].End {
					notes = append(notes, n)
					idx = len(notes) - 1
				}
				m.Set(row, col, matrix.Occupied(idx))
			}
		}

		for c := 0; c < m.Cols(); c++ {
			if idx, ok := m.At(row, c).Index(); ok {
				l.hold(c, row, notes[idx])
			}
		}
	}
	return notes
}

func segmentOf(t, origin, window float64) int64 {
	if math.IsInf(window, 1) {
		return 0
	}
	return int64(math.Floor((t - origin) / window))
}

// lanes records, per column, until when a hold keeps it down and the row
// that hold starts on.
type lanes struct {
	until []float64
	row   []int
}

func newLanes(cols int) *lanes {
	l := &lanes{until: make([]float64, cols), row: make([]int, cols)}
	for i := range l.until {
		l.until[i] = math.Inf(-1)
	}
	return l
}

func (l *lanes) busy(col int, t float64) bool { return l.until[col] >= t }

func (l *lanes) hold(col, row int, n chart.Note) {
	if n.IsHold() && n.End > l.until[col] {
		l.until[col] = n.End
		l.row[col] = row
	}
}

// release cuts the hold sustaining in col so it ends on the row before row,
// or becomes a tap when that leaves no length. The cut note is appended to
// notes and m is pointed at it.
func (l *lanes) release(m *matrix.NoteMatrix, axis matrix.TimeAxis, notes []chart.Note, col, row int) []chart.Note {
	from := l.row[col]
	l.until[col] = math.Inf(-1)
	idx, ok := m.At(from, col).Index()
	if !ok || from >= row {
		return notes
	}
	n := endAt(notes[idx], axis[row-1])
	notes = append(notes, n)
	m.Set(from, col, matrix.Occupied(len(notes)-1))
	if n.IsHold() {
		l.until[col] = n.End
	}
	return notes
}

// endAt returns a copy of n released at end, a tap when end is not after
// its start.
func endAt(n chart.Note, end float64) chart.Note {
	n = n.Clone()
	n.End = end
	return n.Normalize()
}

// clip returns n cut to release before the next note below row in col.
func clip(m *matrix.NoteMatrix, axis matrix.TimeAxis, row, col int, n chart.Note) chart.Note {
	if !n.IsHold() {
		return n
	}
	for r := row + 1; r < m.Rows() && axis[r] <= n.End; r++ {
		if _, ok := m.At(r, col).Index(); ok {
			return endAt(n, axis[r-1])
		}
	}
	return n
}

func occupiedColumns(m *matrix.NoteMatrix, row int) []int {
	var out []int
	for c := 0; c < m.Cols(); c++ {
		if _, ok := m.At(row, c).Index(); ok {
			out = append(out, c)
		}
	}
	return out
}

func emptyColumns(m *matrix.NoteMatrix, row int) []int {
	var out []int
	for c := 0; c < m.Cols(); c++ {
		if m.At(row, c).IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}

func freeColumns(m *matrix.NoteMatrix, row int, l *lanes, t float64) []int {
	var out []int
	for c := 0; c < m.Cols(); c++ {
		if m.At(row, c).IsEmpty() && !l.busy(c, t) {
			out = append(out, c)
		}
	}
	return out
}

// fits reports whether n can be copied into col at row without running into
// a later note in that column.
func fits(m *matrix.NoteMatrix, axis matrix.TimeAxis, row, col int, n chart.Note) bool {
	return clip(m, axis, row, col, n).End == n.End
}
