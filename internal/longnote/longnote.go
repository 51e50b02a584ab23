// Package longnote turns taps into hold notes, and optionally resizes
// existing holds, using per-cell length models.
//
// Each occupied cell gets an available time (until the next event in its
// column) and the beat length in effect. Cells are split into long and short
// candidates against a beat threshold, thinned by percentage and per-row
// limits, and given a length drawn from convutil.BoundedRandom. Lengths are
// snapped down to the beat grid and written back as hold ends.
package longnote

import (
	"fmt"
	"math/rand/v2"

	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/convutil"
	"github.com/starford/keyshift/internal/matrix"
)

// ReleaseGap is the minimum time in ms kept between a hold's release and
// the next note in its column.
const ReleaseGap = 34.0

// Sample folds of the length generator for each class.
const (
	longFolds  = 5
	shortFolds = 2
)

// Convert rewrites the notes of c in place.
func Convert(c *chart.Chart, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if len(c.Notes) == 0 {
		return nil
	}

	notes := make([]chart.Note, len(c.Notes))
	for i, n := range c.Notes {
		notes[i] = n.Clone()
	}
	chart.SortNotes(notes)
	grid, axis, err := matrix.Build(notes, c.Keys, false)
	if err != nil {
		return fmt.Errorf("longnote: build grid: %w", err)
	}
	r := convutil.NewRand(convutil.ResolveSeed(opts.Seed, len(notes), c.Keys))

	avail := AvailableTime(grid, axis, c.LastTime())
	beats := BeatLengths(grid, axis, c)
	original := OriginalHolds(grid, notes)

	work := grid.Clone()
	if !opts.ProcessOriginal {
		for row := 0; row < work.Rows(); row++ {
			for col := 0; col < work.Cols(); col++ {
				if original.At(row, col) {
					work.Set(row, col, matrix.Empty)
				}
			}
		}
	}

	threshold := convutil.ThresholdBeats(opts.LengthThreshold)
	long, short := Classify(work, avail, beats, threshold)

	convutil.FilterPercentage(r, long, avail, float64(opts.LongPercentage))
	convutil.LimitPerRow(r, long, opts.LongLimit)
	convutil.FilterPercentage(r, short, avail, float64(opts.ShortPercentage))
	convutil.LimitPerRow(r, short, opts.ShortLimit)

	longLen := sampleLong(r, long, avail, beats, threshold, opts)
	shortLen := sampleShort(r, short, avail, beats, threshold, opts)
	lengths, err := matrix.MergeMax(longLen, shortLen)
	if err != nil {
		return fmt.Errorf("longnote: merge: %w", err)
	}

	rewrite(notes, grid, lengths, beats, original, opts)
	c.Notes = notes
	return nil
}

// AvailableTime returns, for every occupied cell, the time until the next
// occupied cell in the same column, or until last for a column's final note.
func AvailableTime(grid *matrix.NoteMatrix, axis matrix.TimeAxis, last float64) *matrix.RealMatrix {
	out := matrix.NewRealLike(grid)
	for col := 0; col < grid.Cols(); col++ {
		prev := -1
		for row := 0; row < grid.Rows(); row++ {
			if _, ok := grid.At(row, col).Index(); !ok {
				continue
			}
			if prev >= 0 {
				out.Set(prev, col, axis[row]-axis[prev])
			}
			prev = row
		}
		if prev >= 0 {
			out.Set(prev, col, max(0, last-axis[prev]))
		}
	}
	return out
}

// BeatLengths returns the beat length at every occupied cell's time.
func BeatLengths(grid *matrix.NoteMatrix, axis matrix.TimeAxis, c *chart.Chart) *matrix.RealMatrix {
	out := matrix.NewRealLike(grid)
	for row := 0; row < grid.Rows(); row++ {
		bl := c.BeatLengthAt(axis[row])
		for col := 0; col < grid.Cols(); col++ {
			if _, ok := grid.At(row, col).Index(); ok {
				out.Set(row, col, bl)
			}
		}
	}
	return out
}

// OriginalHolds flags cells whose note is already a hold.
func OriginalHolds(grid *matrix.NoteMatrix, notes []chart.Note) *matrix.BoolMatrix {
	out := matrix.NewBoolLike(grid)
	for row := 0; row < grid.Rows(); row++ {
		for col := 0; col < grid.Cols(); col++ {
			if idx, ok := grid.At(row, col).Index(); ok && notes[idx].IsHold() {
				out.Set(row, col, true)
			}
		}
	}
	return out
}

// Classify splits occupied cells into long candidates (available time above
// thresholdBeats beats) and short candidates.
func Classify(grid *matrix.NoteMatrix, avail, beats *matrix.RealMatrix, thresholdBeats float64) (long, short *matrix.BoolMatrix) {
	long = matrix.NewBoolLike(grid)
	short = matrix.NewBoolLike(grid)
	for row := 0; row < grid.Rows(); row++ {
		for col := 0; col < grid.Cols(); col++ {
			if _, ok := grid.At(row, col).Index(); !ok {
				continue
			}
			if avail.At(row, col) > thresholdBeats*beats.At(row, col) {
				long.Set(row, col, true)
			} else {
				short.Set(row, col, true)
			}
		}
	}
	return long, short
}

func sampleLong(r *rand.Rand, flags *matrix.BoolMatrix, avail, beats *matrix.RealMatrix, thresholdBeats float64, opts Options) *matrix.RealMatrix {
	out := newRealFrom(flags)
	for row := 0; row < flags.Rows(); row++ {
		for _, col := range flags.RowTrue(row) {
			a := avail.At(row, col)
			limit := a - ReleaseGap
			if limit <= 0 {
				continue
			}
			di := thresholdBeats * beats.At(row, col)
			mean := min(a*float64(opts.LongLevel)/100, limit)

			var v int
			if mean < di {
				v = convutil.BoundedRandom(r, 0, di, mean, float64(opts.LongRandomness), longFolds)
			} else {
				v = convutil.BoundedRandom(r, di, a, mean, float64(opts.LongRandomness), longFolds)
			}
			out.Set(row, col, min(float64(v), limit))
		}
	}
	return out
}

func sampleShort(r *rand.Rand, flags *matrix.BoolMatrix, avail, beats *matrix.RealMatrix, thresholdBeats float64, opts Options) *matrix.RealMatrix {
	out := newRealFrom(flags)
	for row := 0; row < flags.Rows(); row++ {
		for _, col := range flags.RowTrue(row) {
			limit := avail.At(row, col) - ReleaseGap
			if limit <= 0 {
				continue
			}
			bl := beats.At(row, col)
			di := thresholdBeats * bl
			mean := min(convutil.ShortLevelBeats(opts.ShortLevel)*bl, di, limit)
			v := convutil.BoundedRandom(r, 0, di, mean, float64(opts.ShortRandomness), shortFolds)
			out.Set(row, col, min(float64(v), limit))
		}
	}
	return out
}

func newRealFrom(flags *matrix.BoolMatrix) *matrix.RealMatrix {
	return matrix.NewReal(flags.Rows(), flags.Cols())
}

func rewrite(notes []chart.Note, grid *matrix.NoteMatrix, lengths, beats *matrix.RealMatrix, original *matrix.BoolMatrix, opts Options) {
	for row := 0; row < grid.Rows(); row++ {
		for col := 0; col < grid.Cols(); col++ {
			length := lengths.At(row, col)
			if length <= 0 {
				continue
			}
			idx, ok := grid.At(row, col).Index()
			if !ok {
				continue
			}
			align := opts.Alignment
			if original.At(row, col) {
				align = opts.HoldAlignment
			}
			length = convutil.AlignDown(length, beats.At(row, col), convutil.AlignmentFraction(align))
			if length <= 0 {
				continue
			}
			n := &notes[idx]
			n.Kind = chart.KindHold
			n.End = n.Start + length
		}
	}
}
