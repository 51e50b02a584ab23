// Package doubleplay splits a chart into two sides for double play and
// converts each side on its own before joining them back together.
package doubleplay

import (
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/convutil"
	"github.com/starford/keyshift/internal/keycount"
	"github.com/starford/keyshift/internal/keymode"
	"github.com/starford/keyshift/internal/matrix"
)

// Density bounds the number of notes per row on one side.
type Density struct {
	Max int `json:"max" yaml:"max"`
	Min int `json:"min" yaml:"min"`
}

// Validate checks that the bounds are ordered.
func (d *Density) Validate() error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.Max, validation.Min(0), validation.Max(keymode.MaxKeys)),
		validation.Field(&d.Min, validation.Min(0), validation.Max(keymode.MaxKeys)),
	); err != nil {
		return err
	}
	if d.Max > 0 && d.Min > d.Max {
		return fmt.Errorf("doubleplay: density min %d exceeds max %d", d.Min, d.Max)
	}
	return nil
}

// Options controls a double-play conversion. ModifyKeys, when set, is the
// column count of each side.
type Options struct {
	ModifyKeys   int      `json:"modify_keys,omitempty" yaml:"modify_keys,omitempty"`
	LeftMirror   bool     `json:"left_mirror" yaml:"left_mirror"`
	RightMirror  bool     `json:"right_mirror" yaml:"right_mirror"`
	LeftRemove   bool     `json:"left_remove" yaml:"left_remove"`
	RightRemove  bool     `json:"right_remove" yaml:"right_remove"`
	LeftDensity  *Density `json:"left_density,omitempty" yaml:"left_density,omitempty"`
	RightDensity *Density `json:"right_density,omitempty" yaml:"right_density,omitempty"`
	Seed         *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate checks option ranges.
func (o *Options) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.ModifyKeys, validation.Min(0), validation.Max(keymode.MaxKeys)),
		validation.Field(&o.LeftDensity),
		validation.Field(&o.RightDensity),
	)
}

type side struct {
	mirror  bool
	remove  bool
	density *Density
}

// Convert rewrites c in place into a double-play chart whose left and right
// halves are independent copies of the original, each optionally mirrored,
// removed, re-keyed and density-bounded.
func Convert(c *chart.Chart, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	notes := slices.Clone(c.Notes)
	chart.SortNotes(notes)
	grid, axis, err := matrix.Build(notes, c.Keys, false)
	if err != nil {
		return fmt.Errorf("doubleplay: build grid: %w", err)
	}

	r := convutil.NewRand(convutil.ResolveSeed(opts.Seed, len(notes), c.Keys))
	window := convutil.DoublePlayConvertTime(c.EffectiveBPM())

	sides := [2]side{
		{mirror: opts.LeftMirror, remove: opts.LeftRemove, density: opts.LeftDensity},
		{mirror: opts.RightMirror, remove: opts.RightRemove, density: opts.RightDensity},
	}
	var halves [2]*matrix.NoteMatrix
	for i, s := range sides {
		m := grid.Clone()
		if s.mirror {
			m.Mirror()
		}
		if s.remove {
			m.Clear()
		}

		modify := opts.ModifyKeys > 0 && opts.ModifyKeys != c.Keys
		if modify {
			if s.remove {
				m = matrix.New(m.Rows(), opts.ModifyKeys)
			} else {
				m, notes = keycount.Remap(m, axis, notes, opts.ModifyKeys, window, r)
			}
		}
		if s.density != nil {
			notes = keycount.Resample(m, axis, notes, s.density.Min, s.density.Max, r)
		} else if modify {
			notes = keycount.Resample(m, axis, notes, 0, m.Cols(), r)
		}
		halves[i] = m
	}

	joined, err := matrix.Concat(halves[0], halves[1])
	if err != nil {
		return fmt.Errorf("doubleplay: %w", err)
	}
	c.Notes = joined.Flatten(notes)
	c.SetKeys(joined.Cols())
	return nil
}
