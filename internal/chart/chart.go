// Package chart defines the chart and note types shared by every converter.
package chart

import (
	"slices"
	"sort"
)

// Defaults used when a chart carries no usable timing information.
const (
	DefaultBPM        = 120.0
	DefaultBeatLength = 60000.0 / DefaultBPM
)

// Kind tags a note as a tap or a hold.
type Kind uint8

const (
	KindTap Kind = iota
	KindHold
)

func (k Kind) String() string {
	switch k {
	case KindHold:
		return "hold"
	default:
		return "tap"
	}
}

// Note is a single event in one column. End is only meaningful for holds.
type Note struct {
	Kind    Kind
	Start   float64
	End     float64
	Column  int
	Samples []string
}

// Tap returns a tap note at start in column.
func Tap(start float64, column int) Note {
	return Note{Kind: KindTap, Start: start, Column: column}
}

// Hold returns a hold note spanning [start, end] in column.
func Hold(start, end float64, column int) Note {
	return Note{Kind: KindHold, Start: start, End: end, Column: column}
}

// IsHold reports whether n is a hold with a positive duration.
func (n Note) IsHold() bool {
	return n.Kind == KindHold && n.End > n.Start
}

// Duration returns the sustain length of a hold, or 0 for taps.
func (n Note) Duration() float64 {
	if !n.IsHold() {
		return 0
	}
	return n.End - n.Start
}

// Tail returns the time the note releases: End for holds, Start otherwise.
func (n Note) Tail() float64 {
	if n.IsHold() {
		return n.End
	}
	return n.Start
}

// Normalize turns degenerate holds into taps.
func (n Note) Normalize() Note {
	if n.Kind == KindHold && n.End <= n.Start {
		n.Kind = KindTap
		n.End = 0
	}
	if n.Kind == KindTap {
		n.End = 0
	}
	return n
}

// Clone returns a copy of n that shares no memory with it.
func (n Note) Clone() Note {
	n.Samples = slices.Clone(n.Samples)
	return n
}

// TimingPoint starts a section with a fixed beat length (ms per beat).
type TimingPoint struct {
	Time       float64
	BeatLength float64
}

// Difficulty holds per-difficulty metadata that conversions may touch.
type Difficulty struct {
	KeyCount int
	HPDrain  float64
	Overall  float64
}

// Chart is one playable difficulty.
type Chart struct {
	Title        string
	Artist       string
	Version      string
	Keys         int
	BPM          float64
	Difficulty   Difficulty
	TimingPoints []TimingPoint
	Notes        []Note
}

// Stats summarizes a chart's contents.
type Stats struct {
	Notes int
	Holds int
	Rows  int
}

// BeatLengthAt returns the beat length in effect at time t.
func (c *Chart) BeatLengthAt(t float64) float64 {
	if len(c.TimingPoints) == 0 {
		return DefaultBeatLength
	}
	i := sort.Search(len(c.TimingPoints), func(i int) bool {
		return c.TimingPoints[i].Time > t
	})
	// Times before the first point use the first point.
	if i > 0 {
		i--
	}
	if bl := c.TimingPoints[i].BeatLength; bl > 0 {
		return bl
	}
	return DefaultBeatLength
}

// EffectiveBPM returns the nominal BPM, falling back to the first timing
// point and then DefaultBPM.
func (c *Chart) EffectiveBPM() float64 {
	if c.BPM > 0 {
		return c.BPM
	}
	if len(c.TimingPoints) > 0 && c.TimingPoints[0].BeatLength > 0 {
		return 60000 / c.TimingPoints[0].BeatLength
	}
	return DefaultBPM
}

// LastTime returns the latest start or release time in the chart.
func (c *Chart) LastTime() float64 {
	var last float64
	for _, n := range c.Notes {
		last = max(last, n.Tail())
	}
	return last
}

// SortNotes orders notes by start time, then column.
func (c *Chart) SortNotes() {
	SortNotes(c.Notes)
}

// SortNotes orders notes by start time, then column, keeping equal notes
// in input order.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Column < notes[j].Column
	})
}

// Stats counts notes, holds, and distinct start times.
func (c *Chart) Stats() Stats {
	st := Stats{Notes: len(c.Notes)}
	rows := make(map[float64]struct{}, len(c.Notes))
	for _, n := range c.Notes {
		if n.IsHold() {
			st.Holds++
		}
		rows[n.Start] = struct{}{}
	}
	st.Rows = len(rows)
	return st
}

// Clone returns a deep copy of c.
func (c *Chart) Clone() *Chart {
	out := *c
	out.TimingPoints = slices.Clone(c.TimingPoints)
	out.Notes = make([]Note, len(c.Notes))
	for i, n := range c.Notes {
		out.Notes[i] = n.Clone()
	}
	return &out
}

// SetKeys updates both column count fields.
func (c *Chart) SetKeys(keys int) {
	c.Keys = keys
	c.Difficulty.KeyCount = keys
}
