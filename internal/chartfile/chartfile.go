// Package chartfile reads and writes chart documents stored in the library.
//
// A document is YAML (JSON is accepted on input since it parses as YAML):
//
//	title: Example
//	keys: 4
//	bpm: 180
//	timing_points: [{time: 0, beat_length: 333.333}]
//	notes:
//	  - {time: 0, column: 0}
//	  - {time: 333, end: 666, column: 1}
package chartfile

import (
	"errors"
	"fmt"
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/keyshift/internal/apperr"
	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/keymode"
)

// Extensions lists the file extensions treated as chart documents.
var Extensions = []string{".yaml", ".yml", ".json"}

// IsChartPath reports whether p has a chart document extension.
func IsChartPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Document is the on-disk and wire form of a chart.
type Document struct {
	Title        string        `yaml:"title" json:"title"`
	Artist       string        `yaml:"artist,omitempty" json:"artist,omitempty"`
	Version      string        `yaml:"version,omitempty" json:"version,omitempty"`
	Keys         int           `yaml:"keys" json:"keys"`
	BPM          float64       `yaml:"bpm,omitempty" json:"bpm,omitempty"`
	Difficulty   Difficulty    `yaml:"difficulty,omitempty" json:"difficulty"`
	TimingPoints []TimingPoint `yaml:"timing_points,omitempty" json:"timing_points,omitempty"`
	Notes        []Note        `yaml:"notes" json:"notes"`
}

// Difficulty mirrors chart.Difficulty.
type Difficulty struct {
	KeyCount int     `yaml:"key_count,omitempty" json:"key_count"`
	HPDrain  float64 `yaml:"hp_drain,omitempty" json:"hp_drain"`
	Overall  float64 `yaml:"overall,omitempty" json:"overall"`
}

// TimingPoint mirrors chart.TimingPoint.
type TimingPoint struct {
	Time       float64 `yaml:"time" json:"time"`
	BeatLength float64 `yaml:"beat_length" json:"beat_length"`
}

// Note is one note; End is omitted for taps.
type Note struct {
	Time    float64  `yaml:"time" json:"time"`
	End     float64  `yaml:"end,omitempty" json:"end,omitempty"`
	Column  int      `yaml:"column" json:"column"`
	Samples []string `yaml:"samples,omitempty,flow" json:"samples,omitempty"`
}

// Validate checks document-level fields.
func (d *Document) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Keys, validation.Required, validation.Min(1), validation.Max(keymode.MaxKeys)),
		validation.Field(&d.BPM, validation.Min(0.0)),
	)
}

// Decode parses and validates a chart document. Validation failures wrap
// apperr.ErrInvalidChart.
func Decode(data []byte) (*chart.Chart, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidChart, err)
	}
	return doc.Chart()
}

// Chart validates d and converts it to a chart with sorted notes.
func (d *Document) Chart() (*chart.Chart, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidChart, err)
	}
	c := &chart.Chart{
		Title:   d.Title,
		Artist:  d.Artist,
		Version: d.Version,
		Keys:    d.Keys,
		BPM:     d.BPM,
		Difficulty: chart.Difficulty{
			KeyCount: d.Difficulty.KeyCount,
			HPDrain:  d.Difficulty.HPDrain,
			Overall:  d.Difficulty.Overall,
		},
	}
	if c.Difficulty.KeyCount == 0 {
		c.Difficulty.KeyCount = d.Keys
	}

	var errs []error
	for i, tp := range d.TimingPoints {
		if tp.BeatLength < 0 {
			errs = append(errs, fmt.Errorf("timing point %d: negative beat length %v", i, tp.BeatLength))
			continue
		}
		c.TimingPoints = append(c.TimingPoints, chart.TimingPoint{Time: tp.Time, BeatLength: tp.BeatLength})
	}
	for i, n := range d.Notes {
		switch {
		case n.Column < 0 || n.Column >= d.Keys:
			errs = append(errs, fmt.Errorf("note %d: column %d outside 0..%d", i, n.Column, d.Keys-1))
			continue
		case n.Time < 0:
			errs = append(errs, fmt.Errorf("note %d: negative time %v", i, n.Time))
			continue
		case n.End != 0 && n.End < n.Time:
			errs = append(errs, fmt.Errorf("note %d: end %v before time %v", i, n.End, n.Time))
			continue
		}
		note := chart.Tap(n.Time, n.Column)
		if n.End > n.Time {
			note = chart.Hold(n.Time, n.End, n.Column)
		}
		if len(n.Samples) > 0 {
			note.Samples = append([]string(nil), n.Samples...)
		}
		c.Notes = append(c.Notes, note)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidChart, errors.Join(errs...))
	}
	c.SortNotes()
	return c, nil
}

// FromChart converts c to its document form.
func FromChart(c *chart.Chart) Document {
	doc := Document{
		Title:   c.Title,
		Artist:  c.Artist,
		Version: c.Version,
		Keys:    c.Keys,
		BPM:     c.BPM,
		Difficulty: Difficulty{
			KeyCount: c.Difficulty.KeyCount,
			HPDrain:  c.Difficulty.HPDrain,
			Overall:  c.Difficulty.Overall,
		},
		Notes: make([]Note, 0, len(c.Notes)),
	}
	for _, tp := range c.TimingPoints {
		doc.TimingPoints = append(doc.TimingPoints, TimingPoint{Time: tp.Time, BeatLength: tp.BeatLength})
	}
	for _, n := range c.Notes {
		dn := Note{Time: n.Start, Column: n.Column, Samples: n.Samples}
		if n.IsHold() {
			dn.End = n.End
		}
		doc.Notes = append(doc.Notes, dn)
	}
	return doc
}

// Encode writes c as a YAML document.
func Encode(c *chart.Chart) ([]byte, error) {
	doc := FromChart(c)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("chartfile: encode: %w", err)
	}
	return out, nil
}

// Summary is the indexed view of a chart.
type Summary struct {
	Title   string
	Artist  string
	Version string
	Keys    int
	Notes   int
	Holds   int
}

// Summarize returns the index summary of c. A chart without a title is
// named after its file.
func Summarize(c *chart.Chart, p string) Summary {
	st := c.Stats()
	title := c.Title
	if title == "" {
		base := path.Base(p)
		title = strings.TrimSuffix(base, path.Ext(base))
	}
	return Summary{
		Title:   title,
		Artist:  c.Artist,
		Version: c.Version,
		Keys:    c.Keys,
		Notes:   st.Notes,
		Holds:   st.Holds,
	}
}
