// Package midiexport renders charts as Standard MIDI Files so they can be
// inspected in a DAW or piano roll.
package midiexport

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/starford/keyshift/internal/chart"
)

const (
	// Resolution is the number of ticks per quarter note.
	Resolution = 960
	// BaseKey is the MIDI key of column 0; column i plays BaseKey+i.
	BaseKey = 60
	// TapTicks is the length of a tap (a sixteenth note).
	TapTicks = Resolution / 4

	channel  = 0
	velocity = 100
)

type event struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Write encodes c as a two-track SMF: a tempo track and a note track.
func Write(w io.Writer, c *chart.Chart) error {
	bpm := c.EffectiveBPM()
	msPerTick := 60000 / bpm / Resolution
	toTick := func(ms float64) uint32 {
		if ms <= 0 {
			return 0
		}
		return uint32(math.Round(ms / msPerTick))
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("midiexport: tempo track: %w", err)
	}

	notes := append([]chart.Note(nil), c.Notes...)
	chart.SortNotes(notes)

	// Next start per column, used to cut a note before the next one on the
	// same key begins.
	nextStart := make([]uint32, len(notes))
	last := map[int]int{}
	for i := len(notes) - 1; i >= 0; i-- {
		nextStart[i] = math.MaxUint32
		if j, ok := last[notes[i].Column]; ok {
			nextStart[i] = toTick(notes[j].Start)
		}
		last[notes[i].Column] = i
	}

	events := make([]event, 0, 2*len(notes))
	for i, n := range notes {
		if n.Column < 0 || BaseKey+n.Column > 127 {
			return fmt.Errorf("midiexport: column %d has no MIDI key", n.Column)
		}
		key := uint8(BaseKey + n.Column)
		on := toTick(n.Start)
		off := on + TapTicks
		if n.IsHold() {
			off = max(toTick(n.End), on+1)
		}
		if nextStart[i] > on && off > nextStart[i] {
			off = nextStart[i]
		}
		events = append(events,
			event{tick: on, msg: midi.NoteOn(channel, key, velocity)},
			event{tick: off, off: true, msg: midi.NoteOff(channel, key)},
		)
	}
	// Offs sort before ons at the same tick so a retriggered key is not cut.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(trackName(c)))
	var at uint32
	for _, ev := range events {
		track.Add(ev.tick-at, ev.msg)
		at = ev.tick
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return fmt.Errorf("midiexport: note track: %w", err)
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("midiexport: write: %w", err)
	}
	return nil
}

// Encode returns the SMF bytes of c.
func Encode(c *chart.Chart) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func trackName(c *chart.Chart) string {
	name := fmt.Sprintf("%dK", c.Keys)
	if c.Title != "" {
		name = c.Title + " " + name
	}
	return name
}
