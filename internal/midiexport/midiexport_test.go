package midiexport

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/starford/keyshift/internal/chart"
)

type noteSpan struct {
	key     uint8
	on, off uint32
}

func readNotes(t *testing.T, data []byte) (*smf.SMF, []noteSpan) {
	t.Helper()
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(sm.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(sm.Tracks))
	}
	var spans []noteSpan
	open := map[uint8]int{}
	var tick uint32
	for _, ev := range sm.Tracks[1] {
		tick += ev.Delta
		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
			open[key] = len(spans)
			spans = append(spans, noteSpan{key: key, on: tick})
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			if i, ok := open[key]; ok {
				spans[i].off = tick
				delete(open, key)
			}
		}
	}
	if len(open) != 0 {
		t.Errorf("unterminated notes: %v", open)
	}
	return sm, spans
}

func TestEncode(t *testing.T) {
	c := &chart.Chart{Title: "midi", Keys: 4, BPM: 120}
	c.Notes = []chart.Note{
		chart.Tap(0, 0),
		chart.Tap(500, 1),
		chart.Hold(1000, 2000, 3),
	}

	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sm, spans := readNotes(t, data)

	if tf, ok := sm.TimeFormat.(smf.MetricTicks); !ok || tf.Resolution() != Resolution {
		t.Errorf("time format = %v", sm.TimeFormat)
	}

	want := []noteSpan{
		{key: 60, on: 0, off: TapTicks},
		{key: 61, on: 960, off: 960 + TapTicks},
		{key: 63, on: 1920, off: 3840},
	}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v, want %+v", spans, want)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %+v, want %+v", i, spans[i], want[i])
		}
	}
}

func TestEncode_CutsAtNextNoteOnSameKey(t *testing.T) {
	// Two taps a 32nd apart on one column: the first must end when the
	// second begins.
	c := &chart.Chart{Keys: 1, BPM: 120, Notes: []chart.Note{chart.Tap(0, 0), chart.Tap(62.5, 0)}}
	data, err := Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	_, spans := readNotes(t, data)
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].off != 120 || spans[1].on != 120 {
		t.Errorf("spans = %+v, want first cut at tick 120", spans)
	}
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(&chart.Chart{Keys: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, spans := readNotes(t, data); len(spans) != 0 {
		t.Errorf("spans = %+v", spans)
	}
}
