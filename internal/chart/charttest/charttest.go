// Package charttest builds deterministic charts for tests.
package charttest

import (
	"math/rand/v2"

	"github.com/starford/keyshift/internal/chart"
)

// Taps returns a keys-wide chart with one tap per (time, column) pair given.
func Taps(keys int, pairs ...[2]float64) *chart.Chart {
	c := &chart.Chart{Title: "taps", Keys: keys, BPM: 120}
	c.Difficulty.KeyCount = keys
	for _, p := range pairs {
		c.Notes = append(c.Notes, chart.Tap(p[0], int(p[1])))
	}
	c.SortNotes()
	return c
}

// Random returns a keys-wide chart with rows spaced step ms apart. Each row
// holds between 1 and keys notes; with holds set, some notes sustain for a
// whole number of steps without overlapping later notes in their column.
func Random(seed uint64, keys, rows int, step float64, holds bool) *chart.Chart {
	r := rand.New(rand.NewPCG(seed, seed+1))
	c := &chart.Chart{
		Title:        "random",
		Keys:         keys,
		BPM:          60000 / (step * 2),
		TimingPoints: []chart.TimingPoint{{Time: 0, BeatLength: step * 2}},
	}
	c.Difficulty.KeyCount = keys
	busyUntil := make([]float64, keys)
	for i := range busyUntil {
		busyUntil[i] = -1
	}
	for row := 0; row < rows; row++ {
		t := float64(row) * step
		var free []int
		for col := 0; col < keys; col++ {
			if busyUntil[col] < t {
				free = append(free, col)
			}
		}
		if len(free) == 0 {
			continue
		}
		r.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
		count := 1 + r.IntN(len(free))
		for _, col := range free[:count] {
			n := chart.Tap(t, col)
			if holds && r.IntN(4) == 0 {
				n = chart.Hold(t, t+step*float64(1+r.IntN(3)), col)
				busyUntil[col] = n.End
			}
			c.Notes = append(c.Notes, n)
		}
	}
	c.SortNotes()
	return c
}
