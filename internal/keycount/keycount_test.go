package keycount

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/chart/charttest"
	"github.com/starford/keyshift/internal/convutil"
	"github.com/starford/keyshift/internal/keymode"
	"github.com/starford/keyshift/internal/matrix"
)

func seed(v int64) *int64 { return &v }

func groupCounts(notes []chart.Note) map[float64]int {
	out := make(map[float64]int)
	for _, n := range notes {
		out[n.Start]++
	}
	return out
}

func assertNoSharedSlots(t *testing.T, notes []chart.Note) {
	t.Helper()
	seen := make(map[[2]float64]bool)
	for _, n := range notes {
		k := [2]float64{n.Start, float64(n.Column)}
		require.Falsef(t, seen[k], "two notes at time %v column %d", n.Start, n.Column)
		seen[k] = true
	}
}

func assertNoColumnOverlap(t *testing.T, notes []chart.Note, keys int) {
	t.Helper()
	last := make([]float64, keys)
	started := make([]bool, keys)
	for _, n := range notes {
		if started[n.Column] {
			require.Greaterf(t, n.Start, last[n.Column], "note at %v overlaps previous note in column %d", n.Start, n.Column)
		}
		started[n.Column] = true
		last[n.Column] = n.Tail()
	}
}

func TestConvert_ExampleScenario(t *testing.T) {
	build := func() *chart.Chart {
		return charttest.Taps(4, [2]float64{0, 0}, [2]float64{100, 1}, [2]float64{200, 2}, [2]float64{300, 3})
	}
	opts := Options{TargetKeys: 7, MinKeys: 1, MaxKeys: 2, BeatSpeedIndex: 4, Seed: seed(42)}

	first := build()
	require.NoError(t, Convert(first, opts))
	second := build()
	require.NoError(t, Convert(second, opts))

	assert.Equal(t, first.Notes, second.Notes, "same seed must give identical output")
	assert.Equal(t, 7, first.Keys)
	assert.Equal(t, 7, first.Difficulty.KeyCount)

	groups := groupCounts(first.Notes)
	assert.Len(t, groups, 4)
	for at, n := range groups {
		assert.GreaterOrEqualf(t, n, 1, "group %v", at)
		assert.LessOrEqualf(t, n, 2, "group %v", at)
	}
	for _, n := range first.Notes {
		assert.GreaterOrEqual(t, n.Column, 0)
		assert.Less(t, n.Column, 7)
	}
	assertNoSharedSlots(t, first.Notes)
}

func TestConvert_SameKeysIsNoOp(t *testing.T) {
	c := charttest.Random(1, 4, 50, 125, true)
	before := c.Clone()
	require.NoError(t, Convert(c, Options{TargetKeys: 4, MaxKeys: 1, MinKeys: 1, Seed: seed(5)}))
	assert.Equal(t, before, c)
}

func TestConvert_DensityBounds(t *testing.T) {
	for _, target := range []int{3, 5, 7, 10} {
		c := charttest.Random(11, 4, 300, 100, false)
		rows := c.Stats().Rows
		opts := Options{TargetKeys: target, MinKeys: 2, MaxKeys: 3, BeatSpeedIndex: 2, Seed: seed(int64(target))}
		require.NoError(t, Convert(c, opts))

		groups := groupCounts(c.Notes)
		assert.Lenf(t, groups, rows, "target %d: every time group survives", target)
		for at, n := range groups {
			assert.GreaterOrEqualf(t, n, 2, "target %d group %v", target, at)
			assert.LessOrEqualf(t, n, 3, "target %d group %v", target, at)
		}
		for _, n := range c.Notes {
			require.Less(t, n.Column, target)
			require.GreaterOrEqual(t, n.Column, 0)
		}
		assertNoSharedSlots(t, c.Notes)
	}
}

func TestConvert_DensityBoundsWithHolds(t *testing.T) {
	for s := uint64(1); s <= 20; s++ {
		c := charttest.Random(s, 7, 200, 80, true)
		rows := c.Stats().Rows
		opts := Options{TargetKeys: 4, MinKeys: 2, MaxKeys: 3, BeatSpeedIndex: 3, Seed: seed(int64(s))}
		require.NoError(t, Convert(c, opts))

		groups := groupCounts(c.Notes)
		require.Lenf(t, groups, rows, "seed %d: every time group survives", s)
		for at, n := range groups {
			require.GreaterOrEqualf(t, n, 2, "seed %d group %v", s, at)
			require.LessOrEqualf(t, n, 3, "seed %d group %v", s, at)
		}
		assertNoSharedSlots(t, c.Notes)
		assertNoColumnOverlap(t, c.Notes, 4)
	}
}

func TestConvert_FullRowsWithHolds(t *testing.T) {
	for s := uint64(1); s <= 5; s++ {
		c := charttest.Random(s, 6, 150, 60, true)
		rows := c.Stats().Rows
		require.NoError(t, Convert(c, Options{TargetKeys: 3, MinKeys: 3, MaxKeys: 3, BeatSpeedIndex: 5, Seed: seed(int64(s))}))

		groups := groupCounts(c.Notes)
		require.Len(t, groups, rows)
		for at, n := range groups {
			require.Equalf(t, 3, n, "seed %d group %v", s, at)
		}
		assertNoColumnOverlap(t, c.Notes, 3)
	}
}

func TestResample_CutsBlockingHold(t *testing.T) {
	notes := []chart.Note{chart.Hold(0, 300, 0), chart.Tap(100, 1)}
	m, axis, err := matrix.Build(notes, 2, false)
	require.NoError(t, err)

	notes = Resample(m, axis, notes, 2, 2, convutil.NewRand(1))
	out := m.Flatten(notes)

	// The copied hold on row 0 would run into the tap at 100 and the hold
	// itself blocks column 0 at 100, so both end up as taps.
	require.Len(t, out, 4)
	for _, n := range out {
		assert.Falsef(t, n.IsHold(), "note at %v column %d is still a hold", n.Start, n.Column)
	}
	assert.Equal(t, map[float64]int{0: 2, 100: 2}, groupCounts(out))
}

func TestResample_CutHoldEndsBeforeRow(t *testing.T) {
	notes := []chart.Note{
		chart.Hold(0, 300, 0), chart.Tap(0, 1),
		chart.Tap(100, 1), chart.Hold(100, 300, 2),
		chart.Tap(200, 1),
	}
	for s := int64(1); s <= 8; s++ {
		ns := slices.Clone(notes)
		m, axis, err := matrix.Build(ns, 3, false)
		require.NoError(t, err)

		ns = Resample(m, axis, ns, 2, 2, convutil.NewRand(s))
		out := m.Flatten(ns)

		assert.Equal(t, map[float64]int{0: 2, 100: 2, 200: 2}, groupCounts(out))
		assertNoColumnOverlap(t, out, 3)
		long := 0
		for _, n := range out {
			if n.IsHold() && n.End == 300 {
				long++
			}
		}
		assert.Equal(t, 1, long, "exactly one hold is released to open a column at 200")
	}
}

func TestRemap_EmptyGroupRefilledUnderHolds(t *testing.T) {
	// Both target columns may be sustaining when the row at 100 arrives; the
	// row still gets its note back.
	notes := []chart.Note{chart.Hold(0, 500, 0), chart.Hold(0, 500, 1), chart.Tap(100, 2)}
	src, axis, err := matrix.Build(notes, 3, false)
	require.NoError(t, err)

	for s := int64(1); s <= 8; s++ {
		m, ns := Remap(src, axis, slices.Clone(notes), 2, math.Inf(1), convutil.NewRand(s))
		out := m.Flatten(ns)
		groups := groupCounts(out)
		assert.GreaterOrEqual(t, groups[0], 1)
		assert.Equal(t, 1, groups[100])
		assertNoColumnOverlap(t, out, 2)
	}
}

func TestConvert_HoldsNeverOverlap(t *testing.T) {
	for s := uint64(1); s <= 5; s++ {
		c := charttest.Random(s, 7, 200, 80, true)
		opts := Options{TargetKeys: 4, MinKeys: 1, MaxKeys: 4, BeatSpeedIndex: 3, Seed: seed(int64(s))}
		require.NoError(t, Convert(c, opts))
		assertNoColumnOverlap(t, c.Notes, 4)
	}
}

func TestConvert_DefaultSeedIsDeterministic(t *testing.T) {
	a := charttest.Random(3, 4, 100, 125, true)
	b := charttest.Random(3, 4, 100, 125, true)
	opts := DefaultOptions(6)
	require.NoError(t, Convert(a, opts))
	require.NoError(t, Convert(b, opts))
	assert.Equal(t, a.Notes, b.Notes)
}

func TestConvert_OutputSorted(t *testing.T) {
	c := charttest.Random(9, 6, 120, 90, true)
	require.NoError(t, Convert(c, Options{TargetKeys: 9, MinKeys: 1, MaxKeys: 9, BeatSpeedIndex: 1, Seed: seed(1)}))
	for i := 1; i < len(c.Notes); i++ {
		a, b := c.Notes[i-1], c.Notes[i]
		require.Truef(t, a.Start < b.Start || (a.Start == b.Start && a.Column < b.Column), "unsorted at %d", i)
	}
}

func TestConvert_EmptyChart(t *testing.T) {
	c := &chart.Chart{Keys: 4}
	require.NoError(t, Convert(c, DefaultOptions(7)))
	assert.Equal(t, 7, c.Keys)
	assert.Empty(t, c.Notes)
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"defaults", DefaultOptions(7), true},
		{"zero target", Options{TargetKeys: 0, MaxKeys: 1}, false},
		{"widest", Options{TargetKeys: keymode.MaxKeys, MaxKeys: keymode.MaxKeys}, true},
		{"too wide", Options{TargetKeys: keymode.MaxKeys + 1, MaxKeys: 1}, false},
		{"min above max", Options{TargetKeys: 7, MaxKeys: 2, MinKeys: 3}, false},
		{"speed index", Options{TargetKeys: 7, MaxKeys: 2, BeatSpeedIndex: 9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
