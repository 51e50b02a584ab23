package convutil

import (
	"math"
	"sort"
	"testing"

	"github.com/starford/keyshift/internal/matrix"
)

func TestConvertTime(t *testing.T) {
	cases := []struct {
		bpm   float64
		index int
		want  float64
	}{
		{120, 4, 490},
		{120, 0, 52.5},
		{120, 5, 990},
		{6000, 0, 1},
		{120, 99, math.Inf(1)},
	}
	for _, tc := range cases {
		if got := ConvertTime(tc.bpm, tc.index); got != tc.want {
			t.Errorf("ConvertTime(%v, %d) = %v, want %v", tc.bpm, tc.index, got, tc.want)
		}
	}
	if got := DoublePlayConvertTime(120); got != 1010 {
		t.Errorf("DoublePlayConvertTime(120) = %v, want 1010", got)
	}
}

func TestDeriveSeed(t *testing.T) {
	if got := DeriveSeed(10, 4); got != 14 {
		t.Errorf("DeriveSeed(10, 4) = %d, want 14", got)
	}
	if got := DeriveSeed(4, 4); got != FallbackSeed {
		t.Errorf("zero seed = %d, want fallback", got)
	}
	if got := DeriveSeed(-8, 1); got != 7 {
		t.Errorf("negative seed = %d, want 7", got)
	}
	if got := DeriveSeed(math.MinInt64, 0); got != FallbackSeed {
		t.Errorf("overflow seed = %d, want fallback", got)
	}
	s := int64(9)
	if got := ResolveSeed(&s, 10, 4); got != 9 {
		t.Errorf("explicit seed = %d", got)
	}
}

func TestTables(t *testing.T) {
	thresholds := map[int]float64{-1: 0, 0: 0, 1: 0.25, 4: 1, 64: 16, 65: UnboundedBeats, 200: UnboundedBeats}
	for in, want := range thresholds {
		if got := ThresholdBeats(in); got != want {
			t.Errorf("ThresholdBeats(%d) = %v, want %v", in, got, want)
		}
	}
	if got := ShortLevelBeats(8); got != 0.5 {
		t.Errorf("ShortLevelBeats(8) = %v", got)
	}
	if got := ShortLevelBeats(1000); got != 16 {
		t.Errorf("ShortLevelBeats clamps: %v", got)
	}
	if AlignmentFraction(0) != 0 || AlignmentFraction(1) != 1.0/8 || AlignmentFraction(8) != 1 || AlignmentFraction(9) != 0 {
		t.Error("alignment table mismatch")
	}
}

func TestAlignDown(t *testing.T) {
	if got := AlignDown(130, 100, 0.25); got != 125 {
		t.Errorf("AlignDown(130, 100, 1/4) = %v, want 125", got)
	}
	if got := AlignDown(130, 100, 0); got != 130 {
		t.Errorf("no alignment = %v, want raw", got)
	}
	if got := AlignDown(130, -1, 0.5); got != 130 {
		t.Errorf("negative beat length = %v, want raw", got)
	}
	if got := AlignDown(20, 100, 0.5); got != 0 {
		t.Errorf("shorter than one step = %v, want 0", got)
	}
}

func TestBoundedRandom_NoRandomness(t *testing.T) {
	r := NewRand(1)
	if got := BoundedRandom(r, 0, 1000, 420.7, 0, 5); got != 420 {
		t.Errorf("p=0: got %d, want 420", got)
	}
	if got := BoundedRandom(r, 100, 200, 900, 0, 5); got != 200 {
		t.Errorf("mean clamped into bounds: got %d, want 200", got)
	}
}

func TestBoundedRandom_StaysInBoundsAndCentersOnMean(t *testing.T) {
	r := NewRand(42)
	const n = 4001
	draws := make([]int, n)
	for i := range draws {
		v := BoundedRandom(r, 0, 1000, 800, 100, 5)
		if v < 0 || v > 1000 {
			t.Fatalf("draw %d out of bounds: %d", i, v)
		}
		draws[i] = v
	}
	sort.Ints(draws)
	median := draws[n/2]
	if median < 760 || median > 840 {
		t.Errorf("median = %d, want close to 800", median)
	}
}

func TestBoundedRandom_RandomnessShrinksRange(t *testing.T) {
	r := NewRand(7)
	for i := 0; i < 1000; i++ {
		v := BoundedRandom(r, 0, 1000, 500, 10, 2)
		if v < 450 || v > 550 {
			t.Fatalf("p=10 draw %d outside [450,550]", v)
		}
	}
}

func TestBoundedRandom_Deterministic(t *testing.T) {
	a, b := NewRand(99), NewRand(99)
	for i := 0; i < 100; i++ {
		if x, y := BoundedRandom(a, 0, 500, 100, 60, 5), BoundedRandom(b, 0, 500, 100, 60, 5); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func fullFlags(rows, cols int) *matrix.BoolMatrix {
	b := matrix.NewBoolLike(matrix.New(rows, cols))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.Set(r, c, true)
		}
	}
	return b
}

func TestFilterPercentage(t *testing.T) {
	cases := []struct {
		percent float64
		want    int
	}{
		{100, 20},
		{0, 0},
		{50, 10},
		{25, 5},
	}
	for _, tc := range cases {
		flags := fullFlags(10, 2)
		FilterPercentage(NewRand(3), flags, nil, tc.percent)
		if got := flags.Count(); got != tc.want {
			t.Errorf("percent %v: kept %d, want %d", tc.percent, got, tc.want)
		}
	}
}

func TestFilterPercentage_CarriesQuotaAcrossRows(t *testing.T) {
	// One cell per row: rounding each row alone would keep all or none.
	flags := fullFlags(8, 1)
	FilterPercentage(NewRand(5), flags, nil, 50)
	if got := flags.Count(); got != 4 {
		t.Errorf("kept %d of 8 single-cell rows at 50%%, want 4", got)
	}
	for row := 0; row+1 < flags.Rows(); row += 2 {
		if flags.At(row, 0) == flags.At(row+1, 0) {
			t.Errorf("rows %d and %d: kept cells should alternate", row, row+1)
		}
	}
}

func TestFilterPercentage_PrefersHeavierCells(t *testing.T) {
	weights := matrix.NewReal(1, 2)
	weights.Set(0, 1, 1000)
	kept := 0
	for seed := int64(0); seed < 200; seed++ {
		f := fullFlags(1, 2)
		FilterPercentage(NewRand(seed), f, weights, 50)
		if f.At(0, 1) {
			kept++
		}
	}
	if kept <= 100 {
		t.Errorf("heavier cell kept %d/200 times, want a majority", kept)
	}
}

func TestLimitPerRow(t *testing.T) {
	flags := fullFlags(5, 4)
	LimitPerRow(NewRand(1), flags, 2)
	for r := 0; r < 5; r++ {
		if n := len(flags.RowTrue(r)); n != 2 {
			t.Errorf("row %d keeps %d, want 2", r, n)
		}
	}

	unlimited := fullFlags(3, 4)
	LimitPerRow(NewRand(1), unlimited, 0)
	if unlimited.Count() != 12 {
		t.Errorf("limit 0 changed flags: %d", unlimited.Count())
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2.5, 0.0, 3.0) != 2.5 {
		t.Error("Clamp mismatch")
	}
}
