// Package convutil holds the math shared by the chart converters: beat
// windows, seeding, the bounded length generator, selection filters, and
// beat-grid alignment.
package convutil

import (
	"math"
	"math/rand/v2"

	"golang.org/x/exp/constraints"
)

// FallbackSeed is used when a derived seed overflows or comes out zero.
const FallbackSeed int64 = 114514

// BeatSpeedTable maps a beat speed index to a window length in beats.
var BeatSpeedTable = [...]float64{1.0 / 8, 1.0 / 4, 1.0 / 2, 3.0 / 4, 1, 2, 3, 4, math.Inf(1)}

// alignmentTable maps an alignment index to a beat fraction; index 0 disables
// alignment.
var alignmentTable = [...]float64{0, 1.0 / 8, 1.0 / 7, 1.0 / 6, 1.0 / 5, 1.0 / 4, 1.0 / 3, 1.0 / 2, 1}

// Table bounds.
const (
	MaxBeatSpeedIndex = len(BeatSpeedTable) - 1
	MaxAlignmentIndex = len(alignmentTable) - 1
	MaxThresholdIndex = 64
	MaxShortLevel     = 256
	UnboundedBeats    = 999.0
)

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BeatSpeed returns the window length in ms for a beat speed index at bpm.
// Out-of-range indices are clamped to the table.
func BeatSpeed(bpm float64, index int) float64 {
	index = Clamp(index, 0, MaxBeatSpeedIndex)
	return 60000 / bpm * BeatSpeedTable[index]
}

// ConvertTime returns the key-count segmentation window: beat speed minus
// 10 ms, never below 1 ms.
func ConvertTime(bpm float64, index int) float64 {
	return max(1, BeatSpeed(bpm, index)-10)
}

// DoublePlayConvertTime returns the window shared by both double-play sides.
func DoublePlayConvertTime(bpm float64) float64 {
	return 60000/bpm*2 + 10
}

// DeriveSeed derives a positive seed from chart content.
func DeriveSeed(noteCount, columnCount int) int64 {
	s := int64(noteCount ^ columnCount)
	if s < 0 {
		s = -s
	}
	// -MinInt64 is still negative.
	if s <= 0 {
		return FallbackSeed
	}
	return s
}

// ResolveSeed returns *seed when set, otherwise the derived seed.
func ResolveSeed(seed *int64, noteCount, columnCount int) int64 {
	if seed != nil {
		return *seed
	}
	return DeriveSeed(noteCount, columnCount)
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// ThresholdBeats maps a length threshold index to a beat count.
func ThresholdBeats(index int) float64 {
	switch {
	case index <= 0:
		return 0
	case index <= MaxThresholdIndex:
		return float64(index) / 4
	default:
		return UnboundedBeats
	}
}

// ShortLevelBeats maps a short level (0..256) to a beat count in 1/16 steps.
func ShortLevelBeats(level int) float64 {
	return float64(Clamp(level, 0, MaxShortLevel)) / 16
}

// AlignmentFraction maps an alignment index to a beat fraction; 0 means no
// alignment.
func AlignmentFraction(index int) float64 {
	if index <= 0 || index > MaxAlignmentIndex {
		return 0
	}
	return alignmentTable[index]
}

// AlignDown snaps length down to a multiple of beatLength*fraction. A
// non-positive step leaves length unchanged.
func AlignDown(length, beatLength, fraction float64) float64 {
	step := beatLength * fraction
	if step <= 0 {
		return length
	}
	return math.Floor(length/step) * step
}

// BoundedRandom draws an integer length from [d, u] whose mode sits at m.
// p (0..100) controls how far the draw may wander from m; folds uniform
// samples are averaged to bunch draws toward the centre.
func BoundedRandom(r *rand.Rand, d, u, m, p float64, folds int) int {
	if d > u {
		d, u = u, d
	}
	m = Clamp(m, d, u)
	if p <= 0 {
		return int(math.Floor(m))
	}
	frac := min(p, 100) / 100
	lo := Clamp(m-(m-d)*frac, d, u)
	hi := Clamp(m+(u-m)*frac, d, u)

	folds = max(folds, 1)
	var s float64
	for i := 0; i < folds; i++ {
		s += r.Float64()
	}
	s /= float64(folds)

	var v float64
	if s < 0.5 {
		v = lo + (m-lo)*(s/0.5)
	} else {
		v = m + (hi-m)*((s-0.5)/0.5)
	}
	lo, hi = math.Ceil(d), math.Floor(u)
	if lo > hi {
		return int(math.Floor(m))
	}
	return int(Clamp(math.Floor(v), lo, hi))
}
