package convutil

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/starford/keyshift/internal/matrix"
)

// Weight of the random term in the percentage filter score.
const randomScoreWeight = 0.7

// FilterPercentage keeps roughly percent% of the true cells in every row and
// clears the rest. The fractional part of each row's quota carries into the
// next row so the overall fraction holds on sparse charts. Survivors are the
// highest scoring cells, where the score blends a random draw with the
// cell's weight normalized within its row. weights may be nil.
func FilterPercentage(r *rand.Rand, flags *matrix.BoolMatrix, weights *matrix.RealMatrix, percent float64) {
	if percent >= 100 {
		return
	}
	var carry float64
	for row := 0; row < flags.Rows(); row++ {
		cand := flags.RowTrue(row)
		if len(cand) == 0 {
			continue
		}
		want := float64(len(cand))*max(percent, 0)/100 + carry
		keep := int(math.Floor(want))
		carry = want - float64(keep)
		keep = Clamp(keep, 0, len(cand))

		var maxW float64
		if weights != nil {
			for _, c := range cand {
				maxW = max(maxW, weights.At(row, c))
			}
		}
		scores := make([]float64, len(cand))
		for i, c := range cand {
			det := 0.5
			if maxW > 0 {
				det = weights.At(row, c) / maxW
			}
			scores[i] = randomScoreWeight*r.Float64() + (1-randomScoreWeight)*det
		}

		order := make([]int, len(cand))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]] > scores[order[b]]
		})
		for _, i := range order[keep:] {
			flags.Set(row, cand[i], false)
		}
	}
}

// LimitPerRow keeps at most limit true cells per row, chosen at random.
// A limit <= 0 leaves the matrix untouched.
func LimitPerRow(r *rand.Rand, flags *matrix.BoolMatrix, limit int) {
	if limit <= 0 {
		return
	}
	for row := 0; row < flags.Rows(); row++ {
		cand := flags.RowTrue(row)
		if len(cand) <= limit {
			continue
		}
		r.Shuffle(len(cand), func(i, j int) { cand[i], cand[j] = cand[j], cand[i] })
		for _, c := range cand[limit:] {
			flags.Set(row, c, false)
		}
	}
}
