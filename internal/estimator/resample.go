package estimator

import (
	"math"
	"math/rand/v2"
)

// ResampleFunc draws len(weights) indices with replacement according to
// the normalised weights.
type ResampleFunc func(weights []float64, rng *rand.Rand) []int

// ResidualResample is the default resampling scheme. Each particle is
// first copied floor(N w) times deterministically; the remaining slots are
// filled multinomially from the fractional residuals. Compared to plain
// multinomial resampling this reduces resampling variance.
func ResidualResample(weights []float64, rng *rand.Rand) []int {
	n := len(weights)
	idx := make([]int, 0, n)
	residual := make([]float64, n)
	var residualTotal float64
	for i, w := range weights {
		copies := math.Floor(w * float64(n))
		for c := 0; c < int(copies); c++ {
			idx = append(idx, i)
		}
		residual[i] = w*float64(n) - copies
		residualTotal += residual[i]
	}
	for len(idx) < n {
		idx = append(idx, sampleIndex(residual, residualTotal, rng))
	}
	return idx
}

// MultinomialResample draws every index independently according to the
// weights.
func MultinomialResample(weights []float64, rng *rand.Rand) []int {
	var total float64
	for _, w := range weights {
		total += w
	}
	idx := make([]int, len(weights))
	for i := range idx {
		idx[i] = sampleIndex(weights, total, rng)
	}
	return idx
}

func sampleIndex(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	target := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}
