package model

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/banshee-data/prognostics/internal/schema"
)

// Piecewise builds a LoadFunc from a list of breakpoint times and the input
// value held until each breakpoint. Each input key needs the same number of
// values as times, or one more; the extra value is the default applied
// after the last breakpoint.
func Piecewise(inputs *schema.Schema, times []float64, values map[string][]float64) (LoadFunc, error) {
	if !sort.Float64sAreSorted(times) {
		return nil, fmt.Errorf("piecewise: times must be increasing")
	}
	table := make([][]float64, inputs.Len())
	for i := 0; i < inputs.Len(); i++ {
		key := inputs.Key(i)
		vals, ok := values[key]
		if !ok {
			return nil, fmt.Errorf("%w: input %q", schema.ErrKeyNotFound, key)
		}
		if len(vals) != len(times) && len(vals) != len(times)+1 {
			return nil, fmt.Errorf("piecewise: input %q has %d values for %d times", key, len(vals), len(times))
		}
		table[i] = vals
	}
	return func(t float64, _ []float64) []float64 {
		// The first breakpoint at or after t selects the value slot; a
		// value applies through its own breakpoint.
		j := sort.SearchFloat64s(times, t)
		u := make([]float64, len(table))
		for i, vals := range table {
			k := j
			if k >= len(vals) {
				k = len(vals) - 1
			}
			u[i] = vals[k]
		}
		return u
	}, nil
}

// GaussianNoise wraps a loading function with additive Gaussian noise on
// every input channel. The standard deviation may grow linearly with time
// (StdSlope) from T0 onward. The wrapper owns its generator, so a fixed
// seed reproduces the same load sequence.
type GaussianNoise struct {
	fn       LoadFunc
	std      float64
	stdSlope float64
	t0       float64
	rng      *rand.Rand
}

// NewGaussianNoise wraps fn with noise of the given standard deviation,
// drawn from rng.
func NewGaussianNoise(fn LoadFunc, std float64, rng *rand.Rand) *GaussianNoise {
	return &GaussianNoise{fn: fn, std: std, rng: rng}
}

// WithSlope sets a linear growth rate for the standard deviation starting
// at t0 and returns the wrapper.
func (g *GaussianNoise) WithSlope(slope, t0 float64) *GaussianNoise {
	g.stdSlope = slope
	g.t0 = t0
	return g
}

// Load is the wrapped LoadFunc.
func (g *GaussianNoise) Load(t float64, x []float64) []float64 {
	u := g.fn(t, x)
	std := g.std
	if g.stdSlope != 0 && t > g.t0 {
		std += g.stdSlope * (t - g.t0)
	}
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = v + std*g.rng.NormFloat64()
	}
	return out
}
