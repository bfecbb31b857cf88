package uncertainty

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

// Scalar is a single deterministic vector: the degenerate distribution
// whose covariance is the zero matrix.
type Scalar struct {
	sch    *schema.Schema
	values []float64
}

// NewScalar builds a Scalar over the given schema. The value vector must
// match the schema length.
func NewScalar(sch *schema.Schema, values []float64) (*Scalar, error) {
	if len(values) != sch.Len() {
		return nil, fmt.Errorf("scalar: %d values for %d keys", len(values), sch.Len())
	}
	v := make([]float64, len(values))
	copy(v, values)
	return &Scalar{sch: sch, values: v}, nil
}

// NewScalarFromMap builds a Scalar from a labelled map. Every schema key
// must be present.
func NewScalarFromMap(sch *schema.Schema, m map[string]float64) (*Scalar, error) {
	v, err := sch.Vector(m)
	if err != nil {
		return nil, err
	}
	return &Scalar{sch: sch, values: v}, nil
}

// Schema returns the key set.
func (s *Scalar) Schema() *schema.Schema { return s.sch }

// Values returns a copy of the underlying vector in schema order.
func (s *Scalar) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Mean returns the stored vector.
func (s *Scalar) Mean() map[string]float64 { return s.sch.Map(s.values) }

// Median of a point mass is the point itself.
func (s *Scalar) Median() map[string]float64 { return s.Mean() }

// Cov returns the zero matrix.
func (s *Scalar) Cov() *mat.SymDense {
	return mat.NewSymDense(s.sch.Len(), nil)
}

// Sample returns n identical copies of the stored vector.
func (s *Scalar) Sample(_ *rand.Rand, n int) (*Samples, error) {
	if n <= 0 {
		return nil, fmt.Errorf("scalar: sample count must be positive, was %d", n)
	}
	points := make([][]float64, n)
	for i := range points {
		points[i] = s.Values()
	}
	return NewSamples(s.sch, points)
}

// Shift returns a Scalar with every value moved by delta.
func (s *Scalar) Shift(delta float64) Distribution {
	shifted := s.Values()
	for i := range shifted {
		shifted[i] += delta
	}
	return &Scalar{sch: s.sch, values: shifted}
}

// PercentageInBounds is exact for a point mass: 1 if the value is inside
// the bounds, 0 otherwise.
func (s *Scalar) PercentageInBounds(_ *rand.Rand, bounds map[string]Bounds) (map[string]float64, error) {
	out := make(map[string]float64)
	for i := 0; i < s.sch.Len(); i++ {
		key := s.sch.Key(i)
		b, ok := boundsFor(bounds, key)
		if !ok {
			continue
		}
		if b.Contains(s.values[i]) {
			out[key] = 1
		} else {
			out[key] = 0
		}
	}
	return out, nil
}
