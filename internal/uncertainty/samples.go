package uncertainty

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/prognostics/internal/schema"
)

// Samples is an unweighted empirical distribution: an ordered, mutable set
// of realisations aligned to a schema. Individual entries may be NaN,
// marking an unresolved value for that realisation.
type Samples struct {
	sch    *schema.Schema
	points [][]float64
}

// NewSamples builds a Samples distribution from schema-ordered points.
// Each point must match the schema length. The points are copied.
func NewSamples(sch *schema.Schema, points [][]float64) (*Samples, error) {
	data := make([][]float64, len(points))
	for i, p := range points {
		if len(p) != sch.Len() {
			return nil, fmt.Errorf("samples: point %d has %d values for %d keys", i, len(p), sch.Len())
		}
		cp := make([]float64, len(p))
		copy(cp, p)
		data[i] = cp
	}
	return &Samples{sch: sch, points: data}, nil
}

// NewSamplesFromMaps builds a Samples distribution from labelled maps.
func NewSamplesFromMaps(sch *schema.Schema, maps []map[string]float64) (*Samples, error) {
	points := make([][]float64, len(maps))
	for i, m := range maps {
		v, err := sch.Vector(m)
		if err != nil {
			return nil, fmt.Errorf("samples: point %d: %w", i, err)
		}
		points[i] = v
	}
	return &Samples{sch: sch, points: points}, nil
}

// Schema returns the key set.
func (s *Samples) Schema() *schema.Schema { return s.sch }

// Len returns the number of stored realisations.
func (s *Samples) Len() int { return len(s.points) }

// Point returns a copy of the i-th realisation in schema order.
func (s *Samples) Point(i int) []float64 {
	out := make([]float64, len(s.points[i]))
	copy(out, s.points[i])
	return out
}

// Append adds a realisation. The point must match the schema length.
func (s *Samples) Append(point []float64) error {
	if len(point) != s.sch.Len() {
		return fmt.Errorf("samples: point has %d values for %d keys", len(point), s.sch.Len())
	}
	cp := make([]float64, len(point))
	copy(cp, point)
	s.points = append(s.points, cp)
	return nil
}

// Values returns the stored values for one key, in insertion order.
// NaN entries are included.
func (s *Samples) Values(key string) ([]float64, error) {
	idx := s.sch.Index(key)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", schema.ErrKeyNotFound, key)
	}
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p[idx]
	}
	return out, nil
}

// Mean returns the per-key average over stored points. NaN entries are
// excluded per key; a key with no resolved values yields NaN.
func (s *Samples) Mean() map[string]float64 {
	out := make(map[string]float64, s.sch.Len())
	for j := 0; j < s.sch.Len(); j++ {
		var resolved []float64
		for _, p := range s.points {
			if !math.IsNaN(p[j]) {
				resolved = append(resolved, p[j])
			}
		}
		if len(resolved) == 0 {
			out[s.sch.Key(j)] = math.NaN()
			continue
		}
		out[s.sch.Key(j)] = stat.Mean(resolved, nil)
	}
	return out
}

// Median returns the geometric median: the stored point minimising the
// total squared distance to all other points. O(n^2) in the number of
// points, which is acceptable at typical particle counts. Points
// containing NaN are skipped.
func (s *Samples) Median() map[string]float64 {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range s.points {
		if hasNaN(p) {
			continue
		}
		var total float64
		for _, q := range s.points {
			if hasNaN(q) {
				continue
			}
			for j := range p {
				d := p[j] - q[j]
				total += d * d
			}
		}
		if total < bestDist {
			bestDist = total
			best = i
		}
	}
	if best < 0 {
		nan := make([]float64, s.sch.Len())
		for i := range nan {
			nan[i] = math.NaN()
		}
		return s.sch.Map(nan)
	}
	return s.sch.Map(s.points[best])
}

// Cov returns the empirical covariance matrix over stored points, computed
// from the points that contain no NaN entries.
func (s *Samples) Cov() *mat.SymDense {
	d := s.sch.Len()
	cov := mat.NewSymDense(d, nil)
	var rows [][]float64
	for _, p := range s.points {
		if !hasNaN(p) {
			rows = append(rows, p)
		}
	}
	if len(rows) < 2 {
		return cov
	}
	flat := make([]float64, 0, len(rows)*d)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	stat.CovarianceMatrix(cov, mat.NewDense(len(rows), d, flat), nil)
	return cov
}

// Sample draws n points with replacement from the stored set.
func (s *Samples) Sample(rng *rand.Rand, n int) (*Samples, error) {
	if n <= 0 {
		return nil, fmt.Errorf("samples: sample count must be positive, was %d", n)
	}
	if len(s.points) == 0 {
		return nil, ErrEmptyDistribution
	}
	points := make([][]float64, n)
	for i := range points {
		points[i] = s.Point(rng.IntN(len(s.points)))
	}
	return &Samples{sch: s.sch, points: points}, nil
}

// Shift returns a Samples distribution with every resolved value moved by
// delta. NaN entries stay NaN.
func (s *Samples) Shift(delta float64) Distribution {
	points := make([][]float64, len(s.points))
	for i, p := range s.points {
		cp := make([]float64, len(p))
		for j, v := range p {
			cp[j] = v + delta
		}
		points[i] = cp
	}
	return &Samples{sch: s.sch, points: points}
}

// PercentageInBounds evaluates bounds directly over the stored points.
// NaN entries count as out of bounds; the denominator is always the total
// point count.
func (s *Samples) PercentageInBounds(_ *rand.Rand, bounds map[string]Bounds) (map[string]float64, error) {
	if len(s.points) == 0 {
		return nil, ErrEmptyDistribution
	}
	out := make(map[string]float64)
	for j := 0; j < s.sch.Len(); j++ {
		key := s.sch.Key(j)
		b, ok := boundsFor(bounds, key)
		if !ok {
			continue
		}
		in := 0
		for _, p := range s.points {
			if b.Contains(p[j]) {
				in++
			}
		}
		out[key] = float64(in) / float64(len(s.points))
	}
	return out, nil
}

func hasNaN(p []float64) bool {
	for _, v := range p {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
