package predict

import (
	"fmt"
	"math"

	"github.com/banshee-data/prognostics/internal/schema"
	"github.com/banshee-data/prognostics/internal/uncertainty"
	"github.com/banshee-data/prognostics/internal/unscented"
)

// Series is a sequence of state-of-knowledge snapshots over a prediction's
// save-time grid.
type Series interface {
	Len() int
	Time(i int) float64
	Snapshot(i int) (uncertainty.Distribution, error)
}

// sampleSeries aligns per-realisation trajectories on a shared grid. A
// realisation that ended before grid point i contributes a NaN row to the
// snapshot there.
type sampleSeries struct {
	sch   *schema.Schema
	times []float64
	grids [][][]float64 // realisation -> local grid index -> vector
}

func (s *sampleSeries) Len() int           { return len(s.times) }
func (s *sampleSeries) Time(i int) float64 { return s.times[i] }

func (s *sampleSeries) Snapshot(i int) (uncertainty.Distribution, error) {
	if i < 0 || i >= len(s.times) {
		return nil, fmt.Errorf("predict: snapshot index %d out of range [0,%d)", i, len(s.times))
	}
	points := make([][]float64, len(s.grids))
	for r, grid := range s.grids {
		row := make([]float64, s.sch.Len())
		if i < len(grid) {
			copy(row, grid[i])
		} else {
			for j := range row {
				row[j] = math.NaN()
			}
		}
		points[r] = row
	}
	return uncertainty.NewSamples(s.sch, points)
}

// distSeries is an eager series of prebuilt snapshots.
type distSeries struct {
	times []float64
	dists []uncertainty.Distribution
}

func (s *distSeries) Len() int           { return len(s.times) }
func (s *distSeries) Time(i int) float64 { return s.times[i] }

func (s *distSeries) Snapshot(i int) (uncertainty.Distribution, error) {
	if i < 0 || i >= len(s.dists) {
		return nil, fmt.Errorf("predict: snapshot index %d out of range [0,%d)", i, len(s.dists))
	}
	return s.dists[i], nil
}

// transformSeries derives snapshots on demand from a Gaussian state series:
// sigma points are regenerated from the state at grid point i, pushed
// through fn, and recombined into a Gaussian over the out schema. Computed
// snapshots are cached.
type transformSeries struct {
	states *distSeries
	pts    *unscented.Points
	fn     func(x []float64) []float64
	out    *schema.Schema
	cache  []uncertainty.Distribution
}

func newTransformSeries(states *distSeries, pts *unscented.Points, out *schema.Schema, fn func([]float64) []float64) *transformSeries {
	return &transformSeries{
		states: states,
		pts:    pts,
		fn:     fn,
		out:    out,
		cache:  make([]uncertainty.Distribution, states.Len()),
	}
}

func (s *transformSeries) Len() int           { return s.states.Len() }
func (s *transformSeries) Time(i int) float64 { return s.states.Time(i) }

func (s *transformSeries) Snapshot(i int) (uncertainty.Distribution, error) {
	if i < 0 || i >= len(s.cache) {
		return nil, fmt.Errorf("predict: snapshot index %d out of range [0,%d)", i, len(s.cache))
	}
	if s.cache[i] != nil {
		return s.cache[i], nil
	}
	state, err := s.states.Snapshot(i)
	if err != nil {
		return nil, err
	}
	normal, ok := state.(*uncertainty.MultivariateNormal)
	if !ok {
		return nil, fmt.Errorf("predict: transform series needs Gaussian states, have %T", state)
	}
	sigma, err := s.pts.Generate(normal.MeanVector(), normal.Cov())
	if err != nil {
		return nil, err
	}
	transformed := make([][]float64, len(sigma))
	for j, pt := range sigma {
		transformed[j] = s.fn(pt)
	}
	mean, cov := unscented.Transform(transformed, s.pts.WeightsMean(), s.pts.WeightsCov())
	dist, err := uncertainty.NewMultivariateNormal(s.out, mean, cov)
	if err != nil {
		return nil, err
	}
	s.cache[i] = dist
	return dist, nil
}
