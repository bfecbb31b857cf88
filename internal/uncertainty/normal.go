package uncertainty

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/prognostics/internal/schema"
)

// MultivariateNormal is a parametric Gaussian over a labelled vector.
type MultivariateNormal struct {
	sch  *schema.Schema
	mean []float64
	cov  *mat.SymDense
}

// NewMultivariateNormal builds a Gaussian from a schema-ordered mean and
// covariance. The covariance must be square with dimension matching the
// schema; it is assumed symmetric positive semi-definite by construction
// and is not verified.
func NewMultivariateNormal(sch *schema.Schema, mean []float64, cov *mat.SymDense) (*MultivariateNormal, error) {
	if len(mean) != sch.Len() {
		return nil, fmt.Errorf("normal: %d mean values for %d keys", len(mean), sch.Len())
	}
	if cov.SymmetricDim() != sch.Len() {
		return nil, fmt.Errorf("normal: covariance dimension %d for %d keys", cov.SymmetricDim(), sch.Len())
	}
	m := make([]float64, len(mean))
	copy(m, mean)
	c := mat.NewSymDense(sch.Len(), nil)
	c.CopySym(cov)
	return &MultivariateNormal{sch: sch, mean: m, cov: c}, nil
}

// Schema returns the key set.
func (n *MultivariateNormal) Schema() *schema.Schema { return n.sch }

// Mean returns the mean vector as a labelled map.
func (n *MultivariateNormal) Mean() map[string]float64 { return n.sch.Map(n.mean) }

// Median of a Gaussian equals its mean.
func (n *MultivariateNormal) Median() map[string]float64 { return n.Mean() }

// Cov returns a copy of the covariance matrix.
func (n *MultivariateNormal) Cov() *mat.SymDense {
	out := mat.NewSymDense(n.sch.Len(), nil)
	out.CopySym(n.cov)
	return out
}

// MeanVector returns a copy of the mean in schema order.
func (n *MultivariateNormal) MeanVector() []float64 {
	out := make([]float64, len(n.mean))
	copy(out, n.mean)
	return out
}

// Sample draws n realisations from the Gaussian. A positive-definite
// covariance is sampled through its Cholesky factor; a semi-definite one
// falls back to an eigendecomposition square root so degenerate
// distributions (for example a deterministic time-of-event) still sample.
func (n *MultivariateNormal) Sample(rng *rand.Rand, nSamples int) (*Samples, error) {
	if nSamples <= 0 {
		return nil, fmt.Errorf("normal: sample count must be positive, was %d", nSamples)
	}
	if containsNaN(n.mean) {
		// Unresolved distribution: every draw is unresolved too.
		points := make([][]float64, nSamples)
		for i := range points {
			p := make([]float64, len(n.mean))
			copy(p, n.mean)
			points[i] = p
		}
		return &Samples{sch: n.sch, points: points}, nil
	}

	points := make([][]float64, nSamples)
	if dist, ok := distmv.NewNormal(n.mean, n.cov, rng); ok {
		for i := range points {
			points[i] = dist.Rand(nil)
		}
		return &Samples{sch: n.sch, points: points}, nil
	}

	// Semi-definite covariance: mean + V sqrt(L) z with z standard normal.
	sqrtCov, err := symSqrt(n.cov)
	if err != nil {
		return nil, err
	}
	d := n.sch.Len()
	std := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	z := mat.NewVecDense(d, nil)
	for i := range points {
		for j := 0; j < d; j++ {
			z.SetVec(j, std.Rand())
		}
		var offset mat.VecDense
		offset.MulVec(sqrtCov, z)
		p := make([]float64, d)
		for j := 0; j < d; j++ {
			p[j] = n.mean[j] + offset.AtVec(j)
		}
		points[i] = p
	}
	return &Samples{sch: n.sch, points: points}, nil
}

// Shift returns a Gaussian with the mean moved by delta.
func (n *MultivariateNormal) Shift(delta float64) Distribution {
	mean := n.MeanVector()
	for i := range mean {
		mean[i] += delta
	}
	return &MultivariateNormal{sch: n.sch, mean: mean, cov: n.Cov()}
}

// PercentageInBounds is evaluated empirically over DefaultBoundsSamples
// draws.
func (n *MultivariateNormal) PercentageInBounds(rng *rand.Rand, bounds map[string]Bounds) (map[string]float64, error) {
	samples, err := n.Sample(rng, DefaultBoundsSamples)
	if err != nil {
		return nil, err
	}
	return samples.PercentageInBounds(rng, bounds)
}

// symSqrt computes a symmetric square root through an eigendecomposition,
// clamping small negative eigenvalues to zero.
func symSqrt(s *mat.SymDense) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(s, true) {
		return nil, fmt.Errorf("normal: eigendecomposition of covariance failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	d := len(vals)
	sqrtVals := mat.NewDiagDense(d, nil)
	for i, v := range vals {
		if v < 0 {
			v = 0
		}
		sqrtVals.SetDiag(i, math.Sqrt(v))
	}
	var out mat.Dense
	out.Mul(&vecs, sqrtVals)
	return &out, nil
}

func containsNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
