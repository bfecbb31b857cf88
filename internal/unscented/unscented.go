// Package unscented implements Merwe scaled sigma points and the unscented
// transform shared by the unscented Kalman filter and the
// unscented-transform predictor.
package unscented

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularCovariance is wrapped by errors surfaced from a failed
// covariance factorisation. It is not repaired internally; the caller
// decides whether to retry with different conditioning.
var ErrSingularCovariance = fmt.Errorf("covariance is not positive definite")

// Points generates 2n+1 scaled sigma points for an n-dimensional state.
// Alpha controls the spread around the mean, Beta weights higher-order
// moments (2 is optimal for Gaussian priors), and Kappa is a secondary
// scaling term.
type Points struct {
	n     int
	gamma float64
	wm    []float64
	wc    []float64
}

// New builds a sigma-point generator for dimension n. n+lambda must be
// positive, where lambda = alpha^2 (n+kappa) - n.
func New(n int, alpha, beta, kappa float64) (*Points, error) {
	if n <= 0 {
		return nil, fmt.Errorf("unscented: dimension must be positive, was %d", n)
	}
	if alpha <= 0 {
		return nil, fmt.Errorf("unscented: alpha must be positive, was %g", alpha)
	}
	lambda := alpha*alpha*(float64(n)+kappa) - float64(n)
	if float64(n)+lambda <= 0 {
		return nil, fmt.Errorf("unscented: n+lambda must be positive (n=%d, lambda=%g)", n, lambda)
	}
	count := 2*n + 1
	wm := make([]float64, count)
	wc := make([]float64, count)
	wm[0] = lambda / (float64(n) + lambda)
	wc[0] = wm[0] + 1 - alpha*alpha + beta
	w := 1 / (2 * (float64(n) + lambda))
	for i := 1; i < count; i++ {
		wm[i] = w
		wc[i] = w
	}
	return &Points{
		n:     n,
		gamma: math.Sqrt(float64(n) + lambda),
		wm:    wm,
		wc:    wc,
	}, nil
}

// Num returns the number of sigma points (2n+1).
func (p *Points) Num() int { return 2*p.n + 1 }

// Dim returns the state dimension n.
func (p *Points) Dim() int { return p.n }

// WeightsMean returns the mean-recombination weights.
func (p *Points) WeightsMean() []float64 { return p.wm }

// WeightsCov returns the covariance-recombination weights.
func (p *Points) WeightsCov() []float64 { return p.wc }

// Generate returns the sigma points for the given mean and covariance:
// the mean itself, then mean +/- gamma * L_i for each column L_i of the
// Cholesky factor. A covariance that fails to factorise surfaces as
// ErrSingularCovariance.
func (p *Points) Generate(mean []float64, cov mat.Symmetric) ([][]float64, error) {
	if len(mean) != p.n || cov.SymmetricDim() != p.n {
		return nil, fmt.Errorf("unscented: mean/covariance dimension mismatch (want %d)", p.n)
	}
	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, fmt.Errorf("unscented: %w", ErrSingularCovariance)
	}
	l := mat.NewTriDense(p.n, mat.Lower, nil)
	chol.LTo(l)

	pts := make([][]float64, p.Num())
	pts[0] = append([]float64(nil), mean...)
	for i := 0; i < p.n; i++ {
		plus := make([]float64, p.n)
		minus := make([]float64, p.n)
		for j := 0; j < p.n; j++ {
			d := p.gamma * l.At(j, i)
			plus[j] = mean[j] + d
			minus[j] = mean[j] - d
		}
		pts[1+i] = plus
		pts[1+p.n+i] = minus
	}
	return pts, nil
}

// Transform recombines transformed points into a mean and covariance using
// the supplied weights. The points need not have the generator's
// dimension: any transformation of the sigma points may be recombined.
func Transform(pts [][]float64, wm, wc []float64) ([]float64, *mat.SymDense) {
	d := len(pts[0])
	mean := make([]float64, d)
	for i, pt := range pts {
		for j := 0; j < d; j++ {
			mean[j] += wm[i] * pt[j]
		}
	}
	cov := mat.NewSymDense(d, nil)
	diff := make([]float64, d)
	for i, pt := range pts {
		for j := 0; j < d; j++ {
			diff[j] = pt[j] - mean[j]
		}
		for j := 0; j < d; j++ {
			for k := j; k < d; k++ {
				cov.SetSym(j, k, cov.At(j, k)+wc[i]*diff[j]*diff[k])
			}
		}
	}
	return mean, cov
}

// CrossCovariance recombines paired point sets into the weighted cross
// covariance between their deviations from the supplied means.
func CrossCovariance(xs, ys [][]float64, xMean, yMean, wc []float64) *mat.Dense {
	nx, ny := len(xMean), len(yMean)
	out := mat.NewDense(nx, ny, nil)
	for i := range xs {
		for j := 0; j < nx; j++ {
			dx := xs[i][j] - xMean[j]
			for k := 0; k < ny; k++ {
				out.Set(j, k, out.At(j, k)+wc[i]*dx*(ys[i][k]-yMean[k]))
			}
		}
	}
	return out
}
