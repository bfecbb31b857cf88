package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/uncertainty"
	"github.com/banshee-data/prognostics/internal/unscented"
)

// UnscentedConfig configures an unscented Kalman filter.
type UnscentedConfig struct {
	T0      float64
	MaxStep float64       // Maximum integration sub-step (s); 0 = single step per estimate
	Alpha   float64       // Sigma-point spread
	Beta    float64       // Higher-order moment weighting
	Kappa   float64       // Secondary scaling
	Q       *mat.SymDense // Process noise covariance; nil = 1e-3 diagonal
	R       *mat.SymDense // Measurement noise covariance; nil = 1e-3 diagonal
}

// DefaultUnscentedConfig returns the default scaled sigma-point tuning.
func DefaultUnscentedConfig() UnscentedConfig {
	return UnscentedConfig{
		T0:    DefaultT0,
		Alpha: 1,
		Beta:  0,
		Kappa: -1,
	}
}

// Unscented is an unscented Kalman filter for nonlinear models. At each
// sub-step it propagates a deterministic set of sigma points through the
// model's state transition and recombines them into a Gaussian belief.
// The model is propagated noise-free: process noise is represented by Q,
// not by resimulated randomness.
type Unscented struct {
	m   model.Model
	cfg UnscentedConfig
	pts *unscented.Points

	clock float64
	x     []float64
	p     *mat.SymDense
}

// NewUnscented builds an unscented Kalman filter from a model and an
// initial belief covering every model state key.
func NewUnscented(m model.Model, x0 uncertainty.Distribution, cfg UnscentedConfig) (*Unscented, error) {
	n := m.States().Len()
	nOut := m.Outputs().Len()
	if cfg.Q == nil {
		cfg.Q = defaultCovariance(n, 1e-3)
	}
	if cfg.R == nil {
		cfg.R = defaultCovariance(nOut, 1e-3)
	}
	if cfg.Q.SymmetricDim() != n {
		return nil, fmt.Errorf("ukf: Q dimension %d for %d states", cfg.Q.SymmetricDim(), n)
	}
	if cfg.R.SymmetricDim() != nOut {
		return nil, fmt.Errorf("ukf: R dimension %d for %d outputs", cfg.R.SymmetricDim(), nOut)
	}
	pts, err := unscented.New(n, cfg.Alpha, cfg.Beta, cfg.Kappa)
	if err != nil {
		return nil, err
	}
	mean, cov, err := beliefVector(m.States(), x0)
	if err != nil {
		return nil, err
	}
	return &Unscented{
		m:     m,
		cfg:   cfg,
		pts:   pts,
		clock: cfg.T0,
		x:     mean,
		p:     cov,
	}, nil
}

// Time returns the filter clock.
func (u *Unscented) Time() float64 { return u.clock }

// State returns the belief as a multivariate normal over the model states.
func (u *Unscented) State() uncertainty.Distribution {
	dist, err := uncertainty.NewMultivariateNormal(u.m.States(), u.x, u.p)
	if err != nil {
		panic(err)
	}
	return dist
}

// Estimate advances the belief to time t in sub-steps no larger than the
// configured maximum, then corrects it with the measured output z.
func (u *Unscented) Estimate(t float64, uIn, z map[string]float64) error {
	if err := checkTime(u.clock, t); err != nil {
		return err
	}
	uVec, err := inputVector(u.m, uIn)
	if err != nil {
		return err
	}
	zVec, err := u.m.Outputs().Vector(z)
	if err != nil {
		return err
	}

	wm, wc := u.pts.WeightsMean(), u.pts.WeightsCov()

	for u.clock < t {
		dt := substep(u.clock, t, u.cfg.MaxStep)
		pts, err := u.pts.Generate(u.x, u.p)
		if err != nil {
			return fmt.Errorf("ukf predict: %w", err)
		}
		for i, pt := range pts {
			pts[i] = u.m.NextState(pt, uVec, dt)
		}
		mean, cov := unscented.Transform(pts, wm, wc)
		cov.AddSym(cov, u.cfg.Q)
		u.x, u.p = mean, cov
		u.clock += dt
	}
	u.clock = t

	// Measurement correction through the sigma points.
	pts, err := u.pts.Generate(u.x, u.p)
	if err != nil {
		return fmt.Errorf("ukf correct: %w", err)
	}
	zPts := make([][]float64, len(pts))
	for i, pt := range pts {
		zPts[i] = u.m.Output(pt)
	}
	zMean, s := unscented.Transform(zPts, wm, wc)
	s.AddSym(s, u.cfg.R)

	pxz := unscented.CrossCovariance(pts, zPts, u.x, zMean, wc)

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return fmt.Errorf("ukf: innovation covariance is singular: %w", err)
	}
	var gain mat.Dense
	gain.Mul(pxz, &sInv)

	inn := mat.NewVecDense(len(zVec), zVec)
	pred := mat.NewVecDense(len(zMean), zMean)
	inn.SubVec(inn, pred)

	var corr mat.VecDense
	corr.MulVec(&gain, inn)
	for i := range u.x {
		u.x[i] += corr.AtVec(i)
	}

	// P = P - K S K^T
	var ks, ksk mat.Dense
	ks.Mul(&gain, s)
	ksk.Mul(&ks, gain.T())
	var newP mat.Dense
	newP.Sub(u.p, &ksk)
	symCopy(u.p, &newP)

	return nil
}
