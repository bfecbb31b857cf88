package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// KalmanConfig configures a Kalman filter.
type KalmanConfig struct {
	T0      float64      // Initial clock; DefaultKalmanConfig uses DefaultT0
	MaxStep float64      // Maximum integration sub-step (s)
	Alpha   float64      // Fading-memory scale; 1 disables fading
	Q       *mat.SymDense // Process noise covariance (n states); nil = 1e-3 diagonal
	R       *mat.SymDense // Measurement noise covariance (p outputs); nil = 1e-3 diagonal
}

// DefaultKalmanConfig returns the default filter configuration.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		T0:      DefaultT0,
		MaxStep: 1,
		Alpha:   1,
	}
}

// Kalman is a Kalman filter for models exposing a linear state-space
// description. The continuous matrices are discretised per sub-step:
// F = I + A dt, and the drift term E is folded into the discretised input
// matrix as an always-one extra input channel.
type Kalman struct {
	m   model.Linear
	cfg KalmanConfig

	clock float64
	x     *mat.VecDense
	p     *mat.SymDense

	a  *mat.Dense // A, n x n
	be *mat.Dense // [B E], n x (m+1)
	c  *mat.Dense // C, p x n
	d  *mat.VecDense
}

// NewKalman builds a Kalman filter from a linear model and an initial
// belief. The belief must cover every model state key.
func NewKalman(m model.Linear, x0 uncertainty.Distribution, cfg KalmanConfig) (*Kalman, error) {
	n := m.States().Len()
	p := m.Outputs().Len()
	nInputs := m.Inputs().Len()
	if cfg.MaxStep <= 0 {
		return nil, fmt.Errorf("kalman: max step must be positive, was %g", cfg.MaxStep)
	}
	if cfg.Alpha <= 0 {
		return nil, fmt.Errorf("kalman: alpha must be positive, was %g", cfg.Alpha)
	}
	if cfg.Q == nil {
		cfg.Q = defaultCovariance(n, 1e-3)
	}
	if cfg.R == nil {
		cfg.R = defaultCovariance(p, 1e-3)
	}
	if cfg.Q.SymmetricDim() != n {
		return nil, fmt.Errorf("kalman: Q dimension %d for %d states", cfg.Q.SymmetricDim(), n)
	}
	if cfg.R.SymmetricDim() != p {
		return nil, fmt.Errorf("kalman: R dimension %d for %d outputs", cfg.R.SymmetricDim(), p)
	}

	mean, cov, err := beliefVector(m.States(), x0)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(n, n, nil)
	a.Copy(m.StateMatrix())
	be := mat.NewDense(n, nInputs+1, nil)
	if nInputs > 0 {
		be.Slice(0, n, 0, nInputs).(*mat.Dense).Copy(m.InputMatrix())
	}
	drift := m.Drift()
	for i := 0; i < n; i++ {
		be.Set(i, nInputs, drift.AtVec(i))
	}
	c := mat.NewDense(p, n, nil)
	c.Copy(m.OutputMatrix())
	d := mat.NewVecDense(p, nil)
	d.CopyVec(m.OutputOffset())

	return &Kalman{
		m:     m,
		cfg:   cfg,
		clock: cfg.T0,
		x:     mat.NewVecDense(n, mean),
		p:     cov,
		a:     a,
		be:    be,
		c:     c,
		d:     d,
	}, nil
}

// Time returns the filter clock.
func (k *Kalman) Time() float64 { return k.clock }

// State returns the belief as a multivariate normal over the model states.
func (k *Kalman) State() uncertainty.Distribution {
	dist, err := uncertainty.NewMultivariateNormal(k.m.States(), k.x.RawVector().Data, k.p)
	if err != nil {
		panic(err) // dimensions are fixed at construction
	}
	return dist
}

// Estimate advances the belief to time t and corrects it with the measured
// output z under input u. The sub-step never exceeds the configured
// maximum step, keeping discretisation stable for stiff models.
func (k *Kalman) Estimate(t float64, u, z map[string]float64) error {
	if err := checkTime(k.clock, t); err != nil {
		return err
	}
	uVec, err := inputVector(k.m, u)
	if err != nil {
		return err
	}
	zRaw, err := k.m.Outputs().Vector(z)
	if err != nil {
		return err
	}
	zVec := mat.NewVecDense(len(zRaw), zRaw)

	n := k.m.States().Len()
	ue := mat.NewVecDense(len(uVec)+1, append(append([]float64(nil), uVec...), 1))

	alphaSq := k.cfg.Alpha * k.cfg.Alpha
	for k.clock < t {
		dt := substep(k.clock, t, k.cfg.MaxStep)

		// F = I + A dt, Bd = [B E] dt
		var f mat.Dense
		f.Scale(dt, k.a)
		for i := 0; i < n; i++ {
			f.Set(i, i, f.At(i, i)+1)
		}
		var bd mat.Dense
		bd.Scale(dt, k.be)

		// x' = F x + Bd u
		var fx, bu mat.VecDense
		fx.MulVec(&f, k.x)
		bu.MulVec(&bd, ue)
		k.x.AddVec(&fx, &bu)

		// P' = alpha^2 F P F^T + Q
		var fp, fpf mat.Dense
		fp.Mul(&f, k.p)
		fpf.Mul(&fp, f.T())
		fpf.Scale(alphaSq, &fpf)
		fpf.Add(&fpf, k.cfg.Q)
		symCopy(k.p, &fpf)

		k.clock += dt
	}
	k.clock = t

	// Innovation: measured output minus predicted output, with the offset
	// D removed so the correction operates on z = C x.
	var pred mat.VecDense
	pred.MulVec(k.c, k.x)
	inn := mat.NewVecDense(zVec.Len(), nil)
	inn.SubVec(zVec, k.d)
	inn.SubVec(inn, &pred)

	// S = C P C^T + R
	var cp, s mat.Dense
	cp.Mul(k.c, k.p)
	s.Mul(&cp, k.c.T())
	s.Add(&s, k.cfg.R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("kalman: innovation covariance is singular: %w", err)
	}

	// K = P C^T S^-1
	var pct, gain mat.Dense
	pct.Mul(k.p, k.c.T())
	gain.Mul(&pct, &sInv)

	// x = x + K innovation
	var corr mat.VecDense
	corr.MulVec(&gain, inn)
	k.x.AddVec(k.x, &corr)

	// P = (I - K C) P
	var kc mat.Dense
	kc.Mul(&gain, k.c)
	ikc := identity(n)
	ikc.Sub(ikc, &kc)
	var newP mat.Dense
	newP.Mul(ikc, k.p)
	symCopy(k.p, &newP)

	return nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// symCopy copies a nearly-symmetric matrix into a SymDense, averaging the
// off-diagonal pairs to absorb floating-point asymmetry.
func symCopy(dst *mat.SymDense, src mat.Matrix) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, (src.At(i, j)+src.At(j, i))/2)
		}
	}
}
