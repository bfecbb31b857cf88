// Package estimator provides Bayesian state estimators: a Kalman filter
// for linear models, an unscented Kalman filter for nonlinear models, and
// a particle filter. Each maintains a belief over the current model state
// and refines it from (input, output) measurement pairs.
package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/schema"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// ErrTimeOrder is wrapped by errors reporting an estimate call at a time
// not strictly after the estimator's clock. This is a programming error in
// the caller's measurement feed and is never retried internally.
var ErrTimeOrder = fmt.Errorf("estimation time must be strictly increasing")

// DefaultT0 is the default initial clock: infinitesimally before zero so
// the first measurement may arrive at t=0.
const DefaultT0 = -1e-10

// Estimator is a Bayesian state estimator. Estimate mutates the belief in
// place; State returns the current belief.
type Estimator interface {
	// Estimate performs one estimation step at time t from the measured
	// input u and output z, both labelled by the model's schemas.
	// t must be strictly greater than Time().
	Estimate(t float64, u, z map[string]float64) error

	// State returns the current belief over the model state.
	State() uncertainty.Distribution

	// Time returns the estimator's clock: the time of the last estimate.
	Time() float64
}

// checkTime validates the time-ordering invariant shared by all
// estimators.
func checkTime(clock, t float64) error {
	if t <= clock {
		return fmt.Errorf("%w: t=%g, clock=%g", ErrTimeOrder, t, clock)
	}
	return nil
}

// substep returns the next integration step: no larger than maxStep and
// never overshooting the target time.
func substep(clock, target, maxStep float64) float64 {
	dt := target - clock
	if maxStep > 0 && dt > maxStep {
		dt = maxStep
	}
	return dt
}

// beliefVector extracts the mean and covariance of an initial belief,
// reordered to the model's state schema. Every state key must be present
// in the belief.
func beliefVector(states *schema.Schema, x0 uncertainty.Distribution) ([]float64, *mat.SymDense, error) {
	from := x0.Schema()
	mapping := make([]int, states.Len())
	for i := 0; i < states.Len(); i++ {
		key := states.Key(i)
		j := from.Index(key)
		if j < 0 {
			return nil, nil, fmt.Errorf("%w: initial state missing key %q", schema.ErrKeyNotFound, key)
		}
		mapping[i] = j
	}
	mean, err := states.Vector(x0.Mean())
	if err != nil {
		return nil, nil, err
	}
	srcCov := x0.Cov()
	cov := mat.NewSymDense(states.Len(), nil)
	for i := range mapping {
		for j := i; j < len(mapping); j++ {
			cov.SetSym(i, j, srcCov.At(mapping[i], mapping[j]))
		}
	}
	return mean, cov, nil
}

// defaultCovariance returns a diagonal matrix with the given variance,
// used when a noise matrix is not configured.
func defaultCovariance(n int, variance float64) *mat.SymDense {
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, variance)
	}
	return cov
}

// inputVector converts a labelled input map to a vector, tolerating models
// with no inputs.
func inputVector(m model.Model, u map[string]float64) ([]float64, error) {
	if m.Inputs().Len() == 0 {
		return nil, nil
	}
	return m.Inputs().Vector(u)
}
