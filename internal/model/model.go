// Package model defines the contract consumed from a dynamic-system
// collaborator: declared state/input/output/event schemas, state
// transition, output and event-threshold functions, plus the
// threshold-aware simulation driver shared by the predictors.
//
// Models are deterministic; stochasticity is injected from outside through
// a StepNoise hook or a filter's noise covariance, never by the model
// itself. This keeps repeated propagation of the same state reproducible
// and safe to parallelise.
package model

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

var (
	// ErrUnknownEvent is wrapped by errors reporting an event name the
	// model does not declare.
	ErrUnknownEvent = fmt.Errorf("unknown event")

	// ErrNoTermination is returned when a simulation or prediction has
	// neither events nor a horizon to stop on.
	ErrNoTermination = fmt.Errorf("no events and no horizon: simulation would never terminate")
)

// Model is a dynamic system with named states, inputs, outputs and events.
// All vectors are ordered by the corresponding schema.
type Model interface {
	States() *schema.Schema
	Inputs() *schema.Schema
	Outputs() *schema.Schema
	Events() *schema.Schema

	// Initialize returns the initial state, optionally conditioned on a
	// first input and output (either may be nil).
	Initialize(u, z []float64) []float64

	// NextState advances the state by dt under input u.
	NextState(x, u []float64, dt float64) []float64

	// Output computes the measurable output for a state.
	Output(x []float64) []float64

	// EventState returns, per event, a value in [0,1]: 1 far from the
	// event, 0 at or past its threshold.
	EventState(x []float64) []float64

	// ThresholdMet reports, per event, whether the threshold has been
	// crossed.
	ThresholdMet(x []float64) []bool
}

// Batch is an optional capability: a model that can advance many states in
// one call. Predictors and the particle filter detect it once, at
// construction, and bind the batched propagation strategy instead of the
// per-state loop.
type Batch interface {
	// NextStateBatch advances every state in xs by dt under the shared
	// input u, returning the advanced states.
	NextStateBatch(xs [][]float64, u []float64, dt float64) [][]float64
}

// Linear is a model exposing a continuous linear state-space description:
//
//	dx/dt = A x + B u + E
//	z     = C x + D
//
// The Kalman filter accepts only Linear models.
type Linear interface {
	Model

	StateMatrix() mat.Matrix  // A, n x n
	InputMatrix() mat.Matrix  // B, n x m (m may be 0)
	Drift() mat.Vector        // E, n x 1
	OutputMatrix() mat.Matrix // C, p x n
	OutputOffset() mat.Vector // D, p x 1
}

// LoadFunc produces the input vector applied to the system at time t.
// The current mean state x may be nil when no state estimate is available.
type LoadFunc func(t float64, x []float64) []float64

// StepNoise perturbs a state in place after each integration step of
// length dt. A nil StepNoise means noise-free propagation.
type StepNoise func(x []float64, dt float64)

// GaussianStepNoise returns a StepNoise adding independent zero-mean
// Gaussian increments with per-state standard deviation std, scaled by the
// step size.
func GaussianStepNoise(rng *rand.Rand, std []float64) StepNoise {
	return func(x []float64, dt float64) {
		for i, s := range std {
			if s > 0 {
				x[i] += dt * s * rng.NormFloat64()
			}
		}
	}
}

// ConstantStepNoise draws one Gaussian increment per state up front and
// applies the same increment at every step. Used for the
// constant-noise-per-realisation prediction mode: the draw is owned by the
// caller, so concurrent realisations never share mutable noise state.
func ConstantStepNoise(rng *rand.Rand, std []float64) StepNoise {
	increment := make([]float64, len(std))
	for i, s := range std {
		if s > 0 {
			increment[i] = s * rng.NormFloat64()
		}
	}
	return func(x []float64, dt float64) {
		for i, n := range increment {
			x[i] += dt * n
		}
	}
}

// ResolveEvents maps requested event names to indices in the model's event
// schema. A nil request selects every declared event; an explicitly empty
// request selects none.
func ResolveEvents(m Model, names []string) ([]int, error) {
	events := m.Events()
	if names == nil {
		idx := make([]int, events.Len())
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, 0, len(names))
	for _, name := range names {
		i := events.Index(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
		}
		idx = append(idx, i)
	}
	return idx, nil
}
