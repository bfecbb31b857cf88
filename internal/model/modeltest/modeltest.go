// Package modeltest provides small reference models used by the estimator
// and predictor tests and by the demo CLI. They are intentionally simple
// enough that event times have closed forms.
package modeltest

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

const g = -9.81

// ThrownObject models an object thrown straight up from thrower height:
// dx/dt = v, dv/dt = g. Events are "falling" (apex passed) and "impact"
// (returned to the ground). It supports batched propagation.
type ThrownObject struct {
	X0 float64 // Initial height (m)
	V0 float64 // Initial velocity (m/s)

	states  *schema.Schema
	inputs  *schema.Schema
	outputs *schema.Schema
	events  *schema.Schema
}

// NewThrownObject returns the model with the reference throw: 1.83 m
// release height, 40 m/s upward.
func NewThrownObject() *ThrownObject {
	return &ThrownObject{
		X0:      1.83,
		V0:      40,
		states:  schema.New("x", "v"),
		inputs:  schema.New(),
		outputs: schema.New("x"),
		events:  schema.New("falling", "impact"),
	}
}

func (m *ThrownObject) States() *schema.Schema  { return m.states }
func (m *ThrownObject) Inputs() *schema.Schema  { return m.inputs }
func (m *ThrownObject) Outputs() *schema.Schema { return m.outputs }
func (m *ThrownObject) Events() *schema.Schema  { return m.events }

func (m *ThrownObject) Initialize(_, _ []float64) []float64 {
	return []float64{m.X0, m.V0}
}

func (m *ThrownObject) NextState(x, _ []float64, dt float64) []float64 {
	return []float64{x[0] + x[1]*dt, x[1] + g*dt}
}

func (m *ThrownObject) NextStateBatch(xs [][]float64, _ []float64, dt float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = []float64{x[0] + x[1]*dt, x[1] + g*dt}
	}
	return out
}

func (m *ThrownObject) Output(x []float64) []float64 {
	return []float64{x[0]}
}

// apex is the maximum height of the reference throw, used to normalise the
// impact event state.
func (m *ThrownObject) apex() float64 {
	return m.X0 - m.V0*m.V0/(2*g)
}

func (m *ThrownObject) EventState(x []float64) []float64 {
	falling := math.Max(x[1]/m.V0, 0)
	var impact float64
	switch {
	case x[0] <= 0:
		impact = 0
	case x[1] > 0:
		impact = 1
	default:
		impact = math.Max(x[0]/m.apex(), 0)
	}
	return []float64{falling, impact}
}

func (m *ThrownObject) ThresholdMet(x []float64) []bool {
	return []bool{x[1] < 0, x[0] <= 0}
}

// ImpactTime returns the closed-form impact time of the reference throw:
// the positive root of x0 + v0 t + g t^2 / 2 = 0.
func (m *ThrownObject) ImpactTime() float64 {
	return (-m.V0 - math.Sqrt(m.V0*m.V0-2*g*m.X0)) / g
}

// LinearThrownObject is the same dynamics exposed through the linear
// state-space contract required by the Kalman filter:
//
//	dx/dt = A x + E,  z = C x
type LinearThrownObject struct {
	*ThrownObject
}

// NewLinearThrownObject returns the linear form of the reference throw.
func NewLinearThrownObject() *LinearThrownObject {
	return &LinearThrownObject{ThrownObject: NewThrownObject()}
}

func (m *LinearThrownObject) StateMatrix() mat.Matrix {
	return mat.NewDense(2, 2, []float64{0, 1, 0, 0})
}

func (m *LinearThrownObject) InputMatrix() mat.Matrix {
	return mat.NewDense(2, 0, nil)
}

func (m *LinearThrownObject) Drift() mat.Vector {
	return mat.NewVecDense(2, []float64{0, g})
}

func (m *LinearThrownObject) OutputMatrix() mat.Matrix {
	return mat.NewDense(1, 2, []float64{1, 0})
}

func (m *LinearThrownObject) OutputOffset() mat.Vector {
	return mat.NewVecDense(1, []float64{0})
}

// Decay is a stiff first-order system dx/dt = -x/Tau + u with a single
// "depleted" event when x falls below DepletedAt. Useful for exercising
// sub-stepped integration.
type Decay struct {
	Tau        float64
	DepletedAt float64
	X0         float64

	states  *schema.Schema
	inputs  *schema.Schema
	outputs *schema.Schema
	events  *schema.Schema
}

// NewDecay returns a decay model with unit initial charge.
func NewDecay(tau float64) *Decay {
	return &Decay{
		Tau:        tau,
		DepletedAt: 0.05,
		X0:         1,
		states:     schema.New("x"),
		inputs:     schema.New("u"),
		outputs:    schema.New("x"),
		events:     schema.New("depleted"),
	}
}

func (m *Decay) States() *schema.Schema  { return m.states }
func (m *Decay) Inputs() *schema.Schema  { return m.inputs }
func (m *Decay) Outputs() *schema.Schema { return m.outputs }
func (m *Decay) Events() *schema.Schema  { return m.events }

func (m *Decay) Initialize(_, _ []float64) []float64 { return []float64{m.X0} }

func (m *Decay) NextState(x, u []float64, dt float64) []float64 {
	return []float64{x[0] + dt*(-x[0]/m.Tau+u[0])}
}

func (m *Decay) Output(x []float64) []float64 { return []float64{x[0]} }

func (m *Decay) EventState(x []float64) []float64 {
	es := (x[0] - m.DepletedAt) / (m.X0 - m.DepletedAt)
	return []float64{math.Min(math.Max(es, 0), 1)}
}

func (m *Decay) ThresholdMet(x []float64) []bool {
	return []bool{x[0] <= m.DepletedAt}
}
