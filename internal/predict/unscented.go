package predict

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/schema"
	"github.com/banshee-data/prognostics/internal/uncertainty"
	"github.com/banshee-data/prognostics/internal/unscented"
)

// UnscentedTransformConfig configures a sigma-point predictor.
type UnscentedTransformConfig struct {
	T0       float64
	Dt       float64   // Fixed propagation step, must be positive
	Horizon  float64   // Give up on unresolved events after T0+Horizon; 0 = unbounded
	SaveFreq float64   // Snapshot grid spacing; 0 disables periodic snapshots
	SavePts  []float64 // Additional explicit snapshot times

	// Events to predict; nil means every event the model declares.
	Events []string

	// Strategy must be StrategyAll (or empty); sigma points cannot stop
	// independently, so the first-event strategy is not supported.
	Strategy EventStrategy

	// Alpha, Beta and Kappa are the sigma-point scaling parameters.
	Alpha, Beta, Kappa float64

	// Q is the per-step process noise covariance added after each
	// propagation. nil defaults to 1e-8 on the diagonal.
	Q *mat.SymDense
}

// DefaultUnscentedTransformConfig returns the default predictor
// configuration.
func DefaultUnscentedTransformConfig() UnscentedTransformConfig {
	return UnscentedTransformConfig{Dt: 0.5, Alpha: 1, Beta: 0, Kappa: -1}
}

// UnscentedTransform predicts event times by propagating sigma points of
// the state belief through the model. Each sigma point's arrival time at
// each event is frozen when that point first crosses the event threshold,
// and the arrival times are recombined into a Gaussian over event times.
// The Gaussian form is an approximation; strongly non-linear models can
// produce event-time distributions it represents poorly.
type UnscentedTransform struct {
	m   model.Model
	cfg UnscentedTransformConfig
	pts *unscented.Points
	q   *mat.SymDense

	events   []string
	eventIdx []int
}

// NewUnscentedTransform builds a sigma-point predictor for a model.
func NewUnscentedTransform(m model.Model, cfg UnscentedTransformConfig) (*UnscentedTransform, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("unscented transform: dt must be positive, was %g", cfg.Dt)
	}
	if cfg.Strategy != "" && cfg.Strategy != StrategyAll {
		return nil, fmt.Errorf("unscented transform: %w %q (only %q is supported)", ErrUnsupportedStrategy, cfg.Strategy, StrategyAll)
	}
	events := cfg.Events
	if events == nil {
		events = m.Events().Keys()
	}
	eventIdx := make([]int, len(events))
	for i, name := range events {
		j := m.Events().Index(name)
		if j < 0 {
			return nil, fmt.Errorf("unscented transform: %w %q", model.ErrUnknownEvent, name)
		}
		eventIdx[i] = j
	}
	if len(events) == 0 && cfg.Horizon <= 0 {
		return nil, fmt.Errorf("unscented transform: %w", model.ErrNoTermination)
	}
	n := m.States().Len()
	pts, err := unscented.New(n, cfg.Alpha, cfg.Beta, cfg.Kappa)
	if err != nil {
		return nil, err
	}
	q := cfg.Q
	if q == nil {
		q = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			q.SetSym(i, i, 1e-8)
		}
	} else if q.SymmetricDim() != n {
		return nil, fmt.Errorf("unscented transform: Q is %dx%d for %d states", q.SymmetricDim(), q.SymmetricDim(), n)
	}
	return &UnscentedTransform{
		m:        m,
		cfg:      cfg,
		pts:      pts,
		q:        q,
		events:   events,
		eventIdx: eventIdx,
	}, nil
}

// Predict propagates the state belief until every sigma point has crossed
// every requested event threshold or the horizon elapses. The belief must
// carry uncertainty: a Scalar state has no spread to build sigma points
// from and is rejected. A nil load applies zero input throughout.
func (ut *UnscentedTransform) Predict(state uncertainty.Distribution, load model.LoadFunc) (*Result, error) {
	if _, ok := state.(*uncertainty.Scalar); ok {
		return nil, fmt.Errorf("unscented transform: state must be a distribution with uncertainty, not a scalar")
	}
	if load == nil {
		inputs := ut.m.Inputs().Len()
		load = func(float64, []float64) []float64 { return make([]float64, inputs) }
	}
	x, p, err := alignBelief(ut.m.States(), state)
	if err != nil {
		return nil, err
	}

	horizon := ut.cfg.Horizon
	if horizon <= 0 {
		horizon = math.Inf(1)
	}
	numPts := ut.pts.Num()
	toe := make([][]float64, numPts) // point -> event arrival times
	for i := range toe {
		toe[i] = nanRow(len(ut.events))
	}
	lastState := make([][][]float64, len(ut.events)) // event -> point -> state
	for i := range lastState {
		lastState[i] = make([][]float64, numPts)
	}

	savePts := append([]float64(nil), ut.cfg.SavePts...)
	sort.Float64s(savePts)
	savePtIdx := 0
	for savePtIdx < len(savePts) && savePts[savePtIdx] <= ut.cfg.T0 {
		savePtIdx++
	}
	nextSave := math.Inf(1)
	if ut.cfg.SaveFreq > 0 {
		nextSave = ut.cfg.T0 + ut.cfg.SaveFreq
	}

	var times []float64
	var inputDists []uncertainty.Distribution
	var stateDists []uncertainty.Distribution
	record := func(t float64, u []float64) error {
		in, err := uncertainty.NewScalar(ut.m.Inputs(), u)
		if err != nil {
			return err
		}
		st, err := uncertainty.NewMultivariateNormal(ut.m.States(), x, p)
		if err != nil {
			return err
		}
		times = append(times, t)
		inputDists = append(inputDists, in)
		stateDists = append(stateDists, st)
		return nil
	}

	t := ut.cfg.T0
	u := load(t, x)
	if err := record(t, u); err != nil {
		return nil, err
	}

	for t-ut.cfg.T0 < horizon {
		t += ut.cfg.Dt
		u = load(t, x)

		sigma, err := ut.pts.Generate(x, p)
		if err != nil {
			return nil, err
		}
		for i, pt := range sigma {
			sigma[i] = ut.m.NextState(pt, u, ut.cfg.Dt)
		}
		var cov *mat.SymDense
		x, cov = unscented.Transform(sigma, ut.pts.WeightsMean(), ut.pts.WeightsCov())
		cov.AddSym(cov, ut.q)
		p = cov

		saved := false
		if t >= nextSave {
			nextSave += ut.cfg.SaveFreq
			if err := record(t, u); err != nil {
				return nil, err
			}
			saved = true
		}
		for savePtIdx < len(savePts) && t >= savePts[savePtIdx] {
			savePtIdx++
			if !saved {
				if err := record(t, u); err != nil {
					return nil, err
				}
				saved = true
			}
		}

		if len(ut.events) == 0 {
			continue
		}
		points, err := ut.pts.Generate(x, p)
		if err != nil {
			return nil, err
		}
		allMet := true
		for i, pt := range points {
			met := ut.m.ThresholdMet(pt)
			for e, j := range ut.eventIdx {
				if met[j] {
					if math.IsNaN(toe[i][e]) {
						toe[i][e] = t
						lastState[e][i] = append([]float64(nil), pt...)
					}
				} else {
					allMet = false
				}
			}
		}
		if allMet {
			break
		}
	}

	last := times[len(times)-1]
	if last != t {
		if err := record(t, u); err != nil {
			return nil, err
		}
	}

	eventSchema := schema.New(ut.events...)
	var timeOfEvent uncertainty.Distribution
	if len(ut.events) > 0 {
		toeMean, toeCov := unscented.Transform(toe, ut.pts.WeightsMean(), ut.pts.WeightsCov())
		timeOfEvent, err = uncertainty.NewMultivariateNormal(eventSchema, toeMean, toeCov)
	} else {
		timeOfEvent, err = uncertainty.NewScalar(eventSchema, nil)
	}
	if err != nil {
		return nil, err
	}

	finalState := make(map[string]uncertainty.Distribution, len(ut.events))
	for e, name := range ut.events {
		complete := true
		for _, st := range lastState[e] {
			if st == nil {
				complete = false
				break
			}
		}
		if !complete {
			finalState[name] = nil
			continue
		}
		mean, cov := unscented.Transform(lastState[e], ut.pts.WeightsMean(), ut.pts.WeightsCov())
		dist, err := uncertainty.NewMultivariateNormal(ut.m.States(), mean, cov)
		if err != nil {
			return nil, err
		}
		finalState[name] = dist
	}

	states := &distSeries{times: times, dists: stateDists}
	return &Result{
		Times:       times,
		Inputs:      &distSeries{times: times, dists: inputDists},
		States:      states,
		Outputs:     newTransformSeries(states, ut.pts, ut.m.Outputs(), ut.m.Output),
		EventStates: newTransformSeries(states, ut.pts, ut.m.Events(), ut.m.EventState),
		TimeOfEvent: timeOfEvent,
		FinalState:  finalState,
	}, nil
}

// alignBelief reorders a belief's mean and covariance into the model's
// state schema.
func alignBelief(states *schema.Schema, d uncertainty.Distribution) ([]float64, *mat.SymDense, error) {
	mean, err := states.Vector(d.Mean())
	if err != nil {
		return nil, nil, err
	}
	src := d.Cov()
	n := states.Len()
	perm := make([]int, n)
	for i := 0; i < n; i++ {
		j := d.Schema().Index(states.Key(i))
		if j < 0 {
			return nil, nil, fmt.Errorf("%w: %q", schema.ErrKeyNotFound, states.Key(i))
		}
		perm[i] = j
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, src.At(perm[i], perm[j]))
		}
	}
	return mean, cov, nil
}
