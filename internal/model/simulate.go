package model

import (
	"fmt"
	"math"
	"sort"
)

// SimConfig configures one SimulateToThreshold run.
type SimConfig struct {
	T0       float64   // Simulation start time
	Dt       float64   // Fixed integration step, must be positive
	Horizon  float64   // Stop at T0+Horizon regardless of events; 0 means unbounded
	SaveFreq float64   // Record a snapshot every SaveFreq seconds; 0 disables
	SavePts  []float64 // Additional explicit snapshot times

	// SaveAnchor is the origin of the SaveFreq grid: snapshots land at
	// SaveAnchor + k*SaveFreq for instants after T0. Callers that restart
	// a simulation mid-run keep it at the original start so snapshot
	// times stay aligned across restarts.
	SaveAnchor float64
	Events   []string  // Events to stop on; nil = all declared, empty = none (horizon only)
	Noise    StepNoise // Optional per-step state perturbation
}

// SimResult is the recorded trajectory of one simulation: a time grid and,
// per grid point, the input, state, output and event-state vectors.
type SimResult struct {
	Times       []float64
	Inputs      [][]float64
	States      [][]float64
	Outputs     [][]float64
	EventStates [][]float64
}

// Last returns the final recorded state.
func (r *SimResult) Last() (t float64, x []float64) {
	n := len(r.Times)
	return r.Times[n-1], r.States[n-1]
}

// TrimLast drops the final recorded instant. Used by predictors that
// restart simulation from an event boundary and do not want the boundary
// recorded twice.
func (r *SimResult) TrimLast() {
	n := len(r.Times)
	r.Times = r.Times[:n-1]
	r.Inputs = r.Inputs[:n-1]
	r.States = r.States[:n-1]
	r.Outputs = r.Outputs[:n-1]
	r.EventStates = r.EventStates[:n-1]
}

// SimulateToThreshold advances the model from x0 with the loading function
// until one of the requested events crosses its threshold or the horizon
// elapses. Snapshots are recorded at every SaveFreq multiple relative to
// T0, at every explicit save point, and always at the first and last
// simulated instants.
func SimulateToThreshold(m Model, load LoadFunc, x0 []float64, cfg SimConfig) (*SimResult, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("simulate: dt must be positive, was %g", cfg.Dt)
	}
	horizon := cfg.Horizon
	if horizon <= 0 {
		horizon = math.Inf(1)
	}
	eventIdx, err := ResolveEvents(m, cfg.Events)
	if err != nil {
		return nil, err
	}
	if len(eventIdx) == 0 && math.IsInf(horizon, 1) {
		return nil, ErrNoTermination
	}

	savePts := append([]float64(nil), cfg.SavePts...)
	sort.Float64s(savePts)
	savePtIdx := 0
	for savePtIdx < len(savePts) && savePts[savePtIdx] <= cfg.T0 {
		savePtIdx++
	}
	nextSave := math.Inf(1)
	if cfg.SaveFreq > 0 {
		k := math.Floor((cfg.T0-cfg.SaveAnchor)/cfg.SaveFreq) + 1
		nextSave = cfg.SaveAnchor + k*cfg.SaveFreq
	}

	res := &SimResult{}
	record := func(t float64, u, x []float64) {
		res.Times = append(res.Times, t)
		res.Inputs = append(res.Inputs, append([]float64(nil), u...))
		res.States = append(res.States, append([]float64(nil), x...))
		res.Outputs = append(res.Outputs, m.Output(x))
		res.EventStates = append(res.EventStates, m.EventState(x))
	}

	t := cfg.T0
	x := append([]float64(nil), x0...)
	u := load(t, x)
	record(t, u, x)

	for t-cfg.T0 < horizon {
		u = load(t, x)
		x = m.NextState(x, u, cfg.Dt)
		if cfg.Noise != nil {
			cfg.Noise(x, cfg.Dt)
		}
		t += cfg.Dt

		saved := false
		if t >= nextSave {
			nextSave += cfg.SaveFreq
			record(t, u, x)
			saved = true
		}
		for savePtIdx < len(savePts) && t >= savePts[savePtIdx] {
			savePtIdx++
			if !saved {
				record(t, u, x)
				saved = true
			}
		}

		met := m.ThresholdMet(x)
		done := false
		for _, i := range eventIdx {
			if met[i] {
				done = true
				break
			}
		}
		if done {
			if !saved {
				record(t, u, x)
			}
			return res, nil
		}
	}

	// Horizon reached without the requested events resolving.
	last := res.Times[len(res.Times)-1]
	if last != t {
		record(t, u, x)
	}
	return res, nil
}
