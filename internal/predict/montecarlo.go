package predict

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/schema"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// MonteCarloConfig configures a sampling predictor.
type MonteCarloConfig struct {
	T0       float64
	Dt       float64   // Fixed simulation step, must be positive
	Horizon  float64   // Give up on unresolved events after T0+Horizon; 0 = unbounded
	SaveFreq float64   // Snapshot grid spacing; 0 disables periodic snapshots
	SavePts  []float64 // Additional explicit snapshot times

	// Events to predict; nil means every event the model declares, an
	// empty non-nil slice means none (simulate to the horizon).
	Events []string

	// Strategy selects whether realisations stop at the first event or
	// continue until all requested events occur. Empty means StrategyAll.
	Strategy EventStrategy

	// NumSamples is the number of realisations. Zero adopts the size of a
	// Samples belief, or 100 for other belief kinds.
	NumSamples int

	// ProcessNoise gives the per-state standard deviation applied each
	// simulation step, keyed by state name.
	ProcessNoise map[string]float64

	// ConstantNoise freezes the process-noise draw once per realisation
	// instead of redrawing every step.
	ConstantNoise bool

	// Rand is the predictor's generator. nil seeds a fresh PCG from Seed.
	Rand *rand.Rand
	Seed uint64
}

const defaultNumSamples = 100

// DefaultMonteCarloConfig returns the default predictor configuration.
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{Dt: 0.1, Strategy: StrategyAll}
}

// MonteCarlo predicts event times by drawing state realisations and
// simulating each to threshold.
type MonteCarlo struct {
	m   model.Model
	cfg MonteCarloConfig
	rng *rand.Rand

	events     []string
	eventIdx   []int
	processStd []float64
}

// NewMonteCarlo builds a sampling predictor for a model.
func NewMonteCarlo(m model.Model, cfg MonteCarloConfig) (*MonteCarlo, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("montecarlo: dt must be positive, was %g", cfg.Dt)
	}
	switch cfg.Strategy {
	case "", StrategyAll:
		cfg.Strategy = StrategyAll
	case StrategyFirst:
	default:
		return nil, fmt.Errorf("montecarlo: %w %q", ErrUnsupportedStrategy, cfg.Strategy)
	}
	events := cfg.Events
	if events == nil {
		events = m.Events().Keys()
	}
	eventIdx := make([]int, len(events))
	for i, name := range events {
		j := m.Events().Index(name)
		if j < 0 {
			return nil, fmt.Errorf("montecarlo: %w %q", model.ErrUnknownEvent, name)
		}
		eventIdx[i] = j
	}
	if len(events) == 0 && cfg.Horizon <= 0 {
		return nil, fmt.Errorf("montecarlo: %w", model.ErrNoTermination)
	}
	processStd := make([]float64, m.States().Len())
	for key, std := range cfg.ProcessNoise {
		i := m.States().Index(key)
		if i < 0 {
			return nil, fmt.Errorf("montecarlo: process noise for unknown state %q", key)
		}
		processStd[i] = std
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	return &MonteCarlo{
		m:          m,
		cfg:        cfg,
		rng:        rng,
		events:     events,
		eventIdx:   eventIdx,
		processStd: processStd,
	}, nil
}

// Predict draws realisations from the state belief and simulates each
// until its requested events occur or the horizon elapses. A nil load
// applies zero input throughout.
func (mc *MonteCarlo) Predict(state uncertainty.Distribution, load model.LoadFunc) (*Result, error) {
	if load == nil {
		inputs := mc.m.Inputs().Len()
		load = func(float64, []float64) []float64 { return make([]float64, inputs) }
	}
	realisations, err := mc.realisations(state)
	if err != nil {
		return nil, err
	}
	eventSchema := schema.New(mc.events...)

	var times []float64
	n := len(realisations)
	inputGrids := make([][][]float64, n)
	stateGrids := make([][][]float64, n)
	outputGrids := make([][][]float64, n)
	eventStateGrids := make([][][]float64, n)
	toeRows := make([][]float64, n)
	finalRows := make(map[string][][]float64, len(mc.events))
	for _, name := range mc.events {
		finalRows[name] = make([][]float64, n)
	}

	for r, x0 := range realisations {
		acc, toe, final, err := mc.simulate(x0, load)
		if err != nil {
			return nil, err
		}
		if len(acc.Times) > len(times) {
			times = acc.Times
		}
		inputGrids[r] = acc.Inputs
		stateGrids[r] = acc.States
		outputGrids[r] = acc.Outputs
		eventStateGrids[r] = acc.EventStates
		toeRows[r] = toe
		for i, name := range mc.events {
			row := final[i]
			if row == nil {
				row = nanRow(mc.m.States().Len())
			}
			finalRows[name][r] = row
		}
	}

	timeOfEvent, err := uncertainty.NewSamples(eventSchema, toeRows)
	if err != nil {
		return nil, err
	}
	finalState := make(map[string]uncertainty.Distribution, len(mc.events))
	for _, name := range mc.events {
		dist, err := uncertainty.NewSamples(mc.m.States(), finalRows[name])
		if err != nil {
			return nil, err
		}
		finalState[name] = dist
	}

	return &Result{
		Times:       times,
		Inputs:      &sampleSeries{sch: mc.m.Inputs(), times: times, grids: inputGrids},
		States:      &sampleSeries{sch: mc.m.States(), times: times, grids: stateGrids},
		Outputs:     &sampleSeries{sch: mc.m.Outputs(), times: times, grids: outputGrids},
		EventStates: &sampleSeries{sch: mc.m.Events(), times: times, grids: eventStateGrids},
		TimeOfEvent: timeOfEvent,
		FinalState:  finalState,
	}, nil
}

// simulate runs one realisation through its requested events. On each
// event the boundary record is dropped from the trajectory and simulation
// restarts from the boundary state; remaining events share the horizon
// left over from the prediction start.
func (mc *MonteCarlo) simulate(x0 []float64, load model.LoadFunc) (*model.SimResult, []float64, [][]float64, error) {
	toe := nanRow(len(mc.events))
	final := make([][]float64, len(mc.events))

	var noise model.StepNoise
	if anyPositive(mc.processStd) {
		if mc.cfg.ConstantNoise {
			noise = model.ConstantStepNoise(mc.rng, mc.processStd)
		} else {
			noise = model.GaussianStepNoise(mc.rng, mc.processStd)
		}
	}
	base := model.SimConfig{
		Dt:         mc.cfg.Dt,
		SaveFreq:   mc.cfg.SaveFreq,
		SaveAnchor: mc.cfg.T0,
		SavePts:    mc.cfg.SavePts,
		Noise:      noise,
	}

	if len(mc.events) == 0 {
		base.T0 = mc.cfg.T0
		base.Horizon = mc.cfg.Horizon
		base.Events = []string{}
		acc, err := model.SimulateToThreshold(mc.m, load, x0, base)
		return acc, toe, final, err
	}

	acc := &model.SimResult{}
	remaining := append([]string(nil), mc.events...)
	t0 := mc.cfg.T0
	x := x0
	for len(remaining) > 0 {
		cfg := base
		cfg.T0 = t0
		cfg.Events = remaining
		if mc.cfg.Horizon > 0 {
			cfg.Horizon = mc.cfg.Horizon - (t0 - mc.cfg.T0)
			if cfg.Horizon <= 0 {
				break
			}
		}
		sub, err := model.SimulateToThreshold(mc.m, load, x, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		acc.Times = append(acc.Times, sub.Times...)
		acc.Inputs = append(acc.Inputs, sub.Inputs...)
		acc.States = append(acc.States, sub.States...)
		acc.Outputs = append(acc.Outputs, sub.Outputs...)
		acc.EventStates = append(acc.EventStates, sub.EventStates...)

		tEnd, xEnd := sub.Last()
		hit := mc.metEvent(remaining, xEnd)
		if hit < 0 {
			// Horizon elapsed with events still pending.
			break
		}
		name := remaining[hit]
		i := indexOf(mc.events, name)
		toe[i] = tEnd
		final[i] = append([]float64(nil), xEnd...)
		if mc.cfg.Strategy == StrategyFirst {
			remaining = nil
		} else {
			remaining = append(remaining[:hit], remaining[hit+1:]...)
		}

		// The boundary instant restarts the next leg; drop it so it is
		// not recorded twice.
		acc.TrimLast()
		t0, x = tEnd, xEnd
	}
	return acc, toe, final, nil
}

// metEvent returns the position in names of the first event whose
// threshold is met at x, or -1.
func (mc *MonteCarlo) metEvent(names []string, x []float64) int {
	met := mc.m.ThresholdMet(x)
	for i, name := range names {
		if met[mc.m.Events().Index(name)] {
			return i
		}
	}
	return -1
}

// realisations returns the initial particle set: a Samples belief of
// matching size is used directly, anything else is sampled.
func (mc *MonteCarlo) realisations(state uncertainty.Distribution) ([][]float64, error) {
	num := mc.cfg.NumSamples
	samples, isSamples := state.(*uncertainty.Samples)
	if isSamples && (num == 0 || num == samples.Len()) {
		if samples.Len() == 0 {
			return nil, uncertainty.ErrEmptyDistribution
		}
	} else {
		if num <= 0 {
			num = defaultNumSamples
		}
		drawn, err := state.Sample(mc.rng, num)
		if err != nil {
			return nil, err
		}
		samples = drawn
	}
	out := make([][]float64, samples.Len())
	for i := range out {
		pt := samples.Point(i)
		if !samples.Schema().Equal(mc.m.States()) {
			vec, err := mc.m.States().Vector(samples.Schema().Map(pt))
			if err != nil {
				return nil, err
			}
			pt = vec
		}
		out[i] = pt
	}
	return out, nil
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

func anyPositive(v []float64) bool {
	for _, x := range v {
		if x > 0 {
			return true
		}
	}
	return false
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
