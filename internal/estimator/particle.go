package estimator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// ParticleConfig configures a particle filter.
type ParticleConfig struct {
	T0           float64
	MaxStep      float64 // Maximum integration sub-step (s); 0 = single step
	NumParticles int     // 0 reuses the size of a Samples belief, else 100

	// ProcessNoise is the per-state standard deviation applied after each
	// propagation sub-step, keyed by state name. Missing keys get no
	// noise.
	ProcessNoise map[string]float64

	// MeasurementNoise is the per-output standard deviation used by the
	// Gaussian likelihood, keyed by output name. Missing keys default to
	// DefaultMeasurementStd.
	MeasurementNoise map[string]float64

	// Resample draws the new particle set; nil uses ResidualResample.
	Resample ResampleFunc

	// Rand is the filter's generator. nil seeds a fresh PCG from Seed.
	Rand *rand.Rand
	Seed uint64
}

// DefaultMeasurementStd is the likelihood standard deviation for output
// channels without a configured measurement noise.
const DefaultMeasurementStd = 1e-3

const defaultNumParticles = 100

// DefaultParticleConfig returns the default filter configuration.
func DefaultParticleConfig() ParticleConfig {
	return ParticleConfig{T0: DefaultT0}
}

// propagateFunc advances every particle to time t. Bound once at
// construction: batched models advance the whole set per sub-step, others
// loop particle by particle.
type propagateFunc func(particles [][]float64, u []float64, from, to float64)

// Particle estimates state with a particle filter: N raw particle states
// propagated with process noise, weighted by a Gaussian likelihood per
// output channel, and resampled with replacement each step.
type Particle struct {
	m         model.Model
	cfg       ParticleConfig
	rng       *rand.Rand
	propagate propagateFunc
	resample  ResampleFunc

	processStd []float64 // per state, schema order
	measureStd []float64 // per output, schema order

	clock     float64
	particles [][]float64
}

// NewParticle builds a particle filter from a model and an initial belief.
// A Samples belief of matching size is used directly as the initial
// particle set; any other belief is sampled.
func NewParticle(m model.Model, x0 uncertainty.Distribution, cfg ParticleConfig) (*Particle, error) {
	if _, _, err := beliefVector(m.States(), x0); err != nil {
		return nil, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	resample := cfg.Resample
	if resample == nil {
		resample = ResidualResample
	}

	processStd := make([]float64, m.States().Len())
	for key, std := range cfg.ProcessNoise {
		i := m.States().Index(key)
		if i < 0 {
			return nil, fmt.Errorf("particle: process noise for unknown state %q", key)
		}
		processStd[i] = std
	}
	measureStd := make([]float64, m.Outputs().Len())
	for i := range measureStd {
		measureStd[i] = DefaultMeasurementStd
	}
	for key, std := range cfg.MeasurementNoise {
		i := m.Outputs().Index(key)
		if i < 0 {
			return nil, fmt.Errorf("particle: measurement noise for unknown output %q", key)
		}
		if std <= 0 {
			return nil, fmt.Errorf("particle: measurement noise for %q must be positive, was %g", key, std)
		}
		measureStd[i] = std
	}

	particles, err := initialParticles(m, x0, cfg.NumParticles, rng)
	if err != nil {
		return nil, err
	}

	pf := &Particle{
		m:          m,
		cfg:        cfg,
		rng:        rng,
		resample:   resample,
		processStd: processStd,
		measureStd: measureStd,
		clock:      cfg.T0,
		particles:  particles,
	}
	// Strategy choice is made once here, not re-checked per call.
	if batch, ok := m.(model.Batch); ok {
		pf.propagate = pf.batchPropagation(batch)
	} else {
		pf.propagate = pf.loopPropagation()
	}
	return pf, nil
}

func initialParticles(m model.Model, x0 uncertainty.Distribution, num int, rng *rand.Rand) ([][]float64, error) {
	if samples, ok := x0.(*uncertainty.Samples); ok && (num == 0 || num == samples.Len()) {
		if samples.Len() == 0 {
			return nil, uncertainty.ErrEmptyDistribution
		}
		particles := make([][]float64, samples.Len())
		for i := range particles {
			p, err := reorder(m, samples, i)
			if err != nil {
				return nil, err
			}
			particles[i] = p
		}
		return particles, nil
	}
	if num <= 0 {
		num = defaultNumParticles
	}
	drawn, err := x0.Sample(rng, num)
	if err != nil {
		return nil, err
	}
	particles := make([][]float64, num)
	for i := range particles {
		p, err := reorder(m, drawn, i)
		if err != nil {
			return nil, err
		}
		particles[i] = p
	}
	return particles, nil
}

// reorder aligns one stored sample to the model's state schema.
func reorder(m model.Model, s *uncertainty.Samples, i int) ([]float64, error) {
	if s.Schema().Equal(m.States()) {
		return s.Point(i), nil
	}
	return m.States().Vector(s.Schema().Map(s.Point(i)))
}

func (pf *Particle) batchPropagation(batch model.Batch) propagateFunc {
	return func(particles [][]float64, u []float64, from, to float64) {
		clock := from
		for clock < to {
			dt := substep(clock, to, pf.cfg.MaxStep)
			next := batch.NextStateBatch(particles, u, dt)
			for i := range particles {
				copy(particles[i], next[i])
				pf.applyProcessNoise(particles[i], dt)
			}
			clock += dt
		}
	}
}

func (pf *Particle) loopPropagation() propagateFunc {
	return func(particles [][]float64, u []float64, from, to float64) {
		for i := range particles {
			clock := from
			x := particles[i]
			for clock < to {
				dt := substep(clock, to, pf.cfg.MaxStep)
				x = pf.m.NextState(x, u, dt)
				pf.applyProcessNoise(x, dt)
				clock += dt
			}
			particles[i] = x
		}
	}
}

func (pf *Particle) applyProcessNoise(x []float64, dt float64) {
	for i, std := range pf.processStd {
		if std > 0 {
			x[i] += dt * std * pf.rng.NormFloat64()
		}
	}
}

// Time returns the filter clock.
func (pf *Particle) Time() float64 { return pf.clock }

// State returns the raw particle set as an unweighted empirical
// distribution.
func (pf *Particle) State() uncertainty.Distribution {
	dist, err := uncertainty.NewSamples(pf.m.States(), pf.particles)
	if err != nil {
		panic(err)
	}
	return dist
}

// Estimate propagates every particle to time t, weights the set by the
// Gaussian log-likelihood of the measured output summed across channels,
// and resamples with replacement.
func (pf *Particle) Estimate(t float64, u, z map[string]float64) error {
	if err := checkTime(pf.clock, t); err != nil {
		return err
	}
	uVec, err := inputVector(pf.m, u)
	if err != nil {
		return err
	}
	zVec, err := pf.m.Outputs().Vector(z)
	if err != nil {
		return err
	}

	pf.propagate(pf.particles, uVec, pf.clock, t)
	pf.clock = t

	// Log-weights: independent Gaussian likelihood per output channel,
	// summed. Shifting by the maximum before exponentiating avoids
	// underflow when all log-weights are large and negative.
	logW := make([]float64, len(pf.particles))
	maxLogW := math.Inf(-1)
	for i, p := range pf.particles {
		zPred := pf.m.Output(p)
		var lw float64
		for j, std := range pf.measureStd {
			lw += distuv.Normal{Mu: zPred[j], Sigma: std}.LogProb(zVec[j])
		}
		logW[i] = lw
		if lw > maxLogW {
			maxLogW = lw
		}
	}
	weights := make([]float64, len(logW))
	var total float64
	for i, lw := range logW {
		weights[i] = math.Exp(lw - maxLogW)
		total += weights[i]
	}
	if total <= 0 || math.IsNaN(total) {
		return fmt.Errorf("particle: degenerate weights at t=%g (all likelihoods vanished)", t)
	}
	for i := range weights {
		weights[i] /= total
	}

	idx := pf.resample(weights, pf.rng)
	next := make([][]float64, len(idx))
	for i, j := range idx {
		next[i] = append([]float64(nil), pf.particles[j]...)
	}
	pf.particles = next
	return nil
}
