// Command prognose runs a playback prognostics demo: it simulates a model
// to generate measurements, replays them through a state estimator, and
// periodically predicts time of event, reporting the standard prognostic
// metrics at the end.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/estimator"
	"github.com/banshee-data/prognostics/internal/metrics"
	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/model/modeltest"
	"github.com/banshee-data/prognostics/internal/predict"
	"github.com/banshee-data/prognostics/internal/uncertainty"
	"github.com/banshee-data/prognostics/internal/version"
)

func main() {
	var (
		modelName   = flag.String("model", "thrown", "model to run: thrown or decay")
		estName     = flag.String("estimator", "ukf", "state estimator: kf, ukf or pf")
		particles   = flag.Int("particles", 250, "particle count for the particle filter")
		dt          = flag.Float64("dt", 0.01, "playback measurement step (s)")
		predictEach = flag.Int("predict-every", 50, "predict once per this many measurements")
		samples     = flag.Int("samples", 100, "realisations per Monte Carlo prediction")
		horizon     = flag.Float64("horizon", 20, "prediction horizon (s)")
		measNoise   = flag.Float64("meas-noise", 0.05, "measurement noise std applied to playback outputs")
		seed        = flag.Uint64("seed", 42, "rng seed")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("prognose %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		os.Exit(0)
	}

	runID := uuid.New()
	log.Printf("prognose run %s: model=%s estimator=%s dt=%g", runID, *modelName, *estName, *dt)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	m, event, err := buildModel(*modelName)
	if err != nil {
		log.Fatalf("model: %v", err)
	}

	// Ground truth playback: simulate the clean model and note when the
	// event actually occurs.
	truth, err := model.SimulateToThreshold(m, zeroLoad(m), m.Initialize(nil, nil), model.SimConfig{
		Dt:       *dt,
		SaveFreq: *dt,
		Events:   []string{event},
	})
	if err != nil {
		log.Fatalf("ground truth simulation: %v", err)
	}
	groundTruthToE, _ := truth.Last()
	log.Printf("ground truth %s at t=%.3f over %d measurements", event, groundTruthToE, len(truth.Times))

	est, err := buildEstimator(*estName, m, *particles, *measNoise, rng)
	if err != nil {
		log.Fatalf("estimator: %v", err)
	}

	predictor, err := predict.NewMonteCarlo(m, predict.MonteCarloConfig{
		Dt:         *dt * 10,
		Horizon:    *horizon,
		Events:     []string{event},
		NumSamples: *samples,
		Rand:       rng,
	})
	if err != nil {
		log.Fatalf("predictor: %v", err)
	}

	// Replay noisy measurements through the estimator, predicting time of
	// event at a fixed cadence.
	profile := predict.NewProfile()
	for i := 1; i < len(truth.Times); i++ {
		t := truth.Times[i]
		u := m.Inputs().Map(truth.Inputs[i])
		z := m.Outputs().Map(noisy(truth.Outputs[i], *measNoise, rng))
		if err := est.Estimate(t, u, z); err != nil {
			log.Fatalf("estimate at t=%.3f: %v", t, err)
		}
		if i%*predictEach != 0 {
			continue
		}
		result, err := predictor.Predict(est.State(), nil)
		if err != nil {
			log.Fatalf("predict at t=%.3f: %v", t, err)
		}
		toe := result.TimeOfEvent.Shift(t)
		profile.Add(t, toe)
		log.Printf("t=%7.3f predicted %s at %.3f", t, event, toe.Mean()[event])
	}
	if profile.Len() == 0 {
		log.Fatalf("no predictions made: playback too short for -predict-every=%d", *predictEach)
	}

	report(profile, event, groundTruthToE, rng)
}

// buildModel returns the demo model and the event to predict.
func buildModel(name string) (model.Model, string, error) {
	switch name {
	case "thrown":
		return modeltest.NewLinearThrownObject(), "impact", nil
	case "decay":
		return modeltest.NewDecay(2.0), "depleted", nil
	}
	return nil, "", fmt.Errorf("unknown model %q", name)
}

func buildEstimator(name string, m model.Model, particles int, measNoise float64, rng *rand.Rand) (estimator.Estimator, error) {
	// Start from a deliberately imprecise belief so the playback has
	// something to correct.
	x0 := m.Initialize(nil, nil)
	belief, err := uncertainty.NewMultivariateNormal(m.States(), x0, diag(len(x0), 1))
	if err != nil {
		return nil, err
	}
	switch name {
	case "kf":
		lin, ok := m.(model.Linear)
		if !ok {
			return nil, fmt.Errorf("model has no linear form; use ukf or pf")
		}
		return estimator.NewKalman(lin, belief, estimator.DefaultKalmanConfig())
	case "ukf":
		return estimator.NewUnscented(m, belief, estimator.DefaultUnscentedConfig())
	case "pf":
		cfg := estimator.DefaultParticleConfig()
		cfg.NumParticles = particles
		cfg.Rand = rng
		cfg.MeasurementNoise = uniformNoise(m.Outputs().Keys(), measNoise)
		cfg.ProcessNoise = uniformNoise(m.States().Keys(), 0.1)
		return estimator.NewParticle(m, belief, cfg)
	}
	return nil, fmt.Errorf("unknown estimator %q", name)
}

func report(profile *predict.Profile, event string, groundTruthToE float64, rng *rand.Rand) {
	groundTruth := map[string]float64{event: groundTruthToE}
	times := profile.Times()
	lambda := times[len(times)/2]

	al, err := metrics.AlphaLambda(profile, groundTruth, lambda, 0.2, 0.7, rng)
	if err != nil {
		log.Fatalf("alpha-lambda: %v", err)
	}
	cra, err := metrics.CumulativeRelativeAccuracy(profile, groundTruth)
	if err != nil {
		log.Fatalf("cumulative relative accuracy: %v", err)
	}
	mono := metrics.Monotonicity(profile)
	ph := metrics.PrognosticHorizon(profile, func(tte uncertainty.Distribution, gt map[string]float64) map[string]bool {
		met := make(map[string]bool, len(gt))
		for key, v := range gt {
			mean := tte.Mean()[key]
			met[key] = v != 0 && mean/v > 0.9 && mean/v < 1.1
		}
		return met
	}, groundTruth)

	lastToE, _ := profile.At(times[len(times)-1])
	ps, err := metrics.ProbSuccess(lastToE, groundTruthToE*0.9, rng)
	if err != nil {
		log.Fatalf("prob success: %v", err)
	}

	fmt.Printf("\nevent %q, ground truth t=%.3f, %d predictions\n", event, groundTruthToE, profile.Len())
	fmt.Printf("  alpha-lambda (lambda=%.2f, alpha=0.2, beta=0.7): %v\n", lambda, al[event])
	fmt.Printf("  cumulative relative accuracy: %.4f\n", cra[event])
	fmt.Printf("  monotonicity: %.4f\n", mono[event])
	fmt.Printf("  prognostic horizon (within 10%%): %.3f\n", ph[event])
	fmt.Printf("  P(survive to %.3f): %.3f\n", groundTruthToE*0.9, ps[event])
}

func zeroLoad(m model.Model) model.LoadFunc {
	n := m.Inputs().Len()
	return func(float64, []float64) []float64 { return make([]float64, n) }
}

func noisy(z []float64, std float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = v + std*rng.NormFloat64()
	}
	return out
}

func uniformNoise(keys []string, std float64) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		out[k] = std
	}
	return out
}

func diag(n int, v float64) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}
