package estimator

import (
	"errors"
	"testing"

	"github.com/banshee-data/prognostics/internal/model/modeltest"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

func particleConfig(particles int, seed uint64) ParticleConfig {
	cfg := DefaultParticleConfig()
	cfg.NumParticles = particles
	cfg.Seed = seed
	cfg.ProcessNoise = map[string]float64{"x": 0.1, "v": 0.1}
	cfg.MeasurementNoise = map[string]float64{"x": 0.1}
	return cfg
}

func TestParticle_Converges(t *testing.T) {
	m := modeltest.NewThrownObject()
	pf, err := NewParticle(m, biasedBelief(t, m, 1), particleConfig(1000, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := playback(t, m, pf, 0.1, 50)
	if errs["x"] > 0.5 {
		t.Errorf("position error %v after 50 steps, expected < 0.5", errs["x"])
	}
	if errs["v"] > 1.5 {
		t.Errorf("velocity error %v after 50 steps, expected < 1.5", errs["v"])
	}
}

func TestParticle_Deterministic(t *testing.T) {
	run := func() map[string]float64 {
		m := modeltest.NewThrownObject()
		pf, err := NewParticle(m, biasedBelief(t, m, 1), particleConfig(200, 7))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		playback(t, m, pf, 0.1, 20)
		return pf.State().Mean()
	}
	a, b := run(), run()
	for key, v := range a {
		if b[key] != v {
			t.Errorf("%s: %v vs %v with the same seed", key, v, b[key])
		}
	}
}

func TestParticle_StateIsSamples(t *testing.T) {
	m := modeltest.NewThrownObject()
	pf, err := NewParticle(m, biasedBelief(t, m, 0), particleConfig(150, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples, ok := pf.State().(*uncertainty.Samples)
	if !ok {
		t.Fatalf("expected sampled state, got %T", pf.State())
	}
	if samples.Len() != 150 {
		t.Errorf("expected 150 particles, got %d", samples.Len())
	}
}

func TestParticle_AdoptsSampledBelief(t *testing.T) {
	m := modeltest.NewThrownObject()
	belief, err := biasedBelief(t, m, 0).Sample(testRand(5), 64)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	cfg := particleConfig(0, 1)
	pf, err := NewParticle(m, belief, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pf.State().(*uncertainty.Samples).Len(); got != 64 {
		t.Errorf("expected the 64 provided particles, got %d", got)
	}
}

func TestParticle_NonBatchModel(t *testing.T) {
	// Decay does not implement batched stepping, so this covers the
	// per-particle propagation path.
	m := modeltest.NewDecay(2)
	cfg := DefaultParticleConfig()
	cfg.NumParticles = 300
	cfg.Seed = 2
	cfg.ProcessNoise = map[string]float64{"x": 0.02}
	cfg.MeasurementNoise = map[string]float64{"x": 0.05}
	pf, err := NewParticle(m, biasedBelief(t, m, 0.3), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := playback(t, m, pf, 0.05, 30)
	if errs["x"] > 0.15 {
		t.Errorf("error %v after 30 steps, expected < 0.15", errs["x"])
	}
}

func TestParticle_TimeOrder(t *testing.T) {
	m := modeltest.NewThrownObject()
	pf, err := NewParticle(m, biasedBelief(t, m, 0), particleConfig(50, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z := map[string]float64{"x": 1.83}
	if err := pf.Estimate(0.5, nil, z); err != nil {
		t.Fatalf("first estimate: %v", err)
	}
	if err := pf.Estimate(0.5, nil, z); !errors.Is(err, ErrTimeOrder) {
		t.Fatalf("expected ErrTimeOrder, got %v", err)
	}
}

func TestParticle_UnknownNoiseKey(t *testing.T) {
	m := modeltest.NewThrownObject()
	cfg := particleConfig(50, 1)
	cfg.ProcessNoise = map[string]float64{"spin": 1}
	if _, err := NewParticle(m, biasedBelief(t, m, 0), cfg); err == nil {
		t.Fatal("expected error for unknown process-noise state")
	}
	cfg = particleConfig(50, 1)
	cfg.MeasurementNoise = map[string]float64{"y": 1}
	if _, err := NewParticle(m, biasedBelief(t, m, 0), cfg); err == nil {
		t.Fatal("expected error for unknown measurement-noise output")
	}
}
