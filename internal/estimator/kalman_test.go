package estimator

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/model/modeltest"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

func biasedBelief(t *testing.T, m model.Model, bias float64) *uncertainty.MultivariateNormal {
	t.Helper()
	x0 := m.Initialize(nil, nil)
	mean := make([]float64, len(x0))
	for i, v := range x0 {
		mean[i] = v + bias
	}
	cov := mat.NewSymDense(len(x0), nil)
	for i := range x0 {
		cov.SetSym(i, i, 1)
	}
	belief, err := uncertainty.NewMultivariateNormal(m.States(), mean, cov)
	if err != nil {
		t.Fatalf("belief: %v", err)
	}
	return belief
}

// playback runs est over noise-free measurements generated by stepping the
// model itself and returns the final state error per key.
func playback(t *testing.T, m model.Model, est Estimator, dt float64, steps int) map[string]float64 {
	t.Helper()
	x := m.Initialize(nil, nil)
	u := make([]float64, m.Inputs().Len())
	clock := 0.0
	for i := 0; i < steps; i++ {
		x = m.NextState(x, u, dt)
		clock += dt
		z := m.Outputs().Map(m.Output(x))
		if err := est.Estimate(clock, m.Inputs().Map(u), z); err != nil {
			t.Fatalf("estimate step %d: %v", i, err)
		}
	}
	mean := est.State().Mean()
	truth := m.States().Map(x)
	errs := make(map[string]float64, len(truth))
	for key, v := range truth {
		errs[key] = math.Abs(mean[key] - v)
	}
	return errs
}

func TestKalman_Converges(t *testing.T) {
	m := modeltest.NewLinearThrownObject()
	kf, err := NewKalman(m, biasedBelief(t, m, 1), DefaultKalmanConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := playback(t, m, kf, 0.1, 50)
	for key, e := range errs {
		if e > 0.5 {
			t.Errorf("%s error %v after 50 steps, expected < 0.5", key, e)
		}
	}
}

func TestKalman_StateIsGaussian(t *testing.T) {
	m := modeltest.NewLinearThrownObject()
	kf, err := NewKalman(m, biasedBelief(t, m, 0), DefaultKalmanConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := kf.State().(*uncertainty.MultivariateNormal); !ok {
		t.Fatalf("expected Gaussian state, got %T", kf.State())
	}
	if !kf.State().Schema().Equal(m.States()) {
		t.Error("state schema should match the model's state schema")
	}
}

func TestKalman_TimeOrder(t *testing.T) {
	m := modeltest.NewLinearThrownObject()
	kf, err := NewKalman(m, biasedBelief(t, m, 0), DefaultKalmanConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z := map[string]float64{"x": 1.83}
	if err := kf.Estimate(1, nil, z); err != nil {
		t.Fatalf("first estimate: %v", err)
	}
	if err := kf.Estimate(1, nil, z); !errors.Is(err, ErrTimeOrder) {
		t.Fatalf("expected ErrTimeOrder for repeated time, got %v", err)
	}
	if err := kf.Estimate(0.5, nil, z); !errors.Is(err, ErrTimeOrder) {
		t.Fatalf("expected ErrTimeOrder for earlier time, got %v", err)
	}
	if kf.Time() != 1 {
		t.Errorf("clock should stay at the last accepted time, got %v", kf.Time())
	}
}

func TestKalman_DefaultT0AcceptsZero(t *testing.T) {
	m := modeltest.NewLinearThrownObject()
	kf, err := NewKalman(m, biasedBelief(t, m, 0), DefaultKalmanConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := kf.Estimate(0, nil, map[string]float64{"x": 1.83}); err != nil {
		t.Fatalf("estimate at t=0 should be accepted with the default start time: %v", err)
	}
}

func TestKalman_InvalidConfig(t *testing.T) {
	m := modeltest.NewLinearThrownObject()
	belief := biasedBelief(t, m, 0)

	cfg := DefaultKalmanConfig()
	cfg.MaxStep = -1
	if _, err := NewKalman(m, belief, cfg); err == nil {
		t.Error("expected error for negative max step")
	}

	cfg = DefaultKalmanConfig()
	cfg.Q = mat.NewSymDense(3, nil)
	if _, err := NewKalman(m, belief, cfg); err == nil {
		t.Error("expected error for Q dimension mismatch")
	}
}
