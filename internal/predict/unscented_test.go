package predict

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/model/modeltest"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

func thrownBelief(t *testing.T, spread float64) *uncertainty.MultivariateNormal {
	t.Helper()
	m := modeltest.NewThrownObject()
	cov := mat.NewSymDense(2, []float64{spread, 0, 0, spread})
	belief, err := uncertainty.NewMultivariateNormal(m.States(), m.Initialize(nil, nil), cov)
	if err != nil {
		t.Fatalf("belief: %v", err)
	}
	return belief
}

func TestUnscentedTransform_ImpactTime(t *testing.T) {
	m := modeltest.NewThrownObject()
	ut, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt:      0.01,
		Horizon: 20,
		Events:  []string{"impact"},
		Alpha:   1, Beta: 0, Kappa: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := ut.Predict(thrownBelief(t, 0.01), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	got := res.TimeOfEvent.Mean()["impact"]
	want := m.ImpactTime()
	if math.Abs(got-want)/want > 0.02 {
		t.Errorf("predicted impact %v, analytic %v (more than 2%% off)", got, want)
	}
	if res.TimeOfEvent.Cov().At(0, 0) < 0 {
		t.Errorf("event-time variance must be non-negative, got %v", res.TimeOfEvent.Cov().At(0, 0))
	}
}

func TestUnscentedTransform_RejectsScalarState(t *testing.T) {
	m := modeltest.NewThrownObject()
	ut, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt: 0.01, Horizon: 20, Alpha: 1, Kappa: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scalar, _ := uncertainty.NewScalar(m.States(), m.Initialize(nil, nil))
	if _, err := ut.Predict(scalar, nil); err == nil {
		t.Fatal("expected error for a scalar state")
	}
}

func TestUnscentedTransform_RejectsFirstStrategy(t *testing.T) {
	m := modeltest.NewThrownObject()
	_, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt: 0.01, Horizon: 20, Strategy: StrategyFirst, Alpha: 1, Kappa: -1,
	})
	if !errors.Is(err, ErrUnsupportedStrategy) {
		t.Fatalf("expected ErrUnsupportedStrategy, got %v", err)
	}
}

func TestUnscentedTransform_HorizonUnresolved(t *testing.T) {
	m := modeltest.NewThrownObject()
	ut, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt: 0.01, Horizon: 1, Events: []string{"impact"}, Alpha: 1, Kappa: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := ut.Predict(thrownBelief(t, 0.01), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !math.IsNaN(res.TimeOfEvent.Mean()["impact"]) {
		t.Errorf("impact inside 1s horizon should be unresolved, got %v", res.TimeOfEvent.Mean()["impact"])
	}
	if res.FinalState["impact"] != nil {
		t.Error("final state should be nil when any sigma point is unresolved")
	}
}

func TestUnscentedTransform_FinalState(t *testing.T) {
	m := modeltest.NewThrownObject()
	ut, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt: 0.001, Horizon: 20, Events: []string{"impact"}, Alpha: 1, Kappa: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := ut.Predict(thrownBelief(t, 0.01), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	final := res.FinalState["impact"]
	if final == nil {
		t.Fatal("expected a final state once every sigma point resolved")
	}
	if got := final.Mean()["x"]; got > 0.05 {
		t.Errorf("height at impact should be at or below ground, got %v", got)
	}
}

func TestUnscentedTransform_LazySnapshots(t *testing.T) {
	m := modeltest.NewThrownObject()
	ut, err := NewUnscentedTransform(m, UnscentedTransformConfig{
		Dt: 0.01, Horizon: 20, SaveFreq: 1, Events: []string{"impact"}, Alpha: 1, Kappa: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := ut.Predict(thrownBelief(t, 0.01), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.Times[0] != 0 {
		t.Fatalf("grid should start at the prediction time, got %v", res.Times[0])
	}

	state, err := res.States.Snapshot(0)
	if err != nil {
		t.Fatalf("state snapshot: %v", err)
	}
	out, err := res.Outputs.Snapshot(0)
	if err != nil {
		t.Fatalf("output snapshot: %v", err)
	}
	if _, ok := out.(*uncertainty.MultivariateNormal); !ok {
		t.Fatalf("expected Gaussian output snapshot, got %T", out)
	}
	// ThrownObject's output is its height, so the output snapshot tracks
	// the state snapshot exactly.
	if math.Abs(out.Mean()["x"]-state.Mean()["x"]) > 1e-6 {
		t.Errorf("output mean %v should match state mean %v", out.Mean()["x"], state.Mean()["x"])
	}

	es, err := res.EventStates.Snapshot(0)
	if err != nil {
		t.Fatalf("event-state snapshot: %v", err)
	}
	if got := es.Mean()["impact"]; got < 0.5 || got > 1.0001 {
		t.Errorf("initial impact event state %v, expected near 1", got)
	}

	again, err := res.Outputs.Snapshot(0)
	if err != nil {
		t.Fatalf("cached snapshot: %v", err)
	}
	if again != out {
		t.Error("repeated snapshot should return the cached distribution")
	}
}
