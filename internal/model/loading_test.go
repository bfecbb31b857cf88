package model_test

import (
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/prognostics/internal/model"
	"github.com/banshee-data/prognostics/internal/schema"
)

func TestPiecewise(t *testing.T) {
	inputs := schema.New("i")
	load, err := model.Piecewise(inputs, []float64{600, 900, 1800}, map[string][]float64{
		"i": {2, 1, 4, 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []struct {
		t    float64
		want float64
	}{
		{0, 2},
		{599.9, 2},
		{600, 2},
		{600.1, 1},
		{900.1, 4},
		{1800.1, 3},
		{1e6, 3},
	}
	for _, c := range cases {
		if got := load(c.t, nil)[0]; got != c.want {
			t.Errorf("load(%v) = %v, expected %v", c.t, got, c.want)
		}
	}
}

func TestPiecewise_NoDefaultValue(t *testing.T) {
	inputs := schema.New("i")
	load, err := model.Piecewise(inputs, []float64{10, 20}, map[string][]float64{
		"i": {5, 6},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Without a trailing default the final segment value holds forever.
	if got := load(100, nil)[0]; got != 6 {
		t.Errorf("load(100) = %v, expected 6", got)
	}
}

func TestPiecewise_LengthMismatch(t *testing.T) {
	inputs := schema.New("i")
	if _, err := model.Piecewise(inputs, []float64{10, 20}, map[string][]float64{"i": {1, 2, 3, 4}}); err == nil {
		t.Fatal("expected error for mismatched value count")
	}
}

func TestPiecewise_MissingInput(t *testing.T) {
	inputs := schema.New("i", "j")
	if _, err := model.Piecewise(inputs, []float64{10}, map[string][]float64{"i": {1}}); err == nil {
		t.Fatal("expected error for input without values")
	}
}

func TestGaussianNoise_Reproducible(t *testing.T) {
	inputs := schema.New("i")
	base, err := model.Piecewise(inputs, []float64{100}, map[string][]float64{"i": {2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sample := func(seed uint64) []float64 {
		rng := rand.New(rand.NewPCG(seed, seed))
		noisy := model.NewGaussianNoise(base, 0.5, rng)
		out := make([]float64, 10)
		for i := range out {
			out[i] = noisy.Load(float64(i), nil)[0]
		}
		return out
	}
	a, b := sample(4), sample(4)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
	c := sample(5)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should produce different loads")
	}
}

func TestGaussianNoise_SlopeGrowsSpread(t *testing.T) {
	inputs := schema.New("i")
	base, _ := model.Piecewise(inputs, []float64{1e6}, map[string][]float64{"i": {0}})
	rng := rand.New(rand.NewPCG(1, 2))
	noisy := model.NewGaussianNoise(base, 1, rng).WithSlope(0.1, 0)

	spread := func(t0 float64) float64 {
		var maxAbs float64
		for i := 0; i < 500; i++ {
			v := noisy.Load(t0, nil)[0]
			if v < 0 {
				v = -v
			}
			if v > maxAbs {
				maxAbs = v
			}
		}
		return maxAbs
	}
	early := spread(0)
	late := spread(1000)
	if late <= early {
		t.Errorf("noise spread should grow with time: early=%v late=%v", early, late)
	}
}
