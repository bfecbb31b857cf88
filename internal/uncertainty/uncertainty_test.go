package uncertainty

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestScalar_Moments(t *testing.T) {
	s, err := NewScalarFromMap(schema.New("a", "b"), map[string]float64{"a": 1.5, "b": -2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Mean()["a"]; got != 1.5 {
		t.Errorf("mean[a]: expected 1.5, got %v", got)
	}
	if got := s.Median()["b"]; got != -2 {
		t.Errorf("median[b]: expected -2, got %v", got)
	}
	cov := s.Cov()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if cov.At(i, j) != 0 {
				t.Errorf("cov(%d,%d): expected 0, got %v", i, j, cov.At(i, j))
			}
		}
	}
}

func TestScalar_Sample(t *testing.T) {
	s, _ := NewScalar(schema.New("a"), []float64{3})
	drawn, err := s.Sample(testRand(1), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drawn.Len() != 5 {
		t.Fatalf("expected 5 samples, got %d", drawn.Len())
	}
	for i := 0; i < drawn.Len(); i++ {
		if drawn.Point(i)[0] != 3 {
			t.Errorf("sample %d: expected 3, got %v", i, drawn.Point(i)[0])
		}
	}
	if _, err := s.Sample(testRand(1), 0); err == nil {
		t.Error("expected error for non-positive sample count")
	}
}

func TestScalar_PercentageInBounds(t *testing.T) {
	s, _ := NewScalar(schema.New("a"), []float64{3})
	pib, err := s.PercentageInBounds(nil, map[string]Bounds{"a": {Lower: 2, Upper: 4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pib["a"] != 1 {
		t.Errorf("expected 1 in bounds, got %v", pib["a"])
	}
	pib, _ = s.PercentageInBounds(nil, map[string]Bounds{"a": {Lower: 4, Upper: 5}})
	if pib["a"] != 0 {
		t.Errorf("expected 0 in bounds, got %v", pib["a"])
	}
}

func TestSamples_Mean(t *testing.T) {
	s, err := NewSamples(schema.New("a", "b"), [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mean := s.Mean()
	if mean["a"] != 2 {
		t.Errorf("mean[a]: expected 2, got %v", mean["a"])
	}
	if mean["b"] != 20 {
		t.Errorf("mean[b]: expected 20, got %v", mean["b"])
	}
}

func TestSamples_Mean_ExcludesUnresolved(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), [][]float64{
		{1}, {3}, {math.NaN()},
	})
	if got := s.Mean()["a"]; got != 2 {
		t.Errorf("mean should skip NaN values: expected 2, got %v", got)
	}
}

func TestSamples_Sample(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), [][]float64{{1}, {2}, {3}})
	drawn, err := s.Sample(testRand(7), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drawn.Len() != 100 {
		t.Fatalf("expected 100 draws, got %d", drawn.Len())
	}
	for i := 0; i < drawn.Len(); i++ {
		v := drawn.Point(i)[0]
		if v != 1 && v != 2 && v != 3 {
			t.Fatalf("draw %d: value %v not in source set", i, v)
		}
	}
}

func TestSamples_Sample_Empty(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), nil)
	if _, err := s.Sample(testRand(1), 10); !errors.Is(err, ErrEmptyDistribution) {
		t.Fatalf("expected ErrEmptyDistribution, got %v", err)
	}
}

func TestSamples_Shift(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), [][]float64{{1}, {math.NaN()}})
	shifted := s.Shift(10).(*Samples)
	if got := shifted.Point(0)[0]; got != 11 {
		t.Errorf("expected 11, got %v", got)
	}
	if !math.IsNaN(shifted.Point(1)[0]) {
		t.Error("unresolved value should stay NaN after shift")
	}
}

func TestSamples_Median(t *testing.T) {
	// Total squared distances: (0,0) -> 202, (1,1) -> 164, (10,10) -> 362.
	s, _ := NewSamples(schema.New("x", "v"), [][]float64{
		{0, 0}, {1, 1}, {10, 10},
	})
	med := s.Median()
	if med["x"] != 1 || med["v"] != 1 {
		t.Errorf("expected median point (1,1), got %v", med)
	}
}

func TestSamples_MedianSkipsUnresolved(t *testing.T) {
	// The partially resolved point is neither a candidate nor counted in
	// the distance totals.
	s, _ := NewSamples(schema.New("x", "v"), [][]float64{
		{0, 0}, {1, 1}, {10, 10}, {math.NaN(), 5},
	})
	med := s.Median()
	if med["x"] != 1 || med["v"] != 1 {
		t.Errorf("expected median point (1,1), got %v", med)
	}
}

func TestSamples_MedianAllUnresolved(t *testing.T) {
	s, _ := NewSamples(schema.New("x"), [][]float64{{math.NaN()}, {math.NaN()}})
	if med := s.Median(); !math.IsNaN(med["x"]) {
		t.Errorf("expected NaN median with no resolved points, got %v", med["x"])
	}
}

func TestSamples_PercentageInBounds(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), [][]float64{
		{1}, {2}, {3}, {math.NaN()},
	})
	pib, err := s.PercentageInBounds(nil, map[string]Bounds{"a": {Lower: 1.5, Upper: 3.5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2 of 4 in bounds; NaN counts against.
	if pib["a"] != 0.5 {
		t.Errorf("expected 0.5, got %v", pib["a"])
	}
}

func TestSamples_Cov(t *testing.T) {
	s, _ := NewSamples(schema.New("a"), [][]float64{{1}, {2}, {3}})
	// Sample variance of {1,2,3} is 1.
	if got := s.Cov().At(0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected variance 1, got %v", got)
	}
}

func TestMultivariateNormal_SampleDeterministic(t *testing.T) {
	sch := schema.New("a", "b")
	cov := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 2})
	n, err := NewMultivariateNormal(sch, []float64{0, 5}, cov)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d1, err := n.Sample(testRand(11), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2, _ := n.Sample(testRand(11), 50)
	for i := 0; i < d1.Len(); i++ {
		p1, p2 := d1.Point(i), d2.Point(i)
		if p1[0] != p2[0] || p1[1] != p2[1] {
			t.Fatalf("draw %d differs across identically seeded generators", i)
		}
	}
	d3, _ := n.Sample(testRand(12), 50)
	same := true
	for i := 0; i < d1.Len(); i++ {
		if d1.Point(i)[0] != d3.Point(i)[0] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should produce different draws")
	}
}

func TestMultivariateNormal_SampleMean(t *testing.T) {
	sch := schema.New("a")
	cov := mat.NewSymDense(1, []float64{0.25})
	n, _ := NewMultivariateNormal(sch, []float64{10}, cov)
	drawn, err := n.Sample(testRand(3), 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drawn.Mean()["a"]; math.Abs(got-10) > 0.1 {
		t.Errorf("sample mean %v too far from 10", got)
	}
}

func TestMultivariateNormal_Shift(t *testing.T) {
	sch := schema.New("a")
	n, _ := NewMultivariateNormal(sch, []float64{1}, mat.NewSymDense(1, []float64{1}))
	if got := n.Shift(-3).Mean()["a"]; got != -2 {
		t.Errorf("expected -2, got %v", got)
	}
}

func TestRelativeAccuracy(t *testing.T) {
	s, _ := NewScalar(schema.New("e"), []float64{90})
	ra, err := RelativeAccuracy(s, map[string]float64{"e": 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1 - |100-90|/100
	if math.Abs(ra["e"]-0.9) > 1e-12 {
		t.Errorf("expected 0.9, got %v", ra["e"])
	}
}

func TestRelativeAccuracy_ZeroGroundTruth(t *testing.T) {
	s, _ := NewScalar(schema.New("e"), []float64{1})
	if _, err := RelativeAccuracy(s, map[string]float64{"e": 0}); !errors.Is(err, ErrZeroGroundTruth) {
		t.Fatalf("expected ErrZeroGroundTruth, got %v", err)
	}
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{Lower: 1, Upper: 2}
	if !b.Contains(1.5) {
		t.Error("interior value should be in bounds")
	}
	if b.Contains(1) || b.Contains(2) {
		t.Error("bounds are strict; endpoints are outside")
	}
	if b.Contains(math.NaN()) {
		t.Error("NaN must never be in bounds")
	}
	if b.Contains(0.5) || b.Contains(2.5) {
		t.Error("values outside bounds reported as contained")
	}
}
