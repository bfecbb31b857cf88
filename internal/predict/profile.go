package predict

import (
	"sort"

	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// Profile collects time-of-event predictions made at successive points in
// a system's life, keyed by the time each prediction was made. It is the
// input to the prognostic performance metrics.
type Profile struct {
	times []float64
	preds map[float64]uncertainty.Distribution
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{preds: make(map[float64]uncertainty.Distribution)}
}

// Add records the time-of-event prediction made at time t. Re-adding a
// time replaces the earlier prediction.
func (p *Profile) Add(t float64, timeOfEvent uncertainty.Distribution) {
	if _, ok := p.preds[t]; !ok {
		i := sort.SearchFloat64s(p.times, t)
		p.times = append(p.times, 0)
		copy(p.times[i+1:], p.times[i:])
		p.times[i] = t
	}
	p.preds[t] = timeOfEvent
}

// Len returns the number of recorded predictions.
func (p *Profile) Len() int { return len(p.times) }

// Times returns the prediction times in ascending order.
func (p *Profile) Times() []float64 {
	return append([]float64(nil), p.times...)
}

// At returns the prediction made at time t.
func (p *Profile) At(t float64) (uncertainty.Distribution, bool) {
	d, ok := p.preds[t]
	return d, ok
}
