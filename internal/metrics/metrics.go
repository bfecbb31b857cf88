// Package metrics computes prognostic performance metrics over
// time-of-event predictions and prediction profiles.
package metrics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/prognostics/internal/predict"
	"github.com/banshee-data/prognostics/internal/schema"
	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// DefaultProbSuccessSamples is the number of draws used to evaluate
// ProbSuccess on a non-sampled distribution.
const DefaultProbSuccessSamples = 10000

// AlphaLambda reports, per event, whether at least beta of the
// time-of-event distribution lies within the alpha bounds around the
// ground truth at prediction time lambda. The metric is evaluated at the
// first profile entry at or after lambda; the bounds shrink as the
// prediction time approaches the true event: gt +/- alpha*(gt - t).
func AlphaLambda(p *predict.Profile, groundTruth map[string]float64, lambda, alpha, beta float64, rng *rand.Rand) (map[string]bool, error) {
	for _, t := range p.Times() {
		if t < lambda {
			continue
		}
		toe, _ := p.At(t)
		bounds := make(map[string]uncertainty.Bounds, len(groundTruth))
		for key, gt := range groundTruth {
			if !toe.Schema().Contains(key) {
				return nil, fmt.Errorf("metrics: ground truth event %q: %w", key, schema.ErrKeyNotFound)
			}
			bounds[key] = uncertainty.Bounds{
				Lower: gt - alpha*(gt-t),
				Upper: gt + alpha*(gt-t),
			}
		}
		pib, err := toe.PercentageInBounds(rng, bounds)
		if err != nil {
			return nil, err
		}
		result := make(map[string]bool, len(groundTruth))
		for key := range groundTruth {
			result[key] = pib[key] >= beta
		}
		return result, nil
	}
	return nil, fmt.Errorf("metrics: no prediction at or after lambda=%g", lambda)
}

// CriteriaFunc judges whether a single time-to-event prediction meets a
// performance criterion, per event. Both the prediction and the ground
// truth are expressed relative to the prediction time.
type CriteriaFunc func(tte uncertainty.Distribution, groundTruthTtE map[string]float64) map[string]bool

// PrognosticHorizon returns, per event, the difference between the true
// time of event and the earliest prediction time at which the criteria
// were met: PH = ToE - ti. Events whose criteria are never met with time
// remaining carry NaN.
func PrognosticHorizon(p *predict.Profile, criteria CriteriaFunc, groundTruth map[string]float64) map[string]float64 {
	result := make(map[string]float64, len(groundTruth))
	for key := range groundTruth {
		result[key] = math.NaN()
	}
	for _, t := range p.Times() {
		toe, _ := p.At(t)
		tte := toe.Shift(-t)
		gtTte := make(map[string]float64, len(groundTruth))
		for key, gt := range groundTruth {
			gtTte[key] = gt - t
		}
		met := criteria(tte, gtTte)
		done := true
		for key, ok := range met {
			if ok && math.IsNaN(result[key]) {
				if ph := groundTruth[key] - t; ph > 0 {
					result[key] = ph
				}
			}
		}
		for key := range groundTruth {
			if math.IsNaN(result[key]) {
				done = false
			}
		}
		if done {
			return result
		}
	}
	return result
}

// CumulativeRelativeAccuracy averages the relative accuracy of every
// prediction in the profile against the ground truth, per event.
func CumulativeRelativeAccuracy(p *predict.Profile, groundTruth map[string]float64) (map[string]float64, error) {
	times := p.Times()
	if len(times) == 0 {
		return nil, fmt.Errorf("metrics: empty prediction profile")
	}
	sums := make(map[string]float64, len(groundTruth))
	for _, t := range times {
		toe, _ := p.At(t)
		ra, err := uncertainty.RelativeAccuracy(toe, groundTruth)
		if err != nil {
			return nil, err
		}
		for key, v := range ra {
			sums[key] += v
		}
	}
	result := make(map[string]float64, len(sums))
	for key, sum := range sums {
		result[key] = sum / float64(len(times))
	}
	return result, nil
}

// Monotonicity measures how consistently a profile's mean time-to-event
// trends in one direction: |sum(sign(diff))| / (N-1) over successive
// predictions, per event, in [0, 1]. A profile with fewer than two
// predictions has no trend and scores zero. An unresolved prediction
// (NaN mean) makes the event's score NaN.
func Monotonicity(p *predict.Profile) map[string]float64 {
	byEvent := make(map[string][]float64)
	for _, t := range p.Times() {
		toe, _ := p.At(t)
		for key, v := range toe.Mean() {
			byEvent[key] = append(byEvent[key], v-t)
		}
	}
	result := make(map[string]float64, len(byEvent))
	for key, tte := range byEvent {
		if len(tte) < 2 {
			result[key] = 0
			continue
		}
		var sum float64
		for i := 0; i+1 < len(tte); i++ {
			sum += sign(tte[i+1] - tte[i])
		}
		result[key] = math.Abs(sum / float64(len(tte)-1))
	}
	return result
}

// ProbSuccess returns, per event, the probability that the event has not
// occurred by the given time. An unresolved realisation never reached the
// event and counts as a success. Sampled distributions are evaluated
// directly; others are approximated with DefaultProbSuccessSamples draws.
func ProbSuccess(toe uncertainty.Distribution, time float64, rng *rand.Rand) (map[string]float64, error) {
	samples, ok := toe.(*uncertainty.Samples)
	if !ok {
		var err error
		samples, err = toe.Sample(rng, DefaultProbSuccessSamples)
		if err != nil {
			return nil, err
		}
	}
	if samples.Len() == 0 {
		return nil, uncertainty.ErrEmptyDistribution
	}
	result := make(map[string]float64, samples.Schema().Len())
	for _, key := range samples.Schema().Keys() {
		values, err := samples.Values(key)
		if err != nil {
			return nil, err
		}
		success := 0
		for _, v := range values {
			if math.IsNaN(v) || v > time {
				success++
			}
		}
		result[key] = float64(success) / float64(len(values))
	}
	return result, nil
}

func sign(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
