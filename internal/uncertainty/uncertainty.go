// Package uncertainty provides distributions over labelled numeric vectors.
//
// Three representations are supported: Scalar (a degenerate, deterministic
// distribution), Samples (an unweighted empirical distribution) and
// MultivariateNormal (a parametric Gaussian). All three share the
// Distribution interface: sampling, first and second moments, bounds
// checks, and a scalar shift used to convert time-of-event into
// time-to-event.
//
// A NaN value inside a Samples point marks an unresolved quantity (for
// example an event that was never reached within the prediction horizon).
// NaN entries are excluded from moments and counted as out of bounds; they
// are deliberately not an error.
package uncertainty

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

var (
	// ErrEmptyDistribution is returned when sampling from a Samples
	// distribution that holds no points.
	ErrEmptyDistribution = fmt.Errorf("empty distribution")

	// ErrZeroGroundTruth is returned by RelativeAccuracy when a ground
	// truth value is exactly zero.
	ErrZeroGroundTruth = fmt.Errorf("ground truth must be non-zero")
)

// DefaultBoundsSamples is the sample count used by distributions that can
// only evaluate PercentageInBounds empirically.
const DefaultBoundsSamples = 1000

// Bounds is a closed interval used by PercentageInBounds.
type Bounds struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies strictly inside the bounds.
// NaN (an unresolved value) is never in bounds.
func (b Bounds) Contains(v float64) bool {
	return !math.IsNaN(v) && v > b.Lower && v < b.Upper
}

// Distribution is a distribution over a labelled numeric vector.
type Distribution interface {
	// Schema returns the ordered key set the distribution is labelled by.
	Schema() *schema.Schema

	// Mean returns the first moment, keyed exactly by Schema().
	Mean() map[string]float64

	// Median returns the distribution median, keyed exactly by Schema().
	Median() map[string]float64

	// Cov returns the covariance matrix, square with dimension
	// Schema().Len(), ordered to match the schema.
	Cov() *mat.SymDense

	// Sample draws n realisations. n must be positive.
	Sample(rng *rand.Rand, n int) (*Samples, error)

	// Shift returns a copy of the distribution with every value moved by
	// delta. Used to convert time-of-event into time-to-event.
	Shift(delta float64) Distribution

	// PercentageInBounds returns, per key, the fraction of the
	// distribution lying inside the given bounds. Keys absent from
	// bounds are skipped. Distributions without a closed form sample
	// DefaultBoundsSamples realisations from rng.
	PercentageInBounds(rng *rand.Rand, bounds map[string]Bounds) (map[string]float64, error)
}

// RelativeAccuracy measures how close the distribution mean is to the
// ground truth, per key: 1 - |truth - mean| / truth. A zero ground-truth
// value yields ErrZeroGroundTruth naming the key.
func RelativeAccuracy(d Distribution, groundTruth map[string]float64) (map[string]float64, error) {
	mean := d.Mean()
	out := make(map[string]float64, len(groundTruth))
	for key, truth := range groundTruth {
		m, ok := mean[key]
		if !ok {
			return nil, fmt.Errorf("%w: ground truth key %q", schema.ErrKeyNotFound, key)
		}
		if truth == 0 {
			return nil, fmt.Errorf("%w: key %q", ErrZeroGroundTruth, key)
		}
		out[key] = 1 - math.Abs(truth-m)/truth
	}
	return out, nil
}

// boundsFor resolves the bounds entry for a key, reporting whether the key
// participates in the check at all.
func boundsFor(bounds map[string]Bounds, key string) (Bounds, bool) {
	b, ok := bounds[key]
	return b, ok
}
