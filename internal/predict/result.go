// Package predict turns a state estimate into a forecast of when a
// model's events will occur, either by simulating sampled realisations
// (MonteCarlo) or by propagating sigma points (UnscentedTransform).
package predict

import (
	"fmt"

	"github.com/banshee-data/prognostics/internal/uncertainty"
)

// EventStrategy selects how far a prediction follows events once the
// first one has occurred.
type EventStrategy string

const (
	// StrategyFirst stops each realisation at the first requested event.
	StrategyFirst EventStrategy = "first"
	// StrategyAll keeps simulating past each event until every requested
	// event has occurred or the horizon elapses.
	StrategyAll EventStrategy = "all"
)

// ErrUnsupportedStrategy is wrapped by errors for an event strategy the
// predictor cannot honour.
var ErrUnsupportedStrategy = fmt.Errorf("unsupported event strategy")

// Result is the outcome of one prediction: the save-time grid, snapshot
// series over that grid, and the distribution over event times.
type Result struct {
	Times       []float64
	Inputs      Series
	States      Series
	Outputs     Series
	EventStates Series

	// TimeOfEvent is the joint distribution over the predicted events'
	// occurrence times, keyed by event name. Events that did not resolve
	// within the horizon carry NaN.
	TimeOfEvent uncertainty.Distribution

	// FinalState maps each predicted event to the state distribution at
	// the moment the event occurred. An event that did not fully resolve
	// has a nil entry.
	FinalState map[string]uncertainty.Distribution
}
