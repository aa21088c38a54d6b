package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// tail returns the last n elements of values (all of them if fewer).
func tail(values []float64, n int) []float64 {
	if n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// Trend compares the last step against three times the mean per-step change
// over the trend window, with an absolute floor. History must be longer than
// TrendMinHistory, otherwise the trend is STABLE.
func (c Config) Trend(values []float64) analytics.Trend {
	if len(values) <= c.TrendMinHistory {
		return analytics.TrendStable
	}
	w := tail(values, c.TrendWindow)
	if len(w) < 2 {
		return analytics.TrendStable
	}
	recent := w[len(w)-1] - w[len(w)-2]
	avg := (w[len(w)-1] - w[0]) / float64(len(w))
	limit := math.Max(math.Abs(avg)*3, c.TrendFloor)
	switch {
	case math.Abs(recent) <= limit:
		return analytics.TrendStable
	case recent > 0:
		return analytics.TrendIncreasing
	default:
		return analytics.TrendDecreasing
	}
}

// Fluctuation returns the largest per-step rate |v[i]-v[i-1]|/interval over
// the fluctuation window and whether it strictly exceeds limit. The rate is
// measured whenever the window is full, even without a limit.
func (c Config) Fluctuation(values []float64, limit *float64) (rate float64, detected bool) {
	if len(values) < c.FluctuationWindow {
		return 0, false
	}
	w := tail(values, c.FluctuationWindow)
	dt := c.SampleInterval.Seconds()
	for i := 1; i < len(w); i++ {
		rate = math.Max(rate, math.Abs(w[i]-w[i-1])/dt)
	}
	return rate, limit != nil && rate > *limit
}

// Mutation returns the last step |v[-1]-v[-2]| and whether it strictly
// exceeds limit.
func (c Config) Mutation(values []float64, limit *float64) (delta float64, detected bool) {
	if len(values) < c.MutationMinHistory {
		return 0, false
	}
	delta = math.Abs(values[len(values)-1] - values[len(values)-2])
	return delta, limit != nil && delta > *limit
}

// Stable reports whether the stability window is flat: its relative range
// (max-min)/|max| is below StabilityThreshold. A zero maximum counts as flat.
func (c Config) Stable(values []float64) bool {
	w := tail(values, c.StabilityWindow)
	if len(w) == 0 {
		return false
	}
	lo, hi := w[0], w[0]
	for _, v := range w[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == 0 {
		return true
	}
	return (hi-lo)/math.Abs(hi) < c.StabilityThreshold
}

// PatternResult is the outcome of the pattern anomaly path.
type PatternResult struct {
	Probability float64
	Stable      bool
	Evaluated   bool // false when history was too short
	Err         error
}

// Anomalous reports whether the result raises the "anomalous pattern" signal.
func (r PatternResult) Anomalous(threshold float64) bool {
	return r.Evaluated && !r.Stable && r.Err == nil && r.Probability > threshold
}

// errShortResult is returned when a classifier answers with the wrong
// number of probabilities.
var errShortResult = errors.New("classifier returned no probabilities")

// Pattern runs the stability-gated pattern anomaly check. Flat windows get
// StableProbability without calling the classifier. Otherwise the stability
// window is split into a reference block labelled normal and a test block,
// and the classifier's per-sample scores are averaged and clamped to [0,1].
// A classifier failure yields probability 0 and is returned in Err.
func (c Config) Pattern(ctx context.Context, clf analytics.Classifier, values []float64) PatternResult {
	if len(values) <= c.AnomalyMinHistory {
		return PatternResult{}
	}
	if c.Stable(values) {
		return PatternResult{Probability: c.StableProbability, Stable: true, Evaluated: true}
	}
	w := tail(values, c.StabilityWindow)
	half := len(w) / 2
	ref, test := column(w[:half]), column(w[half:])
	labels := make([]float64, len(ref))
	for i := range labels {
		labels[i] = 1
	}

	scores, err := clf.Classify(ctx, ref, labels, test)
	if err == nil && len(scores) == 0 {
		err = errShortResult
	}
	if err == nil && len(scores) != len(test) {
		err = fmt.Errorf("classifier returned %d probabilities for %d samples", len(scores), len(test))
	}
	if err != nil {
		if !analytics.IsCapabilityError(err) {
			err = analytics.NewCapabilityError(analytics.CapabilityClassify, err)
		}
		return PatternResult{Evaluated: true, Err: err}
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	p := sum / float64(len(scores))
	return PatternResult{Probability: math.Max(0, math.Min(1, p)), Evaluated: true}
}

// column turns a series into one-feature rows.
func column(values []float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, v := range values {
		out[i] = []float64{v}
	}
	return out
}
