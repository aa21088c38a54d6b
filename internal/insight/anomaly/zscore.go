// Package anomaly implements the built-in pattern classifier: test samples
// are scored by their z-score against a reference block labelled normal, and
// a CUSUM scan over the test block raises the score after a change point.
package anomaly

import "math"

// Stats returns the mean and population standard deviation of values.
func Stats(values []float64) (mean, stdDev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		stdDev += d * d
	}
	return mean, math.Sqrt(stdDev / float64(len(values)))
}

// ZScore returns |value-mean|/stdDev. A zero deviation baseline falls back
// to a relative check: values within relTol of the mean score 0, others
// score +Inf.
func ZScore(value, mean, stdDev, relTol float64) float64 {
	if stdDev > 0 {
		return math.Abs(value-mean) / stdDev
	}
	scale := math.Max(math.Abs(mean), 1e-9)
	if math.Abs(value-mean)/scale <= relTol {
		return 0
	}
	return math.Inf(1)
}

// Probability maps a z-score to [0,1] with a logistic curve centred on
// threshold. steepness controls how sharp the transition is.
func Probability(z, threshold, steepness float64) float64 {
	if math.IsInf(z, 1) {
		return 1
	}
	return 1 / (1 + math.Exp(-steepness*(z-threshold)))
}
