// Package forecast implements the built-in forecasters used for trend
// prediction: an analog (nearest-neighbour) forecaster over sliding-window
// training pairs and Holt linear smoothing over the query window.
package forecast

// Fit is the result of a least-squares line fit.
type Fit struct {
	Slope     float64 // change per step
	Intercept float64 // value at step 0
	RSquared  float64 // coefficient of determination (0-1)
}

// At returns the fitted value at step x.
func (f Fit) At(x float64) float64 {
	return f.Slope*x + f.Intercept
}

// LinearRegression fits values against their step index 0..n-1.
// Returns nil if fewer than 2 points are provided.
func LinearRegression(values []float64) *Fit {
	n := len(values)
	if n < 2 {
		return nil
	}

	var sumX, sumY float64
	for i, v := range values {
		sumX += float64(i)
		sumY += v
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var ssXY, ssXX, ssYY float64
	for i, v := range values {
		dx := float64(i) - meanX
		dy := v - meanY
		ssXY += dx * dy
		ssXX += dx * dx
		ssYY += dy * dy
	}

	slope := ssXY / ssXX
	fit := &Fit{Slope: slope, Intercept: meanY - slope*meanX}
	if ssYY > 0 {
		fit.RSquared = (ssXY * ssXY) / (ssXX * ssYY)
	}
	return fit
}
