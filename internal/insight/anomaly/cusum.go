package anomaly

import "math"

// Direction of a detected shift.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// CUSUM tracks two-sided cumulative sums for change-point detection.
type CUSUM struct {
	Drift     float64 // Allowable drift (slack parameter k)
	Threshold float64 // Decision threshold (h)
	High      float64 // Upper cumulative sum S+
	Low       float64 // Lower cumulative sum S-
}

// NewCUSUM creates a new CUSUM detector.
func NewCUSUM(drift, threshold float64) *CUSUM {
	return &CUSUM{Drift: drift, Threshold: threshold}
}

// Update feeds one normalized value, (value-mean)/stdDev, and reports a
// change point and its direction. The triggered sum resets after detection.
func (c *CUSUM) Update(normalized float64) (bool, Direction) {
	c.High = math.Max(0, c.High+normalized-c.Drift)
	c.Low = math.Max(0, c.Low-normalized-c.Drift)

	switch {
	case c.High > c.Threshold:
		c.High = 0
		return true, DirectionUp
	case c.Low > c.Threshold:
		c.Low = 0
		return true, DirectionDown
	}
	return false, ""
}

// Scan runs a fresh detector over a normalized series and returns the index
// of the first change point, or -1.
func (c *CUSUM) Scan(normalized []float64) int {
	c.Reset()
	for i, z := range normalized {
		if hit, _ := c.Update(z); hit {
			return i
		}
	}
	return -1
}

// Reset resets the CUSUM accumulators.
func (c *CUSUM) Reset() {
	c.High = 0
	c.Low = 0
}
