package forecast

import (
	"context"
	"errors"
	"math"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Holt implements double exponential smoothing (level and trend, no
// seasonality). The trend is seeded from a least-squares fit of the first
// points of the window.
type Holt struct {
	Alpha float64 // Level smoothing (0-1)
	Beta  float64 // Trend smoothing (0-1)
}

var _ analytics.Forecaster = (*Holt)(nil)

// NewHolt creates a Holt forecaster with clamped smoothing factors.
func NewHolt(alpha, beta float64) *Holt {
	return &Holt{Alpha: clamp(alpha, 0, 1), Beta: clamp(beta, 0, 1)}
}

var errShortQuery = errors.New("query needs at least 2 values")

// Smooth runs the recursion over values and returns the final level and
// trend.
func (h *Holt) Smooth(values []float64) (level, trend float64) {
	seed := values[:min(len(values), 5)]
	fit := LinearRegression(seed)
	level, trend = values[0], fit.Slope
	for _, v := range values[1:] {
		prev := level
		level = h.Alpha*v + (1-h.Alpha)*(prev+trend)
		trend = h.Beta*(level-prev) + (1-h.Beta)*trend
	}
	return level, trend
}

// Forecast ignores the training pairs and extrapolates len(query) steps
// from the smoothed level and trend of the query window.
func (h *Holt) Forecast(ctx context.Context, _, _ [][]float64, query []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) < 2 {
		return nil, errShortQuery
	}
	level, trend := h.Smooth(query)
	out := make([]float64, len(query))
	for i := range out {
		out[i] = level + float64(i+1)*trend
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
