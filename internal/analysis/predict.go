package analysis

import (
	"context"
	"errors"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

var errEmptyForecast = errors.New("forecaster returned no values")

// Prediction is the outcome of the forecast path for one point.
type Prediction struct {
	Trend  analytics.Trend
	Values []analytics.PredictedValue
	Alarm  *Crossing
	// SecondsToAlarm is the offset of the first crossing step.
	SecondsToAlarm int
	AlarmValue     float64
	Err            error
}

// TrainingPairs slides a window of n over values: X[i] = v[i:i+n] and
// Y[i] = v[i+n:i+2n] for every i in [0, len-2n).
func TrainingPairs(values []float64, n int) (x, y [][]float64) {
	for i := 0; i < len(values)-2*n; i++ {
		x = append(x, values[i:i+n])
		y = append(y, values[i+n:i+2*n])
	}
	return x, y
}

// Predict forecasts the next horizon from the full history and walks the
// forecast for the earliest threshold crossing. Without enough history for a
// single training pair the result is STABLE with no forecast. Forecaster
// failures degrade to STABLE and are returned in Err.
func (c Config) Predict(ctx context.Context, f analytics.Forecaster, values []float64, lim analytics.Limits) Prediction {
	n := c.PredictionPoints
	out := Prediction{Trend: analytics.TrendStable}
	if len(values) <= n {
		return out
	}
	x, y := TrainingPairs(values, n)
	if len(x) == 0 {
		return out
	}
	query := values[len(values)-n:]

	pred, err := f.Forecast(ctx, x, y, query)
	if err == nil && len(pred) == 0 {
		err = errEmptyForecast
	}
	if err != nil {
		if !analytics.IsCapabilityError(err) {
			err = analytics.NewCapabilityError(analytics.CapabilityForecast, err)
		}
		out.Err = err
		return out
	}

	if len(pred) >= 2 {
		first, last := pred[0], pred[len(pred)-1]
		switch {
		case last > first*(1+c.PredictionTrendBand):
			out.Trend = analytics.TrendIncreasing
		case last < first*(1-c.PredictionTrendBand):
			out.Trend = analytics.TrendDecreasing
		}
	}

	step := int(c.SampleInterval.Seconds())
	out.Values = make([]analytics.PredictedValue, len(pred))
	for i, v := range pred {
		out.Values[i] = analytics.PredictedValue{OffsetSeconds: (i + 1) * step, Value: v}
		if out.Alarm != nil {
			continue
		}
		if cr, ok := Crossed(v, lim); ok {
			out.Alarm = &cr
			out.SecondsToAlarm = (i + 1) * step
			out.AlarmValue = v
		}
	}
	return out
}
