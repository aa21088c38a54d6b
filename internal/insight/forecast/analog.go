package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Analog forecasts by finding the training windows whose shape is closest to
// the query and replaying what followed them. Windows are compared after
// subtracting their last value, so a pattern seen at another operating level
// still matches; the neighbours' continuations are shifted onto the query's
// last value and averaged, weighted by inverse distance.
type Analog struct {
	K int // neighbours averaged
}

var _ analytics.Forecaster = (*Analog)(nil)

// NewAnalog creates an analog forecaster using k neighbours.
func NewAnalog(k int) *Analog {
	if k <= 0 {
		k = 5
	}
	return &Analog{K: k}
}

var errNoTraining = errors.New("no training pairs")

type neighbour struct {
	idx  int
	dist float64
}

// Forecast implements analytics.Forecaster.
func (a *Analog) Forecast(ctx context.Context, trainX, trainY [][]float64, query []float64) ([]float64, error) {
	if len(trainX) == 0 || len(trainX) != len(trainY) {
		return nil, errNoTraining
	}
	n := len(query)
	if n == 0 {
		return nil, errShortQuery
	}
	qLast := query[n-1]

	ns := make([]neighbour, 0, len(trainX))
	for i, x := range trainX {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(x) != n || len(trainY[i]) == 0 {
			return nil, fmt.Errorf("training pair %d has shape %d->%d, want %d->n", i, len(x), len(trainY[i]), n)
		}
		xLast := x[n-1]
		d := 0.0
		for j := range x {
			diff := (x[j] - xLast) - (query[j] - qLast)
			d += diff * diff
		}
		ns = append(ns, neighbour{idx: i, dist: math.Sqrt(d)})
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].dist < ns[j].dist })
	if len(ns) > a.K {
		ns = ns[:a.K]
	}

	horizon := len(trainY[ns[0].idx])
	out := make([]float64, horizon)
	total := 0.0
	for _, nb := range ns {
		w := 1 / (nb.dist + 1e-9)
		total += w
		x, y := trainX[nb.idx], trainY[nb.idx]
		xLast := x[len(x)-1]
		for j := range out {
			if j < len(y) {
				out[j] += w * (y[j] - xLast)
			}
		}
	}
	for j := range out {
		out[j] = qLast + out[j]/total
	}
	return out, nil
}

// New returns the named built-in forecaster: "holt" or "analog" (default).
func New(kind string, neighbours int, alpha, beta float64) analytics.Forecaster {
	if kind == "holt" {
		return NewHolt(alpha, beta)
	}
	return NewAnalog(neighbours)
}
