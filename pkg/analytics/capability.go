package analytics

import (
	"context"
	"errors"
)

// Classifier scores test samples against a labelled reference block.
// It must return exactly one probability in [0,1] per test sample.
type Classifier interface {
	Classify(ctx context.Context, reference [][]float64, labels []float64, test [][]float64) ([]float64, error)
}

// Forecaster predicts the next len(query) values from sliding-window
// training pairs (trainX[i] is followed by trainY[i]).
type Forecaster interface {
	Forecast(ctx context.Context, trainX, trainY [][]float64, query []float64) ([]float64, error)
}

// FaultAnalyzer produces an expert analysis for an escalated fault.
type FaultAnalyzer interface {
	AnalyzeFault(ctx context.Context, fault *FaultRecord, correlated []CorrelatedPoint) (*ExpertAnalysis, error)
}

// Capability names used in CapabilityError.
const (
	CapabilityClassify = "classify"
	CapabilityForecast = "forecast"
	CapabilityAnalyze  = "analyze_fault"
)

// CapabilityError is a transient failure of an external capability call.
// The engine recovers from it locally and never propagates it across a queue.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return e.Capability + " capability failed: " + e.Err.Error()
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError wraps err as a failure of the named capability.
func NewCapabilityError(capability string, err error) *CapabilityError {
	return &CapabilityError{Capability: capability, Err: err}
}

// IsCapabilityError reports whether err is (or wraps) a CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
