// Package catalog holds the point table: per-point identity, six-level
// thresholds, protection limits, detection settings and correlations. The
// catalog is loaded once at start and is read-only afterwards.
package catalog

import (
	"encoding/json"
	"strconv"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

type thresholdKind uint8

const (
	thresholdAbsent thresholdKind = iota
	thresholdLiteral
	thresholdReference
)

// Threshold is either a literal number, a reference to another point's live
// value, or absent (the zero value).
type Threshold struct {
	kind  thresholdKind
	value float64
	ref   string
}

// LiteralThreshold returns a threshold fixed at v.
func LiteralThreshold(v float64) Threshold {
	return Threshold{kind: thresholdLiteral, value: v}
}

// ReferenceThreshold returns a threshold that takes the value of point id in
// the batch being evaluated.
func ReferenceThreshold(id string) Threshold {
	return Threshold{kind: thresholdReference, ref: id}
}

// IsSet reports whether the threshold is configured at all.
func (t Threshold) IsSet() bool { return t.kind != thresholdAbsent }

// IsReference reports whether the threshold refers to another point.
func (t Threshold) IsReference() bool { return t.kind == thresholdReference }

// Ref returns the referenced point ID, or "" for literal and absent thresholds.
func (t Threshold) Ref() string { return t.ref }

// Literal returns the fixed value and true for literal thresholds.
func (t Threshold) Literal() (float64, bool) {
	return t.value, t.kind == thresholdLiteral
}

// Resolve returns the threshold's value for the given batch. References that
// are not present in values resolve to (0, false), the same as absent.
func (t Threshold) Resolve(values map[string]float64) (float64, bool) {
	switch t.kind {
	case thresholdLiteral:
		return t.value, true
	case thresholdReference:
		v, ok := values[t.ref]
		return v, ok
	default:
		return 0, false
	}
}

func (t Threshold) resolvePtr(values map[string]float64) *float64 {
	if v, ok := t.Resolve(values); ok {
		return &v
	}
	return nil
}

// MarshalJSON encodes literals as numbers, references as the point ID and
// absent thresholds as null.
func (t Threshold) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case thresholdLiteral:
		return json.Marshal(t.value)
	case thresholdReference:
		return json.Marshal(t.ref)
	default:
		return []byte("null"), nil
	}
}

func (t Threshold) String() string {
	switch t.kind {
	case thresholdLiteral:
		return strconv.FormatFloat(t.value, 'g', -1, 64)
	case thresholdReference:
		return t.ref
	default:
		return ""
	}
}

// Level names, lowest to highest.
const (
	LevelLLL = "LLL"
	LevelLL  = "LL"
	LevelL   = "L"
	LevelH   = "H"
	LevelHH  = "HH"
	LevelHHH = "HHH"
)

// Thresholds is the six-level alarm set.
type Thresholds struct {
	LLL Threshold `json:"lll"`
	LL  Threshold `json:"ll"`
	L   Threshold `json:"l"`
	H   Threshold `json:"h"`
	HH  Threshold `json:"hh"`
	HHH Threshold `json:"hhh"`
}

// ordered returns the levels from LLL to HHH with their names.
func (t Thresholds) ordered() []namedThreshold {
	return []namedThreshold{
		{LevelLLL, t.LLL}, {LevelLL, t.LL}, {LevelL, t.L},
		{LevelH, t.H}, {LevelHH, t.HH}, {LevelHHH, t.HHH},
	}
}

type namedThreshold struct {
	name string
	t    Threshold
}

// ProtectionLimits are absolute safety bounds. Nil means not configured.
type ProtectionLimits struct {
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// Detection configures the per-point anomaly detectors.
type Detection struct {
	FluctuationEnabled     bool     `json:"fluctuation_enabled"`
	FluctuationRateLimit   *float64 `json:"fluctuation_rate_limit,omitempty"` // units per second
	MutationEnabled        bool     `json:"mutation_enabled"`
	MutationLimit          *float64 `json:"mutation_limit,omitempty"`
	TrendPredictionEnabled bool     `json:"trend_prediction_enabled"`
}

// Correlations lists points expected to move with or against this one.
type Correlations struct {
	Positive []string `json:"positive,omitempty"`
	Negative []string `json:"negative,omitempty"`
}

// SafeRange is the normal operating band of a point.
type SafeRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PointConfig is the immutable configuration of one measurement point.
type PointConfig struct {
	ID           string           `json:"id"`
	Index        int              `json:"index"`
	System       string           `json:"system,omitempty"`
	DisplayName  string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Unit         string           `json:"unit,omitempty"`
	Thresholds   Thresholds       `json:"thresholds"`
	Protection   ProtectionLimits `json:"protection"`
	Detection    Detection        `json:"detection"`
	Correlations Correlations     `json:"correlations"`
	SafeRange    *SafeRange       `json:"safe_range,omitempty"`
}

// Name returns the display name, falling back to the point ID.
func (p *PointConfig) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Limits resolves thresholds and protection limits against a batch.
func (p *PointConfig) Limits(values map[string]float64) analytics.Limits {
	return analytics.Limits{
		LLL:   p.Thresholds.LLL.resolvePtr(values),
		LL:    p.Thresholds.LL.resolvePtr(values),
		L:     p.Thresholds.L.resolvePtr(values),
		H:     p.Thresholds.H.resolvePtr(values),
		HH:    p.Thresholds.HH.resolvePtr(values),
		HHH:   p.Thresholds.HHH.resolvePtr(values),
		Lower: p.Protection.Lower,
		Upper: p.Protection.Upper,
	}
}
