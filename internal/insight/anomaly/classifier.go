package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Config holds the classifier parameters.
type Config struct {
	ZScoreThreshold float64 `mapstructure:"zscore_threshold"` // z at which probability is 0.5
	Steepness       float64 `mapstructure:"steepness"`
	FlatTolerance   float64 `mapstructure:"flat_tolerance"` // relative tolerance when the reference is constant
	CUSUMDrift      float64 `mapstructure:"cusum_drift"`
	CUSUMThreshold  float64 `mapstructure:"cusum_threshold"`
	ChangePointProb float64 `mapstructure:"change_point_probability"` // floor after a change point
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold: 3.0,
		Steepness:       2.0,
		FlatTolerance:   0.01,
		CUSUMDrift:      0.5,
		CUSUMThreshold:  5.0,
		ChangePointProb: 0.85,
	}
}

// Classifier is the in-process analytics.Classifier.
type Classifier struct {
	cfg Config
}

var _ analytics.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier; zero fields take their defaults.
func NewClassifier(cfg Config) *Classifier {
	d := DefaultConfig()
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = d.ZScoreThreshold
	}
	if cfg.Steepness <= 0 {
		cfg.Steepness = d.Steepness
	}
	if cfg.FlatTolerance <= 0 {
		cfg.FlatTolerance = d.FlatTolerance
	}
	if cfg.CUSUMDrift <= 0 {
		cfg.CUSUMDrift = d.CUSUMDrift
	}
	if cfg.CUSUMThreshold <= 0 {
		cfg.CUSUMThreshold = d.CUSUMThreshold
	}
	if cfg.ChangePointProb <= 0 {
		cfg.ChangePointProb = d.ChangePointProb
	}
	return &Classifier{cfg: cfg}
}

var errEmptyBlock = errors.New("reference and test blocks must not be empty")

// Classify scores each test row against the reference rows labelled normal
// (label > 0; all rows when none are). A row's score is the largest z-score
// across its features mapped through Probability. Rows from the first CUSUM
// change point onwards score at least ChangePointProb.
func (c *Classifier) Classify(ctx context.Context, reference [][]float64, labels []float64, test [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(reference) == 0 || len(test) == 0 {
		return nil, errEmptyBlock
	}
	if len(labels) != len(reference) {
		return nil, fmt.Errorf("got %d labels for %d reference rows", len(labels), len(reference))
	}
	width := len(reference[0])
	if width == 0 {
		return nil, errEmptyBlock
	}
	for _, rows := range [][][]float64{reference, test} {
		for _, r := range rows {
			if len(r) != width {
				return nil, fmt.Errorf("row width %d, want %d", len(r), width)
			}
		}
	}

	normal := make([][]float64, 0, len(reference))
	for i, r := range reference {
		if labels[i] > 0 {
			normal = append(normal, r)
		}
	}
	if len(normal) == 0 {
		normal = reference
	}

	means := make([]float64, width)
	stds := make([]float64, width)
	col := make([]float64, len(normal))
	for f := range width {
		for i, r := range normal {
			col[i] = r[f]
		}
		means[f], stds[f] = Stats(col)
	}

	probs := make([]float64, len(test))
	signed := make([]float64, len(test))
	for i, r := range test {
		z := 0.0
		for f := range width {
			z = math.Max(z, ZScore(r[f], means[f], stds[f], c.cfg.FlatTolerance))
		}
		probs[i] = Probability(z, c.cfg.ZScoreThreshold, c.cfg.Steepness)
		if stds[0] > 0 {
			signed[i] = (r[0] - means[0]) / stds[0]
		}
	}

	if k := NewCUSUM(c.cfg.CUSUMDrift, c.cfg.CUSUMThreshold).Scan(signed); k >= 0 {
		for i := k; i < len(probs); i++ {
			probs[i] = math.Max(probs[i], c.cfg.ChangePointProb)
		}
	}
	return probs, nil
}
