package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmpty is returned when no usable point remains after validation.
var ErrEmpty = errors.New("catalog has no usable points")

// Defect is a configuration problem found while building the catalog. The
// affected point is either excluded (strict mode, or when the point cannot be
// identified) or kept with the offending setting dropped.
type Defect struct {
	PointID string `json:"point_id"`
	Field   string `json:"field"`
	Reason  string `json:"reason"`
}

func (d Defect) Error() string {
	if d.Field == "" {
		return fmt.Sprintf("point %s: %s", d.PointID, d.Reason)
	}
	return fmt.Sprintf("point %s: %s: %s", d.PointID, d.Field, d.Reason)
}

// RawPoint is one row of the point table before parsing. Every cell is kept
// as text so literal numbers and point references can share a column.
type RawPoint struct {
	Index                int    `mapstructure:"index"`
	ID                   string `mapstructure:"id"`
	System               string `mapstructure:"system"`
	Name                 string `mapstructure:"name"`
	Description          string `mapstructure:"description"`
	Unit                 string `mapstructure:"unit"`
	SafeRange            string `mapstructure:"safe_range"`
	LLL                  string `mapstructure:"lll"`
	LL                   string `mapstructure:"ll"`
	L                    string `mapstructure:"l"`
	H                    string `mapstructure:"h"`
	HH                   string `mapstructure:"hh"`
	HHH                  string `mapstructure:"hhh"`
	LowerLimit           string `mapstructure:"lower_limit"`
	UpperLimit           string `mapstructure:"upper_limit"`
	FluctuationEnabled   string `mapstructure:"fluctuation_enabled"`
	FluctuationRateLimit string `mapstructure:"fluctuation_rate_limit"`
	MutationEnabled      string `mapstructure:"mutation_enabled"`
	MutationLimit        string `mapstructure:"mutation_limit"`
	TrendPrediction      string `mapstructure:"trend_prediction"`
	Positive             string `mapstructure:"positive_correlations"`
	Negative             string `mapstructure:"negative_correlations"`
}

// Catalog is the validated, read-only point table.
type Catalog struct {
	points  map[string]*PointConfig
	order   []string
	defects []Defect
}

// Get returns the configuration of point id.
func (c *Catalog) Get(id string) (*PointConfig, bool) {
	p, ok := c.points[id]
	return p, ok
}

// IDs returns point IDs in table order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Points returns the point configurations in table order.
func (c *Catalog) Points() []*PointConfig {
	out := make([]*PointConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.points[id])
	}
	return out
}

// Len returns the number of points.
func (c *Catalog) Len() int { return len(c.order) }

// Defects returns every defect found while building the catalog.
func (c *Catalog) Defects() []Defect {
	out := make([]Defect, len(c.defects))
	copy(out, c.defects)
	return out
}

// Build parses raw table rows into a catalog. Rows without an ID and
// duplicate IDs are always dropped; with strict set, any point carrying a
// defect is dropped as well. Defects are collected, never auto-corrected.
func Build(raws []RawPoint, strict bool) (*Catalog, error) {
	var (
		points  []*PointConfig
		dropped []Defect
		defects []Defect
		seen    = make(map[string]bool)
	)
	for i := range raws {
		raw := &raws[i]
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			dropped = append(dropped, Defect{PointID: "#" + strconv.Itoa(i+1), Field: "id", Reason: "missing point ID"})
			continue
		}
		if seen[id] {
			dropped = append(dropped, Defect{PointID: id, Field: "id", Reason: "duplicate point ID"})
			continue
		}
		seen[id] = true
		p, ds := parseRaw(id, i, raw)
		points = append(points, p)
		defects = append(defects, ds...)
	}
	return assemble(points, dropped, defects, strict)
}

// FromPoints builds a catalog from already parsed configurations, applying
// the same reference, ordering and correlation checks as Build.
func FromPoints(points []*PointConfig, strict bool) (*Catalog, error) {
	var dropped []Defect
	seen := make(map[string]bool)
	kept := make([]*PointConfig, 0, len(points))
	for _, p := range points {
		if p == nil || p.ID == "" {
			continue
		}
		if seen[p.ID] {
			dropped = append(dropped, Defect{PointID: p.ID, Field: "id", Reason: "duplicate point ID"})
			continue
		}
		seen[p.ID] = true
		kept = append(kept, p)
	}
	return assemble(kept, dropped, nil, strict)
}

func parseRaw(id string, i int, raw *RawPoint) (*PointConfig, []Defect) {
	var defects []Defect
	fail := func(field string, err error) {
		defects = append(defects, Defect{PointID: id, Field: field, Reason: err.Error()})
	}

	p := &PointConfig{
		ID:          id,
		Index:       raw.Index,
		System:      strings.TrimSpace(raw.System),
		DisplayName: strings.TrimSpace(raw.Name),
		Description: strings.TrimSpace(raw.Description),
		Unit:        strings.TrimSpace(raw.Unit),
	}
	if p.Index == 0 {
		p.Index = i + 1
	}

	cells := []struct {
		name string
		cell string
		dst  *Threshold
	}{
		{LevelLLL, raw.LLL, &p.Thresholds.LLL},
		{LevelLL, raw.LL, &p.Thresholds.LL},
		{LevelL, raw.L, &p.Thresholds.L},
		{LevelH, raw.H, &p.Thresholds.H},
		{LevelHH, raw.HH, &p.Thresholds.HH},
		{LevelHHH, raw.HHH, &p.Thresholds.HHH},
	}
	for _, c := range cells {
		t, err := parseThreshold(c.cell)
		if err != nil {
			fail(c.name, err)
			continue
		}
		*c.dst = t
	}

	var err error
	if p.Protection.Lower, err = parseLimit(raw.LowerLimit); err != nil {
		fail("lower_limit", err)
	}
	if p.Protection.Upper, err = parseLimit(raw.UpperLimit); err != nil {
		fail("upper_limit", err)
	}

	p.Detection.FluctuationEnabled = parseFlag(raw.FluctuationEnabled)
	if p.Detection.FluctuationRateLimit, err = parseRate(raw.FluctuationRateLimit); err != nil {
		fail("fluctuation_rate_limit", err)
	}
	p.Detection.MutationEnabled = parseFlag(raw.MutationEnabled)
	if p.Detection.MutationLimit, err = parseRate(raw.MutationLimit); err != nil {
		fail("mutation_limit", err)
	}
	p.Detection.TrendPredictionEnabled = parseFlag(raw.TrendPrediction)

	if p.SafeRange, err = parseSafeRange(raw.SafeRange); err != nil {
		fail("safe_range", err)
	}

	p.Correlations.Positive = splitList(raw.Positive)
	p.Correlations.Negative = splitList(raw.Negative)
	return p, defects
}

// assemble validates points and builds the catalog. dropped holds defects of
// rows that were already excluded; they never taint a kept point.
func assemble(points []*PointConfig, dropped, defects []Defect, strict bool) (*Catalog, error) {
	idx := newPointIndex(points)
	for _, p := range points {
		defects = append(defects, validate(p, idx)...)
	}

	c := &Catalog{points: make(map[string]*PointConfig, len(points))}
	bad := make(map[string]bool)
	for _, d := range defects {
		bad[d.PointID] = true
	}
	for _, p := range points {
		if strict && bad[p.ID] {
			continue
		}
		c.points[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	c.defects = append(dropped, defects...)
	if len(c.order) == 0 {
		return c, fmt.Errorf("%w (%d defects)", ErrEmpty, len(c.defects))
	}
	return c, nil
}

// validate checks cross-point references, literal ordering, detection
// settings and correlations. Offending references and correlation entries
// are dropped; thresholds are never reordered.
func validate(p *PointConfig, idx *pointIndex) []Defect {
	var defects []Defect
	add := func(field, format string, args ...any) {
		defects = append(defects, Defect{PointID: p.ID, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	levels := []struct {
		name string
		t    *Threshold
	}{
		{LevelLLL, &p.Thresholds.LLL}, {LevelLL, &p.Thresholds.LL}, {LevelL, &p.Thresholds.L},
		{LevelH, &p.Thresholds.H}, {LevelHH, &p.Thresholds.HH}, {LevelHHH, &p.Thresholds.HHH},
	}
	for _, l := range levels {
		if !l.t.IsReference() {
			continue
		}
		ref := l.t.Ref()
		switch {
		case ref == p.ID:
			add(l.name, "threshold references the point itself")
			*l.t = Threshold{}
		case idx.byID[ref] == nil:
			add(l.name, "threshold references unknown point %q", ref)
			*l.t = Threshold{}
		}
	}

	prevName, prev, havePrev := "", 0.0, false
	for _, nt := range p.Thresholds.ordered() {
		v, ok := nt.t.Literal()
		if !ok {
			continue
		}
		if havePrev && prev > v {
			add(nt.name, "threshold %g is below %s %g", v, prevName, prev)
		}
		prevName, prev, havePrev = nt.name, v, true
	}

	if lo, hi := p.Protection.Lower, p.Protection.Upper; lo != nil && hi != nil && *lo >= *hi {
		add("protection", "lower limit %g is not below upper limit %g", *lo, *hi)
	}

	if p.Detection.FluctuationEnabled && p.Detection.FluctuationRateLimit == nil {
		add("fluctuation_rate_limit", "fluctuation detection enabled without a rate limit")
	}
	if p.Detection.MutationEnabled && p.Detection.MutationLimit == nil {
		add("mutation_limit", "mutation detection enabled without a limit")
	}

	resolve := func(field string, entries []string) []string {
		var out []string
		seen := make(map[string]bool)
		for _, e := range entries {
			id, ok := idx.resolve(e)
			if !ok {
				add(field, "cannot resolve correlated point %q", e)
				continue
			}
			if id == p.ID || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
		return out
	}
	p.Correlations.Positive = resolve("positive_correlations", p.Correlations.Positive)
	p.Correlations.Negative = resolve("negative_correlations", p.Correlations.Negative)
	return defects
}
