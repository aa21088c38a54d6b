package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// rateUnits are stripped from fluctuation and mutation limit cells.
// Longer suffixes come first so "mm/s²" is not cut to "²".
var rateUnits = []string{"mm/s²", "MW/s", "℃/s", "bar/s", "KPa/s", "MPa/s", "mm/s", "A/s", "%/s", "μm/s"}

// rangeSeparators are normalised to "-" in safe range cells.
var rangeSeparators = strings.NewReplacer("~", "-", "—", "-", "–", "-", "﹣", "-", "至", "-", " ", "")

var listSeparator = regexp.MustCompile(`[，,、;；\s]+`)

// safeRangePattern matches a normalised "lower-upper" cell; either bound may
// be negative.
var safeRangePattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)-(-?\d+(?:\.\d+)?)$`)

func isBlank(cell string) bool {
	c := strings.TrimSpace(cell)
	return c == "" || strings.EqualFold(c, "none") || strings.EqualFold(c, "nan")
}

// parseThreshold reads a threshold cell: blank is absent, a number is a
// literal, and a single token naming a point is a reference.
func parseThreshold(cell string) (Threshold, error) {
	if isBlank(cell) {
		return Threshold{}, nil
	}
	c := strings.TrimSpace(cell)
	if v, err := strconv.ParseFloat(c, 64); err == nil {
		return LiteralThreshold(v), nil
	}
	if strings.IndexFunc(c, unicode.IsSpace) >= 0 {
		return Threshold{}, fmt.Errorf("threshold %q is neither a number nor a point reference", c)
	}
	return ReferenceThreshold(c), nil
}

// parseLimit reads an absolute protection limit. References are not allowed.
func parseLimit(cell string) (*float64, error) {
	if isBlank(cell) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return nil, fmt.Errorf("limit %q is not a number", strings.TrimSpace(cell))
	}
	return &v, nil
}

// parseRate reads a fluctuation or mutation limit, dropping a unit suffix.
func parseRate(cell string) (*float64, error) {
	if isBlank(cell) {
		return nil, nil
	}
	c := strings.TrimSpace(cell)
	for _, u := range rateUnits {
		c = strings.ReplaceAll(c, u, "")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q is not a number", strings.TrimSpace(cell))
	}
	return &v, nil
}

// parseFlag reads a detection switch. The point table marks enabled
// detectors with "需要" (required); common boolean spellings are accepted too.
func parseFlag(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "需要", "true", "yes", "y", "1", "on", "enabled":
		return true
	default:
		return false
	}
}

// parseSafeRange reads "lower-upper" with any of the accepted separators.
// An inverted or empty range is rejected, never swapped.
func parseSafeRange(cell string) (*SafeRange, error) {
	if isBlank(cell) {
		return nil, nil
	}
	c := rangeSeparators.Replace(strings.TrimSpace(cell))
	m := safeRangePattern.FindStringSubmatch(c)
	if m == nil {
		return nil, fmt.Errorf("safe range %q must have the form lower-upper", cell)
	}
	lower, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("safe range %q: lower bound: %w", cell, err)
	}
	upper, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, fmt.Errorf("safe range %q: upper bound: %w", cell, err)
	}
	if lower >= upper {
		return nil, fmt.Errorf("safe range %q: lower %g is not below upper %g", cell, lower, upper)
	}
	return &SafeRange{Lower: lower, Upper: upper}, nil
}

// splitList splits a correlation cell into unique, non-blank entries in
// their original order.
func splitList(cell string) []string {
	if isBlank(cell) {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range listSeparator.Split(strings.TrimSpace(cell), -1) {
		if isBlank(p) || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// pointIndex resolves free-text correlation entries to point IDs.
type pointIndex struct {
	order []*PointConfig
	byID  map[string]*PointConfig
}

func newPointIndex(points []*PointConfig) *pointIndex {
	idx := &pointIndex{order: points, byID: make(map[string]*PointConfig, len(points))}
	for _, p := range points {
		idx.byID[p.ID] = p
	}
	return idx
}

// resolve matches by ID, then display name, then description, then a fuzzy
// containment score that must reach 0.6 (i.e. the text appears in the ID).
func (idx *pointIndex) resolve(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	if _, ok := idx.byID[entry]; ok {
		return entry, true
	}
	for _, p := range idx.order {
		if p.DisplayName == entry {
			return p.ID, true
		}
	}
	for _, p := range idx.order {
		if p.Description != "" && p.Description == entry {
			return p.ID, true
		}
	}

	needle := strings.ToLower(entry)
	best, bestScore := "", 0.0
	for _, p := range idx.order {
		score := 0.0
		if strings.Contains(strings.ToLower(p.ID), needle) {
			score += 0.6
		}
		if strings.Contains(strings.ToLower(p.DisplayName), needle) {
			score += 0.3
		}
		if strings.Contains(strings.ToLower(p.Description), needle) {
			score += 0.1
		}
		if score > bestScore {
			best, bestScore = p.ID, score
		}
	}
	if bestScore >= 0.6 {
		return best, true
	}
	return "", false
}
