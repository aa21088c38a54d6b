// Package correlation groups faults whose points are linked in the point
// catalog so related symptoms are reported together.
package correlation

import (
	"sort"
	"time"
)

// Fault is one faulty point for correlation analysis.
type Fault struct {
	PointID   string
	Timestamp time.Time
}

// Edge links two points that are expected to move together or against each
// other. Direction does not matter for grouping.
type Edge struct {
	A string
	B string
}

// Group is a set of correlated faults.
type Group struct {
	PointIDs []string
	Faults   []Fault
	Root     string // point with the earliest fault; input order breaks ties
}

// Correlate groups faults on linked points that occur within window of each
// other. Single-point groups are excluded. Groups are ordered by the input
// position of their root, and point IDs keep input order within a group.
func Correlate(faults []Fault, edges []Edge, window time.Duration) []Group {
	if len(faults) < 2 {
		return nil
	}

	adj := make(map[string]map[string]bool)
	for _, e := range edges {
		if adj[e.A] == nil {
			adj[e.A] = make(map[string]bool)
		}
		if adj[e.B] == nil {
			adj[e.B] = make(map[string]bool)
		}
		adj[e.A][e.B] = true
		adj[e.B][e.A] = true
	}

	// Union-Find
	parent := make(map[string]string)
	find := func(x string) string {
		for parent[x] != "" && parent[x] != x {
			parent[x] = parent[parent[x]] // Path compression
			x = parent[x]
		}
		return x
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	position := make(map[string]int)
	for i, f := range faults {
		if parent[f.PointID] == "" {
			parent[f.PointID] = f.PointID
			position[f.PointID] = i
		}
	}

	for i := 0; i < len(faults); i++ {
		for j := i + 1; j < len(faults); j++ {
			a, b := faults[i], faults[j]
			if absDuration(a.Timestamp.Sub(b.Timestamp)) > window {
				continue
			}
			if a.PointID == b.PointID || adj[a.PointID][b.PointID] {
				union(a.PointID, b.PointID)
			}
		}
	}

	groups := make(map[string]*Group)
	var roots []string
	for _, f := range faults {
		r := find(f.PointID)
		g, ok := groups[r]
		if !ok {
			g = &Group{}
			groups[r] = g
			roots = append(roots, r)
		}
		g.Faults = append(g.Faults, f)
	}

	result := make([]Group, 0, len(groups))
	for _, r := range roots {
		g := groups[r]
		seen := make(map[string]bool)
		var earliest Fault
		for i, f := range g.Faults {
			if !seen[f.PointID] {
				seen[f.PointID] = true
				g.PointIDs = append(g.PointIDs, f.PointID)
			}
			if i == 0 || f.Timestamp.Before(earliest.Timestamp) {
				earliest = f
			}
		}
		if len(g.PointIDs) < 2 {
			continue
		}
		g.Root = earliest.PointID
		result = append(result, *g)
	}

	if len(result) == 0 {
		return nil
	}
	sort.SliceStable(result, func(i, j int) bool {
		return position[result[i].Root] < position[result[j].Root]
	})
	return result
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
