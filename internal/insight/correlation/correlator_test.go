package correlation

import (
	"testing"
	"time"
)

func TestCorrelate_SingleFault(t *testing.T) {
	t.Parallel()

	result := Correlate([]Fault{{PointID: "GT_LOAD", Timestamp: time.Now()}}, nil, time.Minute)
	if result != nil {
		t.Errorf("expected nil for single fault, got %d groups", len(result))
	}
}

func TestCorrelate_LinkedPoints(t *testing.T) {
	t.Parallel()

	now := time.Now()
	faults := []Fault{
		{PointID: "GT_LOAD", Timestamp: now},
		{PointID: "TT_EXHAUST_1", Timestamp: now},
	}
	edges := []Edge{{A: "TT_EXHAUST_1", B: "GT_LOAD"}}

	result := Correlate(faults, edges, time.Minute)
	if len(result) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result))
	}
	g := result[0]
	if len(g.PointIDs) != 2 || g.PointIDs[0] != "GT_LOAD" || g.PointIDs[1] != "TT_EXHAUST_1" {
		t.Errorf("PointIDs = %v", g.PointIDs)
	}
	if g.Root != "GT_LOAD" {
		t.Errorf("Root = %s, want GT_LOAD (first in order)", g.Root)
	}
}

func TestCorrelate_UnlinkedPoints(t *testing.T) {
	t.Parallel()

	now := time.Now()
	faults := []Fault{
		{PointID: "GT_LOAD", Timestamp: now},
		{PointID: "LUBE_OIL_P", Timestamp: now},
	}
	if result := Correlate(faults, nil, time.Minute); result != nil {
		t.Errorf("expected nil for unlinked points, got %d groups", len(result))
	}
}

func TestCorrelate_OutsideWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	faults := []Fault{
		{PointID: "A", Timestamp: now},
		{PointID: "B", Timestamp: now.Add(10 * time.Minute)},
	}
	if result := Correlate(faults, []Edge{{A: "A", B: "B"}}, time.Minute); result != nil {
		t.Errorf("expected nil outside window, got %d groups", len(result))
	}
}

func TestCorrelate_TransitiveChains(t *testing.T) {
	t.Parallel()

	now := time.Now()
	faults := []Fault{
		{PointID: "X", Timestamp: now},
		{PointID: "C", Timestamp: now.Add(2 * time.Second)},
		{PointID: "A", Timestamp: now.Add(time.Second)},
		{PointID: "B", Timestamp: now.Add(-time.Second)},
		{PointID: "Y", Timestamp: now},
	}
	edges := []Edge{{A: "A", B: "B"}, {A: "B", B: "C"}, {A: "X", B: "Y"}}

	result := Correlate(faults, edges, time.Minute)
	if len(result) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result))
	}
	if result[0].Root != "X" {
		t.Errorf("first group root = %s, want X", result[0].Root)
	}
	if result[1].Root != "B" {
		t.Errorf("second group root = %s, want B (earliest)", result[1].Root)
	}
	if len(result[1].PointIDs) != 3 {
		t.Errorf("chain group has %d points, want 3", len(result[1].PointIDs))
	}
}
