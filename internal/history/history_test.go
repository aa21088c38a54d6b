package history

import (
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fill(s *Store, id string, values ...float64) {
	for i, v := range values {
		s.Append(id, analytics.Sample{Timestamp: t0.Add(time.Duration(i) * 5 * time.Second), Value: v})
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		min, points, want int
	}{
		{500, 36, 500},
		{500, 200, 600},
		{0, 10, DefaultMinCapacity},
	}
	for _, tt := range tests {
		if got := Capacity(tt.min, tt.points); got != tt.want {
			t.Errorf("Capacity(%d, %d) = %d, want %d", tt.min, tt.points, got, tt.want)
		}
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	s := New(3)
	fill(s, "P1", 1, 2, 3, 4, 5)

	if got := s.Len("P1"); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	got := s.Values("P1", 0)
	want := []float64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Values = %v, want %v", got, want)
		}
	}
}

func TestStore_Tail(t *testing.T) {
	s := New(10)
	fill(s, "P1", 1, 2, 3, 4, 5)

	got := s.Values("P1", 2)
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("Values(2) = %v, want [4 5]", got)
	}
	if got := s.Values("P1", 50); len(got) != 5 {
		t.Errorf("Values(50) returned %d values, want 5", len(got))
	}
	if got := s.Values("MISSING", 3); len(got) != 0 {
		t.Errorf("Values for unknown point = %v, want empty", got)
	}
}

func TestStore_SamplesAreCopies(t *testing.T) {
	s := New(10)
	fill(s, "P1", 1, 2)

	got := s.Samples("P1", 0)
	got[0].Value = 99
	if v := s.Values("P1", 0)[0]; v != 1 {
		t.Errorf("store mutated through returned slice: %v", v)
	}
}

func TestStore_Since(t *testing.T) {
	s := New(100)
	fill(s, "P1", 1, 2, 3, 4, 5, 6)

	got := s.Since("P1", t0.Add(15*time.Second))
	if len(got) != 3 || got[0].Value != 4 {
		t.Errorf("Since = %+v, want samples 4..6", got)
	}
	if got := s.Since("P1", t0.Add(time.Hour)); got != nil {
		t.Errorf("Since future = %+v, want nil", got)
	}
}

func TestStore_AppendBatch(t *testing.T) {
	s := New(10)
	b := analytics.Batch{Timestamp: t0, Values: map[string]float64{"P1": 1, "P2": 2, "UNKNOWN": 3}}

	n := s.AppendBatch(b, func(id string) bool { return id != "UNKNOWN" })
	if n != 2 {
		t.Fatalf("AppendBatch = %d, want 2", n)
	}
	if s.Len("UNKNOWN") != 0 {
		t.Error("rejected point should not be stored")
	}
	if s.Points() != 2 {
		t.Errorf("Points = %d, want 2", s.Points())
	}
}

func TestStore_ConcurrentAppendAndRead(t *testing.T) {
	s := New(50)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				s.Append("P1", analytics.Sample{Timestamp: t0, Value: float64(w*1000 + i)})
				_ = s.Values("P1", 10)
			}
		}()
	}
	wg.Wait()
	if got := s.Len("P1"); got != 50 {
		t.Errorf("Len = %d, want 50", got)
	}
}
