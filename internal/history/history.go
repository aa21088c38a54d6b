// Package history keeps a bounded, time-ordered window of samples per point.
// The ingestion stage is the only writer; the analysis stage reads copies.
package history

import (
	"sync"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// DefaultMinCapacity is the smallest per-point window kept.
const DefaultMinCapacity = 500

// Capacity returns the per-point window size for a prediction horizon of
// predictionPoints samples: max(minCapacity, 3*predictionPoints).
func Capacity(minCapacity, predictionPoints int) int {
	if minCapacity <= 0 {
		minCapacity = DefaultMinCapacity
	}
	return max(minCapacity, 3*predictionPoints)
}

// ring is a fixed-size FIFO of samples. The oldest sample is evicted when
// a new one arrives at capacity.
type ring struct {
	mu    sync.Mutex
	buf   []analytics.Sample
	start int
	n     int
}

func (r *ring) push(s analytics.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// tail copies the last k samples, oldest first. k <= 0 copies everything.
func (r *ring) tail(k int) []analytics.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k <= 0 || k > r.n {
		k = r.n
	}
	out := make([]analytics.Sample, k)
	first := r.start + r.n - k
	for i := range k {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Store maps point IDs to their sample windows.
type Store struct {
	capacity int

	mu     sync.RWMutex
	series map[string]*ring
}

// New creates a store keeping up to capacity samples per point.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultMinCapacity
	}
	return &Store{capacity: capacity, series: make(map[string]*ring)}
}

// Capacity returns the per-point window size.
func (s *Store) Capacity() int { return s.capacity }

func (s *Store) get(id string) *ring {
	s.mu.RLock()
	r := s.series[id]
	s.mu.RUnlock()
	return r
}

// Append adds a sample to the window of point id, in arrival order.
func (s *Store) Append(id string, sample analytics.Sample) {
	r := s.get(id)
	if r == nil {
		s.mu.Lock()
		if r = s.series[id]; r == nil {
			r = &ring{buf: make([]analytics.Sample, s.capacity)}
			s.series[id] = r
		}
		s.mu.Unlock()
	}
	r.push(sample)
}

// AppendBatch appends every value of the batch stamped with the batch time.
// Values whose point is rejected by accept are skipped; a nil accept keeps all.
func (s *Store) AppendBatch(b analytics.Batch, accept func(id string) bool) int {
	n := 0
	for id, v := range b.Values {
		if accept != nil && !accept(id) {
			continue
		}
		s.Append(id, analytics.Sample{Timestamp: b.Timestamp, Value: v})
		n++
	}
	return n
}

// Len returns the number of samples held for point id.
func (s *Store) Len(id string) int {
	if r := s.get(id); r != nil {
		return r.len()
	}
	return 0
}

// Samples returns a copy of the last n samples of point id, oldest first.
// n <= 0 returns the whole window.
func (s *Store) Samples(id string, n int) []analytics.Sample {
	if r := s.get(id); r != nil {
		return r.tail(n)
	}
	return nil
}

// Values returns the last n values of point id, oldest first.
func (s *Store) Values(id string, n int) []float64 {
	samples := s.Samples(id, n)
	out := make([]float64, len(samples))
	for i, smp := range samples {
		out[i] = smp.Value
	}
	return out
}

// Since returns the samples of point id stamped at or after t.
func (s *Store) Since(id string, t time.Time) []analytics.Sample {
	samples := s.Samples(id, 0)
	for i, smp := range samples {
		if !smp.Timestamp.Before(t) {
			return samples[i:]
		}
	}
	return nil
}

// Points returns the number of points with at least one sample.
func (s *Store) Points() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
