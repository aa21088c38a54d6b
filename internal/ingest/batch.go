// Package ingest is the boundary where measurement batches enter the engine,
// over HTTP or from a Redis stream.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// MaxBatchBytes bounds the size of one encoded batch.
const MaxBatchBytes = 1 << 20

// ErrInvalidBatch wraps every decoding or validation failure.
var ErrInvalidBatch = errors.New("invalid batch")

// Submitter accepts decoded batches. The pipeline implements it.
type Submitter interface {
	Submit(b analytics.Batch) error
}

// Payload is the wire form of a batch.
type Payload struct {
	ID        string             `json:"id,omitempty"`
	Source    string             `json:"source"`
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Decode reads one JSON batch from r and validates it.
func Decode(r io.Reader) (analytics.Batch, error) {
	var p Payload
	dec := json.NewDecoder(io.LimitReader(r, MaxBatchBytes))
	if err := dec.Decode(&p); err != nil {
		return analytics.Batch{}, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	return p.Batch()
}

// Batch validates the payload and converts it. The timestamp must be RFC 3339
// and at least one value must be present; point IDs are trimmed and blank
// IDs rejected. A missing batch ID is generated.
func (p Payload) Batch() (analytics.Batch, error) {
	if strings.TrimSpace(p.Timestamp) == "" {
		return analytics.Batch{}, fmt.Errorf("%w: timestamp is required", ErrInvalidBatch)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return analytics.Batch{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidBatch, err)
	}
	if len(p.Values) == 0 {
		return analytics.Batch{}, fmt.Errorf("%w: no values", ErrInvalidBatch)
	}

	values := make(map[string]float64, len(p.Values))
	for id, v := range p.Values {
		id = strings.TrimSpace(id)
		if id == "" {
			return analytics.Batch{}, fmt.Errorf("%w: blank point id", ErrInvalidBatch)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return analytics.Batch{}, fmt.Errorf("%w: point %s: value is not finite", ErrInvalidBatch, id)
		}
		values[id] = v
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	source := strings.TrimSpace(p.Source)
	if source == "" {
		source = "unknown"
	}
	return analytics.Batch{
		ID:        id,
		Source:    source,
		Timestamp: ts.UTC(),
		Values:    values,
	}, nil
}
