package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/pipeline"
	"github.com/HerbHall/turbinewatch/internal/problem"
)

// AcceptedResponse is returned for an enqueued batch.
type AcceptedResponse struct {
	BatchID string `json:"batch_id,omitempty"`
	Points  int    `json:"points"`
}

// Handler serves POST /api/v1/batches: 202 on enqueue, 400 on a malformed
// batch and 503 when the engine cannot take it.
func Handler(sub Submitter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := Decode(r.Body)
		if err != nil {
			problem.BadRequest(w, err.Error(), r.URL.Path)
			return
		}
		if err := sub.Submit(b); err != nil {
			if errors.Is(err, pipeline.ErrDropped) || errors.Is(err, pipeline.ErrStopped) {
				problem.Unavailable(w, err.Error(), r.URL.Path, "5")
				return
			}
			logger.Error("submit batch", zap.Error(err))
			problem.InternalError(w, "failed to submit batch", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, AcceptedResponse{BatchID: b.ID, Points: len(b.Values)})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
