package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.RetryCount = 0
	cfg.Timeout = 5 * time.Second
	cfg.APIKey = "secret"
	return New(cfg, zap.NewNop())
}

func TestClassify(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		probs := make([]float64, len(req.Test))
		for i := range probs {
			probs[i] = 0.9
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(classifyResponse{Probabilities: probs}) //nolint:errcheck
	}))

	got, err := c.Classify(context.Background(), [][]float64{{1}, {2}}, []float64{1, 1}, [][]float64{{3}, {4}, {5}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 3 || got[0] != 0.9 {
		t.Errorf("Classify = %v", got)
	}
}

func TestClassify_WrongCount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"probabilities":[0.5]}`)) //nolint:errcheck
	}))
	if _, err := c.Classify(context.Background(), [][]float64{{1}}, []float64{1}, [][]float64{{1}, {2}}); err == nil {
		t.Error("expected error when probability count does not match")
	}
}

func TestForecast(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req forecastRequest
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		preds := make([]float64, len(req.Query))
		for i := range preds {
			preds[i] = req.Query[len(req.Query)-1] + float64(i+1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(forecastResponse{Predictions: preds}) //nolint:errcheck
	}))

	got, err := c.Forecast(context.Background(), [][]float64{{1, 2}}, [][]float64{{3, 4}}, []float64{10, 11})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(got) != 2 || got[0] != 12 || got[1] != 13 {
		t.Errorf("Forecast = %v", got)
	}
}

func TestPost_ServiceError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model loading"}`)) //nolint:errcheck
	}))

	_, err := c.Forecast(context.Background(), nil, nil, []float64{1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model loading") || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v", err)
	}
}
