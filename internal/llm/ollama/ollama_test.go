package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/llm"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// mockOllama serves /api/generate and /api/tags and records the last
// generate request.
func mockOllama(t *testing.T, last *api.GenerateRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req api.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if last != nil {
			*last = req
		}
		if req.Model == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model 'missing' not found"}`)) //nolint:errcheck
			return
		}
		resp := api.GenerateResponse{
			Model:    req.Model,
			Response: "Bearing temperature rising with vibration.",
			Done:     true,
			Metrics: api.Metrics{
				PromptEvalCount: 120,
				EvalCount:       40,
				TotalDuration:   2 * time.Second,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})

	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		resp := api.ListResponse{
			Models: []api.ListModelResponse{
				{Name: "deepseek-r1:14b", Model: "deepseek-r1:14b"},
				{Name: "qwen2.5:7b", Model: "qwen2.5:7b"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	p, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"://bad", "localhost"} {
		if _, err := New(Config{URL: raw}, zap.NewNop()); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestGenerate_Success(t *testing.T) {
	var got api.GenerateRequest
	srv := mockOllama(t, &got)
	p := newTestProvider(t, srv.URL)

	resp, err := p.Generate(context.Background(), "analyse P1",
		llm.WithTemperature(0.3),
		llm.WithMaxTokens(800),
		llm.WithTopK(20),
		llm.WithTopP(0.85),
		llm.WithRepeatPenalty(1.1),
	)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "Bearing temperature rising with vibration." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != "deepseek-r1:14b" || !resp.Done {
		t.Errorf("Model/Done = %q/%v", resp.Model, resp.Done)
	}
	if resp.Usage.TotalTokens != 160 {
		t.Errorf("TotalTokens = %d, want 160", resp.Usage.TotalTokens)
	}

	if got.Prompt != "analyse P1" {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if got.Stream == nil || *got.Stream {
		t.Error("request should disable streaming")
	}
	want := map[string]float64{"temperature": 0.3, "num_predict": 800, "top_k": 20, "top_p": 0.85, "repeat_penalty": 1.1}
	for k, v := range want {
		if got.Options[k] != v {
			t.Errorf("option %s = %v, want %v", k, got.Options[k], v)
		}
	}
}

func TestGenerate_ModelNotFound(t *testing.T) {
	srv := mockOllama(t, nil)
	p := newTestProvider(t, srv.URL)

	_, err := p.Generate(context.Background(), "hi", llm.WithModel("missing"))
	if !llm.IsModelNotFoundError(err) {
		t.Fatalf("err = %v, want model not found", err)
	}
	if llm.IsRetryable(err) {
		t.Error("model not found should not be retryable")
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	srv := mockOllama(t, nil)
	p := newTestProvider(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Generate(ctx, "hi")
	if !llm.IsTimeoutError(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestHeartbeatAndListModels(t *testing.T) {
	srv := mockOllama(t, nil)
	p := newTestProvider(t, srv.URL)

	if err := p.Heartbeat(context.Background()); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	names, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "deepseek-r1:14b" {
		t.Errorf("ListModels = %v", names)
	}
}

func TestHeartbeat_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := newTestProvider(t, url)
	err := p.Heartbeat(context.Background())
	if !llm.IsServerError(err) {
		t.Fatalf("err = %v, want server error", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline", context.DeadlineExceeded, llm.ErrCodeTimeout},
		{"unauthorized", api.StatusError{StatusCode: 401, ErrorMessage: "denied"}, llm.ErrCodeAuthentication},
		{"too many requests", api.StatusError{StatusCode: 429, ErrorMessage: "slow down"}, llm.ErrCodeRateLimit},
		{"model 404", api.StatusError{StatusCode: 404, ErrorMessage: "model not found"}, llm.ErrCodeModelNotFound},
		{"server 500", api.StatusError{StatusCode: 500, ErrorMessage: "oom"}, llm.ErrCodeServerError},
		{"bad request", api.StatusError{StatusCode: 400, ErrorMessage: "bad"}, llm.ErrCodeInvalidRequest},
		{"other", errors.New("connection reset"), llm.ErrCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *llm.ProviderError
			if !errors.As(mapError(tt.err), &pe) {
				t.Fatal("expected ProviderError")
			}
			if pe.Code != tt.code {
				t.Errorf("code = %q, want %q", pe.Code, tt.code)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}
