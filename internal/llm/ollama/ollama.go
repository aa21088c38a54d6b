// Package ollama adapts the Ollama API client to llm.Provider.
package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/HerbHall/turbinewatch/pkg/llm"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.Provider on top of the Ollama API client.
type Provider struct {
	client *api.Client
	cfg    Config
	logger *zap.Logger
}

// New creates an Ollama provider. It does not verify connectivity;
// call Heartbeat explicitly if you need an early health check.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama url %q must include scheme and host", cfg.URL)
	}

	return &Provider{
		client: api.NewClient(base, newHTTPClient(cfg)),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// newHTTPClient bounds connection setup and the wait for the first response
// byte separately. Generation itself streams and is bounded by the caller's
// context.
func newHTTPClient(cfg Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	}
	if cfg.ReadTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.ReadTimeout
	}
	return &http.Client{Transport: transport}
}

// Generate creates a completion from a single prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	cfg := llm.ApplyOptions(opts...)

	model := cfg.Model
	if model == "" {
		model = p.cfg.Model
	}

	noStream := false
	req := &api.GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  &noStream,
		Options: buildOptions(cfg),
	}

	var (
		content strings.Builder
		metrics api.Metrics
		done    bool
	)
	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		content.WriteString(resp.Response)
		if resp.Done {
			metrics = resp.Metrics
			done = true
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	p.logger.Debug("ollama generation complete",
		zap.String("model", model),
		zap.Int("prompt_tokens", metrics.PromptEvalCount),
		zap.Int("completion_tokens", metrics.EvalCount),
		zap.Duration("duration", metrics.TotalDuration),
	)

	return &llm.Response{
		Content: content.String(),
		Model:   model,
		Usage: llm.Usage{
			PromptTokens:     metrics.PromptEvalCount,
			CompletionTokens: metrics.EvalCount,
			TotalTokens:      metrics.PromptEvalCount + metrics.EvalCount,
		},
		Done: done,
	}, nil
}

// Heartbeat checks that the server answers the model listing endpoint.
func (p *Provider) Heartbeat(ctx context.Context) error {
	if _, err := p.client.List(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// ListModels returns the names of locally available models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	names := make([]string, len(resp.Models))
	for i := range resp.Models {
		names[i] = resp.Models[i].Name
	}
	return names, nil
}

// buildOptions converts CallConfig fields into Ollama's options map.
func buildOptions(cfg llm.CallConfig) map[string]any {
	opts := make(map[string]any)
	if cfg.Temperature > 0 {
		opts["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}
	if cfg.TopK > 0 {
		opts["top_k"] = cfg.TopK
	}
	if cfg.TopP > 0 {
		opts["top_p"] = cfg.TopP
	}
	if cfg.RepeatPenalty > 0 {
		opts["repeat_penalty"] = cfg.RepeatPenalty
	}
	return opts
}
