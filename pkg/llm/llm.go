// Package llm defines the provider interface used to obtain expert analysis
// text for escalated faults. Adapters live in internal/llm/{provider}/.
package llm

import "context"

// Provider generates a completion from a single prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts ...CallOption) (*Response, error)
}

// HealthReporter is optionally implemented by providers that can report
// connection health and model availability. Detected via type assertion.
type HealthReporter interface {
	// Heartbeat checks whether the LLM service is reachable.
	Heartbeat(ctx context.Context) error

	// ListModels returns the names of models available from this provider.
	ListModels(ctx context.Context) ([]string, error)
}

// CallOption configures a single Generate call.
type CallOption func(*CallConfig)

// CallConfig holds the resolved sampling configuration for one call.
// Zero values leave the provider default in place.
type CallConfig struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	TopK          int
	TopP          float64
	RepeatPenalty float64
}

// WithModel sets the model to use for this call, overriding the provider default.
func WithModel(model string) CallOption {
	return func(c *CallConfig) { c.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) CallOption {
	return func(c *CallConfig) { c.Temperature = temp }
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(max int) CallOption {
	return func(c *CallConfig) { c.MaxTokens = max }
}

// WithTopK limits sampling to the k most likely tokens.
func WithTopK(k int) CallOption {
	return func(c *CallConfig) { c.TopK = k }
}

// WithTopP sets nucleus sampling probability mass.
func WithTopP(p float64) CallOption {
	return func(c *CallConfig) { c.TopP = p }
}

// WithRepeatPenalty penalises repeated tokens.
func WithRepeatPenalty(penalty float64) CallOption {
	return func(c *CallConfig) { c.RepeatPenalty = penalty }
}

// ApplyOptions creates a CallConfig from a list of options, starting from defaults.
func ApplyOptions(opts ...CallOption) CallConfig {
	cfg := CallConfig{
		Temperature: 0.7,
		MaxTokens:   2048,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
