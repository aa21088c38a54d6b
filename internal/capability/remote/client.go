// Package remote implements the classifier and forecaster capabilities
// against a model service reached over HTTP.
//
// The service exposes two JSON endpoints:
//
//	POST /v1/classify  {"reference":[[..]],"labels":[..],"test":[[..]]} -> {"probabilities":[..]}
//	POST /v1/forecast  {"train_x":[[..]],"train_y":[[..]],"query":[..]}  -> {"predictions":[..]}
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Config holds the model service client settings.
type Config struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
	RetryWait  time.Duration `mapstructure:"retry_wait"`
	APIKey     string        `mapstructure:"api_key"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		URL:        "http://localhost:8500",
		Timeout:    30 * time.Second,
		RetryCount: 1,
		RetryWait:  500 * time.Millisecond,
	}
}

// Client calls the model service. It implements both analytics.Classifier
// and analytics.Forecaster.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

var (
	_ analytics.Classifier = (*Client)(nil)
	_ analytics.Forecaster = (*Client)(nil)
)

// New creates a model service client.
func New(cfg Config, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(5*cfg.RetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: c, logger: logger}
}

type classifyRequest struct {
	Reference [][]float64 `json:"reference"`
	Labels    []float64   `json:"labels"`
	Test      [][]float64 `json:"test"`
}

type classifyResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

type forecastRequest struct {
	TrainX [][]float64 `json:"train_x"`
	TrainY [][]float64 `json:"train_y"`
	Query  []float64   `json:"query"`
}

type forecastResponse struct {
	Predictions []float64 `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Classify implements analytics.Classifier.
func (c *Client) Classify(ctx context.Context, reference [][]float64, labels []float64, test [][]float64) ([]float64, error) {
	var out classifyResponse
	if err := c.post(ctx, "/v1/classify", classifyRequest{Reference: reference, Labels: labels, Test: test}, &out); err != nil {
		return nil, err
	}
	if len(out.Probabilities) != len(test) {
		return nil, fmt.Errorf("classify returned %d probabilities for %d test rows", len(out.Probabilities), len(test))
	}
	return out.Probabilities, nil
}

// Forecast implements analytics.Forecaster.
func (c *Client) Forecast(ctx context.Context, trainX, trainY [][]float64, query []float64) ([]float64, error) {
	var out forecastResponse
	if err := c.post(ctx, "/v1/forecast", forecastRequest{TrainX: trainX, TrainY: trainY, Query: query}, &out); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	if resp.IsError() {
		c.logger.Debug("model service returned error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", apiErr.Error),
		)
		if apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode())
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode())
	}
	return nil
}
