package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/HerbHall/turbinewatch/pkg/llm"
	"github.com/ollama/ollama/api"
)

// mapError classifies an Ollama client error as an llm.ProviderError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, "ollama request timed out or cancelled", err)
	}

	var se api.StatusError
	if errors.As(err, &se) {
		return llm.NewProviderError(statusCode(se), se.ErrorMessage, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return llm.NewProviderError(llm.ErrCodeTimeout, "ollama response timed out", err)
	}
	return llm.NewProviderError(llm.ErrCodeServerError, "ollama server unreachable", err)
}

func statusCode(se api.StatusError) string {
	switch {
	case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
		return llm.ErrCodeAuthentication
	case se.StatusCode == http.StatusTooManyRequests:
		return llm.ErrCodeRateLimit
	case se.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(se.ErrorMessage), "model"):
		return llm.ErrCodeModelNotFound
	case se.StatusCode >= 500:
		return llm.ErrCodeServerError
	default:
		return llm.ErrCodeInvalidRequest
	}
}
