// Package openai adapts OpenAI-compatible HTTP APIs to the embedding and
// generation contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Config holds the connection settings shared by Embedder and Generator.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	// RetryMaxElapsed enables retrying HTTP 429 responses with exponential
	// backoff for up to this long. Zero disables retries.
	RetryMaxElapsed time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

func (c *Config) provider() string {
	if c.Provider != "" {
		return c.Provider
	}
	return "openai"
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}

// withRetry runs op, retrying rate-limited calls when maxElapsed > 0.
func withRetry[T any](
	ctx context.Context, maxElapsed time.Duration, logger *zap.Logger, op func() (T, error),
) (T, error) {
	if maxElapsed <= 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed

	attempt := func() (T, error) {
		v, err := op()
		if err != nil && !isRateLimitError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Rate limited, retrying", zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotifyWithData(attempt, backoff.WithContext(b, ctx), notify)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRateLimitError(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}

// parseAPIError extracts a readable message from an API failure and wraps it
// with kind. Rejected credentials and unknown models become configuration errors.
func parseAPIError(component string, err error, kind error) error {
	var msg string

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		msg = fmt.Sprintf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	case errors.As(err, &reqErr):
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		msg = fmt.Sprintf("API error %d: %s", reqErr.HTTPStatusCode, detail)
	default:
		return fmt.Errorf("request failed: %w: %w", kind, err)
	}

	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return domain.NewConfigurationError(component, errors.New(msg))
	}
	return fmt.Errorf("%s: %w", msg, kind)
}

// extractDetail reads the "detail" field some OpenAI-compatible gateways use.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
