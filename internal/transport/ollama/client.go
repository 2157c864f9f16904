// Package ollama adapts a local Ollama server to the embedding and generation
// contracts.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Provider is the identity name of Ollama backends.
const Provider = "ollama"

// Client wraps the Ollama API client with readiness and model checks.
type Client struct {
	api    *api.Client
	host   string
	logger *zap.Logger
}

// NewClient creates a client for the server at host.
func NewClient(host string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewConfigurationError("ollama", fmt.Errorf("invalid host %q", host))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{api: api.NewClient(u, httpClient), host: host, logger: logger}, nil
}

// WaitReady polls the server until it answers or maxElapsed passes.
func (c *Client) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxElapsed

	notify := func(err error, wait time.Duration) {
		c.logger.Info("Waiting for Ollama",
			zap.String("host", c.host),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}
	op := func() error { return c.api.Heartbeat(ctx) }
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return domain.NewConfigurationError("ollama", fmt.Errorf("server at %s is unreachable: %w", c.host, err))
	}
	return nil
}

// EnsureModel fails with a configuration error when model is not pulled.
func (c *Client) EnsureModel(ctx context.Context, component, model string) error {
	if model == "" {
		return domain.NewConfigurationError(component, errors.New("model is not set"))
	}
	if _, err := c.api.Show(ctx, &api.ShowRequest{Model: model}); err != nil {
		if isNotFound(err) {
			return domain.NewConfigurationError(component,
				fmt.Errorf("model %q is not available, run `ollama pull %s`", model, model))
		}
		return domain.NewConfigurationError(component, fmt.Errorf("show model %q: %w", model, err))
	}
	return nil
}

// HealthCheck verifies the server answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.api.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("ollama version: %w", err)
	}
	return v, nil
}

func isNotFound(err error) bool {
	var se api.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
