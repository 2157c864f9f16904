package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocument signals a missing, unreadable, wrong-type or empty input file.
	ErrDocument = errors.New("document error")
	// ErrConfiguration signals a missing credential, unknown model or malformed config.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmbedding signals an embedding backend failure.
	ErrEmbedding = errors.New("embedding error")
	// ErrGeneration signals a generation backend failure or timeout.
	ErrGeneration = errors.New("generation error")
	// ErrCacheConsistency signals an index queried with a different embedding provider.
	ErrCacheConsistency = errors.New("cache consistency error")
	// ErrInvalidQuery signals an empty or oversized question.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure at the transport level.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// DocumentError reports why an input document could not be used.
type DocumentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDocument.Error(), e.Reason)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrDocument) hold without losing the cause chain.
func (e *DocumentError) Is(target error) bool { return target == ErrDocument }

func (e *DocumentError) Unwrap() error { return e.Err }

// NewDocumentError creates a document error.
func NewDocumentError(path, reason string, cause error) error {
	return &DocumentError{Path: path, Reason: reason, Err: cause}
}

// ConfigurationError reports a provider or config that cannot be initialized.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Component)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration.Error(), e.Component, e.Err)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a configuration error for a component.
func NewConfigurationError(component string, cause error) error {
	return &ConfigurationError{Component: component, Err: cause}
}

// EmbeddingError reports an embedding backend failure.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrEmbedding.Error(), e.Provider, e.Err)
}

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError reports a generation backend failure. Timeout is set when the
// caller's deadline expired before the backend answered.
type GenerationError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: %s: timeout: %v", ErrGeneration.Error(), e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrGeneration.Error(), e.Provider, e.Err)
}

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

func (e *GenerationError) Unwrap() error { return e.Err }

// CacheConsistencyError reports an index built by one provider and queried by another.
type CacheConsistencyError struct {
	Want ProviderIdentity
	Got  ProviderIdentity
}

func (e *CacheConsistencyError) Error() string {
	return fmt.Sprintf("%s: index built with %s, queried with %s",
		ErrCacheConsistency.Error(), e.Want, e.Got)
}

func (e *CacheConsistencyError) Unwrap() error { return ErrCacheConsistency }
