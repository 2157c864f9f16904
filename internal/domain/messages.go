package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDocument signals a request without a document.
	ErrMissingDocument = fmt.Errorf("%w: no document provided", ErrDocument)
	// ErrEmptyQuery signals a blank question.
	ErrEmptyQuery = fmt.Errorf("%w: empty question", ErrInvalidQuery)
	// ErrQueryTooLong signals a question above MaxQueryLength characters.
	ErrQueryTooLong = fmt.Errorf("%w: question too long", ErrInvalidQuery)
)

// MaxQueryLength is the longest accepted question, in characters.
const MaxQueryLength = 2000

// UserMessage maps an error to a message that is safe to show an end user.
// Provider error text is never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		docErr *DocumentError
		genErr *GenerationError
	)

	switch {
	case errors.Is(err, ErrMissingDocument):
		return "Please upload a PDF document before asking a question."
	case errors.Is(err, ErrEmptyQuery):
		return "Please enter a question about the document."
	case errors.Is(err, ErrQueryTooLong):
		return fmt.Sprintf("Your question is too long (max %d characters). Please shorten it and try again.",
			MaxQueryLength)
	case errors.As(err, &docErr):
		return fmt.Sprintf("The document could not be used: %s.", docErr.Reason)
	case errors.Is(err, ErrDocument):
		return "The document could not be used."
	case errors.Is(err, ErrConfiguration):
		return "The model service is not configured correctly. Please check the server configuration."
	case errors.Is(err, ErrEmbeddingQuotaExceeded):
		return "The embedding budget has been used up. Please try again later."
	case errors.Is(err, ErrCacheConsistency):
		return "The document index was built with a different embedding model. Please upload the document again."
	case errors.Is(err, ErrEmbedding):
		return "Could not reach the embedding service. Please make sure it is running at the configured URL."
	case errors.As(err, &genErr) && genErr.Timeout:
		return "The model took too long to answer. Please try again."
	case errors.Is(err, ErrGeneration):
		return "Could not connect to the model server. Please make sure it is running at the configured URL."
	default:
		return "An unexpected error occurred. Please check the logs or try again."
	}
}
