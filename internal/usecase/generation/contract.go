package generation

import "github.com/kailas-cloud/docqa/internal/domain"

// Backend is a generation transport supporting both call shapes.
type Backend interface {
	domain.Generator
	domain.StreamGenerator
}
