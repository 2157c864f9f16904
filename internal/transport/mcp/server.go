// Package mcp exposes document question answering as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

// Name and Version identify the server to MCP clients.
const (
	Name    = "docqa"
	Version = "0.1.0"
)

// Asker answers one question about a document.
type Asker interface {
	Ask(ctx context.Context, req qa.Request) (domain.AnswerResult, error)
}

// CacheLister lists the indexed documents held in memory.
type CacheLister interface {
	Entries() []indexcache.Entry
}

// Server registers the docqa tools on an MCP server.
type Server struct {
	asker  Asker
	cache  CacheLister
	server *mcp.Server
	logger *zap.Logger
}

// NewServer creates an MCP server with every tool registered.
func NewServer(asker Asker, cache CacheLister, logger *zap.Logger) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("mcp server: asker is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("mcp server: cache is required")
	}

	s := &Server{
		asker:  asker,
		cache:  cache,
		server: mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil),
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdin/stdout until ctx is cancelled or the client disconnects.
// Logs must go to stderr while this runs.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio", zap.String("version", Version))
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
