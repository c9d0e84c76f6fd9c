package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/bambicim/copilot/internal/indexer"
	"github.com/bambicim/copilot/internal/searcher"
	"github.com/bambicim/copilot/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "bambicim-copilot"
)

// ServerVersion is reported to MCP clients; set from the build version.
var ServerVersion = "dev"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	store   storage.DocumentStore
	index   *searcher.Index
	indexer *indexer.Indexer
	logger  *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server over an already opened store, index and indexer.
func NewServer(store storage.DocumentStore, index *searcher.Index, idx *indexer.Indexer, opts ...Option) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		store:   store,
		index:   index,
		indexer: idx,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp")
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchTool(s.index.Config().TopK), s.handleSearch)
	s.mcp.AddTool(reloadIndexTool(), s.handleReloadIndex)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
	s.mcp.AddTool(indexDocumentsTool(), s.handleIndexDocuments)
}
