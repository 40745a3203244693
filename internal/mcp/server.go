// Package mcp exposes the index to AI clients over the Model Context
// Protocol, stdio transport.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobil/qmx/internal/index"
	"github.com/tobil/qmx/internal/search"
	"github.com/tobil/qmx/internal/store"
	"github.com/tobil/qmx/pkg/version"
)

// Server bridges MCP clients with the search engine and the store.
type Server struct {
	mcp     *mcp.Server
	store   *store.Store
	engine  *search.Engine
	indexer *index.Engine
	logger  *slog.Logger
}

// NewServer wires the tool handlers. indexer may be nil, in which case the
// embed tool reports an error instead of syncing.
func NewServer(st *store.Store, engine *search.Engine, indexer *index.Engine, logger *slog.Logger) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:   st,
		engine:  engine,
		indexer: indexer,
		logger:  logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "qmx",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search indexed document collections. Hybrid mode fuses keyword and semantic retrieval with reranking; keyword and vector modes run a single retrieval path.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get",
		Description: "Fetch one document by display path, bare relative path, or #docid, optionally windowed to a line range.",
	}, s.getHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "multi_get",
		Description: "Fetch several documents at once. Unresolvable references are skipped.",
	}, s.multiGetHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "collections",
		Description: "List indexed collections with their root paths and document counts.",
	}, s.collectionsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Report index statistics: collections, documents, contexts, and embedded document counts.",
	}, s.statusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "embed",
		Description: "Synchronize collections with the filesystem and embed new or changed documents.",
	}, s.embedHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "setup",
		Description: "Bootstrap starter collections (notes, meetings, docs) with path contexts, then run a first index pass.",
	}, s.setupHandler)
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio", "version", version.Version)
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}
