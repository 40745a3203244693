package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobil/qmx/internal/index"
	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/scanner"
	"github.com/tobil/qmx/internal/search"
	"github.com/tobil/qmx/internal/store"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query      string  `json:"query" jsonschema:"the search query"`
	Mode       string  `json:"mode,omitempty" jsonschema:"retrieval mode: hybrid (default), keyword, or vector"`
	Collection string  `json:"collection,omitempty" jsonschema:"restrict to one collection by name"`
	Limit      int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"drop results scoring below this threshold"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []search.Result `json:"results" jsonschema:"search results, best first"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, SearchOutput{}, errors.New("query must not be empty")
	}

	opts := search.Options{
		Collection: in.Collection,
		Limit:      in.Limit,
		MinScore:   in.MinScore,
	}

	var (
		results []search.Result
		err     error
	)
	switch in.Mode {
	case "", "hybrid":
		results, err = s.engine.Hybrid(ctx, query, opts)
	case "keyword":
		results, err = s.engine.Keyword(ctx, query, opts)
	case "vector":
		results, err = s.engine.Vector(ctx, query, opts)
	default:
		return nil, SearchOutput{}, fmt.Errorf("unknown mode %q (hybrid, keyword, vector)", in.Mode)
	}
	if err != nil {
		return nil, SearchOutput{}, err
	}
	if results == nil {
		results = []search.Result{}
	}
	return nil, SearchOutput{Results: results}, nil
}

// GetInput is the input schema for the get tool.
type GetInput struct {
	File        string `json:"file" jsonschema:"display path, relative path, or #docid"`
	From        int    `json:"from,omitempty" jsonschema:"1-based first line of the window"`
	MaxLines    int    `json:"max_lines,omitempty" jsonschema:"maximum lines returned, 0 for all"`
	LineNumbers bool   `json:"line_numbers,omitempty" jsonschema:"prefix lines with their numbers"`
}

// GetOutput is one fetched document.
type GetOutput struct {
	File    string `json:"file" jsonschema:"display path of the document"`
	Title   string `json:"title" jsonschema:"document title"`
	DocID   string `json:"docid" jsonschema:"short content-derived id"`
	Content string `json:"content" jsonschema:"document content, possibly windowed"`
}

func (s *Server) getHandler(ctx context.Context, _ *mcp.CallToolRequest, in GetInput) (
	*mcp.CallToolResult,
	GetOutput,
	error,
) {
	if strings.TrimSpace(in.File) == "" {
		return nil, GetOutput{}, errors.New("file must not be empty")
	}
	d, err := s.store.GetByRef(ctx, in.File)
	if err != nil {
		return nil, GetOutput{}, err
	}
	return nil, GetOutput{
		File:    d.DisplayPath,
		Title:   d.Title,
		DocID:   d.DocID,
		Content: output.WindowLines(d.Content, in.From, in.MaxLines, in.LineNumbers),
	}, nil
}

// MultiGetInput is the input schema for the multi_get tool.
type MultiGetInput struct {
	Files       []string `json:"files" jsonschema:"document references: display paths, #docids, comma lists, or GLOB patterns"`
	MaxLines    int      `json:"max_lines,omitempty" jsonschema:"maximum lines per document, 0 for all"`
	MaxBytes    int      `json:"max_bytes,omitempty" jsonschema:"skip documents larger than this, default 10240"`
	LineNumbers bool     `json:"line_numbers,omitempty" jsonschema:"prefix lines with their numbers"`
}

// MultiGetOutput is the output schema for the multi_get tool.
type MultiGetOutput struct {
	Documents []GetOutput `json:"documents" jsonschema:"resolved documents, unresolvable references omitted"`
}

func (s *Server) multiGetHandler(ctx context.Context, _ *mcp.CallToolRequest, in MultiGetInput) (
	*mcp.CallToolResult,
	MultiGetOutput,
	error,
) {
	if len(in.Files) == 0 {
		return nil, MultiGetOutput{}, errors.New("files must not be empty")
	}
	maxBytes := in.MaxBytes
	if maxBytes == 0 {
		maxBytes = 10240
	}

	docs, missing, err := s.store.ResolveRefs(ctx, in.Files)
	if err != nil {
		return nil, MultiGetOutput{}, err
	}
	for _, ref := range missing {
		s.logger.Debug("multi_get reference not found", "ref", ref)
	}

	out := MultiGetOutput{Documents: make([]GetOutput, 0, len(docs))}
	for _, d := range docs {
		if maxBytes > 0 && len(d.Content) > maxBytes {
			continue
		}
		out.Documents = append(out.Documents, GetOutput{
			File:    d.DisplayPath,
			Title:   d.Title,
			DocID:   d.DocID,
			Content: output.WindowLines(d.Content, 1, in.MaxLines, in.LineNumbers),
		})
	}
	return nil, out, nil
}

// CollectionsInput is the (empty) input schema for the collections tool.
type CollectionsInput struct{}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name        string `json:"name" jsonschema:"collection name"`
	Root        string `json:"root" jsonschema:"root directory on disk"`
	Mask        string `json:"mask" jsonschema:"glob mask selecting files"`
	Files       int    `json:"files" jsonschema:"indexed document count"`
	LastUpdated string `json:"last_updated,omitempty" jsonschema:"most recent document update"`
}

// CollectionsOutput is the output schema for the collections tool.
type CollectionsOutput struct {
	Collections []CollectionInfo `json:"collections"`
}

func (s *Server) collectionsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ CollectionsInput) (
	*mcp.CallToolResult,
	CollectionsOutput,
	error,
) {
	sums, err := s.store.ListCollectionSummaries(ctx)
	if err != nil {
		return nil, CollectionsOutput{}, err
	}
	out := CollectionsOutput{Collections: make([]CollectionInfo, 0, len(sums))}
	for _, c := range sums {
		out.Collections = append(out.Collections, CollectionInfo{
			Name: c.Name, Root: c.RootPath, Mask: c.Mask,
			Files: c.FileCount, LastUpdated: c.LastUpdated,
		})
	}
	return nil, out, nil
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	Collections int `json:"collections" jsonschema:"number of collections"`
	Documents   int `json:"documents" jsonschema:"number of indexed documents"`
	Contexts    int `json:"contexts" jsonschema:"number of path context notes"`
	Embedded    int `json:"embedded" jsonschema:"documents with a stored vector"`
}

func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	info, err := s.store.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{
		Collections: info.Collections,
		Documents:   info.Documents,
		Contexts:    info.Contexts,
		Embedded:    info.Embedded,
	}, nil
}

// EmbedInput is the input schema for the embed tool.
type EmbedInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"sync only this collection, default all"`
}

// EmbedOutput is the output schema for the embed tool.
type EmbedOutput struct {
	Scanned        int   `json:"scanned"`
	Added          int   `json:"added"`
	Updated        int   `json:"updated"`
	Removed        int   `json:"removed"`
	Unchanged      int   `json:"unchanged"`
	Embedded       int   `json:"embedded"`
	Failed         int   `json:"failed"`
	EmbeddedChunks int   `json:"embedded_chunks,omitempty"`
	EmbeddedBytes  int64 `json:"embedded_bytes,omitempty"`
	SplitDocuments int   `json:"split_documents,omitempty"`
	Cancelled      bool  `json:"cancelled,omitempty"`
}

func embedOutput(stats index.Stats) EmbedOutput {
	return EmbedOutput{
		Scanned:        stats.Scanned,
		Added:          stats.Added,
		Updated:        stats.Updated,
		Removed:        stats.Removed,
		Unchanged:      stats.Unchanged,
		Embedded:       stats.Embedded,
		Failed:         stats.Failed,
		EmbeddedChunks: stats.EmbeddedChunks,
		EmbeddedBytes:  stats.EmbeddedBytes,
		SplitDocuments: stats.SplitDocuments,
		Cancelled:      stats.Cancelled,
	}
}

func (s *Server) embedHandler(ctx context.Context, _ *mcp.CallToolRequest, in EmbedInput) (
	*mcp.CallToolResult,
	EmbedOutput,
	error,
) {
	if s.indexer == nil {
		return nil, EmbedOutput{}, errors.New("indexing is not available in this server")
	}
	var (
		cols []store.Collection
		err  error
	)
	if in.Collection != "" {
		var c store.Collection
		c, err = s.store.GetCollection(ctx, in.Collection)
		cols = []store.Collection{c}
	} else {
		cols, err = s.store.ListCollections(ctx)
	}
	if err != nil {
		return nil, EmbedOutput{}, err
	}

	stats, err := s.indexer.Sync(ctx, cols, nil)
	if err != nil {
		return nil, EmbedOutput{}, err
	}
	return nil, embedOutput(stats), nil
}

// SetupInput is the input schema for the setup tool.
type SetupInput struct {
	Notes    string `json:"notes,omitempty" jsonschema:"path for the notes collection"`
	Meetings string `json:"meetings,omitempty" jsonschema:"path for the meetings collection"`
	Docs     string `json:"docs,omitempty" jsonschema:"path for the docs collection"`
	Mask     string `json:"mask,omitempty" jsonschema:"glob mask selecting files, default **/*.md"`
	NoEmbed  bool   `json:"no_embed,omitempty" jsonschema:"index text only, skip embedding"`
}

// SetupOutput is the output schema for the setup tool.
type SetupOutput struct {
	Collections []string    `json:"collections"`
	Stats       EmbedOutput `json:"stats"`
}

func (s *Server) setupHandler(ctx context.Context, _ *mcp.CallToolRequest, in SetupInput) (
	*mcp.CallToolResult,
	SetupOutput,
	error,
) {
	if s.indexer == nil {
		return nil, SetupOutput{}, errors.New("indexing is not available in this server")
	}

	entries := []struct {
		name    string
		root    string
		context string
	}{
		{"notes", in.Notes, "Personal notes and ideas"},
		{"meetings", in.Meetings, "Meeting transcripts and notes"},
		{"docs", in.Docs, "Work documentation"},
	}
	mask := in.Mask
	if mask == "" {
		mask = scanner.DefaultMask
	}

	var (
		cols  []store.Collection
		names []string
	)
	for _, e := range entries {
		if e.root == "" {
			continue
		}
		abs, err := filepath.Abs(e.root)
		if err != nil {
			return nil, SetupOutput{}, fmt.Errorf("resolve %s: %w", e.root, err)
		}
		c, err := s.store.UpsertCollection(ctx, e.name, abs, mask)
		if err != nil {
			return nil, SetupOutput{}, err
		}
		if err := s.store.SetContext(ctx, "qmx://"+e.name, e.context); err != nil {
			return nil, SetupOutput{}, err
		}
		cols = append(cols, c)
		names = append(names, c.Name)
	}
	if len(cols) == 0 {
		return nil, SetupOutput{}, errors.New("at least one path is required: notes, meetings, or docs")
	}

	eng := s.indexer
	if in.NoEmbed {
		eng = eng.IndexOnly()
	}
	stats, err := eng.Sync(ctx, cols, nil)
	if err != nil {
		return nil, SetupOutput{}, err
	}
	return nil, SetupOutput{Collections: names, Stats: embedOutput(stats)}, nil
}
