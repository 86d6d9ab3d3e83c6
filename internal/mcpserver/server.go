// Package mcpserver exposes the indexing engine over the Model Context
// Protocol: index_repo_full, index_repo_incremental, and search as MCP
// tools on stdio transport. A thin pass-through facade; all behaviour
// lives in the engine.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/codefang-index/internal/engine"
	"github.com/Sumatoshi-tech/codefang-index/internal/pipeline"
	"github.com/Sumatoshi-tech/codefang-index/pkg/version"
)

const serverName = "indexengine"

// Tool names.
const (
	ToolIndexFull        = "index_repo_full"
	ToolIndexIncremental = "index_repo_incremental"
	ToolSearch           = "search"
)

// Server wraps the MCP SDK server with the engine tool registrations.
type Server struct {
	inner  *mcpsdk.Server
	engine *engine.Engine
}

// NewServer creates an MCP server over the given engine.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	opts := &mcpsdk.ServerOptions{}
	if logger != nil {
		opts.Logger = logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: serverName, Version: version.Version},
		opts,
	)

	s := &Server{inner: inner, engine: eng}
	s.registerTools()

	return s
}

// Run starts the server on stdio transport and blocks until the context is
// cancelled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	if err := s.inner.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: %w", err)
	}

	return nil
}

// IndexFullInput is the index_repo_full tool input.
type IndexFullInput struct {
	RepoPath   string `json:"repo_path" jsonschema:"path to the repository checkout"`
	RepoID     string `json:"repo_id" jsonschema:"stable repository identifier"`
	SnapshotID string `json:"snapshot_id,omitempty" jsonschema:"snapshot label; defaults to HEAD"`
}

// IndexIncrementalInput is the index_repo_incremental tool input.
type IndexIncrementalInput struct {
	RepoPath      string   `json:"repo_path"`
	RepoID        string   `json:"repo_id"`
	SnapshotID    string   `json:"snapshot_id"`
	OldSnapshotID string   `json:"old_snapshot_id"`
	Added         []string `json:"added,omitempty"`
	Modified      []string `json:"modified,omitempty"`
	Deleted       []string `json:"deleted,omitempty"`
}

// SearchInput is the search tool input.
type SearchInput struct {
	RepoID     string `json:"repo_id"`
	SnapshotID string `json:"snapshot_id"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
}

// IndexOutput summarises a pipeline run.
type IndexOutput struct {
	FilesDiscovered int `json:"files_discovered"`
	IRNodesCreated  int `json:"ir_nodes_created"`
	ChunksCreated   int `json:"chunks_created"`
	Warnings        int `json:"warnings"`
	Errors          int `json:"errors"`
}

// SearchOutput carries fused hits.
type SearchOutput struct {
	Hits []SearchHitOutput `json:"hits"`
}

// SearchHitOutput is one hit row.
type SearchHitOutput struct {
	ChunkID  string  `json:"chunk_id"`
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
	Source   string  `json:"source"`
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolIndexFull,
		Description: "Run the full indexing pipeline over a repository.",
	}, s.handleIndexFull)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolIndexIncremental,
		Description: "Re-index only the changed files of a repository.",
	}, s.handleIndexIncremental)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolSearch,
		Description: "Search one indexed snapshot with weighted multi-index fusion.",
	}, s.handleSearch)
}

func (s *Server) handleIndexFull(ctx context.Context, _ *mcpsdk.CallToolRequest, input IndexFullInput) (*mcpsdk.CallToolResult, IndexOutput, error) {
	result, err := s.engine.IndexFull(ctx, input.RepoPath, input.RepoID, input.SnapshotID)
	if err != nil {
		return nil, IndexOutput{}, err
	}

	return nil, toOutput(result), nil
}

func (s *Server) handleIndexIncremental(ctx context.Context, _ *mcpsdk.CallToolRequest, input IndexIncrementalInput) (*mcpsdk.CallToolResult, IndexOutput, error) {
	changes := pipeline.ChangeSummary{
		OldSnapshotID: input.OldSnapshotID,
		Added:         input.Added,
		Modified:      input.Modified,
		Deleted:       input.Deleted,
	}

	result, err := s.engine.IndexIncremental(ctx, input.RepoPath, input.RepoID, input.SnapshotID, changes)
	if err != nil {
		return nil, IndexOutput{}, err
	}

	return nil, toOutput(result), nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, input SearchInput) (*mcpsdk.CallToolResult, SearchOutput, error) {
	hits, err := s.engine.Search(ctx, input.RepoID, input.SnapshotID, input.Query, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Hits: make([]SearchHitOutput, 0, len(hits))}

	for _, h := range hits {
		out.Hits = append(out.Hits, SearchHitOutput{
			ChunkID:  h.ChunkID,
			FilePath: h.FilePath,
			Score:    h.Score,
			Source:   string(h.Source),
		})
	}

	return nil, out, nil
}

func toOutput(result *pipeline.Result) IndexOutput {
	return IndexOutput{
		FilesDiscovered: result.FilesDiscovered,
		IRNodesCreated:  result.IRNodesCreated,
		ChunksCreated:   result.ChunksCreated,
		Warnings:        len(result.Warnings),
		Errors:          len(result.Errors),
	}
}
