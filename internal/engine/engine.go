// Package engine wires the indexing subsystems together: configuration in,
// a ready pipeline, indexing service, overlay filesystem, and event bus
// out. The CLI and MCP facades only talk to this package.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/changeset"
	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/config"
	"github.com/Sumatoshi-tech/codefang-index/internal/eventbus"
	"github.com/Sumatoshi-tech/codefang-index/internal/graphstore"
	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/internal/pipeline"
	"github.com/Sumatoshi-tech/codefang-index/internal/repomap"
	"github.com/Sumatoshi-tech/codefang-index/internal/semanticir"
	"github.com/Sumatoshi-tech/codefang-index/internal/shadowfs"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
)

// Options bundles the externally supplied collaborators.
type Options struct {
	Logger      *slog.Logger
	Metrics     *observability.REDMetrics
	HoverClient semanticir.HoverClient
	Summarizer  repomap.Summarizer
	Embedder    indexing.Embedder

	// StateDir roots persisted state (semantic snapshots, progress
	// records); empty uses a temp-adjacent default.
	StateDir string
}

// Engine owns the long-lived stores and services of one process.
type Engine struct {
	cfg  *config.Config
	opts Options

	Pool     *astpool.Pool
	Graph    *graphstore.Store
	Chunks   *chunking.Store
	Semantic *semanticir.Store
	Service  *indexing.Service
	Bus      *eventbus.Bus
}

// New assembles an engine from configuration.
func New(cfg *config.Config, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.StateDir == "" {
		opts.StateDir = filepath.Join(os.TempDir(), "indexengine-state")
	}

	graph := graphstore.New()

	e := &Engine{
		cfg:      cfg,
		opts:     opts,
		Pool:     astpool.New(),
		Graph:    graph,
		Chunks:   chunking.NewStore(),
		Semantic: semanticir.NewStore(filepath.Join(opts.StateDir, "semantic"), 0),
	}

	e.Service = &indexing.Service{
		Adapters: e.adapters(cfg.Indexes),
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	}

	e.Bus = &eventbus.Bus{Logger: opts.Logger}

	return e
}

func (e *Engine) adapters(idx config.IndexConfig) []indexing.Adapter {
	var adapters []indexing.Adapter

	if idx.EnableVector {
		adapters = append(adapters, indexing.NewVectorAdapter(e.opts.Embedder, e.cfg.Pipeline.VectorBatchSize))
	}

	if idx.EnableLexical {
		adapters = append(adapters, indexing.NewLexicalAdapter())
	}

	if idx.EnableSymbol {
		adapters = append(adapters, indexing.NewSymbolAdapter(e.Graph))
	}

	if idx.EnableFuzzy {
		adapters = append(adapters, indexing.NewFuzzyAdapter())
	}

	if idx.EnableDomain {
		adapters = append(adapters, indexing.NewDocMetaAdapter())
	}

	return adapters
}

// NewShadowFS creates the overlay filesystem for a workspace, wired to the
// engine's event bus and incremental plugin.
func (e *Engine) NewShadowFS(workspaceRoot, repoID, snapshotID string) (*shadowfs.ShadowFS, error) {
	maxSize, err := e.cfg.ShadowFS.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	plugin := eventbus.NewIncrementalPlugin(
		&deltaBuilder{engine: e, workspaceRoot: workspaceRoot, repoID: repoID, snapshotID: snapshotID},
		&incrementalIndexer{engine: e, workspaceRoot: workspaceRoot, repoID: repoID, snapshotID: snapshotID},
	)
	plugin.Logger = e.opts.Logger
	plugin.Metrics = e.opts.Metrics
	e.Bus.Register(plugin)

	return shadowfs.New(workspaceRoot, e.Bus, shadowfs.Options{
		TxnTTL:       e.cfg.ShadowFS.TxnTTL,
		MaxFileSize:  maxSize,
		UseSymlinks:  e.cfg.ShadowFS.MaterializeUseSymlinks,
		PoolCapacity: e.cfg.ShadowFS.PoolCapacity,
		Metrics:      e.opts.Metrics,
	}), nil
}

// stages assembles the nine-stage schedule for one run.
func (e *Engine) stages(repoPath, repoID, snapshotID string) []pipeline.Stage {
	pcfg := e.cfg.Pipeline

	chunkBuilder := &chunking.Builder{PartialHashes: pcfg.EnablePartialChunkUpdates}

	return []pipeline.Stage{
		pipeline.GitStage{},
		pipeline.DiscoveryStage{Filter: e.filter()},
		&pipeline.ParsingStage{
			Pool:            e.Pool,
			Parallel:        pcfg.Parallel,
			MaxWorkers:      pcfg.MaxWorkers,
			SkipParseErrors: pcfg.SkipParseErrors,
		},
		&pipeline.IRStage{
			Pool: e.Pool,
			Config: ir.BuildConfig{
				SemanticTier:    "syntactic",
				CrossFile:       true,
				RetrievalIndex:  true,
				ParallelWorkers: pcfg.MaxWorkers,
			},
			RealtimeAnalysis: pcfg.EnableRealtimeAnalysis,
		},
		&pipeline.SemanticStage{
			Enricher: &semanticir.Enricher{Client: e.hoverClient()},
			Store:    e.Semantic,
		},
		&pipeline.GraphStage{Graph: e.Graph, ImpactDepth: pcfg.ImpactDepth},
		&pipeline.ChunkStage{
			Store:            e.Chunks,
			Builder:          chunkBuilder,
			BatchSize:        pcfg.ChunkBatchSize,
			Refresher: &chunking.Refresher{
				Store:          e.Chunks,
				Rebuild:        e.rebuildFile(repoPath, repoID, snapshotID),
				PartialUpdates: pcfg.EnablePartialChunkUpdates,
			},
			EnableGitHistory: pcfg.EnableGitHistory,
		},
		&pipeline.RepoMapStage{Builder: &repomap.Builder{Summarizer: e.summarizer(), SummarizeTopN: 20}},
		&pipeline.MultiIndexStage{Service: e.Service, Chunks: e.Chunks},
	}
}

func (e *Engine) hoverClient() semanticir.HoverClient {
	if !e.cfg.Pipeline.EnableLSP {
		return nil
	}

	return e.opts.HoverClient
}

func (e *Engine) summarizer() repomap.Summarizer {
	if e.opts.Summarizer != nil {
		return e.opts.Summarizer
	}

	return repomap.NoopSummarizer{}
}

func (e *Engine) filter() changeset.Filter {
	return changeset.Filter{
		Extensions:  e.cfg.Pipeline.Extensions,
		IgnoreGlobs: e.cfg.Pipeline.IgnoreGlobs,
	}
}

// IndexFull runs the full pipeline over a repository.
func (e *Engine) IndexFull(ctx context.Context, repoPath, repoID, snapshotID string) (*pipeline.Result, error) {
	sc := pipeline.NewStageContext(ctx, repoPath, repoID, snapshotID)
	sc.ContinueOnError = e.cfg.Pipeline.ContinueOnError

	runner := &pipeline.Runner{Stages: e.stages(repoPath, repoID, snapshotID), Metrics: e.opts.Metrics}

	return runner.Run(sc)
}

// IndexIncremental runs the pipeline in incremental mode over the given
// change summary.
func (e *Engine) IndexIncremental(ctx context.Context, repoPath, repoID, snapshotID string, changes pipeline.ChangeSummary) (*pipeline.Result, error) {
	sc := pipeline.NewStageContext(ctx, repoPath, repoID, snapshotID)
	sc.ContinueOnError = e.cfg.Pipeline.ContinueOnError
	sc.Incremental = &changes

	runner := &pipeline.Runner{Stages: e.stages(repoPath, repoID, snapshotID), Metrics: e.opts.Metrics}

	return runner.Run(sc)
}

// Search queries the indexes for one snapshot.
func (e *Engine) Search(ctx context.Context, repoID, snapshotID, query string, limit int) ([]indexing.SearchHit, error) {
	return e.Service.Search(ctx, repoID, snapshotID, query, limit, nil)
}

// rebuildFile is the refresher's per-file rebuild: parse the file fresh
// and regenerate its IR slice and chunks.
func (e *Engine) rebuildFile(repoPath, repoID, snapshotID string) chunking.RebuildFileFunc {
	return func(ctx context.Context, filePath string) ([]chunking.Chunk, error) {
		content, err := os.ReadFile(filepath.Join(repoPath, filePath))
		if err != nil {
			return nil, fmt.Errorf("engine: read %s: %w", filePath, err)
		}

		language := pipeline.DetectLanguage(filePath, content)

		doc, err := ir.BuildFileLegacy(ctx, repoID, snapshotID, filePath, content, language, e.Pool, ir.BuildConfig{})
		if err != nil {
			return nil, err
		}

		builder := &chunking.Builder{PartialHashes: e.cfg.Pipeline.EnablePartialChunkUpdates}

		return builder.BuildFile(repoID, snapshotID, filePath, doc.Nodes, string(content)), nil
	}
}

// deltaBuilder adapts the engine to the plugin's per-language IR delta
// contract.
type deltaBuilder struct {
	engine        *Engine
	workspaceRoot string
	repoID        string
	snapshotID    string
}

func (d *deltaBuilder) BuildDelta(ctx context.Context, language string, files []string) error {
	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(d.workspaceRoot, file))
		if err != nil {
			return fmt.Errorf("engine: delta read %s: %w", file, err)
		}

		doc, err := ir.BuildFileLegacy(ctx, d.repoID, d.snapshotID, file, content, language, d.engine.Pool, ir.BuildConfig{})
		if err != nil {
			return err
		}

		sliceDoc := graphstore.BuildFromIR(doc)
		d.engine.Graph.DeleteOutboundEdges(d.repoID, d.snapshotID, []string{file})
		d.engine.Graph.UpsertSymbols(d.repoID, d.snapshotID, sliceDoc.Symbols)
		d.engine.Graph.UpsertRelations(d.repoID, d.snapshotID, sliceDoc.Relations)
	}

	return nil
}

// incrementalIndexer adapts the engine to the plugin's re-index contract.
type incrementalIndexer struct {
	engine        *Engine
	workspaceRoot string
	repoID        string
	snapshotID    string
}

func (ix *incrementalIndexer) IndexFiles(ctx context.Context, changed, deleted []string) error {
	refresher := &chunking.Refresher{
		Store:          ix.engine.Chunks,
		Rebuild:        ix.engine.rebuildFile(ix.workspaceRoot, ix.repoID, ix.snapshotID),
		PartialUpdates: ix.engine.cfg.Pipeline.EnablePartialChunkUpdates,
	}

	result, err := refresher.Refresh(ctx, ix.repoID, ix.snapshotID, ix.snapshotID, nil, changed, deleted)
	if err != nil {
		return err
	}

	report := ix.engine.Service.IndexRepoIncremental(ctx, ix.repoID, ix.snapshotID, result, indexing.TransformOptions{})
	if len(report.Errors) > 0 {
		return report.Errors[0]
	}

	return nil
}
