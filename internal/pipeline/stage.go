// Package pipeline implements the staged indexing pipeline: a fixed,
// dependency-ordered sequence of stages sharing a mutable StageContext,
// with per-stage duration recording and per-stage error propagation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codefang-index/internal/bfg"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/internal/semanticir"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
)

const tracerName = "codefang.indexengine.pipeline"

// ErrStageFailed wraps a stage-level (as opposed to per-item) failure.
var ErrStageFailed = errors.New("pipeline: stage failed")

// StageContext is the shared mutable state threaded through every stage, in
// the order the stages populate it.
type StageContext struct {
	Context context.Context //nolint:containedctx // carried deliberately; stages need per-run cancellation/deadline

	RepoPath   string
	RepoID     string
	SnapshotID string

	// Incremental holds the change set driving incremental mode; nil in
	// full-index mode.
	Incremental *ChangeSummary

	// ContinueOnError decides whether a per-file IR failure or a
	// stage-level error is fatal to the run (false, the default) or is
	// recorded on the context while the run goes on (true). Per-file parse
	// failures are governed by ParsingStage.SkipParseErrors instead.
	ContinueOnError bool

	HeadCommit string
	Branch     string

	Files []string

	ASTByFile map[string]FileAST

	IRDoc *ir.Document

	// PerFileIR keeps the per-file documents the layered builder produced;
	// the incremental graph and chunk paths consume file-scoped slices.
	PerFileIR map[string]*ir.Document

	// FlowGraphs holds one flow graph per function node id, plus one
	// virtual graph per file for module-level code. Discarded with the IR.
	FlowGraphs map[string]*bfg.Graph

	Semantic      *semanticir.Snapshot
	SemanticIndex *semanticir.Index

	GraphStats GraphStats

	Chunks   []ChunkRef
	ChunkIDs []string

	RepoMap any

	Warnings []StageIssue
	Errors   []StageIssue

	Metadata map[string]any
}

// Sources returns the file contents the parsing stage attached, keyed by
// path.
func (sc *StageContext) Sources() map[string][]byte {
	out := make(map[string][]byte, len(sc.ASTByFile))
	for path, ast := range sc.ASTByFile {
		out[path] = ast.Content
	}

	return out
}

// LanguagesByFile returns the detected language per file.
func (sc *StageContext) LanguagesByFile() map[string]string {
	out := make(map[string]string, len(sc.ASTByFile))
	for path, ast := range sc.ASTByFile {
		out[path] = ast.Language
	}

	return out
}

// FileAST is a placeholder carrying whatever the parsing stage attaches per
// file; kept as an opaque struct here to avoid a pipeline->bfg/astpool
// import cycle (the parsing stage itself imports those packages directly).
type FileAST struct {
	Language string
	Content  []byte
}

// ChangeSummary is the pipeline-facing view of a changeset.Set, plus the
// snapshot the changes are relative to.
type ChangeSummary struct {
	OldSnapshotID string

	Added    []string
	Modified []string
	Deleted  []string
}

// ChunkRef is a lightweight chunk identity reference threaded through the
// context; the full Chunk lives in the chunking package's store.
type ChunkRef struct {
	ChunkID string
	FileID  string
}

// GraphStats summarizes the graph stage's output counts for the result.
type GraphStats struct {
	NodesCreated int
	EdgesCreated int
	StaleEdges   int
}

// StageIssue records one warning or error with its originating stage.
type StageIssue struct {
	Stage string
	Err   error
}

func (si StageIssue) Error() string {
	return fmt.Sprintf("%s: %v", si.Stage, si.Err)
}

// NewStageContext initializes an empty context for a run.
func NewStageContext(ctx context.Context, repoPath, repoID, snapshotID string) *StageContext {
	return &StageContext{
		Context:    ctx,
		RepoPath:   repoPath,
		RepoID:     repoID,
		SnapshotID: snapshotID,
		ASTByFile:  make(map[string]FileAST),
		Metadata:   make(map[string]any),
	}
}

// AddWarning records a non-fatal issue against a stage.
func (sc *StageContext) AddWarning(stage string, err error) {
	sc.Warnings = append(sc.Warnings, StageIssue{Stage: stage, Err: err})
}

// AddError records a fatal-unless-continue issue against a stage.
func (sc *StageContext) AddError(stage string, err error) {
	sc.Errors = append(sc.Errors, StageIssue{Stage: stage, Err: err})
}

// Stage is the contract every pipeline stage implements: a name for
// tracing/reporting and an Execute call that reads and writes StageContext.
type Stage interface {
	Name() string
	Execute(ctx *StageContext) error
}

// StageDuration records how long one stage took.
type StageDuration struct {
	Stage    string
	Duration time.Duration
}

// Result is the outcome of running the full pipeline: per-stage durations
// plus the warnings/errors accumulated on the StageContext.
type Result struct {
	Durations []StageDuration
	Warnings  []StageIssue
	Errors    []StageIssue

	FilesDiscovered int
	FilesProcessed  int
	FilesFailed     int
	FilesSkipped    int

	IRNodesCreated    int
	GraphNodesCreated int
	GraphEdgesCreated int
	ChunksCreated     int

	// Metadata carries per-stage enrichments (stale edge counts, impact
	// analysis, recommended re-index files, docs per index).
	Metadata map[string]any
}

// Runner executes a fixed, ordered list of stages over one StageContext.
type Runner struct {
	Stages []Stage

	// Tracer is the OTel tracer used for per-stage spans. When nil, falls
	// back to otel.Tracer(tracerName).
	Tracer trace.Tracer

	// Metrics records RED metrics per stage when non-nil.
	Metrics *observability.REDMetrics
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}

	return otel.Tracer(tracerName)
}

// Run executes every stage in order. A stage-level error (returned by
// Execute, as opposed to a per-item warning recorded on the context) aborts
// the run unless sc.ContinueOnError is set, in which case it is recorded as
// an error and the run proceeds to the next stage.
func (r *Runner) Run(sc *StageContext) (*Result, error) {
	result := &Result{}

	for _, stage := range r.Stages {
		start := time.Now()

		spanCtx, span := r.tracer().Start(sc.Context, "pipeline."+stage.Name(),
			trace.WithAttributes(attribute.String("codefang.stage", stage.Name())))
		sc.Context = spanCtx

		err := stage.Execute(sc)

		duration := time.Since(start)
		result.Durations = append(result.Durations, StageDuration{Stage: stage.Name(), Duration: duration})

		if r.Metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}

			r.Metrics.RecordRequest(sc.Context, stage.Name(), status, duration)
		}

		span.End()

		if err != nil {
			sc.AddError(stage.Name(), err)

			if !sc.ContinueOnError {
				result.Errors = sc.Errors
				result.Warnings = sc.Warnings

				return result, fmt.Errorf("%w: stage %q: %w", ErrStageFailed, stage.Name(), err)
			}
		}
	}

	result.Warnings = sc.Warnings
	result.Errors = sc.Errors
	result.FilesDiscovered = len(sc.Files)
	result.FilesProcessed = len(sc.ASTByFile)

	if skipped, ok := sc.Metadata["files_skipped"].(int); ok {
		result.FilesSkipped = skipped
	}

	if failed := len(sc.Files) - len(sc.ASTByFile) - result.FilesSkipped; failed > 0 {
		result.FilesFailed = failed
	}

	result.Metadata = sc.Metadata

	if sc.IRDoc != nil {
		result.IRNodesCreated = len(sc.IRDoc.Nodes)
	}

	result.GraphNodesCreated = sc.GraphStats.NodesCreated
	result.GraphEdgesCreated = sc.GraphStats.EdgesCreated
	result.ChunksCreated = len(sc.Chunks)

	return result, nil
}
