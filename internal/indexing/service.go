package indexing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
)

const serviceTracerName = "codefang.indexengine.indexing"

// TransformOptions enriches chunk-to-document transformation with
// information owned by other stages.
type TransformOptions struct {
	// Languages maps file path to detected language.
	Languages map[string]string

	// Importance maps file path to its repo-map importance score.
	Importance map[string]float64

	// Summaries maps chunk id to an LLM-produced summary.
	Summaries map[string]string
}

func (o TransformOptions) language(filePath string) string {
	return o.Languages[filePath]
}

func (o TransformOptions) importance(filePath string) float64 {
	return o.Importance[filePath]
}

// Transform converts chunks into index documents once, shared by every
// adapter.
func Transform(chunks []chunking.Chunk, opts TransformOptions) []Document {
	docs := make([]Document, 0, len(chunks))

	for _, c := range chunks {
		docs = append(docs, FromChunk(c, opts.language(c.FilePath), opts.importance(c.FilePath), opts.Summaries[c.ChunkID]))
	}

	return docs
}

// IndexReport aggregates what each adapter did and which adapters failed.
type IndexReport struct {
	DocsPerAdapter map[string]int
	Errors         []error
	Duration       time.Duration
}

// Service orchestrates the index adapters: full and incremental indexing
// plus weighted-fusion search. A failing adapter is recorded and never
// short-circuits the others.
type Service struct {
	Adapters []Adapter
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *observability.REDMetrics
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}

	return otel.Tracer(serviceTracerName)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}

// IndexRepoFull transforms chunks to documents once, then dispatches the
// full set to each adapter in turn.
func (s *Service) IndexRepoFull(ctx context.Context, repoID, snapshotID string, chunks []chunking.Chunk, opts TransformOptions) *IndexReport {
	ctx, span := s.tracer().Start(ctx, "indexing.full",
		trace.WithAttributes(attribute.String("codefang.repo", repoID), attribute.Int("codefang.chunks", len(chunks))))
	defer span.End()

	start := time.Now()
	docs := Transform(chunks, opts)

	report := &IndexReport{DocsPerAdapter: make(map[string]int, len(s.Adapters))}

	for _, adapter := range s.Adapters {
		if err := s.callAdapter(ctx, adapter, "index", func() error {
			return adapter.Index(ctx, repoID, snapshotID, docs)
		}); err != nil {
			report.Errors = append(report.Errors, err)

			continue
		}

		report.DocsPerAdapter[adapter.Name()] = len(docs)
	}

	report.Duration = time.Since(start)

	return report
}

// IndexRepoIncremental upserts added and updated chunks into each adapter,
// deletes removed chunk ids from each, then asks path-aware adapters to
// re-index only the changed files.
func (s *Service) IndexRepoIncremental(ctx context.Context, repoID, snapshotID string, refresh *chunking.RefreshResult, opts TransformOptions) *IndexReport {
	ctx, span := s.tracer().Start(ctx, "indexing.incremental",
		trace.WithAttributes(attribute.String("codefang.repo", repoID)))
	defer span.End()

	start := time.Now()
	docs := Transform(refresh.ChangedChunks(), opts)

	changedPaths := make(map[string]struct{})
	for _, doc := range docs {
		changedPaths[doc.FilePath] = struct{}{}
	}

	paths := make([]string, 0, len(changedPaths))
	for p := range changedPaths {
		paths = append(paths, p)
	}

	report := &IndexReport{DocsPerAdapter: make(map[string]int, len(s.Adapters))}

	for _, adapter := range s.Adapters {
		err := s.callAdapter(ctx, adapter, "upsert", func() error {
			return adapter.Upsert(ctx, repoID, snapshotID, docs)
		})
		if err != nil {
			report.Errors = append(report.Errors, err)

			continue
		}

		report.DocsPerAdapter[adapter.Name()] = len(docs)
	}

	for _, adapter := range s.Adapters {
		if err := s.callAdapter(ctx, adapter, "delete", func() error {
			return adapter.Delete(ctx, repoID, snapshotID, refresh.Deleted)
		}); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}

	for _, adapter := range s.Adapters {
		reindexer, ok := adapter.(PathReindexer)
		if !ok {
			continue
		}

		if err := s.callAdapter(ctx, adapter, "reindex_paths", func() error {
			return reindexer.ReindexPaths(ctx, repoID, snapshotID, paths)
		}); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}

	report.Duration = time.Since(start)

	return report
}

// Search queries every adapter and fuses the per-source hits. Searching a
// snapshot no adapter has indexed returns an empty list, not an error; a
// failing adapter is logged and skipped.
func (s *Service) Search(ctx context.Context, repoID, snapshotID, query string, limit int, weights Weights) ([]SearchHit, error) {
	ctx, span := s.tracer().Start(ctx, "indexing.search",
		trace.WithAttributes(attribute.String("codefang.repo", repoID), attribute.String("codefang.query", query)))
	defer span.End()

	var all []SearchHit

	for _, adapter := range s.Adapters {
		hits, err := adapter.Search(ctx, repoID, snapshotID, query, clampLimit(0))
		if err != nil {
			s.logger().WarnContext(ctx, "adapter search failed",
				slog.String("adapter", adapter.Name()), slog.Any("error", err))

			continue
		}

		all = append(all, hits...)
	}

	fused := FuseHits(all, weights)

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}

	return fused, nil
}

// callAdapter wraps one adapter call with duration metrics and converts its
// failure into a typed adapter error.
func (s *Service) callAdapter(ctx context.Context, adapter Adapter, op string, fn func() error) error {
	start := time.Now()
	err := fn()

	if s.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}

		s.Metrics.RecordRequest(ctx, "adapter."+adapter.Name()+"."+op, status, time.Since(start))
	}

	if err == nil {
		return nil
	}

	s.logger().WarnContext(ctx, "adapter call failed",
		slog.String("adapter", adapter.Name()), slog.String("op", op), slog.Any("error", err))

	return &errs.AdapterError{Adapter: adapter.Name(), Op: op, Err: err}
}
