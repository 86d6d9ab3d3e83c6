package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal       = "codefang.index.files.total"
	metricChunksTotal      = "codefang.index.chunks.total"
	metricChunkDuration    = "codefang.index.chunk.duration.seconds"
	metricCacheHitsTotal   = "codefang.index.cache.hits.total"
	metricCacheMissesTotal = "codefang.index.cache.misses.total"

	attrCache = "cache"
)

// IndexingMetrics holds OTel instruments for indexing-run metrics.
type IndexingMetrics struct {
	filesTotal    metric.Int64Counter
	chunksTotal   metric.Int64Counter
	chunkDuration metric.Float64Histogram
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
}

// IndexingStats holds the statistics for a single indexing run, decoupled
// from pipeline types.
type IndexingStats struct {
	Files               int64
	Chunks              int
	ChunkDurations      []time.Duration
	ASTCacheHits        int64
	ASTCacheMisses      int64
	SnapshotCacheHits   int64
	SnapshotCacheMisses int64
}

// NewIndexingMetrics creates indexing metric instruments from the given meter.
func NewIndexingMetrics(mt metric.Meter) (*IndexingMetrics, error) {
	files, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Total files indexed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	chunks, err := mt.Int64Counter(metricChunksTotal,
		metric.WithDescription("Total chunks produced"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksTotal, err)
	}

	chunkDur, err := mt.Float64Histogram(metricChunkDuration,
		metric.WithDescription("Per-chunk processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunkDuration, err)
	}

	hits, err := mt.Int64Counter(metricCacheHitsTotal,
		metric.WithDescription("Cache hits by type"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricCacheMissesTotal,
		metric.WithDescription("Cache misses by type"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	return &IndexingMetrics{
		filesTotal:    files,
		chunksTotal:   chunks,
		chunkDuration: chunkDur,
		cacheHits:     hits,
		cacheMisses:   misses,
	}, nil
}

// RecordRun records statistics for a completed indexing run. Safe to call
// on a nil receiver (no-op).
func (im *IndexingMetrics) RecordRun(ctx context.Context, stats IndexingStats) {
	if im == nil {
		return
	}

	im.filesTotal.Add(ctx, stats.Files)
	im.chunksTotal.Add(ctx, int64(stats.Chunks))

	for _, d := range stats.ChunkDurations {
		im.chunkDuration.Record(ctx, d.Seconds())
	}

	astAttrs := metric.WithAttributes(attribute.String(attrCache, "ast"))
	im.cacheHits.Add(ctx, stats.ASTCacheHits, astAttrs)
	im.cacheMisses.Add(ctx, stats.ASTCacheMisses, astAttrs)

	snapAttrs := metric.WithAttributes(attribute.String(attrCache, "snapshot"))
	im.cacheHits.Add(ctx, stats.SnapshotCacheHits, snapAttrs)
	im.cacheMisses.Add(ctx, stats.SnapshotCacheMisses, snapAttrs)
}

// CacheStatsProvider exposes hit/miss counters for one cache.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// RegisterCacheMetrics registers observable gauges reporting the current
// hit/miss counters of the AST cache and the snapshot cache.
func RegisterCacheMetrics(mt metric.Meter, ast, snapshot CacheStatsProvider) error {
	hitsGauge, err := mt.Int64ObservableGauge("codefang.index.cache.hits",
		metric.WithDescription("Current cache hit counter by type"),
	)
	if err != nil {
		return fmt.Errorf("create cache hits gauge: %w", err)
	}

	missesGauge, err := mt.Int64ObservableGauge("codefang.index.cache.misses",
		metric.WithDescription("Current cache miss counter by type"),
	)
	if err != nil {
		return fmt.Errorf("create cache misses gauge: %w", err)
	}

	_, err = mt.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		if ast != nil {
			astAttrs := metric.WithAttributes(attribute.String(attrCache, "ast"))
			obs.ObserveInt64(hitsGauge, ast.CacheHits(), astAttrs)
			obs.ObserveInt64(missesGauge, ast.CacheMisses(), astAttrs)
		}

		if snapshot != nil {
			snapAttrs := metric.WithAttributes(attribute.String(attrCache, "snapshot"))
			obs.ObserveInt64(hitsGauge, snapshot.CacheHits(), snapAttrs)
			obs.ObserveInt64(missesGauge, snapshot.CacheMisses(), snapAttrs)
		}

		return nil
	}, hitsGauge, missesGauge)
	if err != nil {
		return fmt.Errorf("register cache metrics callback: %w", err)
	}

	return nil
}
