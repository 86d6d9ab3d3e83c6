package indexing

import (
	"context"
	"sort"
)

// Source names the index that produced a search hit.
type Source string

// Hit sources.
const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
	SourceSymbol  Source = "symbol"
	SourceFuzzy   Source = "fuzzy"
	SourceDomain  Source = "domain"
)

// SearchHit is one per-source query result. Score is normalised to [0, 1]
// within its source.
type SearchHit struct {
	ChunkID  string
	FilePath string
	SymbolID string
	Score    float64
	Source   Source
	Metadata map[string]any
}

// Adapter is the contract every index adapter implements. Index rebuilds
// the snapshot from scratch, Upsert applies an incremental batch, Delete
// removes chunks by id, and Search returns scored hits.
type Adapter interface {
	Name() string
	Index(ctx context.Context, repoID, snapshotID string, docs []Document) error
	Upsert(ctx context.Context, repoID, snapshotID string, docs []Document) error
	Delete(ctx context.Context, repoID, snapshotID string, chunkIDs []string) error
	Search(ctx context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error)
}

// PathReindexer is the optional extension the lexical adapter implements:
// re-index only the given file paths after an incremental refresh.
type PathReindexer interface {
	ReindexPaths(ctx context.Context, repoID, snapshotID string, paths []string) error
}

// sortHits orders hits by descending score, breaking ties by chunk id so
// results are deterministic.
func sortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}

		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// clampLimit applies the default and maximum per-source hit counts.
func clampLimit(limit int) int {
	const maxPerSource = 100

	if limit <= 0 || limit > maxPerSource {
		return maxPerSource
	}

	return limit
}
