package indexing

import (
	"context"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/pkg/levenshtein"
)

// FuzzyAdapter matches queries against symbol names and identifiers with a
// Levenshtein distance bound, catching typos and partial recollections that
// exact indexes miss.
type FuzzyAdapter struct {
	mu    sync.RWMutex
	snaps map[string]map[string]Document
}

// maxEditRatio is the largest edit-distance-to-length ratio still counted
// as a match.
const maxEditRatio = 0.5

// NewFuzzyAdapter creates an empty fuzzy index.
func NewFuzzyAdapter() *FuzzyAdapter {
	return &FuzzyAdapter{snaps: make(map[string]map[string]Document)}
}

// Name implements Adapter.
func (a *FuzzyAdapter) Name() string { return string(SourceFuzzy) }

// Index implements Adapter.
func (a *FuzzyAdapter) Index(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	a.snaps[snapKey(repoID, snapshotID)] = make(map[string]Document, len(docs))
	a.mu.Unlock()

	return a.Upsert(ctx, repoID, snapshotID, docs)
}

// Upsert implements Adapter.
func (a *FuzzyAdapter) Upsert(_ context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		byID = make(map[string]Document, len(docs))
		a.snaps[snapKey(repoID, snapshotID)] = byID
	}

	for _, doc := range docs {
		byID[doc.ChunkID] = doc
	}

	return nil
}

// Delete implements Adapter.
func (a *FuzzyAdapter) Delete(_ context.Context, repoID, snapshotID string, chunkIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID := a.snaps[snapKey(repoID, snapshotID)]

	for _, id := range chunkIDs {
		delete(byID, id)
	}

	return nil
}

// Search implements Adapter: score each document by the best fuzzy match
// between the query and the document's symbol name or identifiers.
func (a *FuzzyAdapter) Search(_ context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byID := a.snaps[snapKey(repoID, snapshotID)]
	queryLower := strings.ToLower(query)

	var (
		lev  levenshtein.Context
		hits []SearchHit
	)

	for _, doc := range byID {
		score := fuzzyScore(&lev, queryLower, strings.ToLower(doc.SymbolName))

		for _, ident := range doc.Identifiers {
			if s := fuzzyScore(&lev, queryLower, strings.ToLower(ident)); s > score {
				score = s
			}
		}

		if score <= 0 {
			continue
		}

		hits = append(hits, SearchHit{
			ChunkID:  doc.ChunkID,
			FilePath: doc.FilePath,
			SymbolID: doc.SymbolID,
			Score:    score,
			Source:   SourceFuzzy,
		})
	}

	sortHits(hits)

	limit = clampLimit(limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// FuzzyScoreText is the package-level scoring primitive shared with the
// episodic store's hybrid search: 1 for an exact match, decaying with edit
// distance, 0 beyond the edit-ratio bound.
func FuzzyScoreText(lev *levenshtein.Context, query, candidate string) float64 {
	return fuzzyScore(lev, strings.ToLower(query), strings.ToLower(candidate))
}

func fuzzyScore(lev *levenshtein.Context, query, candidate string) float64 {
	if query == "" || candidate == "" {
		return 0
	}

	if strings.Contains(candidate, query) {
		return float64(len(query)) / float64(len(candidate))
	}

	dist := lev.Distance(query, candidate)

	longer := len(query)
	if len(candidate) > longer {
		longer = len(candidate)
	}

	ratio := float64(dist) / float64(longer)
	if ratio > maxEditRatio {
		return 0
	}

	return 1 - ratio
}
