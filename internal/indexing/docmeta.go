package indexing

import (
	"context"
	"strings"
	"sync"
)

// DocMetaAdapter indexes documentation files only: READMEs, changelogs,
// anything under docs/, and files with documentation extensions. Search is
// keyword overlap over content and summary, so prose queries land on prose.
type DocMetaAdapter struct {
	mu    sync.RWMutex
	snaps map[string]map[string]Document
}

// NewDocMetaAdapter creates an empty documentation index.
func NewDocMetaAdapter() *DocMetaAdapter {
	return &DocMetaAdapter{snaps: make(map[string]map[string]Document)}
}

// Name implements Adapter.
func (a *DocMetaAdapter) Name() string { return string(SourceDomain) }

// Index implements Adapter.
func (a *DocMetaAdapter) Index(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	a.snaps[snapKey(repoID, snapshotID)] = make(map[string]Document)
	a.mu.Unlock()

	return a.Upsert(ctx, repoID, snapshotID, docs)
}

// Upsert implements Adapter: only documentation-classified paths are kept.
func (a *DocMetaAdapter) Upsert(_ context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		byID = make(map[string]Document)
		a.snaps[snapKey(repoID, snapshotID)] = byID
	}

	for _, doc := range docs {
		if IsDocumentationPath(doc.FilePath) {
			byID[doc.ChunkID] = doc
		}
	}

	return nil
}

// Delete implements Adapter.
func (a *DocMetaAdapter) Delete(_ context.Context, repoID, snapshotID string, chunkIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID := a.snaps[snapKey(repoID, snapshotID)]

	for _, id := range chunkIDs {
		delete(byID, id)
	}

	return nil
}

// Search implements Adapter: fraction of query keywords present in the
// document's content or summary.
func (a *DocMetaAdapter) Search(_ context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var hits []SearchHit

	for _, doc := range a.snaps[snapKey(repoID, snapshotID)] {
		haystack := strings.ToLower(doc.Content + " " + doc.Summary)
		matched := 0

		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}

		if matched == 0 {
			continue
		}

		hits = append(hits, SearchHit{
			ChunkID:  doc.ChunkID,
			FilePath: doc.FilePath,
			SymbolID: doc.SymbolID,
			Score:    float64(matched) / float64(len(keywords)),
			Source:   SourceDomain,
		})
	}

	sortHits(hits)

	limit = clampLimit(limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}
