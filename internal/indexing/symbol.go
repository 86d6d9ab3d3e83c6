package indexing

import (
	"context"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/internal/graphstore"
)

// SymbolAdapter answers search queries from the embedded graph store's
// symbol table, mapping matched symbols back to the chunk ids that carry
// their content.
type SymbolAdapter struct {
	Graph *graphstore.Store

	mu           sync.RWMutex
	chunkForSym  map[string]map[string]Document // snapshot key -> symbol id -> doc
	chunkForFile map[string]map[string]Document
}

// NewSymbolAdapter creates a symbol adapter over the given graph store.
func NewSymbolAdapter(graph *graphstore.Store) *SymbolAdapter {
	return &SymbolAdapter{
		Graph:        graph,
		chunkForSym:  make(map[string]map[string]Document),
		chunkForFile: make(map[string]map[string]Document),
	}
}

// Name implements Adapter.
func (a *SymbolAdapter) Name() string { return string(SourceSymbol) }

// Index implements Adapter.
func (a *SymbolAdapter) Index(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	a.chunkForSym[snapKey(repoID, snapshotID)] = make(map[string]Document, len(docs))
	a.chunkForFile[snapKey(repoID, snapshotID)] = make(map[string]Document)
	a.mu.Unlock()

	return a.Upsert(ctx, repoID, snapshotID, docs)
}

// Upsert implements Adapter.
func (a *SymbolAdapter) Upsert(_ context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := snapKey(repoID, snapshotID)

	bySym, ok := a.chunkForSym[key]
	if !ok {
		bySym = make(map[string]Document, len(docs))
		a.chunkForSym[key] = bySym
		a.chunkForFile[key] = make(map[string]Document)
	}

	for _, doc := range docs {
		if strings.HasSuffix(doc.ChunkID, ":file") {
			a.chunkForFile[key][doc.FilePath] = doc

			continue
		}

		bySym[doc.SymbolID] = doc
	}

	return nil
}

// Delete implements Adapter.
func (a *SymbolAdapter) Delete(_ context.Context, repoID, snapshotID string, chunkIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := snapKey(repoID, snapshotID)
	drop := make(map[string]struct{}, len(chunkIDs))

	for _, id := range chunkIDs {
		drop[id] = struct{}{}
	}

	for sym, doc := range a.chunkForSym[key] {
		if _, gone := drop[doc.ChunkID]; gone {
			delete(a.chunkForSym[key], sym)
		}
	}

	for file, doc := range a.chunkForFile[key] {
		if _, gone := drop[doc.ChunkID]; gone {
			delete(a.chunkForFile[key], file)
		}
	}

	return nil
}

// Search implements Adapter: case-insensitive substring match over symbol
// names, scored by how much of the name the query covers.
func (a *SymbolAdapter) Search(_ context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error) {
	symbols := a.Graph.SymbolsByName(repoID, snapshotID, query, clampLimit(limit))

	a.mu.RLock()
	defer a.mu.RUnlock()

	key := snapKey(repoID, snapshotID)

	var hits []SearchHit

	for _, sym := range symbols {
		score := 0.0
		if len(sym.Name) > 0 {
			score = float64(len(query)) / float64(len(sym.Name))
		}

		if score > 1 {
			score = 1
		}

		hit := SearchHit{
			SymbolID: sym.ID,
			FilePath: sym.FilePath,
			Score:    score,
			Source:   SourceSymbol,
			Metadata: map[string]any{"fqn": sym.FQN, "kind": string(sym.Kind)},
		}

		switch {
		case a.chunkForSym[key][sym.ID].ChunkID != "":
			hit.ChunkID = a.chunkForSym[key][sym.ID].ChunkID
		case a.chunkForFile[key][sym.FilePath].ChunkID != "":
			hit.ChunkID = a.chunkForFile[key][sym.FilePath].ChunkID
		default:
			continue
		}

		hits = append(hits, hit)
	}

	sortHits(hits)

	return hits, nil
}
