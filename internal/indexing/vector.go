package indexing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Embedder is the embedding-model port: turn text into a fixed-dimension
// vector. The production model lives behind an external service; the
// default implementation below is deterministic so ranking is reproducible
// without it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// hashEmbedderDim is the dimension of the fallback embedder.
const hashEmbedderDim = 128

// HashEmbedder is the deterministic fallback embedder: token-hash bag
// vectors, L2-normalised. Similar texts share tokens and therefore
// directions; it stands in for the real model in tests and offline runs.
type HashEmbedder struct{}

// Dimension implements Embedder.
func (HashEmbedder) Dimension() int { return hashEmbedderDim }

// Embed implements Embedder.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedderDim)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(strings.Trim(tok, ".,:;()[]{}\"'")))
		idx := binary.BigEndian.Uint32(sum[:4]) % hashEmbedderDim
		vec[idx]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

// VectorAdapter is the vector-store port with a flat cosine-scan reference
// implementation. Batches of documents are embedded vector_batch_size at a
// time.
type VectorAdapter struct {
	Embedder  Embedder
	BatchSize int

	mu    sync.RWMutex
	snaps map[string]map[string]vectorEntry
}

type vectorEntry struct {
	doc Document
	vec []float32
}

// defaultVectorBatch bounds how many documents are embedded per call.
const defaultVectorBatch = 64

// NewVectorAdapter creates a vector index over the given embedder
// (HashEmbedder when nil).
func NewVectorAdapter(embedder Embedder, batchSize int) *VectorAdapter {
	if embedder == nil {
		embedder = HashEmbedder{}
	}

	if batchSize <= 0 {
		batchSize = defaultVectorBatch
	}

	return &VectorAdapter{
		Embedder:  embedder,
		BatchSize: batchSize,
		snaps:     make(map[string]map[string]vectorEntry),
	}
}

// Name implements Adapter.
func (a *VectorAdapter) Name() string { return string(SourceVector) }

// Index implements Adapter.
func (a *VectorAdapter) Index(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	a.snaps[snapKey(repoID, snapshotID)] = make(map[string]vectorEntry, len(docs))
	a.mu.Unlock()

	return a.Upsert(ctx, repoID, snapshotID, docs)
}

// Upsert implements Adapter.
func (a *VectorAdapter) Upsert(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	for start := 0; start < len(docs); start += a.BatchSize {
		end := start + a.BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		if err := a.upsertBatch(ctx, repoID, snapshotID, docs[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (a *VectorAdapter) upsertBatch(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	entries := make([]vectorEntry, 0, len(docs))

	for _, doc := range docs {
		text := doc.SymbolName + " " + doc.Summary + " " + doc.Content

		vec, err := a.Embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("indexing: embed %s: %w", doc.ChunkID, err)
		}

		entries = append(entries, vectorEntry{doc: doc, vec: vec})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byID, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		byID = make(map[string]vectorEntry, len(entries))
		a.snaps[snapKey(repoID, snapshotID)] = byID
	}

	for _, e := range entries {
		byID[e.doc.ChunkID] = e
	}

	return nil
}

// Delete implements Adapter.
func (a *VectorAdapter) Delete(_ context.Context, repoID, snapshotID string, chunkIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID := a.snaps[snapKey(repoID, snapshotID)]

	for _, id := range chunkIDs {
		delete(byID, id)
	}

	return nil
}

// Search implements Adapter: embed the query and cosine-scan the snapshot.
func (a *VectorAdapter) Search(ctx context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error) {
	queryVec, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("indexing: embed query: %w", err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	byID := a.snaps[snapKey(repoID, snapshotID)]

	hits := make([]SearchHit, 0, len(byID))

	for _, e := range byID {
		score := cosine(queryVec, e.vec)
		if score <= 0 {
			continue
		}

		hits = append(hits, SearchHit{
			ChunkID:  e.doc.ChunkID,
			FilePath: e.doc.FilePath,
			SymbolID: e.doc.SymbolID,
			Score:    score,
			Source:   SourceVector,
		})
	}

	sortHits(hits)

	limit = clampLimit(limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
