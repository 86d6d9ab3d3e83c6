package indexing

import (
	"context"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
)

// Score multipliers for the hit-mapping fallback tiers.
const (
	fileChunkFactor    = 0.8
	virtualChunkFactor = 0.5
)

// LexicalAdapter is the full-text index port with an in-process trigram
// reference implementation. Search scores file lines, then maps each line
// hit back to a chunk id: the enclosing function or class chunk first, the
// file-level chunk next at a reduced score, and a synthetic virtual id as
// the last resort with its metadata flagged unmapped.
type LexicalAdapter struct {
	mu    sync.RWMutex
	snaps map[string]*lexicalSnapshot
}

type lexicalSnapshot struct {
	// trigram -> file -> line numbers (1-indexed)
	postings map[string]map[string][]int
	// file -> symbol chunks ordered as indexed
	symbolChunks map[string][]Document
	fileChunks   map[string]Document
	lineTexts    map[string][]string
}

// NewLexicalAdapter creates an empty lexical index.
func NewLexicalAdapter() *LexicalAdapter {
	return &LexicalAdapter{snaps: make(map[string]*lexicalSnapshot)}
}

// Name implements Adapter.
func (a *LexicalAdapter) Name() string { return string(SourceLexical) }

func snapKey(repoID, snapshotID string) string {
	return repoID + "\x00" + snapshotID
}

func newLexicalSnapshot() *lexicalSnapshot {
	return &lexicalSnapshot{
		postings:     make(map[string]map[string][]int),
		symbolChunks: make(map[string][]Document),
		fileChunks:   make(map[string]Document),
		lineTexts:    make(map[string][]string),
	}
}

// Index implements Adapter: full rebuild of the snapshot.
func (a *LexicalAdapter) Index(ctx context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	a.snaps[snapKey(repoID, snapshotID)] = newLexicalSnapshot()
	a.mu.Unlock()

	return a.Upsert(ctx, repoID, snapshotID, docs)
}

// Upsert implements Adapter: index an incremental document batch.
func (a *LexicalAdapter) Upsert(_ context.Context, repoID, snapshotID string, docs []Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		snap = newLexicalSnapshot()
		a.snaps[snapKey(repoID, snapshotID)] = snap
	}

	for _, doc := range docs {
		if strings.HasSuffix(doc.ChunkID, ":file") {
			snap.fileChunks[doc.FilePath] = doc
			snap.indexFileContent(doc.FilePath, doc.Content)

			continue
		}

		snap.symbolChunks[doc.FilePath] = upsertDoc(snap.symbolChunks[doc.FilePath], doc)
	}

	return nil
}

func (s *lexicalSnapshot) indexFileContent(filePath, content string) {
	for tri, byFile := range s.postings {
		if _, had := byFile[filePath]; had {
			delete(byFile, filePath)

			if len(byFile) == 0 {
				delete(s.postings, tri)
			}
		}
	}

	lines := strings.Split(content, "\n")
	s.lineTexts[filePath] = lines

	for lineNo, text := range lines {
		for _, tri := range trigrams(strings.ToLower(text)) {
			byFile, ok := s.postings[tri]
			if !ok {
				byFile = make(map[string][]int)
				s.postings[tri] = byFile
			}

			byFile[filePath] = append(byFile[filePath], lineNo+1)
		}
	}
}

// Delete implements Adapter.
func (a *LexicalAdapter) Delete(_ context.Context, repoID, snapshotID string, chunkIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		return nil
	}

	drop := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		drop[id] = struct{}{}
	}

	for file, docs := range snap.symbolChunks {
		kept := docs[:0]

		for _, d := range docs {
			if _, gone := drop[d.ChunkID]; !gone {
				kept = append(kept, d)
			}
		}

		snap.symbolChunks[file] = kept
	}

	for file, doc := range snap.fileChunks {
		if _, gone := drop[doc.ChunkID]; gone {
			delete(snap.fileChunks, file)
			snap.indexFileContent(file, "")
		}
	}

	return nil
}

// ReindexPaths implements PathReindexer: rebuild the postings of only the
// given files from their current file chunks.
func (a *LexicalAdapter) ReindexPaths(_ context.Context, repoID, snapshotID string, paths []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		return nil
	}

	for _, p := range paths {
		if doc, has := snap.fileChunks[p]; has {
			snap.indexFileContent(p, doc.Content)
		}
	}

	return nil
}

// Search implements Adapter.
func (a *LexicalAdapter) Search(_ context.Context, repoID, snapshotID, query string, limit int) ([]SearchHit, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap, ok := a.snaps[snapKey(repoID, snapshotID)]
	if !ok {
		return nil, nil
	}

	queryTris := trigrams(strings.ToLower(query))
	if len(queryTris) == 0 {
		return nil, nil
	}

	type lineKey struct {
		file string
		line int
	}

	matches := make(map[lineKey]int)

	for _, tri := range queryTris {
		for file, lines := range snap.postings[tri] {
			for _, line := range lines {
				matches[lineKey{file: file, line: line}]++
			}
		}
	}

	hits := make([]SearchHit, 0, len(matches))

	for key, count := range matches {
		score := float64(count) / float64(len(queryTris))
		if score > 1 {
			score = 1
		}

		hits = append(hits, snap.mapLineHit(key.file, key.line, score))
	}

	sortHits(hits)

	limit = clampLimit(limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// mapLineHit resolves a (file, line) match to a chunk hit via the tiered
// fallback.
func (s *lexicalSnapshot) mapLineHit(file string, line int, score float64) SearchHit {
	for _, doc := range s.symbolChunks[file] {
		if line >= doc.Span.StartLine && line <= doc.Span.EndLine {
			return SearchHit{
				ChunkID:  doc.ChunkID,
				FilePath: file,
				SymbolID: doc.SymbolID,
				Score:    score,
				Source:   SourceLexical,
				Metadata: map[string]any{"line": line},
			}
		}
	}

	if doc, ok := s.fileChunks[file]; ok {
		return SearchHit{
			ChunkID:  doc.ChunkID,
			FilePath: file,
			SymbolID: doc.SymbolID,
			Score:    score * fileChunkFactor,
			Source:   SourceLexical,
			Metadata: map[string]any{"line": line},
		}
	}

	return SearchHit{
		ChunkID:  chunking.VirtualChunkID(file, line),
		FilePath: file,
		Score:    score * virtualChunkFactor,
		Source:   SourceLexical,
		Metadata: map[string]any{"line": line, "mapped": false},
	}
}

func upsertDoc(docs []Document, doc Document) []Document {
	for i, d := range docs {
		if d.ChunkID == doc.ChunkID {
			docs[i] = doc

			return docs
		}
	}

	return append(docs, doc)
}

// trigrams returns the distinct 3-grams of s.
func trigrams(s string) []string {
	if len(s) < 3 {
		if s == "" {
			return nil
		}

		return []string{s}
	}

	seen := make(map[string]struct{}, len(s))

	var out []string

	for i := 0; i+3 <= len(s); i++ {
		tri := s[i : i+3]
		if strings.TrimSpace(tri) != tri || tri == "   " {
			continue
		}

		if _, dup := seen[tri]; dup {
			continue
		}

		seen[tri] = struct{}{}
		out = append(out, tri)
	}

	return out
}
