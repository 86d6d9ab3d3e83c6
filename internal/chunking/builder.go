package chunking

import (
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// DefaultBatchSize is the number of chunks flushed to the store per batch
// when no batch size is configured.
const DefaultBatchSize = 200

// Builder turns one file's IR nodes plus its source text into chunks.
type Builder struct {
	// PartialHashes enables per-statement-range sub-hashes on each chunk.
	PartialHashes bool
}

// BuildFile produces the chunks for one file: one chunk per function,
// method, and class node, plus one file-level chunk covering the whole
// source. Nodes from other files are ignored.
func (b *Builder) BuildFile(repoID, snapshotID, filePath string, nodes []ir.Node, source string) []Chunk {
	lines := strings.Split(source, "\n")

	var chunks []Chunk

	for _, n := range nodes {
		if n.FilePath != filePath {
			continue
		}

		var kind ChunkKind

		switch n.Kind {
		case ir.KindFunction, ir.KindMethod:
			kind = ChunkFunction
		case ir.KindClass:
			kind = ChunkClass
		case ir.KindFile, ir.KindModule, ir.KindVariable:
			continue
		default:
			continue
		}

		content := sliceLines(lines, n.Span.StartLine, n.Span.EndLine)

		c := Chunk{
			ChunkID:     ChunkIDFor(filePath, n.FQN),
			RepoID:      repoID,
			SnapshotID:  snapshotID,
			FilePath:    filePath,
			SymbolID:    n.ID,
			Kind:        kind,
			Content:     content,
			ContentHash: HashContent(content),
			Span:        n.Span,
		}

		if b.PartialHashes {
			c.SubHashes = subHashes(lines, n.Span.StartLine, n.Span.EndLine)
		}

		chunks = append(chunks, c)
	}

	fileChunk := Chunk{
		ChunkID:     FileChunkID(filePath),
		RepoID:      repoID,
		SnapshotID:  snapshotID,
		FilePath:    filePath,
		SymbolID:    filePath,
		Kind:        ChunkFile,
		Content:     source,
		ContentHash: HashContent(source),
		Span:        ir.Span{StartLine: 1, EndLine: len(lines)},
	}
	chunks = append(chunks, fileChunk)

	return chunks
}

// Dedupe collapses duplicate chunk ids keeping the last occurrence. Later
// batches supersede earlier ones; first-wins would silently discard the
// superseding content.
func Dedupe(chunks []Chunk) []Chunk {
	lastIdx := make(map[string]int, len(chunks))
	for i, c := range chunks {
		lastIdx[c.ChunkID] = i
	}

	out := make([]Chunk, 0, len(lastIdx))

	for i, c := range chunks {
		if lastIdx[c.ChunkID] == i {
			out = append(out, c)
		}
	}

	return out
}

// Batches splits chunks into windows of at most batchSize, preserving
// order. Streaming through batches keeps peak memory proportional to the
// batch, not the repository.
func Batches(chunks []Chunk, batchSize int) [][]Chunk {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var out [][]Chunk

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		out = append(out, chunks[start:end])
	}

	return out
}

// subHashes hashes each blank-line-delimited statement range inside the
// span, the granularity at which partial updates re-emit content.
func subHashes(lines []string, startLine, endLine int) []SubChunkHash {
	var (
		out        []SubChunkHash
		rangeStart = startLine
		buf        []string
	)

	flush := func(end int) {
		if len(buf) == 0 {
			return
		}

		content := strings.Join(buf, "\n")
		out = append(out, SubChunkHash{StartLine: rangeStart, EndLine: end, Hash: HashContent(content)})
		buf = nil
	}

	for lineNo := startLine; lineNo <= endLine && lineNo <= len(lines); lineNo++ {
		text := lines[lineNo-1]

		if strings.TrimSpace(text) == "" {
			flush(lineNo - 1)
			rangeStart = lineNo + 1

			continue
		}

		buf = append(buf, text)
	}

	flush(endLine)

	return out
}

func sliceLines(lines []string, startLine, endLine int) string {
	if startLine < 1 {
		startLine = 1
	}

	if endLine > len(lines) {
		endLine = len(lines)
	}

	if startLine > endLine {
		return ""
	}

	return strings.Join(lines[startLine-1:endLine], "\n")
}

// SortByID orders chunks deterministically for comparisons and persistence.
func SortByID(chunks []Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkID < chunks[j].ChunkID })
}
