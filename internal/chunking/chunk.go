// Package chunking turns IR nodes into indexable content chunks, stores
// them by id, and recomputes only the chunks touched by a change set when
// refreshing incrementally.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// ChunkKind categorizes what a chunk covers.
type ChunkKind string

// Chunk kinds.
const (
	ChunkFunction ChunkKind = "function"
	ChunkClass    ChunkKind = "class"
	ChunkFile     ChunkKind = "file"
	ChunkDoc      ChunkKind = "doc"
)

// SubChunkHash records the content hash of one blank-line-delimited line
// range inside a chunk, enabling partial updates that touch only the changed
// sub-ranges.
type SubChunkHash struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Hash      string `json:"hash"`
}

// Chunk is one unit of indexed content. ChunkID is stable across snapshots
// as long as the identifying symbol survives; ContentHash identifies the
// content itself.
type Chunk struct {
	ChunkID     string
	RepoID      string
	SnapshotID  string
	FilePath    string
	SymbolID    string
	Kind        ChunkKind
	Content     string
	ContentHash string
	Span        ir.Span

	// SubHashes holds per-line-range hashes for partial updates;
	// empty when partial updates are disabled.
	SubHashes []SubChunkHash

	// Metadata carries optional enrichments such as last-modified commit
	// and author from git history.
	Metadata map[string]string
}

// HashContent returns the canonical content hash used for chunk identity
// comparisons.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

// ChunkIDFor derives the stable chunk id for a symbol chunk. The id is a
// function of file path and symbol FQN only, so an unchanged symbol keeps
// its id across snapshots.
func ChunkIDFor(filePath, fqn string) string {
	return "chunk:" + filePath + ":" + fqn
}

// FileChunkID derives the id of a file-level chunk.
func FileChunkID(filePath string) string {
	return "chunk:" + filePath + ":file"
}

// VirtualChunkID derives the id of a synthetic chunk that has no backing
// symbol, used by the lexical adapter's last-resort hit mapping.
func VirtualChunkID(filePath string, line int) string {
	return "virtual:" + filePath + ":" + strconv.Itoa(line)
}

// IsVirtualChunkID reports whether id names a synthetic chunk.
func IsVirtualChunkID(id string) bool {
	return strings.HasPrefix(id, "virtual:")
}
