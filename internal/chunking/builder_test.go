package chunking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

const sampleSource = `def top(x):
    return x + 1

class Widget:
    def render(self):
        return "<div>"
`

func sampleNodes() []ir.Node {
	return []ir.Node{
		{ID: "f:file:0", Kind: ir.KindFile, FQN: "sample.py", FilePath: "sample.py", Span: ir.Span{StartLine: 1, EndLine: 6}},
		{ID: "f:function:0", Kind: ir.KindFunction, FQN: "sample.top", Name: "top", FilePath: "sample.py", Span: ir.Span{StartLine: 1, EndLine: 2}},
		{ID: "f:class:30", Kind: ir.KindClass, FQN: "sample.Widget", Name: "Widget", FilePath: "sample.py", Span: ir.Span{StartLine: 4, EndLine: 6}},
		{ID: "f:method:50", Kind: ir.KindMethod, FQN: "sample.Widget.render", Name: "render", FilePath: "sample.py", Span: ir.Span{StartLine: 5, EndLine: 6}},
	}
}

func TestBuildFile_ProducesSymbolAndFileChunks(t *testing.T) {
	t.Parallel()

	b := &chunking.Builder{}

	chunks := b.BuildFile("r", "s", "sample.py", sampleNodes(), sampleSource)
	require.Len(t, chunks, 4, "function, class, method, file")

	byID := make(map[string]chunking.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	top := byID[chunking.ChunkIDFor("sample.py", "sample.top")]
	assert.Equal(t, chunking.ChunkFunction, top.Kind)
	assert.Equal(t, "def top(x):\n    return x + 1", top.Content)
	assert.Equal(t, chunking.HashContent(top.Content), top.ContentHash)

	file := byID[chunking.FileChunkID("sample.py")]
	assert.Equal(t, chunking.ChunkFile, file.Kind)
	assert.Equal(t, sampleSource, file.Content)
}

func TestBuildFile_PartialHashes(t *testing.T) {
	t.Parallel()

	b := &chunking.Builder{PartialHashes: true}

	chunks := b.BuildFile("r", "s", "sample.py", sampleNodes()[:2], sampleSource)

	var fn chunking.Chunk

	for _, c := range chunks {
		if c.Kind == chunking.ChunkFunction {
			fn = c
		}
	}

	require.NotEmpty(t, fn.SubHashes)
	assert.Equal(t, 1, fn.SubHashes[0].StartLine)
}

func TestDedupe_LastWins(t *testing.T) {
	t.Parallel()

	first := chunking.Chunk{ChunkID: "dup", Content: "old"}
	second := chunking.Chunk{ChunkID: "dup", Content: "new"}
	other := chunking.Chunk{ChunkID: "other"}

	out := chunking.Dedupe([]chunking.Chunk{first, other, second})
	require.Len(t, out, 2)

	for _, c := range out {
		if c.ChunkID == "dup" {
			assert.Equal(t, "new", c.Content, "later batches supersede earlier ones")
		}
	}
}

func TestBatches(t *testing.T) {
	t.Parallel()

	chunks := make([]chunking.Chunk, 5)
	for i := range chunks {
		chunks[i].ChunkID = string(rune('a' + i))
	}

	batches := chunking.Batches(chunks, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)
}

func TestStore_SaveGetDelete(t *testing.T) {
	t.Parallel()

	store := chunking.NewStore()
	b := &chunking.Builder{}

	chunks := b.BuildFile("r", "s", "sample.py", sampleNodes(), sampleSource)
	store.Save("r", "s", chunks)

	got, ok := store.Get("r", "s", chunks[0].ChunkID)
	require.True(t, ok)
	assert.Equal(t, chunks[0].Content, got.Content)

	batch := store.GetBatch("r", "s", []string{chunks[0].ChunkID, "missing", chunks[1].ChunkID})
	assert.Len(t, batch, 2)

	byFile := store.ByFile("r", "s", "sample.py")
	assert.Len(t, byFile, len(chunks))

	removed := store.Delete("r", "s", []string{chunks[0].ChunkID})
	assert.Equal(t, 1, removed)

	_, ok = store.Get("r", "s", chunks[0].ChunkID)
	assert.False(t, ok)
}
