package indexing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/internal/graphstore"
	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

const (
	testRepo = "repo-1"
	testSnap = "snap-1"
)

func testChunks() []chunking.Chunk {
	retrieverContent := "class HybridRetriever:\n    def retrieve(self, query):\n        return fuse(query)"
	fileContent := retrieverContent + "\n\nHELPER = 1"

	return []chunking.Chunk{
		{
			ChunkID:     chunking.ChunkIDFor("src/retriever.py", "retriever.HybridRetriever"),
			RepoID:      testRepo,
			SnapshotID:  testSnap,
			FilePath:    "src/retriever.py",
			SymbolID:    "src/retriever.py:class:0",
			Kind:        chunking.ChunkClass,
			Content:     retrieverContent,
			ContentHash: chunking.HashContent(retrieverContent),
			Span:        ir.Span{StartLine: 1, EndLine: 3},
		},
		{
			ChunkID:     chunking.FileChunkID("src/retriever.py"),
			RepoID:      testRepo,
			SnapshotID:  testSnap,
			FilePath:    "src/retriever.py",
			SymbolID:    "src/retriever.py",
			Kind:        chunking.ChunkFile,
			Content:     fileContent,
			ContentHash: chunking.HashContent(fileContent),
			Span:        ir.Span{StartLine: 1, EndLine: 5},
		},
	}
}

func newService() *indexing.Service {
	return &indexing.Service{
		Adapters: []indexing.Adapter{
			indexing.NewLexicalAdapter(),
			indexing.NewVectorAdapter(nil, 0),
			indexing.NewFuzzyAdapter(),
			indexing.NewDocMetaAdapter(),
		},
	}
}

func TestIndexRepoFull_ThenSearch(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	report := svc.IndexRepoFull(ctx, testRepo, testSnap, testChunks(), indexing.TransformOptions{})
	require.Empty(t, report.Errors)

	hits, err := svc.Search(ctx, testRepo, testSnap, "HybridRetriever", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "src/retriever.py", hits[0].FilePath)
}

func TestIndexRepoFull_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	svc.IndexRepoFull(ctx, testRepo, testSnap, testChunks(), indexing.TransformOptions{})
	first, err := svc.Search(ctx, testRepo, testSnap, "HybridRetriever", 10, nil)
	require.NoError(t, err)

	svc.IndexRepoFull(ctx, testRepo, testSnap, testChunks(), indexing.TransformOptions{})
	second, err := svc.Search(ctx, testRepo, testSnap, "HybridRetriever", 10, nil)
	require.NoError(t, err)

	require.Len(t, second, len(first))

	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}
}

func TestSearch_UnindexedSnapshotReturnsEmpty(t *testing.T) {
	t.Parallel()

	svc := newService()

	hits, err := svc.Search(context.Background(), "ghost-repo", "ghost-snap", "anything", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

var errAdapterDown = errors.New("adapter down")

type failingAdapter struct{}

func (failingAdapter) Name() string { return "failing" }

func (failingAdapter) Index(context.Context, string, string, []indexing.Document) error {
	return errAdapterDown
}

func (failingAdapter) Upsert(context.Context, string, string, []indexing.Document) error {
	return errAdapterDown
}

func (failingAdapter) Delete(context.Context, string, string, []string) error {
	return errAdapterDown
}

func (failingAdapter) Search(context.Context, string, string, string, int) ([]indexing.SearchHit, error) {
	return nil, errAdapterDown
}

func TestIndexRepoFull_AdapterFailureDoesNotShortCircuit(t *testing.T) {
	t.Parallel()

	lexical := indexing.NewLexicalAdapter()
	svc := &indexing.Service{Adapters: []indexing.Adapter{failingAdapter{}, lexical}}
	ctx := context.Background()

	report := svc.IndexRepoFull(ctx, testRepo, testSnap, testChunks(), indexing.TransformOptions{})
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], errs.ErrAdapter)

	hits, err := svc.Search(ctx, testRepo, testSnap, "HybridRetriever", 10, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "healthy adapter indexed despite the failing one")
}

func TestIndexRepoIncremental_DeletesRemovedChunks(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	chunks := testChunks()
	svc.IndexRepoFull(ctx, testRepo, testSnap, chunks, indexing.TransformOptions{})

	refresh := &chunking.RefreshResult{Deleted: []string{chunks[0].ChunkID, chunks[1].ChunkID}}
	report := svc.IndexRepoIncremental(ctx, testRepo, testSnap, refresh, indexing.TransformOptions{})
	require.Empty(t, report.Errors)

	hits, err := svc.Search(ctx, testRepo, testSnap, "HybridRetriever", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSymbolAdapter_SearchMapsToChunks(t *testing.T) {
	t.Parallel()

	graph := graphstore.New()
	graph.UpsertSymbols(testRepo, testSnap, []graphstore.Symbol{
		{ID: "src/retriever.py:class:0", Name: "HybridRetriever", FQN: "retriever.HybridRetriever", Kind: ir.KindClass, FilePath: "src/retriever.py"},
	})

	adapter := indexing.NewSymbolAdapter(graph)
	ctx := context.Background()

	docs := indexing.Transform(testChunks(), indexing.TransformOptions{})
	require.NoError(t, adapter.Index(ctx, testRepo, testSnap, docs))

	hits, err := adapter.Search(ctx, testRepo, testSnap, "Retriever", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunking.ChunkIDFor("src/retriever.py", "retriever.HybridRetriever"), hits[0].ChunkID)
	assert.Equal(t, indexing.SourceSymbol, hits[0].Source)
}
