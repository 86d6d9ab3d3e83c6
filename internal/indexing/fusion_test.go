package indexing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
)

func TestFuseHits_WeightedFusion(t *testing.T) {
	t.Parallel()

	hits := []indexing.SearchHit{
		{ChunkID: "chunkX", Score: 0.9, Source: indexing.SourceLexical},
		{ChunkID: "chunkX", Score: 0.6, Source: indexing.SourceVector},
		{ChunkID: "chunkY", Score: 0.8, Source: indexing.SourceSymbol},
	}

	weights := indexing.Weights{
		indexing.SourceLexical: 0.3,
		indexing.SourceVector:  0.3,
		indexing.SourceSymbol:  0.2,
	}

	fused := indexing.FuseHits(hits, weights)
	require.Len(t, fused, 2)

	// chunkY: single contributor keeps its score; chunkX fuses to
	// (0.9*0.3 + 0.6*0.3) / 0.6 = 0.75, so chunkY ranks first.
	assert.Equal(t, "chunkY", fused[0].ChunkID)
	assert.InDelta(t, 0.8, fused[0].Score, 1e-9)
	assert.Equal(t, indexing.SourceSymbol, fused[0].Source)

	assert.Equal(t, "chunkX", fused[1].ChunkID)
	assert.InDelta(t, 0.75, fused[1].Score, 1e-9)

	sources, ok := fused[1].Metadata["sources"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"lexical", "vector"}, sources)

	orig, ok := fused[1].Metadata["original_scores"].(map[string]float64)
	require.True(t, ok)
	assert.InDelta(t, 0.9, orig["lexical"], 1e-9)
	assert.InDelta(t, 0.6, orig["vector"], 1e-9)
}

func TestFuseHits_SingleContributorPreservesMetadata(t *testing.T) {
	t.Parallel()

	hits := []indexing.SearchHit{
		{ChunkID: "c1", Score: 0.5, Source: indexing.SourceFuzzy, Metadata: map[string]any{"mapped": false}},
	}

	fused := indexing.FuseHits(hits, nil)
	require.Len(t, fused, 1)
	assert.Equal(t, hits[0], fused[0])
}

func TestFuseHits_Idempotent(t *testing.T) {
	t.Parallel()

	hits := []indexing.SearchHit{
		{ChunkID: "a", Score: 0.9, Source: indexing.SourceLexical},
		{ChunkID: "a", Score: 0.7, Source: indexing.SourceVector},
		{ChunkID: "b", Score: 0.8, Source: indexing.SourceSymbol},
		{ChunkID: "c", Score: 0.4, Source: indexing.SourceFuzzy},
	}

	once := indexing.FuseHits(hits, nil)
	twice := indexing.FuseHits(once, nil)

	assert.Equal(t, once, twice)
}
