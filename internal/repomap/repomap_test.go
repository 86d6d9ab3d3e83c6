package repomap_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/internal/repomap"
)

// importGraphDoc wires util.py as the target of imports from two files, so
// it must come out as the most important file.
func importGraphDoc() *ir.Document {
	return &ir.Document{
		RepoID:     "r",
		SnapshotID: "s",
		Nodes: []ir.Node{
			{ID: "u", Kind: ir.KindFile, FilePath: "src/util.py", Language: "python"},
			{ID: "uf", Kind: ir.KindFunction, Name: "helper", FilePath: "src/util.py", Language: "python"},
			{ID: "a", Kind: ir.KindFile, FilePath: "src/a.py", Language: "python"},
			{ID: "af", Kind: ir.KindFunction, Name: "do_a", FilePath: "src/a.py", Language: "python"},
			{ID: "b", Kind: ir.KindFile, FilePath: "b.py", Language: "python"},
			{ID: "bf", Kind: ir.KindFunction, Name: "do_b", FilePath: "b.py", Language: "python"},
		},
		Edges: []ir.Edge{
			{ID: "e1", Kind: ir.EdgeCalls, SourceID: "af", TargetID: "uf"},
			{ID: "e2", Kind: ir.EdgeCalls, SourceID: "bf", TargetID: "uf"},
		},
	}
}

func TestBuild_PageRankFavorsImportTargets(t *testing.T) {
	t.Parallel()

	b := &repomap.Builder{}

	m := b.Build(context.Background(), importGraphDoc(), nil)
	require.Len(t, m.Files, 3)

	assert.InDelta(t, 1.0, m.Importance("src/util.py"), 1e-9, "most-depended-on file normalises to 1")
	assert.Less(t, m.Importance("src/a.py"), m.Importance("src/util.py"))
	assert.Less(t, m.Importance("b.py"), m.Importance("src/util.py"))
}

func TestBuild_DirectoryTree(t *testing.T) {
	t.Parallel()

	b := &repomap.Builder{}
	m := b.Build(context.Background(), importGraphDoc(), nil)

	require.NotNil(t, m.Root)
	assert.Equal(t, []string{"b.py"}, m.Root.Files)
	require.Len(t, m.Root.Dirs, 1)
	assert.Equal(t, "src", m.Root.Dirs[0].Path)
	assert.Equal(t, []string{"src/a.py", "src/util.py"}, m.Root.Dirs[0].Files)
}

type cannedSummarizer struct{}

func (cannedSummarizer) Summarize(_ context.Context, filePath, _ string) (string, error) {
	return "summary of " + filePath, nil
}

func TestBuild_SummarizesTopN(t *testing.T) {
	t.Parallel()

	b := &repomap.Builder{Summarizer: cannedSummarizer{}, SummarizeTopN: 1}
	m := b.Build(context.Background(), importGraphDoc(), nil)

	assert.Equal(t, "summary of src/util.py", m.Files["src/util.py"].Summary)
	assert.Empty(t, m.Files["b.py"].Summary, "only the top file is summarised")
}

func TestWriteReport_RendersHTML(t *testing.T) {
	t.Parallel()

	b := &repomap.Builder{}
	m := b.Build(context.Background(), importGraphDoc(), nil)

	var buf bytes.Buffer

	require.NoError(t, repomap.WriteReport(&buf, m))
	assert.Contains(t, buf.String(), "src/util.py")
}
