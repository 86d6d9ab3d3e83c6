package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/changeset"
	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/graphstore"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/internal/pipeline"
	"github.com/Sumatoshi-tech/codefang-index/internal/repomap"
	"github.com/Sumatoshi-tech/codefang-index/internal/semanticir"
)

const pySource = `def helper(x):
    return x * 2

def caller(y):
    return helper(y)
`

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	return root
}

func TestDiscoveryStage_WalkWithIgnoreFile(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{
		"src/app.py":          pySource,
		"src/skipme.py":       "x = 1",
		"node_modules/dep.py": "x = 1",
		".codeindexignore":    "src/skipme.py\n# a comment\n",
	})

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")

	stage := pipeline.DiscoveryStage{Filter: changeset.Filter{Extensions: []string{".py"}}}
	require.NoError(t, stage.Execute(sc))

	assert.Equal(t, []string{"src/app.py"}, sc.Files)
}

func TestDiscoveryStage_IncrementalUsesChangeSet(t *testing.T) {
	t.Parallel()

	sc := pipeline.NewStageContext(context.Background(), t.TempDir(), "r", "s")
	sc.Incremental = &pipeline.ChangeSummary{
		Added:    []string{"new.py"},
		Modified: []string{"mod.py"},
		Deleted:  []string{"gone.py"},
	}

	stage := pipeline.DiscoveryStage{}
	require.NoError(t, stage.Execute(sc))

	assert.Equal(t, []string{"mod.py", "new.py"}, sc.Files, "deleted files are tombstones, not work items")
}

func TestParsingStage_PopulatesASTs(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{"app.py": pySource})

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")
	sc.Files = []string{"app.py"}

	stage := &pipeline.ParsingStage{Pool: astpool.New()}
	require.NoError(t, stage.Execute(sc))

	ast, ok := sc.ASTByFile["app.py"]
	require.True(t, ok)
	assert.Equal(t, "python", ast.Language)
	assert.Equal(t, pySource, string(ast.Content))
}

func TestParsingStage_SkipParseErrors(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{"app.py": pySource})

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")
	sc.Files = []string{"missing.py", "app.py"}

	strict := &pipeline.ParsingStage{Pool: astpool.New()}
	require.Error(t, strict.Execute(sc))

	sc = pipeline.NewStageContext(context.Background(), root, "r", "s")
	sc.Files = []string{"missing.py", "app.py"}

	lenient := &pipeline.ParsingStage{Pool: astpool.New(), SkipParseErrors: true}
	require.NoError(t, lenient.Execute(sc))
	assert.Len(t, sc.Warnings, 1)
	assert.Contains(t, sc.ASTByFile, "app.py")
}

func TestParsingStage_StopFlag(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{"app.py": pySource})

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")
	sc.Files = []string{"app.py"}

	var stop atomic.Bool

	stop.Store(true)

	stage := &pipeline.ParsingStage{Pool: astpool.New(), Stop: &stop}
	require.NoError(t, stage.Execute(sc))
	assert.Empty(t, sc.ASTByFile)
	assert.Equal(t, true, sc.Metadata["parsing_stopped"])
}

func TestProgressRecord_ResumeSkipsCompleted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	record := pipeline.NewProgressRecord()
	record.MarkCompleted("done.py")
	require.NoError(t, record.SaveTo(dir))

	restored := pipeline.NewProgressRecord()
	require.NoError(t, restored.LoadFrom(dir))
	assert.True(t, restored.IsCompleted("done.py"))
	assert.False(t, restored.IsCompleted("todo.py"))

	root := writeRepo(t, map[string]string{"app.py": pySource})

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")
	sc.Files = []string{"app.py"}

	restored.MarkCompleted("app.py")

	stage := &pipeline.ParsingStage{Pool: astpool.New(), Progress: restored}
	require.NoError(t, stage.Execute(sc))
	assert.Empty(t, sc.ASTByFile, "completed files are skipped on resume")
}

// runFrontHalf executes discovery through IR over a real temp repo.
func runFrontHalf(t *testing.T, root string) *pipeline.StageContext {
	t.Helper()

	sc := pipeline.NewStageContext(context.Background(), root, "r", "s")
	pool := astpool.New()

	stages := []pipeline.Stage{
		pipeline.DiscoveryStage{Filter: changeset.Filter{Extensions: []string{".py"}}},
		&pipeline.ParsingStage{Pool: pool},
		&pipeline.IRStage{Pool: pool, Config: ir.BuildConfig{CrossFile: true}},
	}

	runner := &pipeline.Runner{Stages: stages}

	_, err := runner.Run(sc)
	require.NoError(t, err)

	return sc
}

func TestIRStage_BuildsNodesAndCallEdges(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{"app.py": pySource})
	sc := runFrontHalf(t, root)

	require.NotNil(t, sc.IRDoc)
	require.NoError(t, sc.IRDoc.Validate())

	var functions, callEdges int

	for _, n := range sc.IRDoc.Nodes {
		if n.Kind == ir.KindFunction {
			functions++
		}
	}

	for _, e := range sc.IRDoc.Edges {
		if e.Kind == ir.EdgeCalls {
			callEdges++
		}
	}

	assert.Equal(t, 2, functions)
	assert.Equal(t, 1, callEdges, "caller -> helper")

	// One flow graph per function plus the module-scope graph.
	require.Len(t, sc.FlowGraphs, 3)

	for id, g := range sc.FlowGraphs {
		assert.NoError(t, g.Validate(), id)
	}
}

func TestPipeline_EmptyRepoYieldsEmptyOutputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sc := runFrontHalf(t, root)

	require.NotNil(t, sc.IRDoc)
	assert.Empty(t, sc.IRDoc.Nodes)

	chunkStore := chunking.NewStore()
	chunkStage := &pipeline.ChunkStage{Store: chunkStore, Builder: &chunking.Builder{}}
	require.NoError(t, chunkStage.Execute(sc))
	assert.Empty(t, sc.Chunks)
}

func TestGraphAndChunkStages_FullRun(t *testing.T) {
	t.Parallel()

	root := writeRepo(t, map[string]string{"app.py": pySource})
	sc := runFrontHalf(t, root)

	graph := graphstore.New()
	graphStage := &pipeline.GraphStage{Graph: graph}
	require.NoError(t, graphStage.Execute(sc))
	assert.Positive(t, sc.GraphStats.NodesCreated)

	enrichStage := &pipeline.SemanticStage{Enricher: &semanticir.Enricher{}}
	require.NoError(t, enrichStage.Execute(sc))
	require.NotNil(t, sc.Semantic)
	assert.Equal(t, []string{"app.py"}, sc.Semantic.Files)

	chunkStore := chunking.NewStore()
	chunkStage := &pipeline.ChunkStage{Store: chunkStore, Builder: &chunking.Builder{}}
	require.NoError(t, chunkStage.Execute(sc))
	require.NotEmpty(t, sc.Chunks)

	mapStage := &pipeline.RepoMapStage{Builder: &repomap.Builder{}}
	require.NoError(t, mapStage.Execute(sc))

	m, ok := sc.RepoMap.(*repomap.Map)
	require.True(t, ok)
	assert.Contains(t, m.Files, "app.py")
}
