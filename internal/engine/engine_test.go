package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/config"
	"github.com/Sumatoshi-tech/codefang-index/internal/engine"
)

const appSource = `class PaymentGateway:
    def charge(self, amount):
        return self.submit(amount)

    def submit(self, amount):
        return amount
`

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Pipeline.Parallel = false

	return engine.New(cfg, engine.Options{StateDir: t.TempDir()})
}

func writeTestRepo(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src/gateway.py"), []byte(appSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Payments\nGateway service."), 0o644))

	return root
}

func TestEngine_IndexFullThenSearch(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	root := writeTestRepo(t)
	ctx := context.Background()

	result, err := eng.IndexFull(ctx, root, "payments", "snap-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesDiscovered)
	assert.Positive(t, result.IRNodesCreated)
	assert.Positive(t, result.ChunksCreated)

	hits, err := eng.Search(ctx, "payments", "snap-1", "PaymentGateway", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "src/gateway.py", hits[0].FilePath)
}

func TestEngine_SearchUnknownSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)

	hits, err := eng.Search(context.Background(), "ghost", "never-indexed", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEngine_ShadowFSCommitTriggersReindex(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	root := writeTestRepo(t)
	ctx := context.Background()

	_, err := eng.IndexFull(ctx, root, "payments", "snap-1")
	require.NoError(t, err)

	sfs, err := eng.NewShadowFS(root, "payments", "snap-1")
	require.NoError(t, err)

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	refund := appSource + "\ndef refund(amount):\n    return -amount\n"
	require.NoError(t, sfs.Write(ctx, "src/gateway.py", []byte(refund), txn))
	require.NoError(t, sfs.Commit(ctx, txn))

	hits, err := eng.Search(ctx, "payments", "snap-1", "refund", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "the committed function is searchable")
}
