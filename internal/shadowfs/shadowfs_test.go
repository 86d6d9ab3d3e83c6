package shadowfs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/internal/shadowfs"
)

func newWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	return root
}

func TestBegin_DuplicateIDFails(t *testing.T) {
	t.Parallel()

	sfs := shadowfs.New(newWorkspace(t, nil), nil, shadowfs.Options{})

	_, err := sfs.Begin("txn-1")
	require.NoError(t, err)

	_, err = sfs.Begin("txn-1")
	assert.ErrorIs(t, err, shadowfs.ErrTxnExists)
}

func TestWrite_UnknownTxnFails(t *testing.T) {
	t.Parallel()

	sfs := shadowfs.New(newWorkspace(t, nil), nil, shadowfs.Options{})

	err := sfs.Write(context.Background(), "a.py", []byte("x"), "nope")
	assert.ErrorIs(t, err, shadowfs.ErrTxnNotFound)
}

func TestRead_Priority(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{"main.py": "disk"})
	sfs := shadowfs.New(root, nil, shadowfs.Options{})
	ctx := context.Background()

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	// Disk content before any staged change.
	got, err := sfs.Read("main.py", txn)
	require.NoError(t, err)
	assert.Equal(t, "disk", string(got))

	// Overlay wins over disk.
	require.NoError(t, sfs.Write(ctx, "main.py", []byte("staged"), txn))

	got, err = sfs.Read("main.py", txn)
	require.NoError(t, err)
	assert.Equal(t, "staged", string(got))

	// Tombstone wins over overlay and disk.
	require.NoError(t, sfs.Delete(ctx, "main.py", txn))

	_, err = sfs.Read("main.py", txn)
	assert.ErrorIs(t, err, shadowfs.ErrNotFound)

	// Overlay and tombstones stay disjoint: rewriting revives the path.
	require.NoError(t, sfs.Write(ctx, "main.py", []byte("back"), txn))

	got, err = sfs.Read("main.py", txn)
	require.NoError(t, err)
	assert.Equal(t, "back", string(got))

	// Reads without a transaction go straight to disk.
	got, err = sfs.Read("main.py", "")
	require.NoError(t, err)
	assert.Equal(t, "disk", string(got))
}

func TestCommit_AppliesOverlayAndTombstones(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{
		"keep.py":   "keep",
		"gone.py":   "gone",
		"change.py": "old",
	})
	sfs := shadowfs.New(root, nil, shadowfs.Options{})
	ctx := context.Background()

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	require.NoError(t, sfs.Write(ctx, "change.py", []byte("new"), txn))
	require.NoError(t, sfs.Write(ctx, "sub/created.py", []byte("fresh"), txn))
	require.NoError(t, sfs.Delete(ctx, "gone.py", txn))

	require.NoError(t, sfs.Commit(ctx, txn))

	changed, err := os.ReadFile(filepath.Join(root, "change.py"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(changed))

	created, err := os.ReadFile(filepath.Join(root, "sub/created.py"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(created))

	assert.NoFileExists(t, filepath.Join(root, "gone.py"))
	assert.Empty(t, sfs.ActiveTransactions(), "committed txn must be removed")
}

func TestCommit_ConflictLeavesEverythingIntact(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{"main.py": "v1"})
	sfs := shadowfs.New(root, nil, shadowfs.Options{})
	ctx := context.Background()

	txn, err := sfs.Begin("t1")
	require.NoError(t, err)

	// External process rewrites the file between begin and commit.
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("v2-external"), 0o644))

	require.NoError(t, sfs.Write(ctx, "main.py", []byte("mine"), txn))

	err = sfs.Commit(ctx, txn)

	var conflict *errs.ConflictError

	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"main.py"}, conflict.Paths)
	assert.Equal(t, "t1", conflict.TxnID)

	onDisk, err := os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "v2-external", string(onDisk), "disk must keep the external content")

	assert.Contains(t, sfs.ActiveTransactions(), "t1", "conflicted txn stays active")
}

func TestRollback_NoDiskChanges(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{"main.py": "original"})
	sfs := shadowfs.New(root, nil, shadowfs.Options{})
	ctx := context.Background()

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	require.NoError(t, sfs.Write(ctx, "main.py", []byte("staged"), txn))
	require.NoError(t, sfs.Delete(ctx, "main.py", txn))
	require.NoError(t, sfs.Rollback(ctx, txn))

	onDisk, err := os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(onDisk))
	assert.Empty(t, sfs.ActiveTransactions())
}

func TestMaterialize_SymlinksAndOverlay(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{
		"src/a.py":             "unchanged",
		"src/b.py":             "old-b",
		"tests/old.py":         "doomed",
		"node_modules/big.js":  "dependency blob",
	})
	sfs := shadowfs.New(root, nil, shadowfs.Options{UseSymlinks: true})
	ctx := context.Background()

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	require.NoError(t, sfs.Write(ctx, "src/b.py", []byte("new-b"), txn))
	require.NoError(t, sfs.Delete(ctx, "tests/old.py", txn))

	lease, err := sfs.Materialize(txn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = lease.Release() })

	// Dependency dir is a symlink to the workspace original.
	depInfo, err := os.Lstat(filepath.Join(lease.Dir, "node_modules"))
	require.NoError(t, err)
	assert.NotZero(t, depInfo.Mode()&os.ModeSymlink)

	// Unchanged file is a symlink.
	aInfo, err := os.Lstat(filepath.Join(lease.Dir, "src/a.py"))
	require.NoError(t, err)
	assert.NotZero(t, aInfo.Mode()&os.ModeSymlink)

	// Overlaid file is a regular file with the overlay content.
	bInfo, err := os.Lstat(filepath.Join(lease.Dir, "src/b.py"))
	require.NoError(t, err)
	assert.Zero(t, bInfo.Mode()&os.ModeSymlink)

	bContent, err := os.ReadFile(filepath.Join(lease.Dir, "src/b.py"))
	require.NoError(t, err)
	assert.Equal(t, "new-b", string(bContent))

	// Tombstoned file is absent.
	assert.NoFileExists(t, filepath.Join(lease.Dir, "tests/old.py"))

	dir := lease.Dir
	require.NoError(t, lease.Release())
	assert.NoDirExists(t, dir)
	require.NoError(t, lease.Release(), "double release is a no-op")
}

func TestMaterialize_PoolExhaustion(t *testing.T) {
	t.Parallel()

	root := newWorkspace(t, map[string]string{"a.py": "x"})
	sfs := shadowfs.New(root, nil, shadowfs.Options{UseSymlinks: true, PoolCapacity: 1})

	txn, err := sfs.Begin("")
	require.NoError(t, err)

	lease, err := sfs.Materialize(txn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = lease.Release() })

	_, err = sfs.Materialize(txn)
	assert.ErrorIs(t, err, errs.ErrWorkspaceExhausted)

	require.NoError(t, lease.Release())

	lease2, err := sfs.Materialize(txn)
	require.NoError(t, err)
	require.NoError(t, lease2.Release())
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	sfs := shadowfs.New(newWorkspace(t, nil), nil, shadowfs.Options{TxnTTL: time.Minute})

	_, err := sfs.Begin("old")
	require.NoError(t, err)

	assert.Equal(t, 0, sfs.CleanupExpired(time.Now()))
	assert.Equal(t, 1, sfs.CleanupExpired(time.Now().Add(2*time.Minute)))
	assert.Empty(t, sfs.ActiveTransactions())
}
