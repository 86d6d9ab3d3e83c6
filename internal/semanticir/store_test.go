package semanticir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/internal/semanticir"
	"github.com/Sumatoshi-tech/codefang-index/pkg/persist"
)

func sampleSnapshot(snapshotID string) *semanticir.Snapshot {
	return &semanticir.Snapshot{
		SnapshotID: snapshotID,
		ProjectID:  "proj",
		Files:      []string{"a.py", "b.py"},
		Entries: []semanticir.TypeEntry{
			{File: "a.py", Span: ir.Span{StartLine: 1, EndLine: 2}, Type: "def f(x: int) -> int"},
			{File: "b.py", Span: ir.Span{StartLine: 3, EndLine: 9}, Type: "class Widget"},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := semanticir.NewStore(t.TempDir(), 0)
	snap := sampleSnapshot("s1")

	require.NoError(t, store.Save(snap))

	loaded, err := store.Load("proj", "s1")
	require.NoError(t, err)
	assert.True(t, snap.Equal(loaded))

	latest, err := store.LoadLatest("proj")
	require.NoError(t, err)
	assert.True(t, snap.Equal(latest))
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := semanticir.NewStore(t.TempDir(), 0)

	_, err := store.Load("proj", "nope")
	assert.ErrorIs(t, err, semanticir.ErrSnapshotNotFound)

	_, err = store.LoadLatest("ghost")
	assert.ErrorIs(t, err, semanticir.ErrSnapshotNotFound)
}

func TestStore_LegacyUncompressedFallback(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := semanticir.NewStore(root, 0)
	snap := sampleSnapshot("legacy")

	// A row written before compression was adopted: plain JSON only.
	dir := filepath.Join(root, "proj", "legacy")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	p := persist.NewPersister[semanticir.Snapshot]("semantic", persist.NewJSONCodec())
	require.NoError(t, p.Save(dir, func() *semanticir.Snapshot { return snap }))

	loaded, err := store.Load("proj", "legacy")
	require.NoError(t, err)
	assert.True(t, snap.Equal(loaded))
}

func TestStore_KeepNPrunesOldest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := semanticir.NewStore(root, 2)

	require.NoError(t, store.Save(sampleSnapshot("s1")))
	require.NoError(t, store.Save(sampleSnapshot("s2")))
	require.NoError(t, store.Save(sampleSnapshot("s3")))

	entries, err := os.ReadDir(filepath.Join(root, "proj"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "retention keeps only the newest two")

	// Survivors load from disk through a cache-free store.
	fresh := semanticir.NewStore(root, 2)

	_, err = fresh.Load("proj", "s3")
	assert.NoError(t, err)
}

func TestIndex_TypeLookup(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot("s1")
	idx := semanticir.NewIndex(snap)

	typ, ok := idx.TypeAt("a.py", ir.Span{StartLine: 1, EndLine: 2})
	require.True(t, ok)
	assert.Equal(t, "def f(x: int) -> int", typ)

	_, ok = idx.TypeAt("a.py", ir.Span{StartLine: 99, EndLine: 99})
	assert.False(t, ok)
	assert.Equal(t, 2, idx.Len())
}
