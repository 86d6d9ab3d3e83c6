package semanticir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/codefang-index/internal/cachekit"
	"github.com/Sumatoshi-tech/codefang-index/pkg/persist"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a project.
var ErrSnapshotNotFound = errors.New("semanticir: snapshot not found")

// zstdThreshold is the uncompressed size above which snapshots are written
// with zstd instead of gzip.
const zstdThreshold = 1 << 20

// defaultKeep is how many snapshots per project the store retains.
const defaultKeep = 5

const dirPerm = 0o750

// Store persists snapshots under root/<project_id>/<snapshot_id>/, writing
// gzip-compressed JSON (zstd for snapshots over 1MB uncompressed) and
// reading the compressed form first with plain JSON as the legacy fallback.
// A small in-process cache holds recently loaded snapshots as lz4 frames so
// repeated loads within one run skip the disk round trip.
type Store struct {
	root string
	keep int

	cache *cachekit.LRU[string, []byte]
}

// NewStore creates a snapshot store rooted at dir, keeping the most recent
// keep snapshots per project (defaultKeep when keep <= 0).
func NewStore(dir string, keep int) *Store {
	if keep <= 0 {
		keep = defaultKeep
	}

	return &Store{
		root:  dir,
		keep:  keep,
		cache: cachekit.New[string, []byte](cachekit.SizeFromFileCount(0)),
	}
}

func (st *Store) snapshotDir(projectID, snapshotID string) string {
	return filepath.Join(st.root, sanitize(projectID), sanitize(snapshotID))
}

// Save writes the snapshot and prunes the project's history down to the
// retention limit. The snapshot must not be mutated afterwards.
func (st *Store) Save(snap *Snapshot) error {
	dir := st.snapshotDir(snap.ProjectID, snap.SnapshotID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("semanticir: create snapshot dir: %w", err)
	}

	p := persist.NewPersister[Snapshot]("semantic", codecFor(snap))
	if err := p.Save(dir, func() *Snapshot { return snap }); err != nil {
		return fmt.Errorf("semanticir: save snapshot %s: %w", snap.SnapshotID, err)
	}

	st.cachePut(snap)

	return st.prune(snap.ProjectID)
}

// Load reads one snapshot by (project, snapshot) id, preferring the cache,
// then the gzip file, then the legacy uncompressed file, and finally the
// zstd file written for large snapshots.
func (st *Store) Load(projectID, snapshotID string) (*Snapshot, error) {
	if snap, ok := st.cacheGet(projectID, snapshotID); ok {
		return snap, nil
	}

	dir := st.snapshotDir(projectID, snapshotID)

	var loaded Snapshot

	dual := persist.NewDualPersister[Snapshot]("semantic", persist.NewGzipJSONCodec(), persist.NewJSONCodec())
	if err := dual.Load(dir, func(s *Snapshot) { loaded = *s }); err != nil {
		// Large snapshots were written with zstd; try that frame last.
		zp := persist.NewPersister[Snapshot]("semantic", persist.NewZstdJSONCodec())
		if zerr := zp.Load(dir, func(s *Snapshot) { loaded = *s }); zerr != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, projectID, snapshotID)
		}
	}

	st.cachePut(&loaded)

	return &loaded, nil
}

// LoadLatest returns the most recently saved snapshot for a project.
func (st *Store) LoadLatest(projectID string) (*Snapshot, error) {
	ids, err := st.snapshotIDsByAge(projectID)
	if err != nil || len(ids) == 0 {
		return nil, fmt.Errorf("%w: project %s", ErrSnapshotNotFound, projectID)
	}

	return st.Load(projectID, ids[len(ids)-1])
}

// snapshotIDsByAge lists a project's snapshot ids, oldest first.
func (st *Store) snapshotIDsByAge(projectID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(st.root, sanitize(projectID)))
	if err != nil {
		return nil, fmt.Errorf("semanticir: list snapshots: %w", err)
	}

	type aged struct {
		id  string
		mod int64
	}

	infos := make([]aged, 0, len(entries))

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}

		infos = append(infos, aged{id: e.Name(), mod: info.ModTime().UnixNano()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].mod < infos[j].mod })

	ids := make([]string, len(infos))
	for i, a := range infos {
		ids[i] = a.id
	}

	return ids, nil
}

// prune enforces the keep-N policy for one project.
func (st *Store) prune(projectID string) error {
	ids, err := st.snapshotIDsByAge(projectID)
	if err != nil {
		return nil //nolint:nilerr // nothing to prune when the project dir is unreadable
	}

	for len(ids) > st.keep {
		victim := ids[0]
		ids = ids[1:]

		if err := os.RemoveAll(st.snapshotDir(projectID, victim)); err != nil {
			return fmt.Errorf("semanticir: prune %s: %w", victim, err)
		}
	}

	return nil
}

func codecFor(snap *Snapshot) persist.Codec {
	raw, err := json.Marshal(snap)
	if err == nil && len(raw) > zstdThreshold {
		return persist.NewZstdJSONCodec()
	}

	return persist.NewGzipJSONCodec()
}

func cacheKey(projectID, snapshotID string) string {
	return projectID + "\x00" + snapshotID
}

func (st *Store) cachePut(snap *Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}

	buf := make([]byte, lz4.CompressBlockBound(len(raw)))

	var c lz4.Compressor

	n, err := c.CompressBlock(raw, buf)
	if err != nil || n == 0 {
		return
	}

	// Prefix with the uncompressed length so decompression can size its
	// destination buffer exactly.
	framed := append([]byte(fmt.Sprintf("%016x", len(raw))), buf[:n]...)

	st.cache.Put(cacheKey(snap.ProjectID, snap.SnapshotID), framed)
}

func (st *Store) cacheGet(projectID, snapshotID string) (*Snapshot, bool) {
	framed, ok := st.cache.Get(cacheKey(projectID, snapshotID))

	if !ok || len(framed) < 16 {
		return nil, false
	}

	var rawLen int
	if _, err := fmt.Sscanf(string(framed[:16]), "%016x", &rawLen); err != nil {
		return nil, false
	}

	raw := make([]byte, rawLen)
	if _, err := lz4.UncompressBlock(framed[16:], raw); err != nil {
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}

	return &snap, true
}

// CacheStats exposes the snapshot cache's hit/miss counters.
func (st *Store) CacheStats() cachekit.Stats {
	return st.cache.Stats()
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		default:
			return r
		}
	}, id)
}
