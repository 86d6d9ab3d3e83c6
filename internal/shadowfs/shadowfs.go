// Package shadowfs is a transactional copy-on-write overlay over a
// workspace directory. Concurrent transactions accumulate writes and
// deletes privately; commit detects conflicts against the base revision
// captured at begin, applies the overlay atomically, and notifies the
// event bus. Materialise projects a transaction's view into a temporary
// directory usable by external tools.
package shadowfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/internal/eventbus"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
)

// Sentinel errors.
var (
	ErrTxnExists   = errors.New("shadowfs: transaction already exists")
	ErrTxnNotFound = errors.New("shadowfs: transaction not found")
	ErrNotFound    = errors.New("shadowfs: file not found")
)

// DefaultTxnTTL ages out abandoned transactions.
const DefaultTxnTTL = 30 * time.Minute

// defaultEligibleExtensions lists the file extensions captured in a
// transaction's base revision.
var defaultEligibleExtensions = []string{
	".py", ".js", ".ts", ".tsx", ".java", ".kt", ".go",
	".md", ".json", ".yaml", ".yml", ".toml",
}

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Options configures a ShadowFS instance.
type Options struct {
	// EligibleExtensions overrides the file extensions snapshotted into
	// base revisions.
	EligibleExtensions []string

	// TxnTTL overrides DefaultTxnTTL.
	TxnTTL time.Duration

	// MaxFileSize caps the size of any file copied during materialise;
	// zero means no cap.
	MaxFileSize int64

	// UseSymlinks toggles the symlink optimisation in materialise.
	UseSymlinks bool

	// PoolCapacity bounds how many materialised workspaces may exist at
	// once; zero means unbounded.
	PoolCapacity int

	// Metrics records per-operation latencies when non-nil.
	Metrics *observability.REDMetrics
}

// transaction is the private state of one open transaction.
type transaction struct {
	overlay      map[string][]byte
	tombstones   map[string]struct{}
	baseRevision map[string]string
	createdAt    time.Time
}

// ShadowFS is the overlay filesystem over one workspace root.
type ShadowFS struct {
	root string
	opts Options
	bus  *eventbus.Bus

	// mu is the single process-wide lock all mutating paths acquire.
	// Reads only take it in shared mode; events are emitted after it is
	// released so plugins cannot stall core operations.
	mu   sync.RWMutex
	txns map[string]*transaction

	pool chan struct{}
}

// New creates a ShadowFS over the workspace rooted at root. Events are
// emitted to bus; a nil bus disables notification.
func New(root string, bus *eventbus.Bus, opts Options) *ShadowFS {
	if len(opts.EligibleExtensions) == 0 {
		opts.EligibleExtensions = defaultEligibleExtensions
	}

	if opts.TxnTTL <= 0 {
		opts.TxnTTL = DefaultTxnTTL
	}

	sfs := &ShadowFS{
		root: root,
		opts: opts,
		bus:  bus,
		txns: make(map[string]*transaction),
	}

	if opts.PoolCapacity > 0 {
		sfs.pool = make(chan struct{}, opts.PoolCapacity)
	}

	return sfs
}

// Begin opens a transaction, snapshotting the current content hash of
// every eligible workspace file as the base revision. Passing an empty
// txnID generates a fresh id; a duplicate id fails.
func (sfs *ShadowFS) Begin(txnID string) (string, error) {
	if txnID == "" {
		txnID = uuid.NewString()
	}

	base, err := sfs.snapshotBase()
	if err != nil {
		return "", err
	}

	sfs.mu.Lock()
	defer sfs.mu.Unlock()

	if _, dup := sfs.txns[txnID]; dup {
		return "", fmt.Errorf("%w: %s", ErrTxnExists, txnID)
	}

	sfs.txns[txnID] = &transaction{
		overlay:      make(map[string][]byte),
		tombstones:   make(map[string]struct{}),
		baseRevision: base,
		createdAt:    time.Now(),
	}

	return txnID, nil
}

// Write stages content for path inside the transaction and emits a write
// event carrying the previous content.
func (sfs *ShadowFS) Write(ctx context.Context, path string, content []byte, txnID string) error {
	start := time.Now()
	defer sfs.recordLatency(ctx, "shadowfs.write", start)

	sfs.mu.Lock()

	txn, ok := sfs.txns[txnID]
	if !ok {
		sfs.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
	}

	old := sfs.currentContentLocked(txn, path)
	txn.overlay[path] = append([]byte(nil), content...)
	delete(txn.tombstones, path)
	sfs.mu.Unlock()

	return sfs.emit(ctx, eventbus.EventWrite, path, txnID, old, content)
}

// Read resolves path through the transaction's view: tombstones win, then
// the overlay, then the on-disk workspace. Without a transaction id it
// reads straight from disk.
func (sfs *ShadowFS) Read(path, txnID string) ([]byte, error) {
	if txnID != "" {
		sfs.mu.RLock()

		txn, ok := sfs.txns[txnID]
		if !ok {
			sfs.mu.RUnlock()

			return nil, fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
		}

		if _, gone := txn.tombstones[path]; gone {
			sfs.mu.RUnlock()

			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		if content, staged := txn.overlay[path]; staged {
			out := append([]byte(nil), content...)
			sfs.mu.RUnlock()

			return out, nil
		}

		sfs.mu.RUnlock()
	}

	content, err := os.ReadFile(filepath.Join(sfs.root, path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return content, nil
}

// Delete stages a removal of path and emits a delete event.
func (sfs *ShadowFS) Delete(ctx context.Context, path, txnID string) error {
	sfs.mu.Lock()

	txn, ok := sfs.txns[txnID]
	if !ok {
		sfs.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
	}

	old := sfs.currentContentLocked(txn, path)
	delete(txn.overlay, path)
	txn.tombstones[path] = struct{}{}
	sfs.mu.Unlock()

	return sfs.emit(ctx, eventbus.EventDelete, path, txnID, old, nil)
}

// Commit applies the transaction to disk. Conflict detection runs first:
// any overlay path whose on-disk content no longer hashes to the base
// revision fails the commit with the full conflict list and leaves the
// transaction untouched, so the caller can rebase and retry. On success
// the transaction is removed and a commit event is emitted outside the
// lock.
func (sfs *ShadowFS) Commit(ctx context.Context, txnID string) error {
	sfs.mu.Lock()

	txn, ok := sfs.txns[txnID]
	if !ok {
		sfs.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
	}

	var conflicts []string

	for path := range txn.overlay {
		current, err := sfs.hashDiskFile(path)
		if err != nil {
			continue // file absent on disk is not a conflict; the write creates it
		}

		if base, had := txn.baseRevision[path]; had && base != current {
			conflicts = append(conflicts, path)
		}
	}

	if len(conflicts) > 0 {
		sfs.mu.Unlock()
		sort.Strings(conflicts)

		return &errs.ConflictError{TxnID: txnID, Paths: conflicts}
	}

	if err := sfs.applyLocked(txn, txnID); err != nil {
		sfs.mu.Unlock()

		return err
	}

	delete(sfs.txns, txnID)
	sfs.mu.Unlock()

	return sfs.emit(ctx, eventbus.EventCommit, "", txnID, nil, nil)
}

func (sfs *ShadowFS) applyLocked(txn *transaction, txnID string) error {
	for path, content := range txn.overlay {
		target := filepath.Join(sfs.root, path)

		if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
			return &errs.CommitError{TxnID: txnID, Recoverable: false, Err: err}
		}

		if err := os.WriteFile(target, content, filePerm); err != nil {
			return &errs.CommitError{TxnID: txnID, Recoverable: false, Err: err}
		}
	}

	for path := range txn.tombstones {
		if err := os.Remove(filepath.Join(sfs.root, path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &errs.CommitError{TxnID: txnID, Recoverable: false, Err: err}
		}
	}

	return nil
}

// Rollback discards the transaction and emits a rollback event. Disk state
// never changes.
func (sfs *ShadowFS) Rollback(ctx context.Context, txnID string) error {
	sfs.mu.Lock()

	if _, ok := sfs.txns[txnID]; !ok {
		sfs.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
	}

	delete(sfs.txns, txnID)
	sfs.mu.Unlock()

	return sfs.emit(ctx, eventbus.EventRollback, "", txnID, nil, nil)
}

// ActiveTransactions lists the ids of open transactions, sorted.
func (sfs *ShadowFS) ActiveTransactions() []string {
	sfs.mu.RLock()
	defer sfs.mu.RUnlock()

	out := make([]string, 0, len(sfs.txns))
	for id := range sfs.txns {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// CleanupExpired removes transactions older than the configured TTL,
// returning how many were dropped. Frees memory held by abandoned
// sessions.
func (sfs *ShadowFS) CleanupExpired(now time.Time) int {
	sfs.mu.Lock()
	defer sfs.mu.Unlock()

	removed := 0

	for id, txn := range sfs.txns {
		if now.Sub(txn.createdAt) > sfs.opts.TxnTTL {
			delete(sfs.txns, id)
			removed++
		}
	}

	return removed
}

// currentContentLocked resolves the pre-operation content of path: the
// overlay if staged, the disk otherwise. Callers hold the lock.
func (sfs *ShadowFS) currentContentLocked(txn *transaction, path string) []byte {
	if content, staged := txn.overlay[path]; staged {
		return append([]byte(nil), content...)
	}

	content, err := os.ReadFile(filepath.Join(sfs.root, path))
	if err != nil {
		return nil
	}

	return content
}

func (sfs *ShadowFS) recordLatency(ctx context.Context, op string, start time.Time) {
	if sfs.opts.Metrics != nil {
		sfs.opts.Metrics.RecordRequest(ctx, op, "ok", time.Since(start))
	}
}

func (sfs *ShadowFS) emit(ctx context.Context, eventType eventbus.EventType, path, txnID string, old, current []byte) error {
	if sfs.bus == nil {
		return nil
	}

	ev, err := eventbus.NewEvent(eventType, path, txnID, old, current, time.Now())
	if err != nil {
		return err
	}

	return sfs.bus.Emit(ctx, ev)
}

// snapshotBase hashes every eligible workspace file.
func (sfs *ShadowFS) snapshotBase() (map[string]string, error) {
	base := make(map[string]string)

	err := filepath.WalkDir(sfs.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if isDependencyDir(d.Name()) && path != sfs.root {
				return filepath.SkipDir
			}

			return nil
		}

		if !sfs.eligible(path) {
			return nil
		}

		rel, relErr := filepath.Rel(sfs.root, path)
		if relErr != nil {
			return relErr
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil //nolint:nilerr // unreadable files are simply not part of the base
		}

		base[rel] = hashContent(content)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("shadowfs: snapshot base: %w", err)
	}

	return base, nil
}

func (sfs *ShadowFS) eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	for _, want := range sfs.opts.EligibleExtensions {
		if ext == want {
			return true
		}
	}

	return false
}

func (sfs *ShadowFS) hashDiskFile(path string) (string, error) {
	content, err := os.ReadFile(filepath.Join(sfs.root, path))
	if err != nil {
		return "", fmt.Errorf("shadowfs: hash %s: %w", path, err)
	}

	return hashContent(content), nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}
