package shadowfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/pkg/alg/mapx"
	"github.com/Sumatoshi-tech/codefang-index/pkg/mathutil"
)

// dependencyDirs are symlinked wholesale during materialise instead of
// being copied; they are large and never part of an overlay.
var dependencyDirs = map[string]struct{}{
	"node_modules": {},
	".venv":        {},
	"vendor":       {},
	".git":         {},
}

func isDependencyDir(name string) bool {
	_, ok := dependencyDirs[name]

	return ok
}

// Lease is a scoped handle over a materialised directory. Release removes
// the directory and frees the workspace slot; it is safe to call more than
// once.
type Lease struct {
	Dir string

	released bool
	free     func()
}

// Release removes the materialised directory.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}

	l.released = true

	if l.free != nil {
		l.free()
	}

	if err := os.RemoveAll(l.Dir); err != nil {
		return fmt.Errorf("shadowfs: release lease: %w", err)
	}

	return nil
}

// Materialize projects the transaction's view of the workspace into a
// fresh temporary directory: dependency directories are symlinked from the
// workspace root (and left out entirely when symlinks are disabled),
// unchanged files are symlinked (or copied when symlinks are disabled),
// overlaid files are written with the overlay content, and tombstoned files
// are absent. The caller must Release the returned lease.
func (sfs *ShadowFS) Materialize(txnID string) (*Lease, error) {
	free, err := sfs.acquireSlot()
	if err != nil {
		return nil, err
	}

	sfs.mu.RLock()

	txn, ok := sfs.txns[txnID]
	if !ok {
		sfs.mu.RUnlock()
		free()

		return nil, fmt.Errorf("%w: %s", ErrTxnNotFound, txnID)
	}

	overlay := mapx.Clone(txn.overlay)
	tombstones := mapx.Clone(txn.tombstones)
	sfs.mu.RUnlock()

	dir, err := os.MkdirTemp("", "shadowfs-"+txnID[:mathutil.Min(8, len(txnID))]+"-")
	if err != nil {
		free()

		return nil, fmt.Errorf("shadowfs: materialize: %w", err)
	}

	lease := &Lease{Dir: dir, free: free}

	if err := sfs.populate(dir, overlay, tombstones); err != nil {
		_ = lease.Release()

		return nil, err
	}

	return lease, nil
}

func (sfs *ShadowFS) acquireSlot() (func(), error) {
	if sfs.pool == nil {
		return func() {}, nil
	}

	select {
	case sfs.pool <- struct{}{}:
		return func() { <-sfs.pool }, nil
	default:
		return nil, &errs.WorkspacePoolExhaustedError{Capacity: cap(sfs.pool)}
	}
}

func (sfs *ShadowFS) populate(dir string, overlay map[string][]byte, tombstones map[string]struct{}) error {
	err := filepath.WalkDir(sfs.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if path == sfs.root {
			return nil
		}

		rel, relErr := filepath.Rel(sfs.root, path)
		if relErr != nil {
			return relErr
		}

		target := filepath.Join(dir, rel)

		if d.IsDir() {
			if isDependencyDir(d.Name()) {
				if sfs.opts.UseSymlinks {
					if err := os.Symlink(path, target); err != nil {
						return err
					}

					return filepath.SkipDir
				}

				return filepath.SkipDir // copied dependency trees defeat the point; skip entirely
			}

			return os.MkdirAll(target, dirPerm)
		}

		if _, gone := tombstones[rel]; gone {
			return nil
		}

		if _, overlaid := overlay[rel]; overlaid {
			return nil // written below from the overlay
		}

		return sfs.placeFile(path, target)
	})
	if err != nil {
		return fmt.Errorf("shadowfs: populate: %w", err)
	}

	for rel, content := range overlay {
		target := filepath.Join(dir, rel)

		if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
			return fmt.Errorf("shadowfs: populate overlay: %w", err)
		}

		if err := os.WriteFile(target, content, filePerm); err != nil {
			return fmt.Errorf("shadowfs: populate overlay: %w", err)
		}
	}

	return nil
}

// placeFile links or copies one unchanged workspace file into the
// materialised tree.
func (sfs *ShadowFS) placeFile(source, target string) error {
	if sfs.opts.UseSymlinks {
		return os.Symlink(source, target)
	}

	content, err := os.ReadFile(source)
	if err != nil {
		return err
	}

	if sfs.opts.MaxFileSize > 0 && int64(len(content)) > sfs.opts.MaxFileSize {
		return nil // oversized files are left out rather than blowing the budget
	}

	return os.WriteFile(target, content, filePerm)
}
