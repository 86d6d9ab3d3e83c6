package chunking

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RebuildFileFunc regenerates the chunks for one file at the new snapshot:
// parse, rebuild the file's IR slice, and chunk it. Injected so the
// refresher stays independent of the parsing and IR machinery.
type RebuildFileFunc func(ctx context.Context, filePath string) ([]Chunk, error)

// RefreshResult classifies every chunk touched by an incremental refresh.
type RefreshResult struct {
	Added   []Chunk
	Updated []Chunk
	Renamed []Chunk
	Drifted []Chunk

	// Deleted lists chunk ids for downstream index cleanup.
	Deleted []string

	// FailedFiles lists files whose refresh failed; their chunks are left
	// untouched.
	FailedFiles []string
}

// ChangedChunks returns added plus updated plus renamed plus drifted, the
// set downstream indexes must upsert.
func (r *RefreshResult) ChangedChunks() []Chunk {
	out := make([]Chunk, 0, len(r.Added)+len(r.Updated)+len(r.Renamed)+len(r.Drifted))
	out = append(out, r.Added...)
	out = append(out, r.Updated...)
	out = append(out, r.Renamed...)
	out = append(out, r.Drifted...)

	return out
}

// Refresher recomputes only the chunks touching changed files.
type Refresher struct {
	Store   *Store
	Rebuild RebuildFileFunc

	// PartialUpdates enables sub-chunk-granularity updates: an updated
	// chunk keeps the sub-range hashes that did not change and records the
	// changed line ranges in its metadata.
	PartialUpdates bool
}

// Refresh diffs the new state of added and modified files against the old
// snapshot's chunks and enumerates deletions for removed files. A per-file
// failure is recorded and does not abort the remaining files.
func (r *Refresher) Refresh(ctx context.Context, repoID, oldSnapshot, newSnapshot string, added, modified, deleted []string) (*RefreshResult, error) {
	result := &RefreshResult{}

	for _, file := range deleted {
		for _, c := range r.Store.ByFile(repoID, oldSnapshot, file) {
			result.Deleted = append(result.Deleted, c.ChunkID)
		}
	}

	for _, file := range append(append([]string(nil), added...), modified...) {
		if err := r.refreshFile(ctx, repoID, oldSnapshot, file, result); err != nil {
			result.FailedFiles = append(result.FailedFiles, file)
		}
	}

	changed := result.ChangedChunks()
	for i := range changed {
		changed[i].SnapshotID = newSnapshot
	}

	r.Store.Save(repoID, newSnapshot, changed)
	r.Store.Delete(repoID, newSnapshot, result.Deleted)

	return result, nil
}

func (r *Refresher) refreshFile(ctx context.Context, repoID, oldSnapshot, file string, result *RefreshResult) error {
	newChunks, err := r.Rebuild(ctx, file)
	if err != nil {
		return fmt.Errorf("chunking: rebuild %s: %w", file, err)
	}

	oldChunks := r.Store.ByFile(repoID, oldSnapshot, file)

	oldByID := make(map[string]Chunk, len(oldChunks))
	oldByHash := make(map[string]Chunk, len(oldChunks))

	for _, c := range oldChunks {
		oldByID[c.ChunkID] = c
		oldByHash[c.ContentHash] = c
	}

	newIDs := make(map[string]struct{}, len(newChunks))
	for _, c := range newChunks {
		newIDs[c.ChunkID] = struct{}{}
	}

	for _, c := range newChunks {
		old, existed := oldByID[c.ChunkID]

		switch {
		case !existed:
			// A gone symbol whose content survives under a new id is a
			// rename, not an add.
			if prev, sameContent := oldByHash[c.ContentHash]; sameContent {
				if _, stillThere := newIDs[prev.ChunkID]; !stillThere {
					result.Renamed = append(result.Renamed, c)
					result.Deleted = append(result.Deleted, prev.ChunkID)

					continue
				}
			}

			result.Added = append(result.Added, c)
		case old.ContentHash != c.ContentHash:
			result.Updated = append(result.Updated, r.partialUpdate(old, c))
		case old.Span != c.Span:
			result.Drifted = append(result.Drifted, c)
		}
	}

	for _, old := range oldChunks {
		if _, still := newIDs[old.ChunkID]; still {
			continue
		}

		// Renames already queued this id for deletion.
		if !containsID(result.Deleted, old.ChunkID) {
			result.Deleted = append(result.Deleted, old.ChunkID)
		}
	}

	return nil
}

// partialUpdate carries unchanged sub-range hashes forward and records the
// changed line ranges so downstream consumers can re-emit only those.
func (r *Refresher) partialUpdate(old, updated Chunk) Chunk {
	if !r.PartialUpdates {
		return updated
	}

	oldSubs := make(map[string]SubChunkHash, len(old.SubHashes))
	for _, sub := range old.SubHashes {
		oldSubs[sub.Hash] = sub
	}

	changedSubs := 0

	for _, sub := range updated.SubHashes {
		if _, kept := oldSubs[sub.Hash]; !kept {
			changedSubs++
		}
	}

	if updated.Metadata == nil {
		updated.Metadata = make(map[string]string)
	}

	updated.Metadata["changed_subchunks"] = strconv.Itoa(changedSubs)
	updated.Metadata["changed_ranges"] = changedRanges(old.Content, updated.Content)

	return updated
}

// changedRanges renders the line ranges differing between two contents as
// "start-end" pairs, computed from a line-level diff.
func changedRanges(oldContent, newContent string) string {
	dmp := diffmatchpatch.New()

	chars1, chars2, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var (
		ranges []string
		lineNo = 1
	)

	for _, d := range diffs {
		count := strings.Count(d.Text, "\n")
		if count == 0 && d.Text != "" {
			count = 1
		}

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			lineNo += count
		case diffmatchpatch.DiffInsert:
			ranges = append(ranges, strconv.Itoa(lineNo)+"-"+strconv.Itoa(lineNo+count-1))
			lineNo += count
		case diffmatchpatch.DiffDelete:
			ranges = append(ranges, strconv.Itoa(lineNo)+"-"+strconv.Itoa(lineNo))
		}
	}

	return strings.Join(ranges, ",")
}

func containsID(ids []string, id string) bool {
	for _, cur := range ids {
		if cur == id {
			return true
		}
	}

	return false
}
