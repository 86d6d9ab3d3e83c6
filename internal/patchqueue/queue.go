// Package patchqueue persists patch proposals and dequeues them in FIFO
// order per (repo, file) so concurrent agents never apply patches to the
// same file out of order.
package patchqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
)

// Status enumerates a proposal's lifecycle states.
type Status string

// Proposal statuses.
const (
	StatusPending    Status = "pending"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
	StatusConflict   Status = "conflict"
	StatusSuperseded Status = "superseded"
)

// DefaultCleanupAge is how long terminal proposals are retained.
const DefaultCleanupAge = 7 * 24 * time.Hour

// Proposal is one unified-diff patch against one file.
type Proposal struct {
	PatchID        string    `json:"patch_id"`
	RepoID         string    `json:"repo_id"`
	FilePath       string    `json:"file_path"`
	PatchContent   string    `json:"patch_content"`
	BaseContent    string    `json:"base_content"`
	BaseVersionID  string    `json:"base_version_id"`
	IndexVersionID string    `json:"index_version_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type fileKey struct {
	repoID   string
	filePath string
}

// Queue holds proposals, unique by patch id, dequeued FIFO per file.
type Queue struct {
	mu        sync.Mutex
	proposals map[string]*Proposal
	byFile    map[fileKey][]string
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		proposals: make(map[string]*Proposal),
		byFile:    make(map[fileKey][]string),
	}
}

// Enqueue stores a pending proposal, assigning an id, base version hash,
// and creation time when absent.
func (q *Queue) Enqueue(p Proposal) string {
	if p.PatchID == "" {
		p.PatchID = uuid.NewString()
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	if p.BaseVersionID == "" {
		sum := sha256.Sum256([]byte(p.BaseContent))
		p.BaseVersionID = hex.EncodeToString(sum[:])
	}

	p.Status = StatusPending

	q.mu.Lock()
	defer q.mu.Unlock()

	key := fileKey{repoID: p.RepoID, filePath: p.FilePath}

	q.proposals[p.PatchID] = &p
	q.byFile[key] = append(q.byFile[key], p.PatchID)
	q.sortFileLocked(key)

	return p.PatchID
}

// sortFileLocked keeps a file's proposals in created_at order, ties broken
// by patch id.
func (q *Queue) sortFileLocked(key fileKey) {
	ids := q.byFile[key]

	sort.SliceStable(ids, func(i, j int) bool {
		a, b := q.proposals[ids[i]], q.proposals[ids[j]]

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.PatchID < b.PatchID
	})
}

// DequeueNext returns the oldest pending proposal for a file, if any,
// without changing its status.
func (q *Queue) DequeueNext(repoID, filePath string) (Proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.byFile[fileKey{repoID: repoID, filePath: filePath}] {
		if p := q.proposals[id]; p.Status == StatusPending {
			return *p, true
		}
	}

	return Proposal{}, false
}

// Get returns a proposal by id.
func (q *Queue) Get(patchID string) (Proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.proposals[patchID]
	if !ok {
		return Proposal{}, false
	}

	return *p, true
}

// PendingByRepo lists pending proposals across a repo, FIFO within each
// file, files in path order.
func (q *Queue) PendingByRepo(repoID string) []Proposal {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]fileKey, 0, len(q.byFile))

	for key := range q.byFile {
		if key.repoID == repoID {
			keys = append(keys, key)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].filePath < keys[j].filePath })

	var out []Proposal

	for _, key := range keys {
		for _, id := range q.byFile[key] {
			if p := q.proposals[id]; p.Status == StatusPending {
				out = append(out, *p)
			}
		}
	}

	return out
}

// MarkApplied transitions a proposal after verifying its base still
// matches currentContent; a mismatch marks it conflicted and returns a
// patch conflict error.
func (q *Queue) MarkApplied(patchID, currentContent string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.proposals[patchID]
	if !ok {
		return &errs.PatchConflictError{PatchID: patchID}
	}

	sum := sha256.Sum256([]byte(currentContent))
	if hex.EncodeToString(sum[:]) != p.BaseVersionID {
		p.Status = StatusConflict

		return &errs.PatchConflictError{PatchID: patchID, FilePath: p.FilePath}
	}

	p.Status = StatusApplied

	// Every other pending proposal against the same base is now superseded.
	for _, id := range q.byFile[fileKey{repoID: p.RepoID, filePath: p.FilePath}] {
		if other := q.proposals[id]; other.PatchID != patchID && other.Status == StatusPending && other.BaseVersionID == p.BaseVersionID {
			other.Status = StatusSuperseded
		}
	}

	return nil
}

// MarkFailed transitions a proposal to failed.
func (q *Queue) MarkFailed(patchID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if p, ok := q.proposals[patchID]; ok {
		p.Status = StatusFailed
	}
}

// Cleanup removes terminal proposals older than maxAge, returning how many
// were removed.
func (q *Queue) Cleanup(maxAge time.Duration, now time.Time) int {
	if maxAge <= 0 {
		maxAge = DefaultCleanupAge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0

	for id, p := range q.proposals {
		if p.Status == StatusPending || now.Sub(p.CreatedAt) <= maxAge {
			continue
		}

		key := fileKey{repoID: p.RepoID, filePath: p.FilePath}

		delete(q.proposals, id)

		ids := q.byFile[key]
		for i, cur := range ids {
			if cur == id {
				q.byFile[key] = append(ids[:i], ids[i+1:]...)

				break
			}
		}

		removed++
	}

	return removed
}
