// Package semanticir enriches the IR with type information: a typed hover
// snapshot per repository revision, a compressed on-disk store with a
// keep-N retention policy, and the language-server port used to obtain
// hover types with an internal-inference fallback.
package semanticir

import (
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// TypeEntry records the resolved type string for one source span.
type TypeEntry struct {
	File string  `json:"file"`
	Span ir.Span `json:"span"`
	Type string  `json:"type"`
}

// Snapshot is an immutable mapping (file, span) -> type-string for one
// revision of one project. Once saved it is never mutated; a new revision
// produces a new snapshot.
type Snapshot struct {
	SnapshotID string      `json:"snapshot_id"`
	ProjectID  string      `json:"project_id"`
	Files      []string    `json:"files"`
	Entries    []TypeEntry `json:"entries"`
}

// typeKey identifies one entry for lookup.
type typeKey struct {
	file string
	span ir.Span
}

// Index is a lookup view over a snapshot's entries.
type Index struct {
	types map[typeKey]string
}

// NewIndex builds the lookup index for a snapshot.
func NewIndex(s *Snapshot) *Index {
	idx := &Index{types: make(map[typeKey]string, len(s.Entries))}
	for _, e := range s.Entries {
		idx.types[typeKey{file: e.File, span: e.Span}] = e.Type
	}

	return idx
}

// TypeAt returns the type string recorded for (file, span), if any.
func (idx *Index) TypeAt(file string, span ir.Span) (string, bool) {
	t, ok := idx.types[typeKey{file: file, span: span}]

	return t, ok
}

// Len returns the number of typed spans in the index.
func (idx *Index) Len() int { return len(idx.types) }

// Equal reports whether two snapshots carry the same identity and entries
// in the same order.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s.SnapshotID != other.SnapshotID || s.ProjectID != other.ProjectID {
		return false
	}

	if len(s.Files) != len(other.Files) || len(s.Entries) != len(other.Entries) {
		return false
	}

	for i, f := range s.Files {
		if other.Files[i] != f {
			return false
		}
	}

	for i, e := range s.Entries {
		if other.Entries[i] != e {
			return false
		}
	}

	return true
}
