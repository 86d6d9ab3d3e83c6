// Package changeset computes the added/modified/deleted file sets between
// two git revisions, feeding the discovery stage's incremental mode and the
// graph/chunk stages' incremental paths.
package changeset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/codefang-index/pkg/gitlib"
)

// Set holds the three disjoint path sets produced by a revision diff.
type Set struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Filter configures which paths are eligible to appear in a Set.
type Filter struct {
	// Extensions lists eligible file extensions, including the leading
	// dot (e.g. ".go"). A nil/empty slice means no extension filtering.
	Extensions []string

	// IgnoreGlobs are filepath.Match-style globs matched against the
	// repo-relative path; any match excludes the file.
	IgnoreGlobs []string
}

// Allowed reports whether path survives both the ignore-glob and extension
// rules. Exported so the discovery stage can reuse the same filter when
// walking the working tree in full-index mode.
func (f Filter) Allowed(path string) bool {
	for _, glob := range f.IgnoreGlobs {
		if ok, err := filepath.Match(glob, path); err == nil && ok {
			return false
		}
	}

	if len(f.Extensions) == 0 {
		return true
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range f.Extensions {
		if ext == want {
			return true
		}
	}

	return false
}

// Detector computes change sets between git revisions for one repository.
type Detector struct {
	repo   *gitlib.Repository
	filter Filter
}

// NewDetector builds a Detector over an already-open repository.
func NewDetector(repo *gitlib.Repository, filter Filter) *Detector {
	return &Detector{repo: repo, filter: filter}
}

// Diff returns the added/modified/deleted sets between oldHash and newHash.
// Either hash may be the zero Hash to mean "empty tree" (used for the
// initial commit or a full rebuild baseline).
func (d *Detector) Diff(oldHash, newHash gitlib.Hash) (Set, error) {
	oldTree, err := d.treeFor(oldHash)
	if err != nil {
		return Set{}, fmt.Errorf("changeset: resolve old revision: %w", err)
	}

	newTree, err := d.treeFor(newHash)
	if err != nil {
		return Set{}, fmt.Errorf("changeset: resolve new revision: %w", err)
	}

	changes, err := gitlib.TreeDiff(d.repo, oldTree, newTree)
	if err != nil {
		return Set{}, fmt.Errorf("changeset: diff trees: %w", err)
	}

	return d.toSet(changes), nil
}

// DiffWorkingTree returns the set of changes between a revision and the
// current HEAD, used for "working tree vs HEAD" style incremental runs.
func (d *Detector) DiffWorkingTree(oldHash gitlib.Hash) (Set, error) {
	head, err := d.repo.Head()
	if err != nil {
		return Set{}, fmt.Errorf("changeset: resolve HEAD: %w", err)
	}

	return d.Diff(oldHash, head)
}

func (d *Detector) treeFor(hash gitlib.Hash) (*gitlib.Tree, error) {
	if hash == gitlib.ZeroHash() {
		return nil, nil
	}

	commit, err := d.repo.LookupCommit(context.Background(), hash)
	if err != nil {
		return nil, err
	}

	return commit.Tree()
}

func (d *Detector) toSet(changes gitlib.Changes) Set {
	set := Set{}

	for _, ch := range changes {
		switch ch.Action {
		case gitlib.Insert:
			if d.filter.Allowed(ch.To.Name) {
				set.Added = append(set.Added, ch.To.Name)
			}
		case gitlib.Delete:
			if d.filter.Allowed(ch.From.Name) {
				set.Deleted = append(set.Deleted, ch.From.Name)
			}
		case gitlib.Modify:
			name := ch.To.Name
			if name == "" {
				name = ch.From.Name
			}

			if d.filter.Allowed(name) {
				set.Modified = append(set.Modified, name)
			}
		}
	}

	return set
}
