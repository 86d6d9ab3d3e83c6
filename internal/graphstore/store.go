// Package graphstore is the embedded code-graph store: one flat Symbol
// table and one flat Relationship table, keyed by (repo_id, snapshot_id)
// for snapshot isolation. Symbols reference each other only through opaque
// ids; traversal walks the tables with a visited set, so cyclic relations
// (mutual recursion, circular imports) need no special casing.
package graphstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// Symbol is one row of the node table.
type Symbol struct {
	ID       string
	Name     string
	FQN      string
	Kind     ir.NodeKind
	FilePath string
	Span     ir.Span
	Language string
}

// Relationship is one row of the edge table. Stale marks a cross-file edge
// whose source or target file has changed and whose validity is pending
// re-check.
type Relationship struct {
	ID       string
	Kind     ir.EdgeKind
	SourceID string
	TargetID string
	Stale    bool
}

// Document is the persisted graph for one (repo, snapshot) pair.
type Document struct {
	RepoID     string
	SnapshotID string
	Symbols    []Symbol
	Relations  []Relationship
}

type snapshotKey struct {
	repoID     string
	snapshotID string
}

type tables struct {
	symbols  map[string]Symbol
	rels     map[string]Relationship
	bySource map[string][]string // symbol id -> relationship ids
	byTarget map[string][]string
	byFile   map[string][]string // file path -> symbol ids
}

func newTables() *tables {
	return &tables{
		symbols:  make(map[string]Symbol),
		rels:     make(map[string]Relationship),
		bySource: make(map[string][]string),
		byTarget: make(map[string][]string),
		byFile:   make(map[string][]string),
	}
}

// Store holds the graph tables for any number of snapshots.
type Store struct {
	mu    sync.RWMutex
	snaps map[snapshotKey]*tables
}

// New creates an empty graph store.
func New() *Store {
	return &Store{snaps: make(map[snapshotKey]*tables)}
}

func (s *Store) tablesFor(repoID, snapshotID string, create bool) *tables {
	key := snapshotKey{repoID: repoID, snapshotID: snapshotID}

	t, ok := s.snaps[key]
	if !ok && create {
		t = newTables()
		s.snaps[key] = t
	}

	return t
}

// UpsertSymbols inserts or replaces symbol rows.
func (s *Store) UpsertSymbols(repoID, snapshotID string, symbols []Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, true)

	for _, sym := range symbols {
		if old, ok := t.symbols[sym.ID]; ok {
			t.byFile[old.FilePath] = removeID(t.byFile[old.FilePath], sym.ID)
		}

		t.symbols[sym.ID] = sym
		t.byFile[sym.FilePath] = append(t.byFile[sym.FilePath], sym.ID)
	}
}

// UpsertRelations inserts or replaces relationship rows.
func (s *Store) UpsertRelations(repoID, snapshotID string, rels []Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, true)

	for _, r := range rels {
		if old, ok := t.rels[r.ID]; ok {
			t.bySource[old.SourceID] = removeID(t.bySource[old.SourceID], r.ID)
			t.byTarget[old.TargetID] = removeID(t.byTarget[old.TargetID], r.ID)
		}

		t.rels[r.ID] = r
		t.bySource[r.SourceID] = append(t.bySource[r.SourceID], r.ID)
		t.byTarget[r.TargetID] = append(t.byTarget[r.TargetID], r.ID)
	}
}

// SaveDocument replaces the whole snapshot with the given document.
func (s *Store) SaveDocument(doc *Document) {
	s.mu.Lock()
	s.snaps[snapshotKey{repoID: doc.RepoID, snapshotID: doc.SnapshotID}] = newTables()
	s.mu.Unlock()

	s.UpsertSymbols(doc.RepoID, doc.SnapshotID, doc.Symbols)
	s.UpsertRelations(doc.RepoID, doc.SnapshotID, doc.Relations)
}

// LoadDocument returns a copy of the snapshot's tables, with rows in
// deterministic id order, and whether the snapshot exists.
func (s *Store) LoadDocument(repoID, snapshotID string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return nil, false
	}

	doc := &Document{RepoID: repoID, SnapshotID: snapshotID}

	for _, sym := range t.symbols {
		doc.Symbols = append(doc.Symbols, sym)
	}

	for _, r := range t.rels {
		doc.Relations = append(doc.Relations, r)
	}

	sort.Slice(doc.Symbols, func(i, j int) bool { return doc.Symbols[i].ID < doc.Symbols[j].ID })
	sort.Slice(doc.Relations, func(i, j int) bool { return doc.Relations[i].ID < doc.Relations[j].ID })

	return doc, true
}

// DeleteSnapshot drops all rows for one (repo, snapshot) pair.
func (s *Store) DeleteSnapshot(repoID, snapshotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snaps, snapshotKey{repoID: repoID, snapshotID: snapshotID})
}

// DeleteSymbolsInFiles removes every symbol declared in the given files,
// their incident relationships, and any module symbol left with no
// remaining members.
func (s *Store) DeleteSymbolsInFiles(repoID, snapshotID string, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return
	}

	for _, file := range files {
		for _, id := range append([]string(nil), t.byFile[file]...) {
			t.deleteSymbol(id)
		}

		delete(t.byFile, file)
	}

	t.dropOrphanModules()
}

// DeleteOutboundEdges removes every relationship whose source symbol lies
// in one of the given files.
func (s *Store) DeleteOutboundEdges(repoID, snapshotID string, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return
	}

	fileSet := toSet(files)

	for id, r := range t.rels {
		src, ok := t.symbols[r.SourceID]
		if ok && fileSet[src.FilePath] {
			t.deleteRelation(id)
		}
	}
}

// MarkStaleEdges flags cross-file relationships whose source or target lies
// in one of the changed files, returning how many were marked. Flagged edges survive
// until the files are re-indexed, so a mid-run failure never drops them.
func (s *Store) MarkStaleEdges(repoID, snapshotID string, changedFiles []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return 0
	}

	fileSet := toSet(changedFiles)
	marked := 0

	for id, r := range t.rels {
		src, srcOK := t.symbols[r.SourceID]
		tgt, tgtOK := t.symbols[r.TargetID]

		if !srcOK || !tgtOK || src.FilePath == tgt.FilePath {
			continue
		}

		if fileSet[src.FilePath] || fileSet[tgt.FilePath] {
			r.Stale = true
			t.rels[id] = r
			marked++
		}
	}

	return marked
}

// ClearStaleForFiles unflags relationships incident to freshly re-indexed
// files, returning how many were cleared.
func (s *Store) ClearStaleForFiles(repoID, snapshotID string, files []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return 0
	}

	fileSet := toSet(files)
	cleared := 0

	for id, r := range t.rels {
		if !r.Stale {
			continue
		}

		src, srcOK := t.symbols[r.SourceID]
		tgt, tgtOK := t.symbols[r.TargetID]

		srcIn := srcOK && fileSet[src.FilePath]
		tgtIn := tgtOK && fileSet[tgt.FilePath]

		if srcIn || tgtIn {
			r.Stale = false
			t.rels[id] = r
			cleared++
		}
	}

	return cleared
}

func (t *tables) deleteSymbol(id string) {
	sym, ok := t.symbols[id]
	if !ok {
		return
	}

	for _, relID := range append([]string(nil), t.bySource[id]...) {
		t.deleteRelation(relID)
	}

	for _, relID := range append([]string(nil), t.byTarget[id]...) {
		t.deleteRelation(relID)
	}

	delete(t.symbols, id)
	delete(t.bySource, id)
	delete(t.byTarget, id)
	t.byFile[sym.FilePath] = removeID(t.byFile[sym.FilePath], id)
}

func (t *tables) deleteRelation(id string) {
	r, ok := t.rels[id]
	if !ok {
		return
	}

	delete(t.rels, id)
	t.bySource[r.SourceID] = removeID(t.bySource[r.SourceID], id)
	t.byTarget[r.TargetID] = removeID(t.byTarget[r.TargetID], id)
}

// dropOrphanModules removes module symbols with no remaining contains
// edges to surviving members.
func (t *tables) dropOrphanModules() {
	for id, sym := range t.symbols {
		if sym.Kind != ir.KindModule {
			continue
		}

		hasMember := false

		for _, relID := range t.bySource[id] {
			if r, ok := t.rels[relID]; ok && r.Kind == ir.EdgeContains {
				if _, alive := t.symbols[r.TargetID]; alive {
					hasMember = true

					break
				}
			}
		}

		if !hasMember {
			t.deleteSymbol(id)
		}
	}
}

func removeID(ids []string, id string) []string {
	for i, cur := range ids {
		if cur == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}

	return ids
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}

	return m
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
