package graphstore

import (
	"sort"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// maxPathDepth bounds shortest-path searches so a pathological graph cannot
// pin a query goroutine.
const maxPathDepth = 16

// SymbolsByName returns symbols whose name contains the query,
// case-insensitively, in deterministic id order.
func (s *Store) SymbolsByName(repoID, snapshotID, query string, limit int) []Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return nil
	}

	var out []Symbol

	for _, sym := range t.symbols {
		if containsFold(sym.Name, query) {
			out = append(out, sym)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// Callers returns the symbols with a calls relationship targeting id.
func (s *Store) Callers(repoID, snapshotID, id string) []Symbol {
	return s.neighbors(repoID, snapshotID, id, ir.EdgeCalls, false)
}

// Callees returns the symbols the given symbol calls.
func (s *Store) Callees(repoID, snapshotID, id string) []Symbol {
	return s.neighbors(repoID, snapshotID, id, ir.EdgeCalls, true)
}

func (s *Store) neighbors(repoID, snapshotID, id string, kind ir.EdgeKind, outbound bool) []Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return nil
	}

	index := t.byTarget
	if outbound {
		index = t.bySource
	}

	var out []Symbol

	for _, relID := range index[id] {
		r, ok := t.rels[relID]
		if !ok || r.Kind != kind {
			continue
		}

		otherID := r.SourceID
		if outbound {
			otherID = r.TargetID
		}

		if sym, symOK := t.symbols[otherID]; symOK {
			out = append(out, sym)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// ShortestPath returns the symbol ids along the shortest relationship path
// from one symbol to another, following edges in either direction, or nil
// when no path exists within the depth bound. BFS with a visited set keeps
// cyclic graphs terminating.
func (s *Store) ShortestPath(repoID, snapshotID, fromID, toID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tablesFor(repoID, snapshotID, false)
	if t == nil {
		return nil
	}

	if _, ok := t.symbols[fromID]; !ok {
		return nil
	}

	if fromID == toID {
		return []string{fromID}
	}

	type queued struct {
		id    string
		depth int
	}

	visited := map[string]string{fromID: ""} // id -> predecessor
	queue := []queued{{id: fromID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxPathDepth {
			continue
		}

		for _, next := range t.adjacent(cur.id) {
			if _, seen := visited[next]; seen {
				continue
			}

			visited[next] = cur.id

			if next == toID {
				return rebuildPath(visited, toID)
			}

			queue = append(queue, queued{id: next, depth: cur.depth + 1})
		}
	}

	return nil
}

func (t *tables) adjacent(id string) []string {
	var out []string

	for _, relID := range t.bySource[id] {
		if r, ok := t.rels[relID]; ok {
			out = append(out, r.TargetID)
		}
	}

	for _, relID := range t.byTarget[id] {
		if r, ok := t.rels[relID]; ok {
			out = append(out, r.SourceID)
		}
	}

	sort.Strings(out)

	return out
}

func rebuildPath(visited map[string]string, toID string) []string {
	var path []string

	for id := toID; id != ""; id = visited[id] {
		path = append([]string{id}, path...)
	}

	return path
}

// BuildFromIR converts an IR document into a graph document, carrying
// every node as a symbol row and every edge as a relationship row.
func BuildFromIR(doc *ir.Document) *Document {
	out := &Document{RepoID: doc.RepoID, SnapshotID: doc.SnapshotID}

	for _, n := range doc.Nodes {
		out.Symbols = append(out.Symbols, Symbol{
			ID:       n.ID,
			Name:     n.Name,
			FQN:      n.FQN,
			Kind:     n.Kind,
			FilePath: n.FilePath,
			Span:     n.Span,
			Language: n.Language,
		})
	}

	for _, e := range doc.Edges {
		out.Relations = append(out.Relations, Relationship{
			ID:       e.ID,
			Kind:     e.Kind,
			SourceID: e.SourceID,
			TargetID: e.TargetID,
			Stale:    e.Stale,
		})
	}

	return out
}
