// Package ir defines the language-agnostic intermediate representation
// shared by every downstream stage of the indexing pipeline: nodes and
// edges derived from parsed source, grouped per snapshot.
package ir

import "fmt"

// NodeKind enumerates the IR node categories.
type NodeKind string

// Node kinds produced by the IR stage.
const (
	KindFile     NodeKind = "file"
	KindModule   NodeKind = "module"
	KindClass    NodeKind = "class"
	KindFunction NodeKind = "function"
	KindMethod   NodeKind = "method"
	KindVariable NodeKind = "variable"
)

// EdgeKind enumerates the IR edge categories.
type EdgeKind string

// Edge kinds produced by the IR and graph stages.
const (
	EdgeContains   EdgeKind = "contains"
	EdgeCalls      EdgeKind = "calls"
	EdgeImports    EdgeKind = "imports"
	EdgeInherits   EdgeKind = "inherits"
	EdgeReferences EdgeKind = "references"
)

// Span is an immutable source range. Lines are 1-indexed, columns are
// 0-indexed, matching the convention used throughout the pipeline.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Valid reports whether the span satisfies start <= end.
func (s Span) Valid() bool {
	if s.StartLine != s.EndLine {
		return s.StartLine <= s.EndLine
	}

	return s.StartCol <= s.EndCol
}

// String renders the span as "line:col-line:col" for diagnostics.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Node is a single IR entity: a file, module, class, function, method, or
// variable. Node identity (ID, FQN) is unique within one snapshot.
type Node struct {
	ID       string
	Kind     NodeKind
	FQN      string
	Name     string
	FilePath string
	Span     Span
	Language string

	// ComplexityHint is an optional cyclomatic-weight estimate folded in
	// from the flow-graph builder; zero when not computed.
	ComplexityHint int
}

// Edge is a directed relationship between two nodes in the same snapshot.
type Edge struct {
	ID       string
	Kind     EdgeKind
	SourceID string
	TargetID string

	// Stale marks a cross-file edge whose source or target file has changed
	// since the edge was last verified (see graph stage incremental mode).
	Stale bool
}

// UnresolvedCall records a call whose callee is not defined in the same
// file; the cross-file pass resolves these against the full build.
type UnresolvedCall struct {
	CallerID string
	Callee   string
}

// Document is the IR produced for one repository snapshot: repo_id and
// snapshot_id tag every artefact so snapshots never mix.
type Document struct {
	RepoID        string
	SnapshotID    string
	SchemaVersion int
	Nodes         []Node
	Edges         []Edge

	// UnresolvedCalls is transient builder state, not persisted.
	UnresolvedCalls []UnresolvedCall
}

// NodeByID returns the node with the given ID and whether it was found.
func (d *Document) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}

// Validate checks the document's structural invariants: every node span
// is well-formed and every edge's endpoints exist in the same document.
func (d *Document) Validate() error {
	ids := make(map[string]struct{}, len(d.Nodes))

	for _, n := range d.Nodes {
		if !n.Span.Valid() {
			return fmt.Errorf("%w: node %s has inverted span %s", ErrInvalidSpan, n.ID, n.Span)
		}

		ids[n.ID] = struct{}{}
	}

	for _, e := range d.Edges {
		if _, ok := ids[e.SourceID]; !ok {
			return fmt.Errorf("%w: edge %s source %s", ErrDanglingEdge, e.ID, e.SourceID)
		}

		if _, ok := ids[e.TargetID]; !ok {
			return fmt.Errorf("%w: edge %s target %s", ErrDanglingEdge, e.ID, e.TargetID)
		}
	}

	return nil
}
