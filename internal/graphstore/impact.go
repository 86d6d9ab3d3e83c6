package graphstore

import "sort"

// DefaultImpactDepth bounds the transitive dependent closure.
const DefaultImpactDepth = 3

// SymbolChangeKind classifies one symbol-level difference between two
// snapshots of the graph.
type SymbolChangeKind string

// Symbol change kinds detected by impact analysis.
const (
	SymbolAdded            SymbolChangeKind = "added"
	SymbolRemoved          SymbolChangeKind = "removed"
	SymbolSignatureChanged SymbolChangeKind = "signature_changed"
)

// SymbolChange is one detected difference.
type SymbolChange struct {
	SymbolID string
	FQN      string
	FilePath string
	Kind     SymbolChangeKind
}

// ImpactReport is the result of impact analysis: symbol-level changes, the
// transitive dependents of each changed symbol, and files worth re-indexing
// that were not already in the change set. The recommendation is a
// non-binding hint the next incremental run may consume.
type ImpactReport struct {
	Changes          []SymbolChange
	AffectedSymbols  []string
	RecommendedFiles []string
}

// AnalyzeImpact diffs two graph documents against a changed-file set and
// walks reverse dependencies up to depth levels (DefaultImpactDepth when
// depth <= 0).
func AnalyzeImpact(oldDoc, newDoc *Document, changedFiles []string, depth int) *ImpactReport {
	if depth <= 0 {
		depth = DefaultImpactDepth
	}

	report := &ImpactReport{}
	changed := toSet(changedFiles)

	oldByID := symbolMap(oldDoc)
	newByID := symbolMap(newDoc)

	for id, sym := range newByID {
		if !changed[sym.FilePath] {
			continue
		}

		old, existed := oldByID[id]

		switch {
		case !existed:
			report.Changes = append(report.Changes, SymbolChange{SymbolID: id, FQN: sym.FQN, FilePath: sym.FilePath, Kind: SymbolAdded})
		case old.Span != sym.Span || old.FQN != sym.FQN:
			report.Changes = append(report.Changes, SymbolChange{SymbolID: id, FQN: sym.FQN, FilePath: sym.FilePath, Kind: SymbolSignatureChanged})
		}
	}

	for id, sym := range oldByID {
		if !changed[sym.FilePath] {
			continue
		}

		if _, still := newByID[id]; !still {
			report.Changes = append(report.Changes, SymbolChange{SymbolID: id, FQN: sym.FQN, FilePath: sym.FilePath, Kind: SymbolRemoved})
		}
	}

	sort.Slice(report.Changes, func(i, j int) bool { return report.Changes[i].SymbolID < report.Changes[j].SymbolID })

	// Dependents are computed over the old graph: callers that existed
	// before the change are the ones whose behaviour the change can break.
	reverse := reverseAdjacency(oldDoc)
	affected := make(map[string]struct{})

	for _, ch := range report.Changes {
		collectDependents(reverse, ch.SymbolID, depth, affected)
	}

	files := make(map[string]struct{})

	for id := range affected {
		report.AffectedSymbols = append(report.AffectedSymbols, id)

		if sym, ok := oldByID[id]; ok && !changed[sym.FilePath] {
			files[sym.FilePath] = struct{}{}
		}
	}

	sort.Strings(report.AffectedSymbols)

	for f := range files {
		report.RecommendedFiles = append(report.RecommendedFiles, f)
	}

	sort.Strings(report.RecommendedFiles)

	return report
}

func symbolMap(doc *Document) map[string]Symbol {
	if doc == nil {
		return nil
	}

	m := make(map[string]Symbol, len(doc.Symbols))
	for _, sym := range doc.Symbols {
		m[sym.ID] = sym
	}

	return m
}

func reverseAdjacency(doc *Document) map[string][]string {
	m := make(map[string][]string)

	if doc == nil {
		return m
	}

	for _, r := range doc.Relations {
		m[r.TargetID] = append(m[r.TargetID], r.SourceID)
	}

	return m
}

func collectDependents(reverse map[string][]string, id string, depth int, out map[string]struct{}) {
	if depth == 0 {
		return
	}

	for _, dep := range reverse[id] {
		if _, seen := out[dep]; seen {
			continue
		}

		out[dep] = struct{}{}
		collectDependents(reverse, dep, depth-1, out)
	}
}
