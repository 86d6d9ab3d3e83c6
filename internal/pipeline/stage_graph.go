package pipeline

import (
	"sort"

	"github.com/Sumatoshi-tech/codefang-index/internal/graphstore"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// GraphStage persists the code graph. Full mode replaces the snapshot
// wholesale. Incremental mode carries the previous snapshot's graph
// forward and surgically updates it: edges whose endpoints live in changed
// files are marked stale (not deleted, so a mid-run failure loses
// nothing), deleted files lose their symbols and any orphaned modules,
// modified files lose their outbound edges, the changed slice is rebuilt
// and upserted, impact analysis reports files worth re-indexing, and the
// stale marks for freshly re-indexed files are cleared last.
type GraphStage struct {
	Graph *graphstore.Store

	// ImpactDepth bounds the transitive dependent closure; zero uses the
	// default.
	ImpactDepth int
}

// Name implements Stage.
func (*GraphStage) Name() string { return "graph" }

// Execute implements Stage.
func (s *GraphStage) Execute(sc *StageContext) error {
	if sc.IRDoc == nil {
		return nil
	}

	if sc.Incremental == nil {
		doc := graphstore.BuildFromIR(sc.IRDoc)
		s.Graph.SaveDocument(doc)

		sc.GraphStats = GraphStats{
			NodesCreated: len(doc.Symbols),
			EdgesCreated: len(doc.Relations),
		}

		return nil
	}

	return s.executeIncremental(sc)
}

func (s *GraphStage) executeIncremental(sc *StageContext) error {
	inc := sc.Incremental

	oldDoc, hadOld := s.Graph.LoadDocument(sc.RepoID, inc.OldSnapshotID)
	if hadOld {
		carried := *oldDoc
		carried.SnapshotID = sc.SnapshotID
		s.Graph.SaveDocument(&carried)
	}

	changedFiles := append(append([]string(nil), inc.Modified...), inc.Deleted...)

	staleMarked := s.Graph.MarkStaleEdges(sc.RepoID, sc.SnapshotID, changedFiles)

	s.Graph.DeleteSymbolsInFiles(sc.RepoID, sc.SnapshotID, inc.Deleted)
	s.Graph.DeleteOutboundEdges(sc.RepoID, sc.SnapshotID, inc.Modified)

	slice := s.changedSlice(sc)
	s.Graph.UpsertSymbols(sc.RepoID, sc.SnapshotID, slice.Symbols)
	s.Graph.UpsertRelations(sc.RepoID, sc.SnapshotID, slice.Relations)

	newDoc, _ := s.Graph.LoadDocument(sc.RepoID, sc.SnapshotID)
	impact := graphstore.AnalyzeImpact(oldDoc, newDoc, changedFiles, s.ImpactDepth)

	reindexed := append(append([]string(nil), inc.Added...), inc.Modified...)
	staleCleared := s.Graph.ClearStaleForFiles(sc.RepoID, sc.SnapshotID, reindexed)

	sc.GraphStats = GraphStats{
		NodesCreated: len(slice.Symbols),
		EdgesCreated: len(slice.Relations),
		StaleEdges:   staleMarked - staleCleared,
	}

	sc.Metadata["stale_edges_marked"] = staleMarked
	sc.Metadata["recommended_reindex_files"] = impact.RecommendedFiles
	sc.Metadata["impact_analysis"] = impact
	sc.Metadata["symbol_change_types"] = changeKinds(impact)

	return nil
}

// changedSlice builds the graph document covering only the re-indexed
// files.
func (s *GraphStage) changedSlice(sc *StageContext) *graphstore.Document {
	sliceDoc := &ir.Document{
		RepoID:        sc.RepoID,
		SnapshotID:    sc.SnapshotID,
		SchemaVersion: sc.IRDoc.SchemaVersion,
	}

	files := append(append([]string(nil), sc.Incremental.Added...), sc.Incremental.Modified...)

	for _, file := range files {
		if doc, ok := sc.PerFileIR[file]; ok {
			sliceDoc.Nodes = append(sliceDoc.Nodes, doc.Nodes...)
			sliceDoc.Edges = append(sliceDoc.Edges, doc.Edges...)
		}
	}

	return graphstore.BuildFromIR(sliceDoc)
}

func changeKinds(impact *graphstore.ImpactReport) []string {
	seen := make(map[string]struct{})

	for _, ch := range impact.Changes {
		seen[string(ch.Kind)] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
