package pipeline

import (
	"github.com/Sumatoshi-tech/codefang-index/internal/semanticir"
)

// SemanticStage enriches the IR with type information: hover queries when
// a language-server client is configured, internal inference otherwise.
// The snapshot is persisted; a store failure degrades to a warning because
// downstream stages only need the in-memory index.
type SemanticStage struct {
	Enricher *semanticir.Enricher
	Store    *semanticir.Store
}

// Name implements Stage.
func (*SemanticStage) Name() string { return "semantic_ir" }

// Execute implements Stage.
func (s *SemanticStage) Execute(sc *StageContext) error {
	if sc.IRDoc == nil {
		return nil
	}

	snap, index := s.Enricher.Enrich(sc.Context, sc.IRDoc, sc.Sources())

	sc.Semantic = snap
	sc.SemanticIndex = index

	if s.Store != nil {
		if err := s.Store.Save(snap); err != nil {
			sc.AddWarning("semantic_ir", err)
		}
	}

	return nil
}
