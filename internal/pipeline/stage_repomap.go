package pipeline

import (
	"github.com/Sumatoshi-tech/codefang-index/internal/repomap"
)

// RepoMapStage builds the project-structure summary used to weight later
// indexed documents.
type RepoMapStage struct {
	Builder *repomap.Builder
}

// Name implements Stage.
func (*RepoMapStage) Name() string { return "repomap" }

// Execute implements Stage.
func (s *RepoMapStage) Execute(sc *StageContext) error {
	if sc.IRDoc == nil {
		return nil
	}

	sc.RepoMap = s.Builder.Build(sc.Context, sc.IRDoc, sc.Sources())

	return nil
}
