package pipeline

import (
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
	"github.com/Sumatoshi-tech/codefang-index/internal/repomap"
)

// MultiIndexStage dispatches the snapshot to every index adapter. The
// adapters run in parallel; each failure becomes a warning and never
// aborts the others. Incremental runs delete removed chunk ids and upsert
// only the changed documents through the indexing service.
type MultiIndexStage struct {
	Service *indexing.Service
	Chunks  *chunking.Store
}

// Name implements Stage.
func (*MultiIndexStage) Name() string { return "multi_index" }

// Execute implements Stage.
func (s *MultiIndexStage) Execute(sc *StageContext) error {
	opts := s.transformOptions(sc)

	if sc.Incremental != nil {
		refresh, _ := sc.Metadata["refresh_result"].(*chunking.RefreshResult)
		if refresh == nil {
			return nil
		}

		report := s.Service.IndexRepoIncremental(sc.Context, sc.RepoID, sc.SnapshotID, refresh, opts)
		for _, err := range report.Errors {
			sc.AddWarning("multi_index", err)
		}

		sc.Metadata["index_docs"] = report.DocsPerAdapter

		return nil
	}

	chunks := s.Chunks.All(sc.RepoID, sc.SnapshotID)
	docs := indexing.Transform(chunks, opts)

	docsPerAdapter := make(map[string]int, len(s.Service.Adapters))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, adapter := range s.Service.Adapters {
		wg.Add(1)

		go func(adapter indexing.Adapter) {
			defer wg.Done()

			err := adapter.Index(sc.Context, sc.RepoID, sc.SnapshotID, docs)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				sc.AddWarning("multi_index", err)

				return
			}

			docsPerAdapter[adapter.Name()] = len(docs)
		}(adapter)
	}

	wg.Wait()

	sc.Metadata["index_docs"] = docsPerAdapter

	return nil
}

func (s *MultiIndexStage) transformOptions(sc *StageContext) indexing.TransformOptions {
	opts := indexing.TransformOptions{Languages: sc.LanguagesByFile()}

	if m, ok := sc.RepoMap.(*repomap.Map); ok && m != nil {
		opts.Importance = m.ImportanceByFile()

		summaries := make(map[string]string)

		for p, f := range m.Files {
			if f.Summary != "" {
				summaries[chunking.FileChunkID(p)] = f.Summary
			}
		}

		opts.Summaries = summaries
	}

	return opts
}
