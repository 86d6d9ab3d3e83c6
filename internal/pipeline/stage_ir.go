package pipeline

import (
	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/bfg"
	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// IRStage lowers parsed files into the intermediate representation and
// builds the per-function flow graphs on top of it. The layered builder
// handles the whole file list with a worker pool; when it is disabled the
// legacy per-file builder runs sequentially as the fallback.
type IRStage struct {
	Pool   *astpool.Pool
	Config ir.BuildConfig

	// UseLegacy forces the per-file fallback builder.
	UseLegacy bool

	// RealtimeAnalysis additionally folds each function's cyclomatic
	// weight back into its IR node as a complexity hint.
	RealtimeAnalysis bool
}

// Name implements Stage.
func (*IRStage) Name() string { return "ir" }

// Execute implements Stage.
func (s *IRStage) Execute(sc *StageContext) error {
	files := make([]string, 0, len(sc.ASTByFile))
	for f := range sc.ASTByFile {
		files = append(files, f)
	}

	sources := sc.Sources()
	languages := sc.LanguagesByFile()

	if s.UseLegacy {
		return s.executeLegacy(sc, files, sources, languages)
	}

	perFile, totals, err := ir.BuildFiles(sc.Context, sc.RepoID, sc.SnapshotID, files, sources, languages, s.Pool, s.Config)
	if err != nil {
		return err
	}

	for _, failed := range totals.FailedFiles {
		ferr := &errs.IRGenerationError{File: failed, Err: errs.ErrIRGeneration}

		if !sc.ContinueOnError {
			return ferr
		}

		sc.AddWarning("ir", ferr)
	}

	sc.PerFileIR = perFile
	sc.IRDoc = ir.Merge(sc.RepoID, sc.SnapshotID, perFile)
	sc.Metadata["ir_totals"] = totals

	s.buildFlowGraphs(sc)

	return nil
}

// buildFlowGraphs produces one flow graph per function and one virtual
// graph per file for module-level code, caching parsed trees across
// functions of the same file.
func (s *IRStage) buildFlowGraphs(sc *StageContext) {
	cache := bfg.NewASTCache(s.Pool, len(sc.Files))
	sc.FlowGraphs = make(map[string]*bfg.Graph)

	complexity := make(map[string]int)

	for file, doc := range sc.PerFileIR {
		ast, ok := sc.ASTByFile[file]
		if !ok || ast.Language == ir.TextLanguage {
			continue
		}

		parse, err := cache.Parse(sc.Context, file, ast.Language, ast.Content)
		if err != nil {
			sc.AddWarning("ir", err)

			continue
		}

		builder := bfg.NewBuilder(ast.Language)

		var fileID string

		for _, n := range doc.Nodes {
			switch n.Kind {
			case ir.KindFile:
				fileID = n.ID

				continue
			case ir.KindFunction, ir.KindMethod:
			default:
				continue
			}

			g, buildErr := builder.Build(bfg.FunctionInput{
				FunctionNodeID: n.ID,
				StartLine:      n.Span.StartLine,
				Parse:          parse,
			})
			if buildErr != nil {
				sc.AddWarning("ir", buildErr)

				continue
			}

			sc.FlowGraphs[n.ID] = g

			if s.RealtimeAnalysis {
				weight := 0
				for _, blk := range g.Blocks {
					weight += blk.Weight
				}

				complexity[n.ID] = g.TotalStatements + weight
			}
		}

		if fileID != "" {
			moduleID := fileID + ":<module>"
			sc.FlowGraphs[moduleID] = builder.BuildModule(moduleID, parse)
		}
	}

	if s.RealtimeAnalysis {
		for i, n := range sc.IRDoc.Nodes {
			if hint, ok := complexity[n.ID]; ok {
				sc.IRDoc.Nodes[i].ComplexityHint = hint
			}
		}

		sc.Metadata["realtime_analysis"] = len(complexity)
	}

	sc.Metadata["flow_graphs"] = len(sc.FlowGraphs)
}

func (s *IRStage) executeLegacy(sc *StageContext, files []string, sources map[string][]byte, languages map[string]string) error {
	perFile := make(map[string]*ir.Document, len(files))

	for _, file := range files {
		doc, err := ir.BuildFileLegacy(sc.Context, sc.RepoID, sc.SnapshotID, file, sources[file], languages[file], s.Pool, s.Config)
		if err != nil {
			if !sc.ContinueOnError {
				return err
			}

			sc.AddWarning("ir", err)

			continue
		}

		perFile[file] = doc
	}

	sc.PerFileIR = perFile
	sc.IRDoc = ir.Merge(sc.RepoID, sc.SnapshotID, perFile)

	s.buildFlowGraphs(sc)

	return nil
}
