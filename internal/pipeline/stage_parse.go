package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/pkg/textutil"
)

// extensionLanguages is the fallback language table when content-based
// detection is inconclusive.
var extensionLanguages = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".java": "java",
	".kt":   "kotlin",
	".go":   "go",
}

// enryLanguages normalises detector output to grammar names.
var enryLanguages = map[string]string{
	"Python":     "python",
	"JavaScript": "javascript",
	"TypeScript": "typescript",
	"TSX":        "tsx",
	"Java":       "java",
	"Kotlin":     "kotlin",
	"Go":         "go",
}

// ParsingStage reads and parses every discovered file. Parallel mode runs
// a fixed worker pool with pooled per-worker parsers; sequential mode is
// the deterministic fallback. The stop flag is polled between files so a
// cancelled run returns promptly, and files recorded as completed in the
// progress record are skipped on resume.
type ParsingStage struct {
	Pool *astpool.Pool

	Parallel   bool
	MaxWorkers int

	// SkipParseErrors turns a per-file parse failure into a warning.
	SkipParseErrors bool

	// Stop is the cooperative cancellation flag; nil means never stop.
	Stop *atomic.Bool

	// Progress records completed files for resumable runs; nil disables.
	Progress *ProgressRecord
}

// Name implements Stage.
func (*ParsingStage) Name() string { return "parsing" }

// Execute implements Stage.
func (s *ParsingStage) Execute(sc *StageContext) error {
	pending := make([]string, 0, len(sc.Files))

	for _, file := range sc.Files {
		if s.Progress != nil && s.Progress.IsCompleted(file) {
			continue
		}

		pending = append(pending, file)
	}

	if skipped := len(sc.Files) - len(pending); skipped > 0 {
		sc.Metadata["files_skipped"] = skipped
	}

	if s.Parallel && s.MaxWorkers > 1 {
		return s.executeParallel(sc, pending)
	}

	for _, file := range pending {
		if s.stopped() {
			sc.Metadata["parsing_stopped"] = true

			return nil
		}

		if err := s.parseOne(sc, file); err != nil {
			if !s.SkipParseErrors {
				return err
			}

			sc.AddWarning("parsing", err)
		}
	}

	return nil
}

func (s *ParsingStage) executeParallel(sc *StageContext, pending []string) error {
	type parsed struct {
		file string
		ast  FileAST
		err  error
	}

	work := make(chan string)
	results := make(chan parsed)

	var wg sync.WaitGroup

	for i := 0; i < s.MaxWorkers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for file := range work {
				ast, err := s.loadAndParse(sc, file)
				results <- parsed{file: file, ast: ast, err: err}
			}
		}()
	}

	go func() {
		defer close(work)

		for _, file := range pending {
			if s.stopped() {
				return
			}

			work <- file
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error

	for res := range results {
		if s.stopped() {
			sc.Metadata["parsing_stopped"] = true
		}

		if res.err != nil {
			if !s.SkipParseErrors && firstErr == nil {
				firstErr = res.err
			}

			sc.AddWarning("parsing", res.err)

			continue
		}

		sc.ASTByFile[res.file] = res.ast
		s.markCompleted(res.file)
	}

	return firstErr
}

func (s *ParsingStage) parseOne(sc *StageContext, file string) error {
	ast, err := s.loadAndParse(sc, file)
	if err != nil {
		return err
	}

	sc.ASTByFile[file] = ast
	s.markCompleted(file)

	return nil
}

// loadAndParse reads one file, detects its language, and runs a parse to
// surface syntax-level failures early. The tree itself is released; later
// stages reparse through the pooled cache.
func (s *ParsingStage) loadAndParse(sc *StageContext, file string) (FileAST, error) {
	content, err := os.ReadFile(filepath.Join(sc.RepoPath, file))
	if err != nil {
		return FileAST{}, &errs.ParseError{File: file, Err: err}
	}

	if textutil.IsBinary(content) {
		return FileAST{}, &errs.ParseError{File: file, Err: astpool.ErrUnsupportedLanguage}
	}

	language := DetectLanguage(file, content)
	if language == "" {
		// Documentation rides along unparsed; anything else unsupported
		// is a parse failure.
		if indexing.IsDocumentationPath(file) {
			return FileAST{Language: ir.TextLanguage, Content: content}, nil
		}

		return FileAST{}, &errs.ParseError{File: file, Err: astpool.ErrUnsupportedLanguage}
	}

	parse, err := s.Pool.Parse(sc.Context, language, content)
	if err != nil {
		return FileAST{}, &errs.ParseError{File: file, Err: err}
	}

	parse.Close()

	return FileAST{Language: language, Content: content}, nil
}

func (s *ParsingStage) stopped() bool {
	return s.Stop != nil && s.Stop.Load()
}

func (s *ParsingStage) markCompleted(file string) {
	if s.Progress != nil {
		s.Progress.MarkCompleted(file)
	}
}

// DetectLanguage resolves a file's language, preferring content-based
// detection and falling back to the extension table.
func DetectLanguage(file string, content []byte) string {
	if lang := enry.GetLanguage(filepath.Base(file), content); lang != "" {
		if normalized, ok := enryLanguages[lang]; ok {
			return normalized
		}
	}

	return extensionLanguages[strings.ToLower(filepath.Ext(file))]
}
