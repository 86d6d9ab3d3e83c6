package pipeline

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/codefang-index/internal/changeset"
)

// ignoreFileName holds extra ignore globs, one per line, at the repo root.
const ignoreFileName = ".codeindexignore"

// skippedDirs are never walked in full-discovery mode.
var skippedDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, ".venv": {}, "vendor": {},
	"__pycache__": {}, "dist": {}, "build": {},
}

// DiscoveryStage enumerates the files to index. Full mode walks the repo
// honouring the configured filter plus the repo's own ignore file;
// incremental mode takes the change detector's added and modified sets and
// leaves tombstones for deletions.
type DiscoveryStage struct {
	Filter changeset.Filter
}

// Name implements Stage.
func (DiscoveryStage) Name() string { return "discovery" }

// Execute implements Stage.
func (s DiscoveryStage) Execute(sc *StageContext) error {
	if sc.Incremental != nil {
		files := append(append([]string(nil), sc.Incremental.Added...), sc.Incremental.Modified...)
		sort.Strings(files)
		sc.Files = files

		return nil
	}

	filter := s.Filter
	filter.IgnoreGlobs = append(append([]string(nil), filter.IgnoreGlobs...), readIgnoreFile(sc.RepoPath)...)

	var files []string

	err := filepath.WalkDir(sc.RepoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && path != sc.RepoPath {
				return filepath.SkipDir
			}

			return nil
		}

		rel, relErr := filepath.Rel(sc.RepoPath, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)

		if filter.Allowed(rel) {
			files = append(files, rel)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("pipeline: discovery walk: %w", err)
	}

	sort.Strings(files)
	sc.Files = files

	return nil
}

// readIgnoreFile loads extra ignore globs from the repo's ignore file.
func readIgnoreFile(repoPath string) []string {
	f, err := os.Open(filepath.Join(repoPath, ignoreFileName))
	if err != nil {
		return nil
	}
	defer f.Close()

	var globs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		globs = append(globs, line)
	}

	return globs
}
