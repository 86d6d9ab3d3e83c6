// Package repomap builds the project-structure summary: a directory tree
// annotated with per-file importance derived from PageRank over the
// import/call graph, with optional LLM summaries attached through the
// Summarizer port.
package repomap

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// Summarizer is the LLM port for file and symbol summaries. The default is
// a no-op; the engine never depends on the model being reachable.
type Summarizer interface {
	Summarize(ctx context.Context, filePath, content string) (string, error)
}

// NoopSummarizer satisfies Summarizer without producing summaries.
type NoopSummarizer struct{}

// Summarize implements Summarizer.
func (NoopSummarizer) Summarize(context.Context, string, string) (string, error) { return "", nil }

// FileEntry is one file in the map.
type FileEntry struct {
	Path        string  `json:"path"`
	Language    string  `json:"language"`
	Importance  float64 `json:"importance"`
	Summary     string  `json:"summary,omitempty"`
	SymbolCount int     `json:"symbol_count"`
}

// DirEntry is one directory node of the tree.
type DirEntry struct {
	Path  string      `json:"path"`
	Dirs  []*DirEntry `json:"dirs,omitempty"`
	Files []string    `json:"files,omitempty"`
}

// Map is the repo map for one snapshot.
type Map struct {
	RepoID     string               `json:"repo_id"`
	SnapshotID string               `json:"snapshot_id"`
	Root       *DirEntry            `json:"root"`
	Files      map[string]FileEntry `json:"files"`
}

// Importance returns the importance score for a file, zero when unknown.
func (m *Map) Importance(filePath string) float64 {
	return m.Files[filePath].Importance
}

// ImportanceByFile flattens the map's scores for the indexing transform.
func (m *Map) ImportanceByFile() map[string]float64 {
	out := make(map[string]float64, len(m.Files))
	for p, f := range m.Files {
		out[p] = f.Importance
	}

	return out
}

// Builder assembles a Map from the IR document.
type Builder struct {
	Summarizer Summarizer

	// SummarizeTopN bounds how many files (by importance) get summaries;
	// zero disables summarisation entirely.
	SummarizeTopN int
}

// Build computes the tree, PageRank importance, and optional summaries.
// Sources maps file path to content, used only for summarisation.
func (b *Builder) Build(ctx context.Context, doc *ir.Document, sources map[string][]byte) *Map {
	m := &Map{
		RepoID:     doc.RepoID,
		SnapshotID: doc.SnapshotID,
		Files:      make(map[string]FileEntry),
	}

	symbolCounts := make(map[string]int)
	langByFile := make(map[string]string)

	for _, n := range doc.Nodes {
		langByFile[n.FilePath] = n.Language

		if n.Kind != ir.KindFile {
			symbolCounts[n.FilePath]++
		}
	}

	ranks := fileRanks(doc)

	for filePath := range langByFile {
		if filePath == "" {
			continue
		}

		m.Files[filePath] = FileEntry{
			Path:        filePath,
			Language:    langByFile[filePath],
			Importance:  ranks[filePath],
			SymbolCount: symbolCounts[filePath],
		}
	}

	m.Root = buildTree(m.Files)
	b.summarize(ctx, m, sources)

	return m
}

func (b *Builder) summarize(ctx context.Context, m *Map, sources map[string][]byte) {
	if b.Summarizer == nil || b.SummarizeTopN <= 0 {
		return
	}

	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool {
		if m.Files[paths[i]].Importance != m.Files[paths[j]].Importance {
			return m.Files[paths[i]].Importance > m.Files[paths[j]].Importance
		}

		return paths[i] < paths[j]
	})

	if len(paths) > b.SummarizeTopN {
		paths = paths[:b.SummarizeTopN]
	}

	for _, p := range paths {
		summary, err := b.Summarizer.Summarize(ctx, p, string(sources[p]))
		if err != nil || summary == "" {
			continue
		}

		entry := m.Files[p]
		entry.Summary = summary
		m.Files[p] = entry
	}
}

func buildTree(files map[string]FileEntry) *DirEntry {
	root := &DirEntry{Path: "."}
	dirs := map[string]*DirEntry{".": root}

	ensureDir := func(dirPath string) *DirEntry {
		if d, ok := dirs[dirPath]; ok {
			return d
		}

		parts := strings.Split(dirPath, "/")
		cur := root
		curPath := ""

		for _, part := range parts {
			if curPath == "" {
				curPath = part
			} else {
				curPath = curPath + "/" + part
			}

			next, ok := dirs[curPath]
			if !ok {
				next = &DirEntry{Path: curPath}
				dirs[curPath] = next
				cur.Dirs = append(cur.Dirs, next)
			}

			cur = next
		}

		return cur
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		dir := path.Dir(p)

		d := root
		if dir != "." {
			d = ensureDir(dir)
		}

		d.Files = append(d.Files, p)
	}

	sortTree(root)

	return root
}

func sortTree(d *DirEntry) {
	sort.Slice(d.Dirs, func(i, j int) bool { return d.Dirs[i].Path < d.Dirs[j].Path })
	sort.Strings(d.Files)

	for _, sub := range d.Dirs {
		sortTree(sub)
	}
}
