package repomap

import (
	"math"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

const (
	damping       = 0.85
	maxIterations = 50
	convergence   = 1e-6
)

// fileRanks runs PageRank over the file-level projection of the IR's
// import and call edges and normalises the result so the most important
// file scores 1.
func fileRanks(doc *ir.Document) map[string]float64 {
	fileOf := make(map[string]string, len(doc.Nodes))
	fileSet := make(map[string]struct{})

	for _, n := range doc.Nodes {
		if n.FilePath == "" {
			continue
		}

		fileOf[n.ID] = n.FilePath
		fileSet[n.FilePath] = struct{}{}
	}

	if len(fileSet) == 0 {
		return nil
	}

	outgoing := make(map[string]map[string]struct{})

	for _, e := range doc.Edges {
		if e.Kind != ir.EdgeImports && e.Kind != ir.EdgeCalls {
			continue
		}

		srcFile, srcOK := fileOf[e.SourceID]
		tgtFile, tgtOK := fileOf[e.TargetID]

		if !srcOK || !tgtOK || srcFile == tgtFile {
			continue
		}

		links, ok := outgoing[srcFile]
		if !ok {
			links = make(map[string]struct{})
			outgoing[srcFile] = links
		}

		links[tgtFile] = struct{}{}
	}

	n := float64(len(fileSet))
	ranks := make(map[string]float64, len(fileSet))

	for f := range fileSet {
		ranks[f] = 1 / n
	}

	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[string]float64, len(fileSet))

		// Rank lost by files with no outgoing links is redistributed
		// uniformly so the total stays 1.
		dangling := 0.0

		for f := range fileSet {
			if len(outgoing[f]) == 0 {
				dangling += ranks[f]
			}
		}

		for f := range fileSet {
			next[f] = (1-damping)/n + damping*dangling/n
		}

		for src, targets := range outgoing {
			share := ranks[src] / float64(len(targets))
			for tgt := range targets {
				next[tgt] += damping * share
			}
		}

		delta := 0.0
		for f := range fileSet {
			delta += math.Abs(next[f] - ranks[f])
		}

		ranks = next

		if delta < convergence {
			break
		}
	}

	maxRank := 0.0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}

	if maxRank > 0 {
		for f := range ranks {
			ranks[f] /= maxRank
		}
	}

	return ranks
}
