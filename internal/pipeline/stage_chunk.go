package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/pkg/gitlib"
)

// gitHistoryCommitLimit bounds how far back the history enrichment walks.
const gitHistoryCommitLimit = 50

// ChunkStage produces content chunks. Full mode groups IR nodes by file,
// chunks each file through the batching window, deduplicates keeping the
// last occurrence, saves, and optionally annotates chunks with git
// history. Incremental mode delegates to the refresher.
type ChunkStage struct {
	Store     *chunking.Store
	Builder   *chunking.Builder
	BatchSize int

	// Refresher drives incremental mode.
	Refresher *chunking.Refresher

	// EnableGitHistory annotates chunks with last-touch commit metadata.
	EnableGitHistory bool
}

// Name implements Stage.
func (*ChunkStage) Name() string { return "chunk" }

// Execute implements Stage.
func (s *ChunkStage) Execute(sc *StageContext) error {
	if sc.Incremental != nil {
		return s.executeIncremental(sc)
	}

	nodesByFile := make(map[string][]ir.Node)

	if sc.IRDoc != nil {
		for _, n := range sc.IRDoc.Nodes {
			nodesByFile[n.FilePath] = append(nodesByFile[n.FilePath], n)
		}
	}

	sources := sc.Sources()

	files := make([]string, 0, len(nodesByFile))
	for f := range nodesByFile {
		files = append(files, f)
	}

	sort.Strings(files)

	var all []chunking.Chunk

	for _, file := range files {
		all = append(all, s.Builder.BuildFile(sc.RepoID, sc.SnapshotID, file, nodesByFile[file], string(sources[file]))...)
	}

	all = chunking.Dedupe(all)

	if s.EnableGitHistory {
		s.enrichWithHistory(sc, all)
	}

	for _, batch := range chunking.Batches(all, s.BatchSize) {
		s.Store.Save(sc.RepoID, sc.SnapshotID, batch)
	}

	s.recordChunks(sc, all)

	return nil
}

func (s *ChunkStage) executeIncremental(sc *StageContext) error {
	inc := sc.Incremental

	result, err := s.Refresher.Refresh(sc.Context, sc.RepoID, inc.OldSnapshotID, sc.SnapshotID,
		inc.Added, inc.Modified, inc.Deleted)
	if err != nil {
		return fmt.Errorf("pipeline: chunk refresh: %w", err)
	}

	for _, failed := range result.FailedFiles {
		sc.AddWarning("chunk", fmt.Errorf("chunk refresh skipped %s", failed)) //nolint:err113 // per-file diagnostic
	}

	sc.Metadata["refresh_result"] = result
	s.recordChunks(sc, result.ChangedChunks())

	return nil
}

func (s *ChunkStage) recordChunks(sc *StageContext, chunks []chunking.Chunk) {
	sc.Chunks = sc.Chunks[:0]
	sc.ChunkIDs = sc.ChunkIDs[:0]

	for _, c := range chunks {
		sc.Chunks = append(sc.Chunks, ChunkRef{ChunkID: c.ChunkID, FileID: c.FilePath})
		sc.ChunkIDs = append(sc.ChunkIDs, c.ChunkID)
	}
}

// enrichWithHistory stamps each chunk with the newest commit in recent
// history that touched its file (see fileLastTouches).
func (s *ChunkStage) enrichWithHistory(sc *StageContext, chunks []chunking.Chunk) {
	repo, err := gitlib.OpenRepository(sc.RepoPath)
	if err != nil {
		sc.AddWarning("chunk", err)

		return
	}
	defer repo.Free()

	lastTouch := fileLastTouches(repo, sc)

	for i := range chunks {
		touch, ok := lastTouch[chunks[i].FilePath]
		if !ok {
			continue
		}

		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string)
		}

		chunks[i].Metadata["last_commit"] = touch.hash
		chunks[i].Metadata["last_author"] = touch.author
		chunks[i].Metadata["last_lines_added"] = strconv.Itoa(touch.linesAdded)
		chunks[i].Metadata["last_lines_deleted"] = strconv.Itoa(touch.linesDeleted)
	}
}

type touchInfo struct {
	hash         string
	author       string
	linesAdded   int
	linesDeleted int
}

// fileLastTouches walks recent history oldest-first, overwriting so the
// newest commit touching each file wins, with that touch's line churn.
func fileLastTouches(repo *gitlib.Repository, sc *StageContext) map[string]touchInfo {
	commits, err := gitlib.LoadCommits(repo, gitlib.CommitLoadOptions{Limit: gitHistoryCommitLimit})
	if err != nil {
		sc.AddWarning("chunk", err)

		return nil
	}

	lastTouch := make(map[string]touchInfo)

	for _, commit := range commits {
		tree, treeErr := commit.Tree()
		if treeErr != nil {
			continue
		}

		changes, diffErr := gitlib.TreeDiff(repo, parentTree(commit), tree)
		if diffErr != nil {
			continue
		}

		for _, ch := range changes {
			name := ch.To.Name
			if name == "" {
				name = ch.From.Name
			}

			added, deleted := blobChurn(repo, ch)

			lastTouch[name] = touchInfo{
				hash:         commit.Hash().String(),
				author:       commit.Author().Name,
				linesAdded:   added,
				linesDeleted: deleted,
			}
		}
	}

	return lastTouch
}

// blobChurn line-diffs the two sides of a change. Adds and deletes count
// inserted and removed lines; a missing side (file created or removed)
// diffs against an empty blob.
func blobChurn(repo *gitlib.Repository, ch *gitlib.Change) (int, int) {
	var oldBlob, newBlob *gitlib.Blob

	if !ch.From.Hash.IsZero() {
		if b, err := repo.LookupBlob(context.Background(), ch.From.Hash); err == nil {
			oldBlob = b

			defer b.Free()
		}
	}

	if !ch.To.Hash.IsZero() {
		if b, err := repo.LookupBlob(context.Background(), ch.To.Hash); err == nil {
			newBlob = b

			defer b.Free()
		}
	}

	result, err := gitlib.DiffBlobs(oldBlob, newBlob, ch.From.Name, ch.To.Name)
	if err != nil {
		// Degraded path: count whole-file churn from the raw contents.
		result = gitlib.DiffBlobsFromCache(blobContents(oldBlob), blobContents(newBlob))
	}

	var added, deleted int

	for _, d := range result.Diffs {
		switch d.Type {
		case gitlib.LineDiffInsert:
			added += d.LineCount
		case gitlib.LineDiffDelete:
			deleted += d.LineCount
		case gitlib.LineDiffEqual:
		}
	}

	return added, deleted
}

func blobContents(b *gitlib.Blob) []byte {
	if b == nil {
		return nil
	}

	return b.Contents()
}

func parentTree(c *gitlib.Commit) *gitlib.Tree {
	if c.NumParents() == 0 {
		return nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil
	}

	tree, treeErr := parent.Tree()
	if treeErr != nil {
		return nil
	}

	return tree
}
