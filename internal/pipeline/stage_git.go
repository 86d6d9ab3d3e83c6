package pipeline

import (
	"errors"

	"github.com/Sumatoshi-tech/codefang-index/pkg/gitlib"
)

// ErrNotGitRepo is recorded as a warning when the repo path is not a git
// checkout; the pipeline continues with the snapshot id the caller supplied.
var ErrNotGitRepo = errors.New("pipeline: not a git repository")

// GitInfo is what the git stage records about the checkout.
type GitInfo struct {
	HeadCommit string
	Branch     string
	IsShallow  bool
	RemoteURL  string
}

// GitStage reads HEAD, branch, and repository metadata. Not being a git
// checkout is non-fatal: a warning is recorded and later stages run with
// whatever snapshot id the caller supplied.
type GitStage struct{}

// Name implements Stage.
func (GitStage) Name() string { return "git" }

// Execute implements Stage.
func (GitStage) Execute(sc *StageContext) error {
	repo, err := gitlib.OpenRepository(sc.RepoPath)
	if err != nil {
		sc.AddWarning("git", ErrNotGitRepo)

		return nil
	}
	defer repo.Free()

	info := GitInfo{}

	head, err := repo.Head()
	if err != nil {
		sc.AddWarning("git", err)
	} else {
		info.HeadCommit = head.String()
	}

	native := repo.Native()

	if ref, refErr := native.Head(); refErr == nil {
		if name, nameErr := ref.Branch().Name(); nameErr == nil {
			info.Branch = name
		}

		ref.Free()
	}

	info.IsShallow = native.IsShallow()

	if remote, remoteErr := native.Remotes.Lookup("origin"); remoteErr == nil {
		info.RemoteURL = remote.Url()

		remote.Free()
	}

	sc.HeadCommit = info.HeadCommit
	sc.Branch = info.Branch

	if sc.SnapshotID == "" && info.HeadCommit != "" {
		sc.SnapshotID = info.HeadCommit
	}

	sc.Metadata["git_info"] = info

	return nil
}
