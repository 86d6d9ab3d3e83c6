package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/pkg/persist"
)

// ProgressRecord tracks which files a parsing run has completed so an
// interrupted job resumes where it left off instead of starting over.
type ProgressRecord struct {
	mu        sync.Mutex
	completed map[string]struct{}
}

// NewProgressRecord creates an empty record.
func NewProgressRecord() *ProgressRecord {
	return &ProgressRecord{completed: make(map[string]struct{})}
}

// IsCompleted reports whether a file was already processed.
func (p *ProgressRecord) IsCompleted(file string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.completed[file]

	return ok
}

// MarkCompleted records a file as processed.
func (p *ProgressRecord) MarkCompleted(file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed[file] = struct{}{}
}

// CompletedCount returns how many files are recorded.
func (p *ProgressRecord) CompletedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.completed)
}

// progressState is the persisted shape.
type progressState struct {
	Completed []string `json:"completed"`
}

// SaveTo persists the record into dir.
func (p *ProgressRecord) SaveTo(dir string) error {
	p.mu.Lock()

	state := progressState{Completed: make([]string, 0, len(p.completed))}
	for f := range p.completed {
		state.Completed = append(state.Completed, f)
	}
	p.mu.Unlock()

	sort.Strings(state.Completed)

	pr := persist.NewPersister[progressState]("job-progress", persist.NewJSONCodec())
	if err := pr.Save(dir, func() *progressState { return &state }); err != nil {
		return fmt.Errorf("pipeline: save progress: %w", err)
	}

	return nil
}

// LoadFrom restores a previously saved record; a missing file leaves the
// record empty.
func (p *ProgressRecord) LoadFrom(dir string) error {
	var state progressState

	pr := persist.NewPersister[progressState]("job-progress", persist.NewJSONCodec())
	if err := pr.Load(dir, func(st *progressState) { state = *st }); err != nil {
		return nil //nolint:nilerr // a fresh run has no progress file
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range state.Completed {
		p.completed[f] = struct{}{}
	}

	return nil
}
