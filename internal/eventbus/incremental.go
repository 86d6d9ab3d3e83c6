package eventbus

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/pkg/alg/mapx"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
)

// DeltaBuilder rebuilds the IR slice for one language's changed files.
type DeltaBuilder interface {
	BuildDelta(ctx context.Context, language string, files []string) error
}

// IncrementalIndexer applies a file-level change set to the indexes.
type IncrementalIndexer interface {
	IndexFiles(ctx context.Context, changed, deleted []string) error
}

// languageByExtension routes changed files to per-language delta batches.
var languageByExtension = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".java": "java",
	".kt":   "kotlin",
	".go":   "go",
}

const (
	// deltaConcurrency bounds the per-language fan-out.
	deltaConcurrency = 4

	// sweepInterval is how often the TTL sweeper wakes.
	sweepInterval = time.Minute

	// DefaultPendingTTL ages out pending sets whose transaction never
	// commits or rolls back.
	DefaultPendingTTL = 30 * time.Minute
)

// pendingTxn accumulates one transaction's file deltas until commit.
type pendingTxn struct {
	changed   map[string]struct{}
	deleted   map[string]struct{}
	createdAt time.Time
}

// IncrementalPlugin re-indexes the files a committed transaction touched:
// pending deltas are grouped by language, the IR delta is rebuilt per
// group in parallel under a concurrency limit, and the incremental indexer
// is invoked with the collected file lists. Both phases are isolated — the
// commit already succeeded, so their failures are logged and counted, not
// propagated.
type IncrementalPlugin struct {
	Delta   DeltaBuilder
	Indexer IncrementalIndexer
	Logger  *slog.Logger
	Metrics *observability.REDMetrics

	// PendingTTL overrides DefaultPendingTTL.
	PendingTTL time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingTxn
	sweeping bool

	failureCount int64
}

// NewIncrementalPlugin wires the plugin to its delta builder and indexer.
func NewIncrementalPlugin(delta DeltaBuilder, indexer IncrementalIndexer) *IncrementalPlugin {
	return &IncrementalPlugin{
		Delta:      delta,
		Indexer:    indexer,
		PendingTTL: DefaultPendingTTL,
		pending:    make(map[string]*pendingTxn),
	}
}

// Name implements Plugin.
func (p *IncrementalPlugin) Name() string { return "incremental-update" }

// HandleEvent implements Plugin.
func (p *IncrementalPlugin) HandleEvent(ctx context.Context, ev Event) error {
	p.ensureSweeper()

	switch ev.Type {
	case EventWrite:
		if err := validatePath(ev.Path); err != nil {
			return err
		}

		p.record(ev.TxnID, ev.Path, false)
	case EventDelete:
		if err := validatePath(ev.Path); err != nil {
			return err
		}

		p.record(ev.TxnID, ev.Path, true)
	case EventCommit:
		p.onCommit(ctx, ev.TxnID)
	case EventRollback:
		p.discard(ev.TxnID)
	}

	return nil
}

// validatePath rejects absolute paths and any path component escaping the
// workspace.
func validatePath(path string) error {
	if path == "" {
		return &errs.ValidationError{Field: "path", Reason: "must not be empty"}
	}

	if filepath.IsAbs(path) {
		return &errs.ValidationError{Field: "path", Reason: "must be workspace-relative: " + path}
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return &errs.ValidationError{Field: "path", Reason: "must not traverse upwards: " + path}
		}
	}

	return nil
}

func (p *IncrementalPlugin) record(txnID, path string, deleted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txn, ok := p.pending[txnID]
	if !ok {
		txn = &pendingTxn{
			changed:   make(map[string]struct{}),
			deleted:   make(map[string]struct{}),
			createdAt: time.Now(),
		}
		p.pending[txnID] = txn
	}

	if deleted {
		delete(txn.changed, path)
		txn.deleted[path] = struct{}{}
	} else {
		delete(txn.deleted, path)
		txn.changed[path] = struct{}{}
	}
}

func (p *IncrementalPlugin) discard(txnID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.pending, txnID)
}

func (p *IncrementalPlugin) onCommit(ctx context.Context, txnID string) {
	p.mu.Lock()

	txn, ok := p.pending[txnID]
	if ok {
		delete(p.pending, txnID)
	}
	p.mu.Unlock()

	if !ok {
		return
	}

	changed := mapx.SortedKeys(txn.changed)
	deleted := mapx.SortedKeys(txn.deleted)

	p.timed(ctx, "plugin.ir_delta", func() bool {
		return p.buildDeltas(ctx, changed)
	})

	p.timed(ctx, "plugin.reindex", func() bool {
		if p.Indexer == nil {
			return true
		}

		if err := p.Indexer.IndexFiles(ctx, changed, deleted); err != nil {
			p.logger().WarnContext(ctx, "incremental reindex failed",
				slog.String("txn", txnID), slog.Any("error", err))

			p.mu.Lock()
			p.failureCount++
			p.mu.Unlock()

			return false
		}

		return true
	})
}

// buildDeltas fans out one delta build per language group, gated by a
// semaphore, and joins them. Returns whether every group succeeded.
func (p *IncrementalPlugin) buildDeltas(ctx context.Context, changed []string) bool {
	if p.Delta == nil || len(changed) == 0 {
		return true
	}

	byLanguage := make(map[string][]string)

	for _, path := range changed {
		lang, ok := languageByExtension[strings.ToLower(filepath.Ext(path))]
		if !ok {
			continue
		}

		byLanguage[lang] = append(byLanguage[lang], path)
	}

	sem := make(chan struct{}, deltaConcurrency)
	failures := make(chan struct{}, len(byLanguage))

	var wg sync.WaitGroup

	for lang, files := range byLanguage {
		wg.Add(1)

		go func(lang string, files []string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := p.Delta.BuildDelta(ctx, lang, files); err != nil {
				p.logger().WarnContext(ctx, "ir delta failed",
					slog.String("language", lang), slog.Any("error", err))
				failures <- struct{}{}
			}
		}(lang, files)
	}

	wg.Wait()
	close(failures)

	failed := 0
	for range failures {
		failed++
	}

	p.mu.Lock()
	p.failureCount += int64(failed)
	p.mu.Unlock()

	return failed == 0
}

func (p *IncrementalPlugin) timed(ctx context.Context, op string, fn func() bool) {
	start := time.Now()
	ok := fn()

	if p.Metrics == nil {
		return
	}

	status := "ok"
	if !ok {
		status = "error"
	}

	p.Metrics.RecordRequest(ctx, op, status, time.Since(start))
}

// FailureCount reports how many isolated failures the plugin has absorbed.
func (p *IncrementalPlugin) FailureCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.failureCount
}

// ensureSweeper lazily starts the background TTL sweeper at the first
// event.
func (p *IncrementalPlugin) ensureSweeper() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sweeping {
		return
	}

	p.sweeping = true

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for range ticker.C {
			p.sweep(time.Now())
		}
	}()
}

// sweep drops pending sets older than the TTL.
func (p *IncrementalPlugin) sweep(now time.Time) int {
	ttl := p.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0

	for id, txn := range p.pending {
		if now.Sub(txn.createdAt) > ttl {
			delete(p.pending, id)
			removed++
		}
	}

	return removed
}

func (p *IncrementalPlugin) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}

	return slog.Default()
}
