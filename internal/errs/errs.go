// Package errs defines the typed error taxonomy shared across the indexing
// engine: per-file parse and IR failures, per-adapter indexing failures,
// overlay-commit conflicts, patch-queue conflicts, and validation failures
// raised by event-bus plugins. Each type wraps a package sentinel so callers
// can branch with errors.Is or recover structured fields with errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks.
var (
	ErrParse              = errors.New("parse failed")
	ErrIRGeneration       = errors.New("ir generation failed")
	ErrAdapter            = errors.New("index adapter failed")
	ErrConflict           = errors.New("commit conflict")
	ErrCommit             = errors.New("commit failed")
	ErrPatchConflict      = errors.New("patch conflict")
	ErrWorkspaceExhausted = errors.New("workspace pool exhausted")
	ErrStaleIndex         = errors.New("stale index version")
	ErrValidation         = errors.New("validation failed")
)

// ParseError is a per-file parse failure. Recovered by skipping the file
// when skip_parse_errors is enabled.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// IRGenerationError is a per-file IR build failure. Recovered under
// continue_on_error.
type IRGenerationError struct {
	File string
	Err  error
}

func (e *IRGenerationError) Error() string {
	return fmt.Sprintf("ir generation %s: %v", e.File, e.Err)
}

func (e *IRGenerationError) Unwrap() []error { return []error{ErrIRGeneration, e.Err} }

// AdapterError is a per-adapter indexing or search failure. Never aborts
// the other adapters.
type AdapterError struct {
	Adapter string
	Op      string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %s: %v", e.Adapter, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() []error { return []error{ErrAdapter, e.Err} }

// ConflictError reports that a transaction's overlay no longer matches the
// on-disk base revision at commit time. Recoverable: the caller may rebase
// and retry.
type ConflictError struct {
	TxnID string
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("txn %s: conflicting paths: %s", e.TxnID, strings.Join(e.Paths, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// CommitError reports a filesystem or permission failure while writing a
// commit. Recoverable is false for disk-full and permission errors.
type CommitError struct {
	TxnID       string
	Recoverable bool
	Err         error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("txn %s: commit: %v", e.TxnID, e.Err)
}

func (e *CommitError) Unwrap() []error { return []error{ErrCommit, e.Err} }

// PatchConflictError reports that a patch proposal's base content no longer
// matches the file it targets.
type PatchConflictError struct {
	PatchID  string
	FilePath string
}

func (e *PatchConflictError) Error() string {
	return fmt.Sprintf("patch %s: base content changed for %s", e.PatchID, e.FilePath)
}

func (e *PatchConflictError) Unwrap() error { return ErrPatchConflict }

// WorkspacePoolExhaustedError is the back-pressure signal raised when no
// workspace slot is available for materialisation.
type WorkspacePoolExhaustedError struct {
	Capacity int
}

func (e *WorkspacePoolExhaustedError) Error() string {
	return fmt.Sprintf("no free workspace slot (capacity %d)", e.Capacity)
}

func (e *WorkspacePoolExhaustedError) Unwrap() error { return ErrWorkspaceExhausted }

// StaleIndexError reports a version mismatch between the index a caller
// expected and the one actually present.
type StaleIndexError struct {
	ExpectedVersion string
	ActualVersion   string
}

func (e *StaleIndexError) Error() string {
	return fmt.Sprintf("index version %s, expected %s", e.ActualVersion, e.ExpectedVersion)
}

func (e *StaleIndexError) Unwrap() error { return ErrStaleIndex }

// ValidationError is the one plugin failure shape the event bus propagates;
// raised by a plugin, it blocks the commit that triggered it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
