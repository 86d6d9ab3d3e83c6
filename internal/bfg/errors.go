package bfg

import "errors"

// Sentinel errors for BFG graph construction and validation.
var (
	ErrBadEntryCount    = errors.New("bfg: graph must have exactly one entry block")
	ErrBadExitCount     = errors.New("bfg: graph must have exactly one exit block")
	ErrUnmatchedSuspend = errors.New("bfg: suspend block has no matching resume")
	ErrUnmatchedResume  = errors.New("bfg: resume block has no matching suspend")
)
