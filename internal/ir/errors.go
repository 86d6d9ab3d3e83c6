package ir

import "errors"

// Sentinel errors for IR document validation.
var (
	ErrInvalidSpan  = errors.New("ir: invalid span")
	ErrDanglingEdge = errors.New("ir: edge references unknown node")
)
