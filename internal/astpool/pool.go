// Package astpool manages per-language tree-sitter parser factories with
// thread-local reuse: a sync.Pool per language, keyed off the embedded
// grammar registry, so parser instances never cross goroutines while held.
package astpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ErrUnsupportedLanguage is returned when no grammar is registered for a
// requested language. Callers degrade to the BFG builder's
// unsupported-language path (entry/exit blocks only).
var ErrUnsupportedLanguage = errors.New("astpool: unsupported language")

// Pool manages one sync.Pool of *sitter.Parser per language so that
// parser instances (which hold grammar-specific internal state) are never
// shared across goroutines while in use.
type Pool struct {
	mu    sync.Mutex
	pools map[string]*sync.Pool
}

// New creates an empty parser pool.
func New() *Pool {
	return &Pool{pools: make(map[string]*sync.Pool)}
}

func (p *Pool) poolFor(language string) (*sync.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sp, ok := p.pools[language]; ok {
		return sp, nil
	}

	lang := GetLanguage(language)
	if lang == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	sp := &sync.Pool{
		New: func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(lang)

			return parser
		},
	}
	p.pools[language] = sp

	return sp, nil
}

// Acquire checks out a parser for the given language. The caller must call
// the returned release function exactly once, regardless of error, to
// return the parser to the pool.
func (p *Pool) Acquire(language string) (*sitter.Parser, func(), error) {
	sp, err := p.poolFor(language)
	if err != nil {
		return nil, func() {}, err
	}

	parser, ok := sp.Get().(*sitter.Parser)
	if !ok || parser == nil {
		return nil, func() {}, ErrUnsupportedLanguage
	}

	release := func() { sp.Put(parser) }

	return parser, release, nil
}

// ParseResult bundles a parsed tree with the source bytes it was parsed
// from; callers must call Close when done to release tree-sitter memory.
type ParseResult struct {
	Tree   *sitter.Tree
	Source []byte
}

// Close releases the underlying tree-sitter tree.
func (r *ParseResult) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
	}
}

// Parse parses content as the given language, acquiring and releasing a
// pooled parser around the call.
func (p *Pool) Parse(ctx context.Context, language string, content []byte) (*ParseResult, error) {
	parser, release, err := p.Acquire(language)
	if err != nil {
		return nil, err
	}
	defer release()

	tree, err := parser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("astpool: parse %s: %w", language, err)
	}

	return &ParseResult{Tree: tree, Source: content}, nil
}
