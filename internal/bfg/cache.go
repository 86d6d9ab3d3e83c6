package bfg

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/cachekit"
)

// ASTCache memoizes parsed trees keyed by a caller-supplied key (the IR
// stage passes the file path), so
// repeated BFG extraction over an unchanged file (e.g. across pipeline
// stages within the same run) does not reparse. Capacity is chosen from
// cachekit.SizeFromFileCount at construction time, so peak memory tracks
// repository size.
type ASTCache struct {
	pool  *astpool.Pool
	cache *cachekit.LRU[string, *astpool.ParseResult]
}

// NewASTCache builds an AST cache sized for a project with the given file
// count.
func NewASTCache(pool *astpool.Pool, fileCount int) *ASTCache {
	return &ASTCache{
		pool:  pool,
		cache: cachekit.New[string, *astpool.ParseResult](cachekit.SizeFromFileCount(fileCount)),
	}
}

// Parse returns the cached parse for key if present, else parses content,
// caches it, and returns it. The cache owns the returned *ParseResult;
// callers must not call Close on it directly (use Evict for lifecycle
// management instead), since a cached tree may still be shared across
// callers.
func (c *ASTCache) Parse(ctx context.Context, key, language string, content []byte) (*astpool.ParseResult, error) {
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}

	res, err := c.pool.Parse(ctx, language, content)
	if err != nil {
		return nil, fmt.Errorf("bfg: ast cache parse: %w", err)
	}

	c.cache.Put(key, res)

	return res, nil
}

// Evict drops a cached entry, closing its tree. Call this when a file is
// known to have changed so a stale tree is never reused.
func (c *ASTCache) Evict(key string) {
	if res, ok := c.cache.Get(key); ok {
		res.Close()
	}

	c.cache.Delete(key)
}

// Stats exposes the underlying cache hit/miss counters.
func (c *ASTCache) Stats() cachekit.Stats {
	return c.cache.Stats()
}
