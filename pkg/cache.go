package vibe

import (
	"context"
	"sync"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// queryCache memoizes derived results (types, values) keyed by
// definition hash. Since definitions are immutable, entries never need
// invalidation. A successful computation runs at most once per hash;
// concurrent callers for the same hash wait on the first caller's cell.
// Failed or cancelled computations leave no entry behind, so a later
// call can retry.
type queryCache struct {
	name  string
	mu    sync.Mutex
	cells map[lang.Hash]*cacheCell
}

type cacheCell struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newQueryCache(name string) *queryCache {
	return &queryCache{
		name:  name,
		cells: map[lang.Hash]*cacheCell{},
	}
}

// cacheChainKey tags the in-flight hash chain on the context, one chain
// per cache.
type cacheChainKey struct {
	cacheName string
}

type hashChain struct {
	hash   lang.Hash
	parent *hashChain
}

func (c *hashChain) contains(hash lang.Hash) bool {
	for link := c; link != nil; link = link.parent {
		if link.hash == hash {
			return true
		}
	}
	return false
}

// compute returns the memoized result for hash, running f to produce it
// if needed. f receives a context carrying the extended in-flight
// chain; if it comes back around to a hash already on the chain, the
// computation fails fast with DependencyCycle instead of deadlocking.
// A completed cell short-circuits before the cycle check: re-reaching a
// finished result is not a cycle.
func (c *queryCache) compute(
	ctx context.Context,
	hash lang.Hash,
	f func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	chain, _ := ctx.Value(cacheChainKey{c.name}).(*hashChain)

	c.mu.Lock()
	cell, inFlight := c.cells[hash]
	if inFlight {
		select {
		case <-cell.done:
			c.mu.Unlock()
			return cell.result, cell.err
		default:
		}
	}
	if chain.contains(hash) {
		c.mu.Unlock()
		return nil, &DependencyCycle{Hash: hash}
	}
	if inFlight {
		c.mu.Unlock()
		select {
		case <-cell.done:
			return cell.result, cell.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cell = &cacheCell{done: make(chan struct{})}
	c.cells[hash] = cell
	c.mu.Unlock()

	childCtx := context.WithValue(ctx, cacheChainKey{c.name}, &hashChain{
		hash:   hash,
		parent: chain,
	})
	result, err := f(childCtx)

	c.mu.Lock()
	if err != nil {
		delete(c.cells, hash)
	}
	cell.result = result
	cell.err = err
	close(cell.done)
	c.mu.Unlock()

	return result, err
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}
