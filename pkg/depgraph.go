package vibe

import (
	"sync"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// depGraph indexes the reference edges between stored definitions in
// both directions. Edges are only ever added; a definition's
// dependencies never change after insertion.
type depGraph struct {
	mu  sync.RWMutex
	fwd map[lang.Hash][]lang.Hash
	rev map[lang.Hash]map[lang.Hash]struct{}
}

func newDepGraph() *depGraph {
	return &depGraph{
		fwd: map[lang.Hash][]lang.Hash{},
		rev: map[lang.Hash]map[lang.Hash]struct{}{},
	}
}

func (g *depGraph) register(def *Definition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.fwd[def.Hash]; ok {
		return
	}
	deps := make([]lang.Hash, len(def.Deps))
	copy(deps, def.Deps)
	g.fwd[def.Hash] = deps
	for _, dep := range deps {
		revSet, ok := g.rev[dep]
		if !ok {
			revSet = map[lang.Hash]struct{}{}
			g.rev[dep] = revSet
		}
		revSet[def.Hash] = struct{}{}
	}
}

// dependencies returns the direct references of a definition, sorted.
func (g *depGraph) dependencies(hash lang.Hash) []lang.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]lang.Hash, len(g.fwd[hash]))
	copy(out, g.fwd[hash])
	return out
}

// dependents returns the definitions that reference the given hash
// directly, sorted.
func (g *depGraph) dependents(hash lang.Hash) []lang.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]lang.Hash, 0, len(g.rev[hash]))
	for h := range g.rev[hash] {
		out = append(out, h)
	}
	sortHashes(out)
	return out
}

// transitiveDependents returns every definition reachable from the
// given hash by following reverse edges, sorted. The hash itself is not
// included.
func (g *depGraph) transitiveDependents(hash lang.Hash) []lang.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[lang.Hash]struct{}{hash: {}}
	frontier := []lang.Hash{hash}
	var out []lang.Hash
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for dependent := range g.rev[next] {
			if _, ok := seen[dependent]; ok {
				continue
			}
			seen[dependent] = struct{}{}
			out = append(out, dependent)
			frontier = append(frontier, dependent)
		}
	}
	sortHashes(out)
	return out
}
