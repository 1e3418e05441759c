package vibe

import (
	"testing"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// storeChain inserts base, a term referencing base, and a term
// referencing that, returning the three definitions.
func storeChain(t *testing.T, store *definitionStore, graph *depGraph) []*Definition {
	t.Helper()
	base, _, err := store.insertTerm(lang.NewIntLit(1))
	if err != nil {
		t.Fatal(err)
	}
	graph.register(base)

	mid, _, err := store.insertTerm(lang.NewCall(
		lang.NewBuiltinRef("plus"),
		[]lang.Expr{lang.NewRef(base.Hash, "base"), lang.NewIntLit(1)},
	))
	if err != nil {
		t.Fatal(err)
	}
	graph.register(mid)

	top, _, err := store.insertTerm(lang.NewCall(
		lang.NewBuiltinRef("times"),
		[]lang.Expr{lang.NewRef(mid.Hash, "mid"), lang.NewIntLit(2)},
	))
	if err != nil {
		t.Fatal(err)
	}
	graph.register(top)

	return []*Definition{base, mid, top}
}

func TestDepGraphEdges(t *testing.T) {
	graph := newDepGraph()
	defs := storeChain(t, newDefinitionStore(), graph)
	base, mid, top := defs[0], defs[1], defs[2]

	deps := graph.dependencies(mid.Hash)
	if len(deps) != 1 || deps[0] != base.Hash {
		t.Fatalf("mid should depend only on base; got %v", deps)
	}

	dependents := graph.dependents(base.Hash)
	if len(dependents) != 1 || dependents[0] != mid.Hash {
		t.Fatalf("base's direct dependents should be just mid; got %v", dependents)
	}

	if deps := graph.dependencies(base.Hash); len(deps) != 0 {
		t.Fatalf("base shouldn't depend on anything; got %v", deps)
	}
	if dependents := graph.dependents(top.Hash); len(dependents) != 0 {
		t.Fatalf("top shouldn't have dependents; got %v", dependents)
	}
}

func TestTransitiveDependents(t *testing.T) {
	graph := newDepGraph()
	defs := storeChain(t, newDefinitionStore(), graph)
	base, mid, top := defs[0], defs[1], defs[2]

	transitive := graph.transitiveDependents(base.Hash)
	found := map[lang.Hash]bool{}
	for _, h := range transitive {
		found[h] = true
	}
	if len(transitive) != 2 || !found[mid.Hash] || !found[top.Hash] {
		t.Fatalf("expected {mid, top}; got %v", transitive)
	}
	if found[base.Hash] {
		t.Fatalf("a definition is not its own dependent")
	}
}

func TestDepGraphRegisterIdempotent(t *testing.T) {
	graph := newDepGraph()
	store := newDefinitionStore()
	defs := storeChain(t, store, graph)

	// Re-registering (as the load path does) must not duplicate edges.
	for _, def := range defs {
		graph.register(def)
	}
	if dependents := graph.dependents(defs[0].Hash); len(dependents) != 1 {
		t.Fatalf("duplicate edges after re-registration: %v", dependents)
	}
}
