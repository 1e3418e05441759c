package vibe

import (
	"fmt"
	"testing"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

func intHash(t *testing.T, n int) lang.Hash {
	t.Helper()
	h, err := lang.ExprHash(lang.NewIntLit(n))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestRegistryBindAndResolve(t *testing.T) {
	registry := newNameRegistry()
	width := intHash(t, 800)

	if _, hadPrev := registry.bind("main", "width", width); hadPrev {
		t.Fatalf("first bind shouldn't report a prior target")
	}
	hash, err := registry.resolve("main", "width")
	if err != nil {
		t.Fatal(err)
	}
	if hash != width {
		t.Fatalf("resolved to the wrong hash")
	}

	if _, err := registry.resolve("main", "height"); err == nil {
		t.Fatalf("expected UnboundName")
	} else if _, ok := err.(*UnboundName); !ok {
		t.Fatalf("expected UnboundName; got %v", err)
	}

	// Namespaces are independent.
	if _, err := registry.resolve("scratch", "width"); err == nil {
		t.Fatalf("a binding shouldn't leak across namespaces")
	}
}

func TestRegistryLastBindWins(t *testing.T) {
	registry := newNameRegistry()
	first := intHash(t, 1)
	second := intHash(t, 2)

	registry.bind("main", "x", first)
	prev, hadPrev := registry.bind("main", "x", second)
	if !hadPrev || prev != first {
		t.Fatalf("rebind should report the prior target")
	}

	hash, err := registry.resolve("main", "x")
	if err != nil {
		t.Fatal(err)
	}
	if hash != second {
		t.Fatalf("rebind should repoint the name")
	}

	// The old hash no longer lists the name; the new one does.
	if names := registry.namesOf(first); len(names) != 0 {
		t.Fatalf("stale reverse entry: %v", names)
	}
	names := registry.namesOf(second)
	if len(names) != 1 || names[0].Name != "x" {
		t.Fatalf("unexpected names: %v", names)
	}

	hist := registry.historyOf("main", "x")
	if len(hist) != 1 || hist[0] != first {
		t.Fatalf("history should hold the replaced hash; got %v", hist)
	}
}

func TestRegistryRebindSameHashIsNoOp(t *testing.T) {
	registry := newNameRegistry()
	hash := intHash(t, 5)

	registry.bind("main", "x", hash)
	registry.bind("main", "x", hash)

	if hist := registry.historyOf("main", "x"); len(hist) != 0 {
		t.Fatalf("a same-hash rebind shouldn't grow history; got %v", hist)
	}
}

func TestRegistryHistoryBound(t *testing.T) {
	registry := newNameRegistry()
	total := nameHistoryLimit + 5
	for n := 0; n <= total; n++ {
		registry.bind("main", "counter", intHash(t, n))
	}

	hist := registry.historyOf("main", "counter")
	if len(hist) != nameHistoryLimit {
		t.Fatalf("history holds %d entries; want %d", len(hist), nameHistoryLimit)
	}
	// Most recent first: the binding replaced last comes first.
	if hist[0] != intHash(t, total-1) {
		t.Fatalf("history head should be the most recently replaced hash")
	}
}

func TestRegistryList(t *testing.T) {
	registry := newNameRegistry()
	registry.bind("main", "b", intHash(t, 2))
	registry.bind("main", "a", intHash(t, 1))
	registry.bind("scratch", "c", intHash(t, 3))

	bindings := registry.list()
	if len(bindings) != 3 {
		t.Fatalf("got %d bindings; want 3", len(bindings))
	}
	var got []string
	for _, b := range bindings {
		got = append(got, fmt.Sprintf("%s/%s", b.Namespace, b.Name))
	}
	expected := []string{"main/a", "main/b", "scratch/c"}
	for idx := range expected {
		if got[idx] != expected[idx] {
			t.Fatalf("got order %v; expected %v", got, expected)
		}
	}
}

func TestRegistryMultipleNamesPerHash(t *testing.T) {
	registry := newNameRegistry()
	shared := intHash(t, 9)
	registry.bind("main", "nine", shared)
	registry.bind("main", "neuf", shared)

	names := registry.namesOf(shared)
	if len(names) != 2 {
		t.Fatalf("got %v; want both names", names)
	}
	if names[0].Name != "neuf" || names[1].Name != "nine" {
		t.Fatalf("names should come back sorted; got %v", names)
	}
}
