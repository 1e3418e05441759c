package vibe

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// Exercises the persistence round trip: build up a codebase, close it,
// reopen the data file, and check that definitions, names, groups, and
// history all come back.
func TestRestart(t *testing.T) {
	dir, err := ioutil.TempDir("", "vibe-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	dataFile := filepath.Join(dir, "test.data")

	codebase, err := NewCodebase(dataFile)
	if err != nil {
		t.Fatal(err)
	}
	session := codebase.NewSession()
	addOne(t, session, "base = 10")
	addOne(t, session, "double = base * 2")
	addOne(t, session, "fact = fn n -> if n < 2 then 1 else n * fact(n - 1)")
	if _, err := session.Add(context.Background(), "type Point = { x: int, y: int }"); err != nil {
		t.Fatal(err)
	}
	oldDouble, err := codebase.Resolve("main", "double")
	if err != nil {
		t.Fatal(err)
	}

	// One committed rebind so there is history to reload.
	addOne(t, session, "base = 20")
	result := mustUpdate(t, session)
	if result.Err != nil {
		t.Fatal(result.Err)
	}

	doubleHash, err := codebase.Resolve("main", "double")
	if err != nil {
		t.Fatal(err)
	}
	history := codebase.History("main", "base")
	defCount := codebase.store.count()

	if err := codebase.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewCodebase(dataFile)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.store.count() != defCount {
		t.Fatalf("reloaded %d definitions; want %d", reopened.store.count(), defCount)
	}

	hash, err := reopened.Resolve("main", "double")
	if err != nil {
		t.Fatal(err)
	}
	if hash != doubleHash {
		t.Fatalf("double resolves differently after restart")
	}

	reloadedHistory := reopened.History("main", "base")
	if len(reloadedHistory) != len(history) || reloadedHistory[0] != history[0] {
		t.Fatalf("history didn't survive: %v vs %v", reloadedHistory, history)
	}

	// Groups reload with their structure intact and still evaluate.
	factHash, err := reopened.Resolve("main", "fact")
	if err != nil {
		t.Fatal(err)
	}
	factDef, err := reopened.Lookup(factHash)
	if err != nil {
		t.Fatal(err)
	}
	if factDef.Kind != KindGroup || factDef.GroupDigest.IsZero() {
		t.Fatalf("fact should reload as a group member")
	}

	reopenedSession := reopened.NewSession()
	outcome := addOne(t, reopenedSession, "fact(5)")
	if outcome.Value.Format().String() != "120" {
		t.Fatalf("got %s; want 120", outcome.Value.Format())
	}

	// The dependency graph is rebuilt from the reloaded trees: the
	// rebuilt double depends on the new base, the original double on
	// the old one.
	baseHash, err := reopened.Resolve("main", "base")
	if err != nil {
		t.Fatal(err)
	}
	if !containsHash(reopened.Dependents(baseHash), doubleHash) {
		t.Fatalf("the rebuilt double should depend on the new base")
	}
	oldBase := reloadedHistory[0]
	if !containsHash(reopened.Dependents(oldBase), oldDouble) {
		t.Fatalf("the original double should still depend on the old base")
	}
}

func containsHash(hashes []lang.Hash, want lang.Hash) bool {
	for _, h := range hashes {
		if h == want {
			return true
		}
	}
	return false
}
