package vibe

import (
	"context"
	"testing"
)

func mustUpdate(t *testing.T, s *Session) *UpdateResult {
	t.Helper()
	result, err := s.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestUpdatePropagatesThroughChain(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "base = 10")
	addOne(t, session, "double = base * 2")
	addOne(t, session, "quad = double * 2")

	addOne(t, session, "base = 7")
	result := mustUpdate(t, session)
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if len(result.Edits) != 1 {
		t.Fatalf("got %d edits; want 1", len(result.Edits))
	}
	// double and quad both get rebuilt, dependency first.
	if len(result.Steps) != 2 {
		t.Fatalf("got %d steps; want 2", len(result.Steps))
	}
	for _, step := range result.Steps {
		if step.Err != nil {
			t.Fatalf("step #%s failed: %v", step.OldHash.Short(), step.Err)
		}
	}

	after := addOne(t, session, "quad")
	if after.Value.Format().String() != "28" {
		t.Fatalf("got %s; want 28", after.Value.Format())
	}

	// The update consumed the session's edits.
	if len(session.Edits()) != 0 {
		t.Fatalf("edits should be consumed")
	}
}

func TestUpdateNothingPending(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "x = 1")

	result := mustUpdate(t, session)
	if len(result.Edits) != 0 || len(result.Steps) != 0 {
		t.Fatalf("an empty update should be a no-op: %+v", result)
	}
}

func TestUpdateLeavesOldDefinitions(t *testing.T) {
	session := newTestSession(t)
	first := addOne(t, session, "x = 1")
	addOne(t, session, "y = x + 1")
	addOne(t, session, "x = 2")
	mustUpdate(t, session)

	// The store is append-only; the old definition is still there.
	if _, err := session.codebase.Lookup(first.Hash); err != nil {
		t.Fatalf("old definition should survive: %v", err)
	}
	hist := session.codebase.History("main", "x")
	if len(hist) == 0 || hist[0] != first.Hash {
		t.Fatalf("history should record the replaced hash; got %v", hist)
	}
}

func TestUpdateRebuildsRecursiveGroup(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "step = 1")
	_, err := session.Add(context.Background(),
		"countEven = fn n -> if n == 0 then true else countOdd(n - step); "+
			"countOdd = fn n -> if n == 0 then false else countEven(n - step)")
	if err != nil {
		t.Fatal(err)
	}

	before, err := session.codebase.Resolve("main", "countEven")
	if err != nil {
		t.Fatal(err)
	}

	addOne(t, session, "step = 2")
	result := mustUpdate(t, session)
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	// The whole group rebuilds as one step.
	if len(result.Steps) != 1 {
		t.Fatalf("got %d steps; want 1", len(result.Steps))
	}
	if len(result.Steps[0].Names) != 2 {
		t.Fatalf("both member names should repoint; got %v", result.Steps[0].Names)
	}

	after, err := session.codebase.Resolve("main", "countEven")
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatalf("countEven should point at the rebuilt member")
	}
	afterDef, err := session.codebase.Lookup(after)
	if err != nil {
		t.Fatal(err)
	}
	if afterDef.Kind != KindGroup {
		t.Fatalf("the rebuilt definition should still be a group member")
	}

	check := addOne(t, session, "countEven(4)")
	if check.Value.Format().String() != "true" {
		t.Fatalf("got %s; want true", check.Value.Format())
	}
}

func TestUpdateSkipsExplicitlyReplaced(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "a = 1")
	oldB := addOne(t, session, "b = a + 5")

	// The user replaces both. b's old definition is never rebuilt
	// mechanically; its replacement, written against the still-pending
	// a, is carried forward to the new a instead.
	addOne(t, session, "a = 10")
	newB := addOne(t, session, "b = a + 10")
	result := mustUpdate(t, session)
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if len(result.Edits) != 2 {
		t.Fatalf("got %d edits; want 2", len(result.Edits))
	}
	for _, step := range result.Steps {
		if step.OldHash == oldB.Hash {
			t.Fatalf("the explicitly replaced definition must not be rebuilt")
		}
	}
	if len(result.Steps) != 1 || result.Steps[0].OldHash != newB.Hash {
		t.Fatalf("only b's replacement should be carried to the new a: %+v", result.Steps)
	}

	check := addOne(t, session, "b")
	if check.Value.Format().String() != "20" {
		t.Fatalf("got %s; want 20", check.Value.Format())
	}
}

func TestUpdateFailureIsolation(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "flag = true")
	addOne(t, session, "gate = not(flag)")
	addOne(t, session, "count = 1 + 1")

	// Rebinding flag to an int breaks gate but not count's branch.
	addOne(t, session, "flag = 5")
	result := mustUpdate(t, session)
	if result.Err == nil {
		t.Fatalf("expected the broken dependent to be reported")
	}

	var failed *UpdateStep
	for _, step := range result.Steps {
		if step.Err != nil {
			failed = step
		}
	}
	if failed == nil {
		t.Fatalf("no failing step recorded")
	}
	if !failed.NewHash.IsZero() {
		t.Fatalf("a failed step shouldn't claim a new hash")
	}

	// gate still points at its old, well-typed definition.
	gateHash, err := session.codebase.Resolve("main", "gate")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := session.codebase.TypeOf(context.Background(), gateHash); err != nil {
		t.Fatalf("gate should still name the old definition: %v", err)
	}
}

func TestUpdateFailureDoesNotBlockSiblings(t *testing.T) {
	session := newTestSession(t)
	addOne(t, session, "flag = true")
	addOne(t, session, "bad = not(flag)")
	base := addOne(t, session, "base = 1")
	addOne(t, session, "good = base + 1")

	// One edit breaks its dependent; the other propagates cleanly.
	addOne(t, session, "flag = 5")
	newBase := addOne(t, session, "base = 2")
	if newBase.Replaced == nil || *newBase.Replaced != base.Hash {
		t.Fatalf("rebinding base should report the replaced hash")
	}
	result := mustUpdate(t, session)
	if result.Err == nil {
		t.Fatalf("expected bad's failure to be reported")
	}

	sawFailure := false
	sawGood := false
	for _, step := range result.Steps {
		if step.Err != nil {
			sawFailure = true
			continue
		}
		for _, qn := range step.Names {
			if qn.Name == "good" {
				sawGood = true
			}
		}
	}
	if !sawFailure || !sawGood {
		t.Fatalf("expected one failing and one clean step; got %+v", result.Steps)
	}

	check := addOne(t, session, "good")
	if check.Value.Format().String() != "3" {
		t.Fatalf("got %s; want 3", check.Value.Format())
	}
}
