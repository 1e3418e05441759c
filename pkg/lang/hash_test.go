package lang

import (
	"strings"
	"testing"
)

func TestExprHashDistinguishesKinds(t *testing.T) {
	exprs := []Expr{
		NewIntLit(1),
		NewIntLit(2),
		NewStringLit("1"),
		NewBoolLit(true),
		NewBoolLit(false),
		NewBuiltinRef("plus"),
		NewGroupRef(0, "self"),
		NewRecordLit(map[string]Expr{"a": NewIntLit(1)}),
		NewRecordLit(map[string]Expr{"b": NewIntLit(1)}),
	}
	seen := map[Hash]string{}
	for _, e := range exprs {
		h := mustHash(t, e)
		if prev, ok := seen[h]; ok {
			t.Fatalf("hash collision: %s vs %s", prev, e.Format())
		}
		seen[h] = e.Format().String()
	}
}

func TestExprHashIgnoresHints(t *testing.T) {
	target := mustHash(t, NewIntLit(7))
	withHint := mustHash(t, NewRef(target, "seven"))
	withoutHint := mustHash(t, NewRef(target, ""))
	if withHint != withoutHint {
		t.Fatalf("display hint leaked into the hash")
	}
}

func TestExprHashRejectsSurfaceVars(t *testing.T) {
	_, err := ExprHash(NewVar("x"))
	if _, ok := err.(*UnresolvedReference); !ok {
		t.Fatalf("expected UnresolvedReference; got %v", err)
	}
}

func TestGroupDigest(t *testing.T) {
	even := mustCanonicalize(t, NewELambda(
		[]Param{{Name: "n", Typ: TInt}},
		NewCall(NewVar("odd"), []Expr{NewVar("n")}),
	), groupResolver(map[string]int{"even": 0, "odd": 1}))
	odd := mustCanonicalize(t, NewELambda(
		[]Param{{Name: "n", Typ: TInt}},
		NewCall(NewVar("even"), []Expr{NewVar("n")}),
	), groupResolver(map[string]int{"even": 0, "odd": 1}))

	digest, err := GroupDigest([]Expr{even, odd})
	if err != nil {
		t.Fatal(err)
	}
	swapped, err := GroupDigest([]Expr{odd, even})
	if err != nil {
		t.Fatal(err)
	}
	if digest == swapped {
		t.Fatalf("member order should be part of the group identity")
	}

	first := GroupMemberHash(digest, 0)
	second := GroupMemberHash(digest, 1)
	if first == second {
		t.Fatalf("member hashes collide within one group")
	}
	if first == digest || second == digest {
		t.Fatalf("member hash collides with the group digest")
	}
}

func groupResolver(members map[string]int) Resolver {
	return func(name string) *Resolved {
		if idx, ok := members[name]; ok {
			idx := idx
			return &Resolved{Member: &idx}
		}
		return nil
	}
}

func TestTypeDeclHash(t *testing.T) {
	point := NewTRecord(map[string]Type{"x": TInt, "y": TInt})
	samePoint := NewTRecord(map[string]Type{"y": TInt, "x": TInt})
	if TypeDeclHash(point) != TypeDeclHash(samePoint) {
		t.Fatalf("field order shouldn't matter for record type hashes")
	}
	if TypeDeclHash(point) == TypeHash(point) {
		t.Fatalf("a type declaration should hash differently from a bare type")
	}
}

func TestParseHash(t *testing.T) {
	original := mustHash(t, NewStringLit("round trip"))
	parsed, err := ParseHash(original.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != original {
		t.Fatalf("round trip changed the hash")
	}

	if _, err := ParseHash("zzzz"); err == nil {
		t.Fatalf("expected an error for non-hex input")
	}
	if _, err := ParseHash("abcd"); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected a length error; got %v", err)
	}
}

func TestHashShort(t *testing.T) {
	h := mustHash(t, NewIntLit(42))
	if len(h.Short()) != 8 {
		t.Fatalf("short form is %q; want 8 hex chars", h.Short())
	}
	if !strings.HasPrefix(h.String(), h.Short()) {
		t.Fatalf("short form should be a prefix of the full hash")
	}
}
