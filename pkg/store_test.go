package vibe

import (
	"testing"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

func TestStoreTermIdempotent(t *testing.T) {
	store := newDefinitionStore()

	first, isNew, err := store.insertTerm(lang.NewIntLit(42))
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatalf("first insert should be new")
	}
	second, isNew, err := store.insertTerm(lang.NewIntLit(42))
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Fatalf("re-insert of identical content should be a no-op")
	}
	if first != second {
		t.Fatalf("re-insert should return the stored definition")
	}
	if store.count() != 1 {
		t.Fatalf("store holds %d definitions; want 1", store.count())
	}

	def, err := store.lookup(first.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != KindTerm {
		t.Fatalf("got kind %s; want term", def.Kind)
	}
}

func TestStoreLookupMissing(t *testing.T) {
	store := newDefinitionStore()
	var missing lang.Hash
	missing[0] = 0xee
	_, err := store.lookup(missing)
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("expected NotFound; got %v", err)
	}
}

func TestStoreTypeDecl(t *testing.T) {
	store := newDefinitionStore()
	point := lang.NewTRecord(map[string]lang.Type{"x": lang.TInt, "y": lang.TInt})

	def, isNew, err := store.insertType(point)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || def.Kind != KindType {
		t.Fatalf("unexpected insert result: new=%v kind=%s", isNew, def.Kind)
	}
	if def.Type == nil || len(def.Deps) != 0 {
		t.Fatalf("type declarations carry no tree deps")
	}
}

func TestStoreGroup(t *testing.T) {
	store := newDefinitionStore()
	// Two members that call each other positionally.
	members := []lang.Expr{
		lang.NewELambda(
			[]lang.Param{{Name: "n", Typ: lang.TInt}},
			lang.NewCall(lang.NewGroupRef(1, "odd"), []lang.Expr{lang.NewLocal(0, 0, "n")}),
		),
		lang.NewELambda(
			[]lang.Param{{Name: "n", Typ: lang.TInt}},
			lang.NewCall(lang.NewGroupRef(0, "even"), []lang.Expr{lang.NewLocal(0, 0, "n")}),
		),
	}

	defs, isNew, err := store.insertGroup(members)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || len(defs) != 2 {
		t.Fatalf("unexpected insert result: new=%v len=%d", isNew, len(defs))
	}
	if defs[0].GroupDigest != defs[1].GroupDigest {
		t.Fatalf("members should share a digest")
	}
	if defs[0].Hash == defs[1].Hash {
		t.Fatalf("members should have distinct hashes")
	}
	for idx, def := range defs {
		if def.Kind != KindGroup || def.GroupIndex != idx {
			t.Fatalf("member %d: kind=%s index=%d", idx, def.Kind, def.GroupIndex)
		}
		if len(def.GroupMembers) != 2 {
			t.Fatalf("member %d lists %d group members", idx, len(def.GroupMembers))
		}
		// The stored tree references siblings by hash, not position.
		found := false
		for _, dep := range def.Deps {
			if dep == defs[1-idx].Hash {
				found = true
			}
		}
		if !found {
			t.Fatalf("member %d should depend on its sibling", idx)
		}
	}

	again, isNew, err := store.insertGroup(members)
	if err != nil {
		t.Fatal(err)
	}
	if isNew || again[0].Hash != defs[0].Hash {
		t.Fatalf("group re-insert should be a no-op")
	}
}

func TestResolvePrefix(t *testing.T) {
	store := newDefinitionStore()
	def, _, err := store.insertTerm(lang.NewIntLit(7))
	if err != nil {
		t.Fatal(err)
	}

	hash, err := store.resolvePrefix(def.Hash.Short())
	if err != nil {
		t.Fatal(err)
	}
	if hash != def.Hash {
		t.Fatalf("prefix resolved to the wrong hash")
	}

	// Prefix matching is case-insensitive; the full hash works too.
	if _, err := store.resolvePrefix(def.Hash.String()); err != nil {
		t.Fatal(err)
	}

	if _, err := store.resolvePrefix("not hex"); err == nil {
		t.Fatalf("expected an error for non-hex input")
	}

	missing := "f"
	if def.Hash.String()[0] == 'f' {
		missing = "0"
	}
	if _, err := store.resolvePrefix(missing); err == nil {
		t.Fatalf("expected an error for an unknown prefix")
	} else if _, ok := err.(*NoSuchPrefix); !ok {
		t.Fatalf("expected NoSuchPrefix; got %v", err)
	}
}

func TestResolvePrefixAmbiguous(t *testing.T) {
	store := newDefinitionStore()
	// Insert until two hashes share a first hex digit; with 17 inserts
	// the pigeonhole guarantees it.
	byDigit := map[byte][]lang.Hash{}
	for n := 0; ; n++ {
		def, _, err := store.insertTerm(lang.NewIntLit(n))
		if err != nil {
			t.Fatal(err)
		}
		digit := def.Hash.String()[0]
		byDigit[digit] = append(byDigit[digit], def.Hash)
		if len(byDigit[digit]) == 2 {
			_, err := store.resolvePrefix(string(digit))
			ambiguous, ok := err.(*AmbiguousPrefix)
			if !ok {
				t.Fatalf("expected AmbiguousPrefix; got %v", err)
			}
			if len(ambiguous.Matches) < 2 {
				t.Fatalf("ambiguity should report the matches")
			}
			return
		}
	}
}
