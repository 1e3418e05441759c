package lang

import (
	"reflect"
	"testing"
)

func mustCanonicalize(t *testing.T, e Expr, resolve Resolver) Expr {
	t.Helper()
	canon, err := Canonicalize(e, resolve)
	if err != nil {
		t.Fatalf("canonicalize %s: %v", e.Format(), err)
	}
	return canon
}

func mustHash(t *testing.T, e Expr) Hash {
	t.Helper()
	h, err := ExprHash(e)
	if err != nil {
		t.Fatalf("hash %s: %v", e.Format(), err)
	}
	return h
}

// doubler builds `fn <param> -> times(<param>, 2)` with the given
// parameter spelling.
func doubler(param string) Expr {
	return NewELambda(
		[]Param{{Name: param, Typ: TInt}},
		NewCall(NewBuiltinRef("times"), []Expr{NewVar(param), NewIntLit(2)}),
	)
}

func TestCanonicalizeAlphaEquivalence(t *testing.T) {
	first := mustCanonicalize(t, doubler("x"), nil)
	second := mustCanonicalize(t, doubler("someLongerName"), nil)

	if mustHash(t, first) != mustHash(t, second) {
		t.Fatalf(
			"alpha-equivalent trees hash differently: %s vs %s",
			first.Format(), second.Format(),
		)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	once := mustCanonicalize(t, doubler("x"), nil)
	twice := mustCanonicalize(t, once, nil)

	if mustHash(t, once) != mustHash(t, twice) {
		t.Fatalf("canonicalization isn't idempotent")
	}
}

func TestCanonicalizeShadowing(t *testing.T) {
	// fn x -> let x = 1 in x: the body var binds to the let, not the
	// lambda param.
	inner := NewLet("x", NewIntLit(1), NewVar("x"))
	canon := mustCanonicalize(t, NewELambda([]Param{{Name: "x", Typ: TInt}}, inner), nil)

	lambda, ok := canon.(*ELambda)
	if !ok {
		t.Fatalf("expected lambda; got %T", canon)
	}
	let, ok := lambda.body.(*ELet)
	if !ok {
		t.Fatalf("expected let body; got %T", lambda.body)
	}
	local, ok := let.body.(*ELocal)
	if !ok {
		t.Fatalf("expected local; got %T", let.body)
	}
	if local.up != 0 || local.idx != 0 {
		t.Fatalf("shadowed var resolved to up=%d idx=%d; want the let frame", local.up, local.idx)
	}
}

func TestCanonicalizeResolver(t *testing.T) {
	baseHash := mustHash(t, NewIntLit(100))
	memberIdx := 1
	resolve := func(name string) *Resolved {
		switch name {
		case "base":
			return &Resolved{Global: &baseHash}
		case "sibling":
			return &Resolved{Member: &memberIdx}
		case "shout":
			return &Resolved{Builtin: "concat"}
		}
		return nil
	}

	canon := mustCanonicalize(t, NewCall(NewVar("shout"), []Expr{
		NewVar("base"),
		NewVar("sibling"),
	}), resolve)

	call := canon.(*ECall)
	if _, ok := call.fn.(*EBuiltin); !ok {
		t.Fatalf("expected builtin fn; got %T", call.fn)
	}
	ref, ok := call.args[0].(*ERef)
	if !ok {
		t.Fatalf("expected ref arg; got %T", call.args[0])
	}
	if ref.hash != baseHash {
		t.Fatalf("ref resolved to %s; want %s", ref.hash.Short(), baseHash.Short())
	}
	groupRef, ok := call.args[1].(*EGroupRef)
	if !ok {
		t.Fatalf("expected group ref arg; got %T", call.args[1])
	}
	if groupRef.idx != memberIdx {
		t.Fatalf("group ref index %d; want %d", groupRef.idx, memberIdx)
	}
}

func TestCanonicalizeBuiltinFallback(t *testing.T) {
	canon := mustCanonicalize(t, NewVar("plus"), nil)
	if _, ok := canon.(*EBuiltin); !ok {
		t.Fatalf("expected builtin; got %T", canon)
	}
}

func TestCanonicalizeUnresolved(t *testing.T) {
	_, err := Canonicalize(NewVar("nope"), nil)
	unresolved, ok := err.(*UnresolvedReference)
	if !ok {
		t.Fatalf("expected UnresolvedReference; got %v", err)
	}
	if unresolved.Name != "nope" {
		t.Fatalf("unexpected name in error: %s", unresolved.Name)
	}
}

func TestFreeVars(t *testing.T) {
	cases := []struct {
		expr     Expr
		expected []string
	}{
		{
			// fn x -> plus(x, y)
			NewELambda(
				[]Param{{Name: "x"}},
				NewCall(NewVar("plus"), []Expr{NewVar("x"), NewVar("y")}),
			),
			[]string{"y"},
		},
		{
			// let a = b in concat(a, b): b free, a bound.
			NewLet("a", NewVar("b"), NewCall(NewVar("concat"), []Expr{NewVar("a"), NewVar("b")})),
			[]string{"b"},
		},
		{
			// z mentioned twice, reported once; sorted output.
			NewCall(NewVar("plus"), []Expr{NewVar("z"), NewCall(NewVar("times"), []Expr{NewVar("a"), NewVar("z")})}),
			[]string{"a", "z"},
		},
		{
			NewIntLit(5),
			[]string{},
		},
	}
	for idx, testCase := range cases {
		actual := FreeVars(testCase.expr)
		if !reflect.DeepEqual(actual, testCase.expected) {
			t.Errorf("case %d: got %v; expected %v", idx, actual, testCase.expected)
		}
	}
}
