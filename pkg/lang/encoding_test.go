package lang

import (
	"testing"
)

func TestEncodeDecodeExpr(t *testing.T) {
	refTarget := mustHash(t, NewIntLit(9))
	cases := []Expr{
		NewIntLit(0),
		NewIntLit(-42),
		NewStringLit(`with "quotes" and newline` + "\n"),
		NewBoolLit(true),
		NewRef(refTarget, "nine"),
		NewBuiltinRef("intToString"),
		NewGroupRef(2, "sibling"),
		NewLocal(1, 0, "x"),
		NewRecordLit(map[string]Expr{
			"x":     NewIntLit(1),
			"label": NewStringLit("origin"),
		}),
		NewMemberAccess(NewRecordLit(map[string]Expr{"x": NewIntLit(1)}), "x"),
		NewLet("tmp", NewIntLit(1), NewLocal(0, 0, "tmp")),
		NewIf(NewBoolLit(true), NewIntLit(1), NewIntLit(2)),
		// fn a: int, b -> plus(a, b)
		NewELambda(
			[]Param{{Name: "a", Typ: TInt}, {Name: "b"}},
			NewCall(NewBuiltinRef("plus"), []Expr{
				NewLocal(0, 0, "a"),
				NewLocal(0, 1, "b"),
			}),
		),
	}
	for idx, original := range cases {
		data, err := Encode(original)
		if err != nil {
			t.Fatalf("case %d: encode %s: %v", idx, original.Format(), err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("case %d: decode %s: %v", idx, original.Format(), err)
		}
		if mustHash(t, decoded) != mustHash(t, original) {
			t.Fatalf("case %d: decoded tree hashes differently", idx)
		}
		// Display hints ride along too.
		if decoded.Format().String() != original.Format().String() {
			t.Fatalf(
				"case %d: got %s; expected %s",
				idx, decoded.Format(), original.Format(),
			)
		}
	}
}

func TestEncodeRejectsSurfaceVars(t *testing.T) {
	if _, err := Encode(NewVar("x")); err == nil {
		t.Fatalf("surface vars shouldn't be encodable")
	}
}

func TestDecodeTruncated(t *testing.T) {
	data, err := Encode(NewELambda(
		[]Param{{Name: "x", Typ: TInt}},
		NewLocal(0, 0, "x"),
	))
	if err != nil {
		t.Fatal(err)
	}
	for cut := 0; cut < len(data); cut++ {
		if _, err := Decode(data[:cut]); err == nil {
			t.Fatalf("decoding %d of %d bytes should fail", cut, len(data))
		}
	}
}

func TestEncodeDecodeType(t *testing.T) {
	cases := []Type{
		TInt,
		TBool,
		TString,
		NewTVar("t3"),
		NewTRecord(map[string]Type{
			"x": TInt,
			"y": TInt,
		}),
		NewTFunction([]Param{{Name: "s", Typ: TString}}, TInt),
		NewTRecord(map[string]Type{
			"callback": NewTFunction([]Param{{Name: "n", Typ: TInt}}, TBool),
		}),
	}
	for idx, original := range cases {
		data, err := EncodeType(original)
		if err != nil {
			t.Fatalf("case %d: encode %s: %v", idx, original.Format(), err)
		}
		decoded, err := DecodeType(data)
		if err != nil {
			t.Fatalf("case %d: decode %s: %v", idx, original.Format(), err)
		}
		if decoded.Format().String() != original.Format().String() {
			t.Fatalf(
				"case %d: got %s; expected %s",
				idx, decoded.Format(), original.Format(),
			)
		}
	}
}
