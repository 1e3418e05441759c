package lang

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExprFormat(t *testing.T) {
	refTarget, err := ExprHash(NewIntLit(9))
	require.NoError(t, err)

	testCases := []struct {
		in  Expr
		out string
	}{
		{NewIntLit(-3), `-3`},
		{NewStringLit("hi"), `"hi"`},
		{NewBoolLit(true), `true`},
		{NewVar("x"), `x`},
		{NewLocal(0, 0, "x"), `x`},
		{NewRef(refTarget, "nine"), `nine`},
		{NewRef(refTarget, ""), `#` + refTarget.Short()},
		{NewBuiltinRef("plus"), `plus`},
		{NewGroupRef(1, "odd"), `odd`},
		{
			NewCall(NewVar("plus"), []Expr{NewIntLit(1), NewIntLit(2)}),
			`plus(1, 2)`,
		},
		{
			NewELambda(
				[]Param{{Name: "x", Typ: TInt}, {Name: "y"}},
				NewVar("x"),
			),
			`fn x: int, y -> x`,
		},
		{
			NewLet("n", NewIntLit(1), NewVar("n")),
			`let n = 1 in n`,
		},
		{
			NewIf(NewBoolLit(true), NewIntLit(1), NewIntLit(2)),
			`if true then 1 else 2`,
		},
		{
			NewMemberAccess(NewVar("point"), "x"),
			`point.x`,
		},
		{
			NewRecordLit(map[string]Expr{"b": NewIntLit(2), "a": NewIntLit(1)}),
			"{\n  a: 1,\n  b: 2\n}",
		},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.out, testCase.in.Format().String())
	}
}

func TestValueFormat(t *testing.T) {
	testCases := []struct {
		in  Value
		out string
	}{
		{NewVInt(42), `42`},
		{NewVString("hello"), `"hello"`},
		{NewVBool(false), `false`},
		{
			NewVRecord(map[string]Value{"x": NewVInt(1), "y": NewVInt(2)}),
			"{\n  x: 1,\n  y: 2\n}",
		},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.out, testCase.in.Format().String())
	}
}

func TestMarshalValueJSON(t *testing.T) {
	raw, err := MarshalValueJSON(NewVRecord(map[string]Value{
		"n": NewVInt(1),
		"s": NewVString("two"),
	}))
	require.NoError(t, err)
	require.Equal(t, `{"n":1,"s":"two"}`, string(raw))
}
