package lang

import "fmt"

var BuiltinsScope *Scope
var BuiltinsTypeScope *TypeScope

// IsBuiltin reports whether a free identifier names a builtin.
func IsBuiltin(name string) bool {
	_, err := BuiltinsScope.find(name)
	return err == nil
}

func intBinOp(name string, impl func(l, r int) (Value, error)) *VBuiltin {
	return &VBuiltin{
		Name:    name,
		Params:  []Param{{"a", TInt}, {"b", TInt}},
		RetType: TInt,
		Impl: func(args []Value) (Value, error) {
			l := int(*mustBeVInt(args[0]))
			r := int(*mustBeVInt(args[1]))
			return impl(l, r)
		},
	}
}

func init() {
	BuiltinsScope = NewScope(nil)
	BuiltinsScope.AddMap(map[string]Value{
		// Arithmetic.
		"plus": intBinOp("plus", func(l, r int) (Value, error) {
			return NewVInt(l + r), nil
		}),
		"minus": intBinOp("minus", func(l, r int) (Value, error) {
			return NewVInt(l - r), nil
		}),
		"times": intBinOp("times", func(l, r int) (Value, error) {
			return NewVInt(l * r), nil
		}),
		"div": intBinOp("div", func(l, r int) (Value, error) {
			if r == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return NewVInt(l / r), nil
		}),
		"mod": intBinOp("mod", func(l, r int) (Value, error) {
			if r == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return NewVInt(l % r), nil
		}),
		// Comparison.
		"intEq": &VBuiltin{
			Name:    "intEq",
			Params:  []Param{{"a", TInt}, {"b", TInt}},
			RetType: TBool,
			Impl: func(args []Value) (Value, error) {
				left := mustBeVInt(args[0])
				right := mustBeVInt(args[1])
				return NewVBool(*left == *right), nil
			},
		},
		"lt": &VBuiltin{
			Name:    "lt",
			Params:  []Param{{"a", TInt}, {"b", TInt}},
			RetType: TBool,
			Impl: func(args []Value) (Value, error) {
				left := mustBeVInt(args[0])
				right := mustBeVInt(args[1])
				return NewVBool(*left < *right), nil
			},
		},
		"strEq": &VBuiltin{
			Name:    "strEq",
			Params:  []Param{{"a", TString}, {"b", TString}},
			RetType: TBool,
			Impl: func(args []Value) (Value, error) {
				left := mustBeVString(args[0])
				right := mustBeVString(args[1])
				return NewVBool(left == right), nil
			},
		},
		"not": &VBuiltin{
			Name:    "not",
			Params:  []Param{{"b", TBool}},
			RetType: TBool,
			Impl: func(args []Value) (Value, error) {
				b, ok := args[0].(*VBool)
				if !ok {
					return nil, fmt.Errorf("not a bool: %s", args[0].Format())
				}
				return NewVBool(!bool(*b)), nil
			},
		},
		// Strings.
		"concat": &VBuiltin{
			Name:    "concat",
			Params:  []Param{{"a", TString}, {"b", TString}},
			RetType: TString,
			Impl: func(args []Value) (Value, error) {
				left := mustBeVString(args[0])
				right := mustBeVString(args[1])
				return NewVString(left + right), nil
			},
		},
		"intToString": &VBuiltin{
			Name:    "intToString",
			Params:  []Param{{"i", TInt}},
			RetType: TString,
			Impl: func(args []Value) (Value, error) {
				i := mustBeVInt(args[0])
				return NewVString(fmt.Sprintf("%d", *i)), nil
			},
		},
	})

	BuiltinsTypeScope = NewTypeScope(nil)
	for name, val := range BuiltinsScope.vals {
		BuiltinsTypeScope.Add(name, val.GetType())
	}
}

// binOpBuiltins maps surface operator spellings to builtin names; the
// parser desugars operator applications into builtin calls.
var binOpBuiltins = map[string]string{
	"+":  "plus",
	"-":  "minus",
	"*":  "times",
	"/":  "div",
	"%":  "mod",
	"++": "concat",
	"==": "intEq",
	"<":  "lt",
}

// BinOpBuiltin resolves an operator spelling to its builtin name.
func BinOpBuiltin(op string) (string, bool) {
	name, ok := binOpBuiltins[op]
	return name, ok
}
