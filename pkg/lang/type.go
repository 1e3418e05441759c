package lang

import (
	"fmt"
	"sort"
	"sync/atomic"

	pp "github.com/mizchi/vibe-lang-sub001/pkg/prettyprint"
)

type Type interface {
	Format() pp.Doc
	matches(Type) (bool, typeVarBindings)

	// Returns substituted type, isConcrete, and an error.
	substitute(typeVarBindings) (Type, bool, error)
}

func ParseAtomicType(name string) (Type, error) {
	switch name {
	case "string":
		return TString, nil
	case "int":
		return TInt, nil
	case "bool":
		return TBool, nil
	default:
		return nil, fmt.Errorf("can't parse type %s", name)
	}
}

type typeVarBindings map[tVar]Type

func (tvb typeVarBindings) extend(other typeVarBindings) error {
	for name, typ := range other {
		currentTyp, ok := tvb[name]
		if ok {
			if matches, _ := currentTyp.matches(typ); !matches {
				return fmt.Errorf(
					"can't extend bindings: currently %s is %s; tried to extend with %s",
					name, currentTyp.Format(), typ.Format(),
				)
			}
		}
		tvb[name] = typ
	}
	return nil
}

// resolve chases a type variable through the bindings. Non-variables
// and unbound variables come back unchanged.
func (tvb typeVarBindings) resolve(t Type) Type {
	for {
		tv, ok := t.(*tVar)
		if !ok {
			return t
		}
		bound, ok := tvb[*tv]
		if !ok {
			return t
		}
		t = bound
	}
}

// Int

type tInt struct{}

var TInt = &tInt{}
var _ Type = TInt

func (tInt) Format() pp.Doc {
	return pp.Text("int")
}

func (tInt) matches(other Type) (bool, typeVarBindings) {
	return other == TInt, nil
}

func (ti *tInt) substitute(typeVarBindings) (Type, bool, error) { return ti, true, nil }

// Bool

type tBool struct{}

var TBool = &tBool{}
var _ Type = TBool

func (tBool) Format() pp.Doc {
	return pp.Text("bool")
}

func (tBool) matches(other Type) (bool, typeVarBindings) {
	return other == TBool, nil
}

func (tb *tBool) substitute(typeVarBindings) (Type, bool, error) { return tb, true, nil }

// String

type tString struct{}

var TString = &tString{}
var _ Type = TString

func (tString) Format() pp.Doc {
	return pp.Text("string")
}

func (tString) matches(other Type) (bool, typeVarBindings) {
	return other == TString, nil
}

func (ts *tString) substitute(typeVarBindings) (Type, bool, error) { return ts, true, nil }

// Record

type TRecord struct {
	types map[string]Type
}

var _ Type = &TRecord{}

func NewTRecord(types map[string]Type) *TRecord {
	return &TRecord{
		types: types,
	}
}

func (tr *TRecord) Fields() map[string]Type {
	out := make(map[string]Type, len(tr.types))
	for name, typ := range tr.types {
		out[name] = typ
	}
	return out
}

func (tr *TRecord) Format() pp.Doc {
	keys := make([]string, 0, len(tr.types))
	for k := range tr.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvDocs := make([]pp.Doc, len(keys))
	for idx, key := range keys {
		kvDocs[idx] = pp.Seq([]pp.Doc{
			pp.Text(key),
			pp.Text(": "),
			tr.types[key].Format(),
		})
	}

	return pp.Bracket("{", pp.Join(kvDocs, pp.CommaNewline), "}")
}

func (tr *TRecord) matches(other Type) (bool, typeVarBindings) {
	otherTR, ok := other.(*TRecord)
	if !ok {
		return false, nil
	}
	if len(otherTR.types) != len(tr.types) {
		return false, nil
	}
	for name, typ := range tr.types {
		otherTyp, ok := otherTR.types[name]
		if !ok {
			return false, nil
		}
		if matches, _ := typ.matches(otherTyp); !matches {
			return false, nil
		}
	}
	return true, nil
}

func (tr *TRecord) substitute(tvb typeVarBindings) (Type, bool, error) {
	types := map[string]Type{}
	isConcrete := true
	for name, typ := range tr.types {
		newTyp, typConcrete, err := typ.substitute(tvb)
		if err != nil {
			return nil, false, err
		}
		types[name] = newTyp
		isConcrete = isConcrete && typConcrete
	}
	return &TRecord{types: types}, isConcrete, nil
}

// Function

type tFunction struct {
	params  paramList
	retType Type
}

var _ Type = &tFunction{}

func NewTFunction(params []Param, retType Type) *tFunction {
	return &tFunction{
		params:  params,
		retType: retType,
	}
}

func (tf *tFunction) Format() pp.Doc {
	paramDocs := make([]pp.Doc, len(tf.params))
	for idx, param := range tf.params {
		if param.Typ == nil {
			paramDocs[idx] = pp.Text(param.Name)
			continue
		}
		paramDocs[idx] = param.Typ.Format()
	}
	return pp.Seq([]pp.Doc{
		pp.Text("("),
		pp.Join(paramDocs, pp.Text(", ")),
		pp.Text(") -> "),
		tf.retType.Format(),
	})
}

func (tf *tFunction) matches(other Type) (bool, typeVarBindings) {
	otherFunc, ok := other.(*tFunction)
	if !ok {
		return false, nil
	}
	bindings := make(typeVarBindings)
	paramsMatch, paramBindings := tf.params.Matches(otherFunc.params)
	if !paramsMatch {
		return false, nil
	}
	bindings.extend(paramBindings)
	retMatches, retBindings := tf.retType.matches(otherFunc.retType)
	if !retMatches {
		return false, nil
	}
	bindings.extend(retBindings)
	return true, bindings
}

func (tf *tFunction) substitute(tvb typeVarBindings) (Type, bool, error) {
	params, paramsConcrete, err := tf.params.substitute(tvb)
	if err != nil {
		return nil, false, err
	}
	ret, retConcrete, err := tf.retType.substitute(tvb)
	if err != nil {
		return nil, false, err
	}
	concrete := retConcrete && paramsConcrete
	return &tFunction{
		params:  params,
		retType: ret,
	}, concrete, nil
}

// Type variables

type tVar string

var _ Type = NewTVar("A")

func NewTVar(name string) *tVar {
	t := tVar(name)
	return &t
}

var tVarCounter uint64

func freshTVar() *tVar {
	n := atomic.AddUint64(&tVarCounter, 1)
	return NewTVar(fmt.Sprintf("t%d", n))
}

func (tv *tVar) Format() pp.Doc {
	return pp.Text(string(*tv))
}

func (tv *tVar) matches(other Type) (bool, typeVarBindings) {
	_, isTVar := other.(*tVar)
	if isTVar {
		return false, nil
	}
	return true, map[tVar]Type{
		*tv: other,
	}
}

func (tv *tVar) substitute(tvb typeVarBindings) (Type, bool, error) {
	binding, ok := tvb[*tv]
	if !ok {
		return nil, false, fmt.Errorf("missing type var: %s", *tv)
	}
	return binding, false, nil
}

// Param List

type paramList []Param

func (pl paramList) Format() pp.Doc {
	paramDocs := make([]pp.Doc, len(pl))
	for idx, param := range pl {
		if param.Typ != nil {
			paramDocs[idx] = pp.Seq([]pp.Doc{
				pp.Text(param.Name), pp.Text(": "), param.Typ.Format(),
			})
			continue
		}
		paramDocs[idx] = pp.Text(param.Name)
	}
	return pp.Join(paramDocs, pp.Text(", "))
}

func (pl paramList) Matches(other paramList) (bool, typeVarBindings) {
	if len(pl) != len(other) {
		return false, nil
	}
	bindings := make(typeVarBindings)
	for idx, param := range pl {
		otherParam := other[idx]
		if param.Typ == nil || otherParam.Typ == nil {
			continue
		}
		matches, paramBindings := param.Typ.matches(otherParam.Typ)
		if !matches {
			return false, nil
		}
		bindings.extend(paramBindings)
	}
	return true, bindings
}

// substitute returns new param list, isConcrete, and an error.
func (pl paramList) substitute(tvb typeVarBindings) (paramList, bool, error) {
	out := make(paramList, len(pl))
	isConcrete := true
	for idx, param := range pl {
		if param.Typ == nil {
			out[idx] = param
			isConcrete = false
			continue
		}
		newTyp, concrete, err := param.Typ.substitute(tvb)
		if err != nil {
			out[idx] = param
			isConcrete = false
			continue
		}
		out[idx] = Param{
			Typ:  newTyp,
			Name: param.Name,
		}
		isConcrete = isConcrete && concrete
	}
	return out, isConcrete, nil
}

// withFreshVars replaces missing annotations with fresh type variables
// so a lambda body can be checked against something.
func (pl paramList) withFreshVars() paramList {
	out := make(paramList, len(pl))
	for idx, param := range pl {
		if param.Typ == nil {
			out[idx] = Param{Name: param.Name, Typ: freshTVar()}
			continue
		}
		out[idx] = param
	}
	return out
}

func (pl paramList) types() []Type {
	out := make([]Type, len(pl))
	for idx, param := range pl {
		out[idx] = param.Typ
	}
	return out
}
