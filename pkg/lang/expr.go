package lang

import (
	"fmt"
	"sort"

	pp "github.com/mizchi/vibe-lang-sub001/pkg/prettyprint"
)

type Expr interface {
	Evaluate(*interpreter) (Value, error)
	GetType(*TypeScope) (Type, error)
	Format() pp.Doc
}

// Int

type EIntLit int

var _ Expr = NewIntLit(0)

func NewIntLit(i int) *EIntLit {
	val := EIntLit(i)
	return &val
}

func (e *EIntLit) Evaluate(_ *interpreter) (Value, error) {
	return NewVInt(int(*e)), nil
}

func (e *EIntLit) Format() pp.Doc {
	return pp.Textf("%d", *e)
}

func (e *EIntLit) GetType(*TypeScope) (Type, error) {
	return TInt, nil
}

// String

type EStringLit string

var eEmptyStr = EStringLit("")
var _ Expr = &eEmptyStr

func NewStringLit(s string) *EStringLit {
	val := EStringLit(s)
	return &val
}

func (e *EStringLit) Evaluate(_ *interpreter) (Value, error) {
	return NewVString(string(*e)), nil
}

func (e *EStringLit) Format() pp.Doc {
	return pp.Textf("%#v", string(*e))
}

func (e *EStringLit) GetType(*TypeScope) (Type, error) {
	return TString, nil
}

// Bool

type EBoolLit bool

var eFalse = EBoolLit(false)
var _ Expr = &eFalse

func NewBoolLit(b bool) *EBoolLit {
	val := EBoolLit(b)
	return &val
}

func (e *EBoolLit) Evaluate(_ *interpreter) (Value, error) {
	return NewVBool(bool(*e)), nil
}

func (e *EBoolLit) Format() pp.Doc {
	if bool(*e) {
		return pp.Text("true")
	}
	return pp.Text("false")
}

func (e *EBoolLit) GetType(*TypeScope) (Type, error) {
	return TBool, nil
}

// Var
//
// A free or bound identifier as spelled in source. Only exists in surface
// trees; canonicalization rewrites every EVar into an ELocal, ERef,
// EBuiltin, or EGroupRef, or fails with UnresolvedReference.

type EVar struct {
	name string
}

var _ Expr = &EVar{}

func NewVar(name string) *EVar {
	return &EVar{name: name}
}

func (e *EVar) Evaluate(interp *interpreter) (Value, error) {
	return interp.stackTop.scope.find(e.name)
}

func (e *EVar) Format() pp.Doc {
	return pp.Text(e.name)
}

func (e *EVar) GetType(scope *TypeScope) (Type, error) {
	return scope.find(e.name)
}

// Local
//
// A canonical bound-variable occurrence: `up` binders out, parameter
// `idx` within that binder. The source spelling survives only as a hint
// for pretty-printing; it is not part of the hash.

type ELocal struct {
	up   int
	idx  int
	hint string
}

var _ Expr = &ELocal{}

func NewLocal(up int, idx int, hint string) *ELocal {
	return &ELocal{up: up, idx: idx, hint: hint}
}

func (e *ELocal) Evaluate(interp *interpreter) (Value, error) {
	return interp.stackTop.scope.local(e.up, e.idx)
}

func (e *ELocal) Format() pp.Doc {
	if e.hint != "" {
		return pp.Text(e.hint)
	}
	return pp.Textf("'%d.%d", e.up, e.idx)
}

func (e *ELocal) GetType(scope *TypeScope) (Type, error) {
	return scope.local(e.up, e.idx)
}

// Ref
//
// A resolved reference to another stored definition. The hint is the
// name the reference was spelled with, retained for display only.

type ERef struct {
	hash Hash
	hint string
}

var _ Expr = &ERef{}

func NewRef(hash Hash, hint string) *ERef {
	return &ERef{hash: hash, hint: hint}
}

func (e *ERef) Hash() Hash {
	return e.hash
}

func (e *ERef) Evaluate(interp *interpreter) (Value, error) {
	return interp.resolveRef(e.hash)
}

func (e *ERef) Format() pp.Doc {
	if e.hint != "" {
		return pp.Text(e.hint)
	}
	return pp.Textf("#%s", e.hash.Short())
}

func (e *ERef) GetType(scope *TypeScope) (Type, error) {
	return scope.refType(e.hash)
}

// Builtin reference

type EBuiltin struct {
	name string
}

var _ Expr = &EBuiltin{}

func NewBuiltinRef(name string) *EBuiltin {
	return &EBuiltin{name: name}
}

func (e *EBuiltin) Evaluate(_ *interpreter) (Value, error) {
	return BuiltinsScope.find(e.name)
}

func (e *EBuiltin) Format() pp.Doc {
	return pp.Text(e.name)
}

func (e *EBuiltin) GetType(*TypeScope) (Type, error) {
	return BuiltinsTypeScope.find(e.name)
}

// Group ref
//
// A reference to a sibling binding in the same mutually recursive group,
// by position. Only exists while the group is being hashed; stored trees
// carry ERefs to the final member hashes instead.

type EGroupRef struct {
	idx  int
	hint string
}

var _ Expr = &EGroupRef{}

func NewGroupRef(idx int, hint string) *EGroupRef {
	return &EGroupRef{idx: idx, hint: hint}
}

func (e *EGroupRef) Evaluate(*interpreter) (Value, error) {
	return nil, fmt.Errorf("group ref %s escaped hashing", e.hint)
}

func (e *EGroupRef) Format() pp.Doc {
	return pp.Text(e.hint)
}

func (e *EGroupRef) GetType(*TypeScope) (Type, error) {
	return nil, fmt.Errorf("group ref %s escaped hashing", e.hint)
}

// Record

type ERecordLit struct {
	exprs map[string]Expr
}

var _ Expr = &ERecordLit{}

func NewRecordLit(exprs map[string]Expr) *ERecordLit {
	return &ERecordLit{
		exprs: exprs,
	}
}

func (rl *ERecordLit) sortedKeys() []string {
	keys := make([]string, 0, len(rl.exprs))
	for k := range rl.exprs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (rl *ERecordLit) Evaluate(interp *interpreter) (Value, error) {
	vals := map[string]Value{}

	for name, expr := range rl.exprs {
		val, err := expr.Evaluate(interp)
		if err != nil {
			return nil, err
		}
		vals[name] = val
	}

	return &VRecord{
		vals: vals,
	}, nil
}

func (rl *ERecordLit) Format() pp.Doc {
	if len(rl.exprs) == 0 {
		return pp.Text("{}")
	}

	keys := rl.sortedKeys()
	kvDocs := make([]pp.Doc, len(keys))
	for idx, key := range keys {
		kvDocs[idx] = pp.Seq([]pp.Doc{
			pp.Text(key),
			pp.Text(": "),
			rl.exprs[key].Format(),
		})
	}

	return pp.Bracket("{", pp.Join(kvDocs, pp.CommaNewline), "}")
}

func (rl *ERecordLit) GetType(scope *TypeScope) (Type, error) {
	types := map[string]Type{}

	for name, expr := range rl.exprs {
		typ, err := expr.GetType(scope)
		if err != nil {
			return nil, err
		}
		types[name] = typ
	}

	return &TRecord{
		types: types,
	}, nil
}

// Member Access

type EMemberAccess struct {
	record Expr
	member string
}

var _ Expr = &EMemberAccess{}

func NewMemberAccess(record Expr, member string) *EMemberAccess {
	return &EMemberAccess{
		record: record,
		member: member,
	}
}

func (ma *EMemberAccess) Evaluate(interp *interpreter) (Value, error) {
	recVal, err := ma.record.Evaluate(interp)
	if err != nil {
		return nil, err
	}
	switch tRecordVal := recVal.(type) {
	case *VRecord:
		val, ok := tRecordVal.vals[ma.member]
		if !ok {
			return nil, fmt.Errorf("nonexistent member: %s", ma.member)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("member access on a non-record: %s", ma.Format())
	}
}

func (ma *EMemberAccess) Format() pp.Doc {
	return pp.Seq([]pp.Doc{ma.record.Format(), pp.Text("."), pp.Text(ma.member)})
}

func (ma *EMemberAccess) GetType(scope *TypeScope) (Type, error) {
	recTyp, err := ma.record.GetType(scope)
	if err != nil {
		return nil, err
	}
	switch tTyp := recTyp.(type) {
	case *TRecord:
		typ, ok := tTyp.types[ma.member]
		if !ok {
			return nil, fmt.Errorf("nonexistent member: %s", ma.member)
		}
		return typ, nil
	default:
		return nil, fmt.Errorf("member access on a non-record: %s %T", ma.Format(), recTyp)
	}
}

// Lambda

type Param struct {
	Name string
	Typ  Type // nil when unannotated
}

type ELambda struct {
	params paramList
	body   Expr
}

var _ Expr = &ELambda{}

func NewELambda(params []Param, body Expr) *ELambda {
	return &ELambda{
		params: params,
		body:   body,
	}
}

func (l *ELambda) Evaluate(interp *interpreter) (Value, error) {
	return &vLambda{
		def: l,
		// TODO: don't close over the scope if we don't need anything from there
		definedInScope: interp.stackTop.scope,
	}, nil
}

func (l *ELambda) Format() pp.Doc {
	return pp.Seq([]pp.Doc{
		pp.Textf("fn %s -> ", l.params.Format()),
		l.body.Format(),
	})
}

func (l *ELambda) GetType(s *TypeScope) (Type, error) {
	effParams := l.params.withFreshVars()
	innerScope := s.pushFrame(effParams.types())

	retType, err := l.body.GetType(innerScope)
	if err != nil {
		return nil, err
	}
	// Call sites in the body may have pinned the fresh param variables
	// down to concrete types.
	if bindings := s.varBindings(); bindings != nil {
		resolved := make(paramList, len(effParams))
		for idx, param := range effParams {
			resolved[idx] = Param{Name: param.Name, Typ: bindings.resolve(param.Typ)}
		}
		effParams = resolved
		retType = bindings.resolve(retType)
	}
	return &tFunction{
		params:  effParams,
		retType: retType,
	}, nil
}

// Call

type ECall struct {
	fn   Expr
	args []Expr
}

var _ Expr = &ECall{}

func NewCall(fn Expr, args []Expr) *ECall {
	return &ECall{
		fn:   fn,
		args: args,
	}
}

func (fc *ECall) Evaluate(interp *interpreter) (Value, error) {
	funcVal, err := fc.fn.Evaluate(interp)
	if err != nil {
		return nil, err
	}

	argVals := make([]Value, len(fc.args))
	for idx, argExpr := range fc.args {
		argVal, err := argExpr.Evaluate(interp)
		if err != nil {
			return nil, err
		}
		argVals[idx] = argVal
	}

	switch tFuncVal := funcVal.(type) {
	case *vLambda:
		return interp.Call(tFuncVal, argVals)
	case *VBuiltin:
		return interp.Call(tFuncVal, argVals)
	default:
		return nil, fmt.Errorf("not a function: %s", fc.fn.Format())
	}
}

func (fc *ECall) Format() pp.Doc {
	argDocs := make([]pp.Doc, len(fc.args))
	for idx, arg := range fc.args {
		argDocs[idx] = arg.Format()
	}

	return pp.Seq([]pp.Doc{
		fc.fn.Format(),
		pp.Text("("),
		pp.Join(argDocs, pp.Text(", ")),
		pp.Text(")"),
	})
}

func (fc *ECall) GetType(scope *TypeScope) (Type, error) {
	maybeFunc, err := fc.fn.GetType(scope)
	if err != nil {
		return nil, err
	}

	tFunc, ok := maybeFunc.(*tFunction)
	if !ok {
		// Calling something whose type is still unresolved (a member of
		// a recursive group mid-check) constrains nothing; the result is
		// unresolved too.
		if _, isVar := maybeFunc.(*tVar); isVar {
			return freshTVar(), nil
		}
		return nil, fmt.Errorf(
			"expected %s to be a function; it's %s", fc.fn.Format(), maybeFunc.Format(),
		)
	}
	if len(fc.args) != len(tFunc.params) {
		return nil, fmt.Errorf(
			"%s: expected %d args; given %d",
			fc.fn.Format(), len(tFunc.params), len(fc.args),
		)
	}
	// Check arg types match.
	params := tFunc.params
	bindings := scope.varBindings()
	if bindings == nil {
		bindings = make(typeVarBindings)
	}
	for idx, argExpr := range fc.args {
		param := params[idx]
		argType, err := argExpr.GetType(scope)
		if err != nil {
			return nil, err
		}
		paramTyp := param.Typ
		if paramTyp == nil {
			continue
		}
		paramTyp = bindings.resolve(paramTyp)
		argType = bindings.resolve(argType)
		matches, argBindings := paramTyp.matches(argType)
		if !matches {
			// A concrete param type can still pin down an argument-side
			// variable (an unannotated param of the enclosing lambda).
			matches, argBindings = argType.matches(paramTyp)
		}
		if !matches {
			return nil, fmt.Errorf(
				"call to %s, param %d: have %s; want %s",
				fc.fn.Format(), idx, argType.Format(), paramTyp.Format(),
			)
		}
		if err := bindings.extend(argBindings); err != nil {
			return nil, fmt.Errorf("call to %s, param %d: %v", fc.fn.Format(), idx, err)
		}
	}
	subsType, _, err := tFunc.retType.substitute(bindings)
	if err != nil {
		// Return type mentions a var the args didn't pin down.
		return tFunc.retType, nil
	}
	return subsType, nil
}

// Let

type ELet struct {
	name  string
	bound Expr
	body  Expr
}

var _ Expr = &ELet{}

func NewLet(name string, bound Expr, body Expr) *ELet {
	return &ELet{
		name:  name,
		bound: bound,
		body:  body,
	}
}

func (l *ELet) Evaluate(interp *interpreter) (Value, error) {
	boundVal, err := l.bound.Evaluate(interp)
	if err != nil {
		return nil, err
	}
	return interp.inFrame([]Value{boundVal}, l.body)
}

func (l *ELet) Format() pp.Doc {
	return pp.Seq([]pp.Doc{
		pp.Textf("let %s = ", l.name),
		l.bound.Format(),
		pp.Text(" in "),
		l.body.Format(),
	})
}

func (l *ELet) GetType(scope *TypeScope) (Type, error) {
	boundTyp, err := l.bound.GetType(scope)
	if err != nil {
		return nil, err
	}
	return l.body.GetType(scope.pushFrame([]Type{boundTyp}))
}

// If

type EIf struct {
	cond Expr
	then Expr
	els  Expr
}

var _ Expr = &EIf{}

func NewIf(cond Expr, then Expr, els Expr) *EIf {
	return &EIf{
		cond: cond,
		then: then,
		els:  els,
	}
}

func (e *EIf) Evaluate(interp *interpreter) (Value, error) {
	condVal, err := e.cond.Evaluate(interp)
	if err != nil {
		return nil, err
	}
	condBool, ok := condVal.(*VBool)
	if !ok {
		return nil, fmt.Errorf("if condition is not a bool: %s", condVal.Format())
	}
	if bool(*condBool) {
		return e.then.Evaluate(interp)
	}
	return e.els.Evaluate(interp)
}

func (e *EIf) Format() pp.Doc {
	return pp.Seq([]pp.Doc{
		pp.Text("if "),
		e.cond.Format(),
		pp.Text(" then "),
		e.then.Format(),
		pp.Text(" else "),
		e.els.Format(),
	})
}

func (e *EIf) GetType(scope *TypeScope) (Type, error) {
	condTyp, err := e.cond.GetType(scope)
	if err != nil {
		return nil, err
	}
	bindings := scope.varBindings()
	if bindings != nil {
		condTyp = bindings.resolve(condTyp)
	}
	if tv, isVar := condTyp.(*tVar); isVar {
		// The condition pins an unresolved variable down to bool.
		if bindings != nil {
			bindings[*tv] = TBool
		}
	} else if matches, _ := condTyp.matches(TBool); !matches {
		return nil, fmt.Errorf("if condition must be bool; got %s", condTyp.Format())
	}
	thenTyp, err := e.then.GetType(scope)
	if err != nil {
		return nil, err
	}
	elseTyp, err := e.els.GetType(scope)
	if err != nil {
		return nil, err
	}
	if bindings != nil {
		thenTyp = bindings.resolve(thenTyp)
		elseTyp = bindings.resolve(elseTyp)
	}
	// Branches must agree; an unresolved branch defers to the other.
	if _, isVar := thenTyp.(*tVar); isVar {
		return elseTyp, nil
	}
	if _, isVar := elseTyp.(*tVar); isVar {
		return thenTyp, nil
	}
	if matches, _ := thenTyp.matches(elseTyp); !matches {
		return nil, fmt.Errorf(
			"if branches disagree: %s vs %s", thenTyp.Format(), elseTyp.Format(),
		)
	}
	return thenTyp, nil
}
