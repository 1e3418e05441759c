package lang

import (
	"fmt"
	"sort"
)

// UnresolvedReference is returned when a free identifier can be mapped
// neither to a binder nor to a known name or hash.
type UnresolvedReference struct {
	Name string
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("unresolved reference: %s", e.Name)
}

// Resolved says what a free identifier refers to. Exactly one field is
// set.
type Resolved struct {
	Builtin string // builtin name
	Global  *Hash  // stored definition
	Member  *int   // sibling index within the same recursive group
}

// Resolver maps a free identifier to its referent, or nil if unknown.
type Resolver func(name string) *Resolved

type canonEnv struct {
	parent  *canonEnv
	binders []string
	resolve Resolver
}

func (env *canonEnv) child(binders []string) *canonEnv {
	return &canonEnv{
		parent:  env,
		binders: binders,
		resolve: env.resolve,
	}
}

// lookupLocal finds the innermost binder for a name. Only binder levels
// count toward `up`, so the index is stable across resolvers.
func (env *canonEnv) lookupLocal(name string) (int, int, bool) {
	up := 0
	for cur := env; cur != nil; cur = cur.parent {
		if cur.binders == nil {
			continue
		}
		for idx, binder := range cur.binders {
			if binder == name {
				return up, idx, true
			}
		}
		up++
	}
	return 0, 0, false
}

// Canonicalize rewrites every bound variable to its binder position and
// every free identifier to the reference the resolver maps it to, so
// alpha-equivalent trees come out identical. Source spellings survive
// only as display hints. The transform is pure and idempotent.
func Canonicalize(e Expr, resolve Resolver) (Expr, error) {
	return canonicalize(e, &canonEnv{resolve: resolve})
}

func canonicalize(e Expr, env *canonEnv) (Expr, error) {
	switch te := e.(type) {
	case *EIntLit, *EStringLit, *EBoolLit, *ELocal, *ERef, *EBuiltin, *EGroupRef:
		return e, nil
	case *EVar:
		if up, idx, ok := env.lookupLocal(te.name); ok {
			return NewLocal(up, idx, te.name), nil
		}
		if env.resolve != nil {
			if resolved := env.resolve(te.name); resolved != nil {
				switch {
				case resolved.Builtin != "":
					return NewBuiltinRef(resolved.Builtin), nil
				case resolved.Global != nil:
					return NewRef(*resolved.Global, te.name), nil
				case resolved.Member != nil:
					return NewGroupRef(*resolved.Member, te.name), nil
				}
			}
		}
		if IsBuiltin(te.name) {
			return NewBuiltinRef(te.name), nil
		}
		return nil, &UnresolvedReference{Name: te.name}
	case *ELambda:
		binders := make([]string, len(te.params))
		for idx, param := range te.params {
			binders[idx] = param.Name
		}
		body, err := canonicalize(te.body, env.child(binders))
		if err != nil {
			return nil, err
		}
		return &ELambda{params: te.params, body: body}, nil
	case *ELet:
		bound, err := canonicalize(te.bound, env)
		if err != nil {
			return nil, err
		}
		body, err := canonicalize(te.body, env.child([]string{te.name}))
		if err != nil {
			return nil, err
		}
		return &ELet{name: te.name, bound: bound, body: body}, nil
	case *ECall:
		fn, err := canonicalize(te.fn, env)
		if err != nil {
			return nil, err
		}
		args := make([]Expr, len(te.args))
		for idx, arg := range te.args {
			canonArg, err := canonicalize(arg, env)
			if err != nil {
				return nil, err
			}
			args[idx] = canonArg
		}
		return &ECall{fn: fn, args: args}, nil
	case *ERecordLit:
		exprs := make(map[string]Expr, len(te.exprs))
		for name, sub := range te.exprs {
			canonSub, err := canonicalize(sub, env)
			if err != nil {
				return nil, err
			}
			exprs[name] = canonSub
		}
		return &ERecordLit{exprs: exprs}, nil
	case *EMemberAccess:
		record, err := canonicalize(te.record, env)
		if err != nil {
			return nil, err
		}
		return &EMemberAccess{record: record, member: te.member}, nil
	case *EIf:
		cond, err := canonicalize(te.cond, env)
		if err != nil {
			return nil, err
		}
		then, err := canonicalize(te.then, env)
		if err != nil {
			return nil, err
		}
		els, err := canonicalize(te.els, env)
		if err != nil {
			return nil, err
		}
		return &EIf{cond: cond, then: then, els: els}, nil
	}
	return nil, fmt.Errorf("can't canonicalize %T", e)
}

// FreeVars lists the free, non-builtin identifiers of a surface tree,
// sorted and deduplicated. The session uses it for dependency analysis
// before resolution.
func FreeVars(e Expr) []string {
	seen := map[string]bool{}
	freeVars(e, nil, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func freeVars(e Expr, bound []string, seen map[string]bool) {
	switch te := e.(type) {
	case *EVar:
		for _, b := range bound {
			if b == te.name {
				return
			}
		}
		if !IsBuiltin(te.name) {
			seen[te.name] = true
		}
	case *ELambda:
		inner := bound
		for _, param := range te.params {
			inner = append(inner, param.Name)
		}
		freeVars(te.body, inner, seen)
	case *ELet:
		freeVars(te.bound, bound, seen)
		freeVars(te.body, append(bound, te.name), seen)
	case *ECall:
		freeVars(te.fn, bound, seen)
		for _, arg := range te.args {
			freeVars(arg, bound, seen)
		}
	case *ERecordLit:
		for _, sub := range te.exprs {
			freeVars(sub, bound, seen)
		}
	case *EMemberAccess:
		freeVars(te.record, bound, seen)
	case *EIf:
		freeVars(te.cond, bound, seen)
		freeVars(te.then, bound, seen)
		freeVars(te.els, bound, seen)
	}
}
