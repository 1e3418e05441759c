package lang

import (
	"bytes"
	"sort"
)

// Refs collects the external references of a canonical tree, sorted and
// deduplicated. These become the definition's direct dependency set.
func Refs(e Expr) []Hash {
	seen := map[Hash]bool{}
	walkRefs(e, func(h Hash) {
		seen[h] = true
	})
	out := make([]Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func walkRefs(e Expr, f func(Hash)) {
	switch te := e.(type) {
	case *ERef:
		f(te.hash)
	case *ELambda:
		walkRefs(te.body, f)
	case *ELet:
		walkRefs(te.bound, f)
		walkRefs(te.body, f)
	case *ECall:
		walkRefs(te.fn, f)
		for _, arg := range te.args {
			walkRefs(arg, f)
		}
	case *ERecordLit:
		for _, sub := range te.exprs {
			walkRefs(sub, f)
		}
	case *EMemberAccess:
		walkRefs(te.record, f)
	case *EIf:
		walkRefs(te.cond, f)
		walkRefs(te.then, f)
		walkRefs(te.els, f)
	}
}

// ReplaceRefs rewrites external references through a replacement map.
// Untouched subtrees are shared with the input; if nothing matched, the
// input itself comes back, so callers can detect no-op rewrites by
// identity.
func ReplaceRefs(e Expr, repl map[Hash]Hash) Expr {
	switch te := e.(type) {
	case *ERef:
		if newHash, ok := repl[te.hash]; ok {
			return NewRef(newHash, te.hint)
		}
		return te
	case *ELambda:
		body := ReplaceRefs(te.body, repl)
		if body == te.body {
			return te
		}
		return &ELambda{params: te.params, body: body}
	case *ELet:
		bound := ReplaceRefs(te.bound, repl)
		body := ReplaceRefs(te.body, repl)
		if bound == te.bound && body == te.body {
			return te
		}
		return &ELet{name: te.name, bound: bound, body: body}
	case *ECall:
		changed := false
		fn := ReplaceRefs(te.fn, repl)
		changed = changed || fn != te.fn
		args := make([]Expr, len(te.args))
		for idx, arg := range te.args {
			args[idx] = ReplaceRefs(arg, repl)
			changed = changed || args[idx] != arg
		}
		if !changed {
			return te
		}
		return &ECall{fn: fn, args: args}
	case *ERecordLit:
		changed := false
		exprs := make(map[string]Expr, len(te.exprs))
		for name, sub := range te.exprs {
			exprs[name] = ReplaceRefs(sub, repl)
			changed = changed || exprs[name] != sub
		}
		if !changed {
			return te
		}
		return &ERecordLit{exprs: exprs}
	case *EMemberAccess:
		record := ReplaceRefs(te.record, repl)
		if record == te.record {
			return te
		}
		return &EMemberAccess{record: record, member: te.member}
	case *EIf:
		cond := ReplaceRefs(te.cond, repl)
		then := ReplaceRefs(te.then, repl)
		els := ReplaceRefs(te.els, repl)
		if cond == te.cond && then == te.then && els == te.els {
			return te
		}
		return &EIf{cond: cond, then: then, els: els}
	default:
		return e
	}
}

// RefsToGroupRefs converts sibling references back into positional group
// refs, using the member index map. The update engine uses this to
// rehash a recursive group after substitution.
func RefsToGroupRefs(e Expr, memberIdx map[Hash]int) Expr {
	switch te := e.(type) {
	case *ERef:
		if idx, ok := memberIdx[te.hash]; ok {
			return NewGroupRef(idx, te.hint)
		}
		return te
	case *ELambda:
		return &ELambda{params: te.params, body: RefsToGroupRefs(te.body, memberIdx)}
	case *ELet:
		return &ELet{
			name:  te.name,
			bound: RefsToGroupRefs(te.bound, memberIdx),
			body:  RefsToGroupRefs(te.body, memberIdx),
		}
	case *ECall:
		args := make([]Expr, len(te.args))
		for idx, arg := range te.args {
			args[idx] = RefsToGroupRefs(arg, memberIdx)
		}
		return &ECall{fn: RefsToGroupRefs(te.fn, memberIdx), args: args}
	case *ERecordLit:
		exprs := make(map[string]Expr, len(te.exprs))
		for name, sub := range te.exprs {
			exprs[name] = RefsToGroupRefs(sub, memberIdx)
		}
		return &ERecordLit{exprs: exprs}
	case *EMemberAccess:
		return &EMemberAccess{record: RefsToGroupRefs(te.record, memberIdx), member: te.member}
	case *EIf:
		return &EIf{
			cond: RefsToGroupRefs(te.cond, memberIdx),
			then: RefsToGroupRefs(te.then, memberIdx),
			els:  RefsToGroupRefs(te.els, memberIdx),
		}
	default:
		return e
	}
}

// GroupRefsToRefs resolves positional group refs to the final member
// hashes once they are known; this is the form that gets stored.
func GroupRefsToRefs(e Expr, memberHashes []Hash) Expr {
	switch te := e.(type) {
	case *EGroupRef:
		return NewRef(memberHashes[te.idx], te.hint)
	case *ELambda:
		return &ELambda{params: te.params, body: GroupRefsToRefs(te.body, memberHashes)}
	case *ELet:
		return &ELet{
			name:  te.name,
			bound: GroupRefsToRefs(te.bound, memberHashes),
			body:  GroupRefsToRefs(te.body, memberHashes),
		}
	case *ECall:
		args := make([]Expr, len(te.args))
		for idx, arg := range te.args {
			args[idx] = GroupRefsToRefs(arg, memberHashes)
		}
		return &ECall{fn: GroupRefsToRefs(te.fn, memberHashes), args: args}
	case *ERecordLit:
		exprs := make(map[string]Expr, len(te.exprs))
		for name, sub := range te.exprs {
			exprs[name] = GroupRefsToRefs(sub, memberHashes)
		}
		return &ERecordLit{exprs: exprs}
	case *EMemberAccess:
		return &EMemberAccess{record: GroupRefsToRefs(te.record, memberHashes), member: te.member}
	case *EIf:
		return &EIf{
			cond: GroupRefsToRefs(te.cond, memberHashes),
			then: GroupRefsToRefs(te.then, memberHashes),
			els:  GroupRefsToRefs(te.els, memberHashes),
		}
	default:
		return e
	}
}
