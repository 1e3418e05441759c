package parse

import (
	"fmt"
	"strconv"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

// HashResolver resolves a hash literal (full hash or unique prefix,
// without the leading `#`) to a full hash.
type HashResolver func(prefix string) (lang.Hash, error)

// ToExpr lowers a surface expression into the canonical AST family.
// Names stay as variables; canonicalization resolves them later.
func (e *Expr) ToExpr(resolveHash HashResolver) (lang.Expr, error) {
	switch {
	case e.Lambda != nil:
		return e.Lambda.toExpr(resolveHash)
	case e.If != nil:
		cond, err := e.If.Cond.ToExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		then, err := e.If.Then.ToExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		els, err := e.If.Else.ToExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		return lang.NewIf(cond, then, els), nil
	case e.Let != nil:
		bound, err := e.Let.Bound.ToExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		body, err := e.Let.Body.ToExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		return lang.NewLet(e.Let.Name, bound, body), nil
	case e.Cmp != nil:
		return e.Cmp.toExpr(resolveHash)
	}
	return nil, fmt.Errorf("empty expression")
}

func (l *Lambda) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	params := make([]lang.Param, len(l.Params))
	for i, p := range l.Params {
		var typ lang.Type
		if p.Type != nil {
			var err error
			typ, err = lang.ParseAtomicType(*p.Type)
			if err != nil {
				return nil, err
			}
		}
		params[i] = lang.Param{Name: p.Name, Typ: typ}
	}
	body, err := l.Body.ToExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	return lang.NewELambda(params, body), nil
}

func (c *Cmp) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	lhs, err := c.Lhs.toExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	if c.Op == nil {
		return lhs, nil
	}
	rhs, err := c.Rhs.toExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	return binOpCall(*c.Op, lhs, rhs)
}

func (s *Sum) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	out, err := s.Lhs.toExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	for _, op := range s.Ops {
		rhs, err := op.Rhs.toExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		out, err = binOpCall(op.Op, out, rhs)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Product) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	out, err := p.Lhs.toExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	for _, op := range p.Ops {
		rhs, err := op.Rhs.toExpr(resolveHash)
		if err != nil {
			return nil, err
		}
		out, err = binOpCall(op.Op, out, rhs)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func binOpCall(op string, lhs lang.Expr, rhs lang.Expr) (lang.Expr, error) {
	builtin, ok := lang.BinOpBuiltin(op)
	if !ok {
		return nil, fmt.Errorf("unknown operator %s", op)
	}
	return lang.NewCall(lang.NewBuiltinRef(builtin), []lang.Expr{lhs, rhs}), nil
}

func (p *Postfix) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	out, err := p.Atom.toExpr(resolveHash)
	if err != nil {
		return nil, err
	}
	for _, op := range p.Tail {
		switch {
		case op.Member != nil:
			out = lang.NewMemberAccess(out, *op.Member)
		case op.Call != nil:
			args := make([]lang.Expr, len(op.Call.Args))
			for i, arg := range op.Call.Args {
				args[i], err = arg.ToExpr(resolveHash)
				if err != nil {
					return nil, err
				}
			}
			out = lang.NewCall(out, args)
		}
	}
	return out, nil
}

func (a *Atom) toExpr(resolveHash HashResolver) (lang.Expr, error) {
	switch {
	case a.HashRef != nil:
		prefix := (*a.HashRef)[1:]
		hash, err := resolveHash(prefix)
		if err != nil {
			return nil, err
		}
		return lang.NewRef(hash, ""), nil
	case a.Num != nil:
		i, err := strconv.Atoi(*a.Num)
		if err != nil {
			return nil, err
		}
		return lang.NewIntLit(i), nil
	case a.Str != nil:
		return lang.NewStringLit(*a.Str), nil
	case a.True:
		return lang.NewBoolLit(true), nil
	case a.False:
		return lang.NewBoolLit(false), nil
	case a.Record != nil:
		fields := map[string]lang.Expr{}
		for _, f := range a.Record.Fields {
			val, err := f.Value.ToExpr(resolveHash)
			if err != nil {
				return nil, err
			}
			if _, found := fields[f.Name]; found {
				return nil, fmt.Errorf("duplicate record field %s", f.Name)
			}
			fields[f.Name] = val
		}
		return lang.NewRecordLit(fields), nil
	case a.Var != nil:
		return lang.NewVar(*a.Var), nil
	case a.Paren != nil:
		return a.Paren.ToExpr(resolveHash)
	}
	return nil, fmt.Errorf("empty atom")
}

// ToType lowers a surface type expression.
func (t *TypeExpr) ToType() (lang.Type, error) {
	switch {
	case t.Record != nil:
		fields := map[string]lang.Type{}
		for _, f := range t.Record.Fields {
			typ, err := f.Type.ToType()
			if err != nil {
				return nil, err
			}
			if _, found := fields[f.Name]; found {
				return nil, fmt.Errorf("duplicate record field %s", f.Name)
			}
			fields[f.Name] = typ
		}
		return lang.NewTRecord(fields), nil
	case t.Atom != nil:
		return lang.ParseAtomicType(*t.Atom)
	}
	return nil, fmt.Errorf("empty type expression")
}
