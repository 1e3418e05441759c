package lang

import (
	"context"
	"fmt"
)

// Value Scope
//
// A scope either names values (the builtin root scope) or holds one
// positional frame pushed by a binder (lambda call, let). Canonical
// trees address frame slots with ELocal nodes.

type Scope struct {
	parent *Scope
	vals   map[string]Value
	frame  []Value
}

func NewScope(parent *Scope) *Scope {
	return &Scope{
		vals:   map[string]Value{},
		parent: parent,
	}
}

func (s *Scope) find(name string) (Value, error) {
	val, ok := s.vals[name]
	if !ok {
		if s.parent != nil {
			return s.parent.find(name)
		}
		return nil, fmt.Errorf("not in scope: %s", name)
	}
	return val, nil
}

func (s *Scope) Add(name string, value Value) {
	s.vals[name] = value
}

func (s *Scope) AddMap(vals map[string]Value) {
	for name, val := range vals {
		s.vals[name] = val
	}
}

func (s *Scope) pushFrame(frame []Value) *Scope {
	return &Scope{
		parent: s,
		frame:  frame,
	}
}

// local resolves a canonical variable occurrence: `up` frames out,
// slot `idx`. Only frame scopes count on the way up.
func (s *Scope) local(up int, idx int) (Value, error) {
	cur := s
	for cur != nil {
		if cur.frame == nil {
			cur = cur.parent
			continue
		}
		if up == 0 {
			if idx >= len(cur.frame) {
				return nil, fmt.Errorf("local slot %d out of range (frame size %d)", idx, len(cur.frame))
			}
			return cur.frame[idx], nil
		}
		up--
		cur = cur.parent
	}
	return nil, fmt.Errorf("local %d.%d: no such frame", up, idx)
}

// Type Scope

type TypeScope struct {
	parent *TypeScope
	types  map[string]Type
	frame  []Type

	// unification state for one check: every frame pushed under a
	// check shares the map, so a call site that pins down a lambda's
	// fresh parameter variable is visible when the lambda's own type
	// is assembled.
	bindings typeVarBindings

	// set on the scope a check starts from; inherited by children
	refTypes RefTypeResolver
	ctx      context.Context
}

// RefTypeResolver produces the type of a referenced definition, usually
// by way of the query cache.
type RefTypeResolver func(ctx context.Context, h Hash) (Type, error)

func NewTypeScope(parent *TypeScope) *TypeScope {
	ts := &TypeScope{
		parent:   parent,
		types:    make(map[string]Type),
		bindings: make(typeVarBindings),
	}
	if parent != nil {
		ts.refTypes = parent.refTypes
		ts.ctx = parent.ctx
	}
	return ts
}

// NewCheckScope builds the scope a single definition is checked in:
// builtins at the root, plus a resolver for external references.
func NewCheckScope(ctx context.Context, refTypes RefTypeResolver) *TypeScope {
	ts := NewTypeScope(BuiltinsTypeScope)
	ts.refTypes = refTypes
	ts.ctx = ctx
	return ts
}

func (ts *TypeScope) Add(name string, typ Type) {
	ts.types[name] = typ
}

func (ts *TypeScope) find(name string) (Type, error) {
	val, ok := ts.types[name]
	if !ok {
		if ts.parent != nil {
			return ts.parent.find(name)
		}
		return nil, fmt.Errorf("not in type scope: %s", name)
	}
	return val, nil
}

func (ts *TypeScope) pushFrame(frame []Type) *TypeScope {
	return &TypeScope{
		parent:   ts,
		frame:    frame,
		bindings: ts.bindings,
		refTypes: ts.refTypes,
		ctx:      ts.ctx,
	}
}

func (ts *TypeScope) varBindings() typeVarBindings {
	cur := ts
	for cur != nil {
		if cur.bindings != nil {
			return cur.bindings
		}
		cur = cur.parent
	}
	return nil
}

func (ts *TypeScope) local(up int, idx int) (Type, error) {
	cur := ts
	for cur != nil {
		if cur.frame == nil {
			cur = cur.parent
			continue
		}
		if up == 0 {
			if idx >= len(cur.frame) {
				return nil, fmt.Errorf("local slot %d out of range (frame size %d)", idx, len(cur.frame))
			}
			return cur.frame[idx], nil
		}
		up--
		cur = cur.parent
	}
	return nil, fmt.Errorf("local %d.%d: no such frame", up, idx)
}

func (ts *TypeScope) refType(h Hash) (Type, error) {
	if ts.refTypes == nil {
		if ts.parent != nil {
			return ts.parent.refType(h)
		}
		return nil, fmt.Errorf("no resolver for reference #%s", h.Short())
	}
	ctx := ts.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return ts.refTypes(ctx, h)
}
