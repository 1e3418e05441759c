package lang

import (
	"context"
	"fmt"
)

// RefResolver produces the value of a referenced definition, usually by
// way of the query cache so each hash is evaluated at most once.
type RefResolver func(ctx context.Context, h Hash) (Value, error)

type interpreter struct {
	ctx      context.Context
	resolve  RefResolver
	stackTop *stackFrame
	depth    int
}

const maxCallDepth = 10000

type stackFrame struct {
	// if parentFrame is nil, this is the root frame.
	parentFrame *stackFrame
	expr        Expr
	scope       *Scope
}

func newInterpreter(ctx context.Context, resolve RefResolver, rootScope *Scope, expr Expr) *interpreter {
	return &interpreter{
		ctx:     ctx,
		resolve: resolve,
		stackTop: &stackFrame{
			expr:  expr,
			scope: rootScope,
		},
	}
}

func (i *interpreter) interpret() (Value, error) {
	return i.stackTop.expr.Evaluate(i)
}

func (i *interpreter) pushFrame(frame *stackFrame) error {
	i.depth++
	if i.depth > maxCallDepth {
		return fmt.Errorf("call stack exceeded %d frames", maxCallDepth)
	}
	frame.parentFrame = i.stackTop
	i.stackTop = frame
	return nil
}

func (i *interpreter) popFrame() *stackFrame {
	if i.stackTop == nil {
		panic("can't pop frame; at bottom")
	}
	i.depth--
	top := i.stackTop
	i.stackTop = top.parentFrame
	return top
}

func (i *interpreter) resolveRef(h Hash) (Value, error) {
	if i.resolve == nil {
		return nil, fmt.Errorf("no resolver for reference #%s", h.Short())
	}
	return i.resolve(i.ctx, h)
}

// Call applies a lambda or builtin to already-evaluated arguments.
func (i *interpreter) Call(fn Value, argVals []Value) (Value, error) {
	switch tFn := fn.(type) {
	case *vLambda:
		if len(argVals) != len(tFn.def.params) {
			return nil, fmt.Errorf(
				"%s: expected %d args; given %d",
				tFn.def.Format(), len(tFn.def.params), len(argVals),
			)
		}
		// The new frame hangs off the closure's defining scope, not the
		// caller's, so canonical indices stay lexical.
		newFrame := &stackFrame{
			scope: tFn.definedInScope.pushFrame(argVals),
			expr:  tFn.def.body,
		}
		if err := i.pushFrame(newFrame); err != nil {
			return nil, err
		}
		val, err := i.interpret()
		i.popFrame()
		return val, err
	case *VBuiltin:
		if len(argVals) != len(tFn.Params) {
			return nil, fmt.Errorf(
				"%s: expected %d args; given %d", tFn.Name, len(tFn.Params), len(argVals),
			)
		}
		return tFn.Impl(argVals)
	default:
		return nil, fmt.Errorf("not callable: %s", fn.Format())
	}
}

// inFrame evaluates an expression with one extra frame on the current
// scope (used by let).
func (i *interpreter) inFrame(frame []Value, body Expr) (Value, error) {
	newFrame := &stackFrame{
		scope: i.stackTop.scope.pushFrame(frame),
		expr:  body,
	}
	if err := i.pushFrame(newFrame); err != nil {
		return nil, err
	}
	val, err := i.interpret()
	i.popFrame()
	return val, err
}

// Eval evaluates a canonical tree in a fresh scope over the builtins.
func Eval(ctx context.Context, e Expr, resolve RefResolver) (Value, error) {
	i := newInterpreter(ctx, resolve, NewScope(BuiltinsScope), e)
	return i.interpret()
}

// Check type-checks a canonical tree against the builtins plus the
// given reference resolver.
func Check(ctx context.Context, e Expr, refTypes RefTypeResolver) (Type, error) {
	return e.GetType(NewCheckScope(ctx, refTypes))
}
