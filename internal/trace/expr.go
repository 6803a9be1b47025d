package trace

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// scalarLit materializes an expression literal. Like the gradient seed,
// literals are recorded at float32; kernel promotion widens them against
// float64 operands.
func scalarLit(v float64) Value {
	return tensor.Scalar32(float32(v))
}

// Expr is a symbolic expression template, the currency between the
// derivative oracle and the trace. A template references the original
// call's arguments by position and the incoming adjoint through a
// reserved symbol; Append substitutes both with concrete operation ids
// and records the expression's calls onto the trace.
type Expr struct {
	kind exprKind
	pos  int     // exprArg
	lit  float64 // exprLit
	fn   string  // exprCall
	args []*Expr // exprCall
}

type exprKind uint8

const (
	exprArg exprKind = iota
	exprAdjoint
	exprLit
	exprCall
)

// ArgRef references the call argument at the given position.
func ArgRef(pos int) *Expr {
	return &Expr{kind: exprArg, pos: pos}
}

// AdjointRef references the reserved adjoint symbol, bound at
// substitution time to the incoming output gradient.
func AdjointRef() *Expr {
	return &Expr{kind: exprAdjoint}
}

// Lit embeds a scalar literal; it becomes a Constant when appended.
func Lit(v float64) *Expr {
	return &Expr{kind: exprLit, lit: v}
}

// CallOf applies a named function to sub-expressions.
func CallOf(fn string, args ...*Expr) *Expr {
	return &Expr{kind: exprCall, fn: fn, args: args}
}

// String renders the template, with $dy for the adjoint symbol.
func (e *Expr) String() string {
	switch e.kind {
	case exprArg:
		return fmt.Sprintf("$%d", e.pos)
	case exprAdjoint:
		return "$dy"
	case exprLit:
		return fmt.Sprintf("%g", e.lit)
	case exprCall:
		s := e.fn + "("
		for i, a := range e.args {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ")"
	default:
		return "?"
	}
}

// Append substitutes the template's placeholders with concrete operation
// ids (argIDs for positional references, adjoint for the reserved
// symbol), appends the resulting calls to the trace in dependency order,
// and returns the id holding the expression's value. A bare placeholder
// appends nothing and resolves to the referenced id directly.
//
// When elementwise is set, appended calls are marked as broadcast
// applications so derivative shapes stay broadcast-compatible instead of
// collapsing to scalars.
func (t *Trace) Append(e *Expr, argIDs []ID, adjoint ID, elementwise bool) (ID, error) {
	switch e.kind {
	case exprArg:
		if e.pos < 0 || e.pos >= len(argIDs) {
			return 0, fmt.Errorf("expression references argument %d of %d", e.pos, len(argIDs))
		}
		return argIDs[e.pos], nil

	case exprAdjoint:
		return adjoint, nil

	case exprLit:
		return t.AddConstant(scalarLit(e.lit)), nil

	case exprCall:
		ids := make([]ID, len(e.args))
		for i, sub := range e.args {
			id, err := t.Append(sub, argIDs, adjoint, elementwise)
			if err != nil {
				return 0, err
			}
			ids[i] = id
		}
		return t.AddCall(e.fn, elementwise, ids...)

	default:
		return 0, fmt.Errorf("cannot append expression of kind %d", e.kind)
	}
}
