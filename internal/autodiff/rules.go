// Package autodiff implements reverse-mode differentiation over a
// recorded trace: the derivative oracle mapping each call to its local
// derivative expressions, the engine that extends the trace with
// derivative-computing operations, and the advisory shape checker.
package autodiff

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

// Meta describes an operand to a derivative rule: element type and
// trace-time shape, or compositeness. For calls recorded through the
// broadcast wrapper the engine passes element metadata (scalar shape).
type Meta struct {
	DType     tensor.DataType
	Shape     tensor.Shape
	Composite bool
}

// MetaOf extracts rule metadata from a materialized value.
func MetaOf(v tensor.Value) Meta {
	t, ok := v.(*tensor.RawTensor)
	if !ok {
		return Meta{Composite: true}
	}
	return Meta{DType: t.DType(), Shape: t.Shape()}
}

// elemMetaOf extracts per-element metadata, used on the broadcast path.
func elemMetaOf(v tensor.Value) Meta {
	t, ok := v.(*tensor.RawTensor)
	if !ok {
		return Meta{Composite: true}
	}
	return Meta{DType: t.DType(), Shape: tensor.Shape{}}
}

// Rule produces the expression computing d(result)/d(args[pos]) for one
// call, given operand metadata and the call's output metadata. The
// returned template may reference the call's arguments positionally and
// the incoming adjoint through the reserved symbol.
type Rule func(args []Meta, out Meta, pos int) (*trace.Expr, error)

// Oracle is the table of per-operation local-derivative rules.
type Oracle struct {
	rules map[string]Rule
}

// NewOracle creates an oracle with the built-in rule set.
func NewOracle() *Oracle {
	o := &Oracle{rules: make(map[string]Rule)}
	o.registerDefaults()
	return o
}

// Register installs or replaces the rule for a function name.
func (o *Oracle) Register(fn string, r Rule) {
	o.rules[fn] = r
}

// Derive returns the local-derivative expression for argument pos of a
// call to fn. Unknown functions are fatal for differentiation.
func (o *Oracle) Derive(fn string, args []Meta, out Meta, pos int) (*trace.Expr, error) {
	r, ok := o.rules[fn]
	if !ok {
		return nil, fmt.Errorf("no derivative rule for %q: %w", fn, trace.ErrUnsupported)
	}
	if pos < 0 || pos >= len(args) {
		return nil, fmt.Errorf("derivative of %q: position %d out of %d arguments", fn, pos, len(args))
	}
	return r(args, out, pos)
}

// toShape reduces a gradient expression back to the operand's trace-time
// shape when forward broadcasting expanded it. Shapes are known at rule
// time because the forward pass is fully materialized, so traces of
// unbroadcast ops appear only where they can matter.
func toShape(e *trace.Expr, args []Meta, out Meta, pos int) *trace.Expr {
	if args[pos].Composite || out.Composite {
		return e
	}
	if out.Shape.Equal(args[pos].Shape) {
		return e
	}
	return trace.CallOf("unbroadcast", e, trace.ArgRef(pos))
}

func (o *Oracle) registerDefaults() {
	dy := trace.AdjointRef

	o.Register("add", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return toShape(dy(), args, out, pos), nil
	})

	o.Register("sub", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		if pos == 0 {
			return toShape(dy(), args, out, pos), nil
		}
		return toShape(trace.CallOf("neg", dy()), args, out, pos), nil
	})

	o.Register("mul", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		other := trace.ArgRef(1 - pos)
		return toShape(trace.CallOf("mul", dy(), other), args, out, pos), nil
	})

	o.Register("div", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		if pos == 0 {
			return toShape(trace.CallOf("div", dy(), trace.ArgRef(1)), args, out, pos), nil
		}
		// d(a/b)/db = -dy * a / b²
		num := trace.CallOf("mul", dy(), trace.ArgRef(0))
		den := trace.CallOf("mul", trace.ArgRef(1), trace.ArgRef(1))
		return toShape(trace.CallOf("neg", trace.CallOf("div", num, den)), args, out, pos), nil
	})

	o.Register("neg", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("neg", dy()), nil
	})

	// The adjoint passes through untouched; the engine reuses the
	// incoming adjoint id without appending anything.
	o.Register("identity", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return dy(), nil
	})

	o.Register("sum", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("expand_like", dy(), trace.ArgRef(0)), nil
	})

	o.Register("square", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("mul", dy(), trace.CallOf("mul", trace.Lit(2), trace.ArgRef(0))), nil
	})

	o.Register("exp", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("mul", dy(), trace.CallOf("exp", trace.ArgRef(0))), nil
	})

	o.Register("log", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("div", dy(), trace.ArgRef(0)), nil
	})

	o.Register("sin", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("mul", dy(), trace.CallOf("cos", trace.ArgRef(0))), nil
	})

	o.Register("cos", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("neg", trace.CallOf("mul", dy(), trace.CallOf("sin", trace.ArgRef(0)))), nil
	})

	o.Register("sqrt", func(args []Meta, out Meta, pos int) (*trace.Expr, error) {
		den := trace.CallOf("mul", trace.Lit(2), trace.CallOf("sqrt", trace.ArgRef(0)))
		return trace.CallOf("div", dy(), den), nil
	})
}
