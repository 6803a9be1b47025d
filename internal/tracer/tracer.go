// Package tracer runs a user function against symbolic variables,
// recording every operation it performs onto a fresh trace. Forward
// values are materialized eagerly, so the finished trace carries both
// structure and concrete results.
package tracer

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

// Func is a traceable function: it receives one Var per argument and
// returns the Var holding its result. All data flow must go through Var
// operations; data-dependent control flow is outside the supported set.
type Func func(tc *Tracer, args []*Var) *Var

// Tracer owns the trace being recorded.
type Tracer struct {
	tr *trace.Trace
}

// Var is a symbolic handle to one trace operation. Operations on Vars
// append to the trace and evaluate immediately.
type Var struct {
	tc *Tracer
	id trace.ID
}

// traceAbort carries a recording error out of user code via panic;
// Run recovers it. Var methods stay chainable this way, matching how
// expression-building APIs usually read.
type traceAbort struct{ err error }

// Run records f applied to the given argument values and returns the
// completed trace with its result set.
func Run(backend tensor.Backend, f Func, args []tensor.Value) (tr *trace.Trace, err error) {
	t := trace.New(backend)
	tc := &Tracer{tr: t}

	vars := make([]*Var, len(args))
	for i, a := range args {
		vars[i] = &Var{tc: tc, id: t.AddInput(a)}
	}

	defer func() {
		if r := recover(); r != nil {
			abort, ok := r.(traceAbort)
			if !ok {
				panic(r)
			}
			tr, err = nil, abort.err
		}
	}()

	out := f(tc, vars)
	if out == nil {
		return nil, fmt.Errorf("trace: function returned no result")
	}
	if out.tc != tc {
		return nil, fmt.Errorf("trace: result belongs to a different tracer")
	}
	t.ResultID = out.id
	return t, nil
}

// Trace returns the trace under construction.
func (tc *Tracer) Trace() *trace.Trace {
	return tc.tr
}

// Lit records a scalar literal constant.
func (tc *Tracer) Lit(v float64) *Var {
	return &Var{tc: tc, id: tc.tr.AddConstant(tensor.Scalar(v))}
}

// ID returns the operation id backing this variable.
func (v *Var) ID() trace.ID {
	return v.id
}

// Value returns the variable's materialized forward value.
func (v *Var) Value() tensor.Value {
	val, err := v.tc.tr.Value(v.id)
	if err != nil {
		panic(traceAbort{err})
	}
	return val
}

func (v *Var) call(fn string, elementwise bool, args ...*Var) *Var {
	ids := make([]trace.ID, len(args))
	for i, a := range args {
		if a.tc != v.tc {
			panic(traceAbort{fmt.Errorf("trace: %s mixes variables from different tracers", fn)})
		}
		ids[i] = a.id
	}
	id, err := v.tc.tr.AddCall(fn, elementwise, ids...)
	if err != nil {
		panic(traceAbort{err})
	}
	return &Var{tc: v.tc, id: id}
}

// Add records element-wise addition.
func (v *Var) Add(o *Var) *Var { return v.call("add", false, v, o) }

// Sub records element-wise subtraction.
func (v *Var) Sub(o *Var) *Var { return v.call("sub", false, v, o) }

// Mul records element-wise multiplication.
func (v *Var) Mul(o *Var) *Var { return v.call("mul", false, v, o) }

// Div records element-wise division.
func (v *Var) Div(o *Var) *Var { return v.call("div", false, v, o) }

// Neg records negation.
func (v *Var) Neg() *Var { return v.call("neg", false, v) }

// Identity records a pass-through of the value.
func (v *Var) Identity() *Var { return v.call("identity", false, v) }

// Square records element-wise squaring.
func (v *Var) Square() *Var { return v.call("square", false, v) }

// Exp records the element-wise exponential.
func (v *Var) Exp() *Var { return v.call("exp", false, v) }

// Log records the element-wise natural logarithm.
func (v *Var) Log() *Var { return v.call("log", false, v) }

// Sum records reduction of all elements to a scalar.
func (v *Var) Sum() *Var { return v.call("sum", false, v) }

// Map records the named scalar function applied through the broadcast
// wrapper: fn is evaluated per element and differentiated with element
// metadata.
func (v *Var) Map(fn string) *Var { return v.call(fn, true, v) }

// Field records a read of the named field of a composite variable.
func (v *Var) Field(name string) *Var {
	id, err := v.tc.tr.AddFieldRead(v.id, name)
	if err != nil {
		panic(traceAbort{err})
	}
	return &Var{tc: v.tc, id: id}
}
