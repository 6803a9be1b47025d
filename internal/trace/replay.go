package trace

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// planStep re-executes one operation during replay with its kernel
// already resolved, so replays skip name lookup entirely.
type planStep func(t *Trace) error

// Compile finalizes the trace for repeated replay: every Call's kernel
// is resolved once and baked into an execution plan. A compiled trace
// still accepts appends, but appended operations are not part of the
// plan; callers compile after differentiation is complete.
func (t *Trace) Compile() error {
	plan := make([]planStep, 0, len(t.ops))

	for i := range t.ops {
		op := &t.ops[i]
		switch op.Kind {
		case KindInput, KindConstant:
			// Inputs are rebound by Replay; constants keep their value.

		case KindCall:
			if op.IsFieldRead() {
				plan = append(plan, fieldReadStep(op))
				continue
			}
			kernel, ok := t.backend.Lookup(op.Fn)
			if !ok {
				return fmt.Errorf("compile: no kernel for %q: %w", op.Fn, ErrUnsupported)
			}
			plan = append(plan, callStep(op, kernel))

		default:
			return fmt.Errorf("compile: unknown operation kind %d", op.Kind)
		}
	}

	t.plan = plan
	t.finalized = true
	return nil
}

func fieldReadStep(op *Operation) planStep {
	src, field, id := op.Args[0], op.Field, op.ID
	return func(t *Trace) error {
		st, ok := t.ops[src].Val.(*tensor.Struct)
		if !ok {
			return fmt.Errorf("replay: getfield %q on non-composite operation %%%d", field, src)
		}
		v, ok := st.Field(field)
		if !ok {
			return fmt.Errorf("replay: operation %%%d has no field %q", src, field)
		}
		t.ops[id].Val = v
		return nil
	}
}

func callStep(op *Operation, kernel tensor.Kernel) planStep {
	args, fn, id := op.Args, op.Fn, op.ID
	return func(t *Trace) error {
		vals := make([]Value, len(args))
		for i, a := range args {
			vals[i] = t.ops[a].Val
		}
		v, err := kernel(vals)
		if err != nil {
			return fmt.Errorf("replay: %s: %w", fn, err)
		}
		t.ops[id].Val = v
		return nil
	}
}

// Replay rebinds the trace's inputs to new concrete values and
// re-executes every operation, forward and derivative alike, in
// recording order. The trace's structure is untouched; only the
// materialized values change. Requires a prior Compile. Callers sharing
// the trace across goroutines serialize Replay and the reads that
// consume it via Lock.
func (t *Trace) Replay(inputs []Value) error {
	if !t.finalized {
		return fmt.Errorf("replay: trace %s is not compiled", t.id)
	}
	if len(inputs) != len(t.inputs) {
		return fmt.Errorf("replay: got %d inputs, trace has %d", len(inputs), len(t.inputs))
	}
	for i, id := range t.inputs {
		t.ops[id].Val = inputs[i]
	}
	for _, step := range t.plan {
		if err := step(t); err != nil {
			return err
		}
	}
	return nil
}
