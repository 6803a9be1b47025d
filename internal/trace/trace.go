package trace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// Value aliases the tensor value model; trace operations materialize to it.
type Value = tensor.Value

// ErrUnsupported marks a call the runtime cannot execute or the engine
// cannot differentiate. It is fatal for the surrounding grad call.
var ErrUnsupported = errors.New("unsupported operation")

// Trace is the growable arena of operations recorded from one execution.
// Every operation's argument ids are strictly less than its own id:
// the arena is a single-pass-recorded DAG in SSA form.
//
// A trace is extended in place by the backpropagation engine; Derivs
// maps forward operation ids to the id of their adjoint. After
// BuildFieldIndex, the field-path index maps each composite root to the
// terminal operation of every recorded field-access chain.
type Trace struct {
	// ResultID is the operation whose value the traced function returned.
	ResultID ID

	// Derivs maps operation id -> adjoint operation id. Populated by the
	// backpropagation engine for every contributing non-constant op.
	Derivs map[ID]ID

	id        uuid.UUID
	ops       []Operation
	inputs    []ID
	backend   tensor.Backend
	fieldIdx  map[ID]map[FieldPath]ID
	plan      []planStep
	finalized bool
	mu        sync.Mutex
}

// New creates an empty trace executing calls against the given backend.
func New(backend tensor.Backend) *Trace {
	return &Trace{
		ResultID: -1,
		Derivs:   make(map[ID]ID),
		id:       uuid.New(),
		ops:      make([]Operation, 0, 64),
		backend:  backend,
	}
}

// UUID returns the trace's correlation id for logging.
func (t *Trace) UUID() uuid.UUID {
	return t.id
}

// Lock serializes access to the trace's materialized values. Replay
// rewrites them in place, so a caller sharing a trace across goroutines
// holds the lock from the replay through every value read that consumes
// it. The trace's structure (operations, inputs, Derivs, field index)
// is immutable once differentiation finishes and needs no lock.
func (t *Trace) Lock() {
	t.mu.Lock()
}

// Unlock releases the lock taken by Lock.
func (t *Trace) Unlock() {
	t.mu.Unlock()
}

// Len returns the number of recorded operations.
func (t *Trace) Len() int {
	return len(t.ops)
}

// NumInputs returns the number of Input operations.
func (t *Trace) NumInputs() int {
	return len(t.inputs)
}

// InputID returns the operation id of the i-th input in recording order.
func (t *Trace) InputID(i int) (ID, error) {
	if i < 0 || i >= len(t.inputs) {
		return 0, fmt.Errorf("input %d out of range (trace has %d inputs)", i, len(t.inputs))
	}
	return t.inputs[i], nil
}

// Op returns the operation with the given id.
func (t *Trace) Op(id ID) (*Operation, error) {
	if id < 0 || int(id) >= len(t.ops) {
		return nil, fmt.Errorf("operation %%%d out of range (trace has %d ops)", id, len(t.ops))
	}
	return &t.ops[id], nil
}

// Value returns the materialized value of the given operation.
func (t *Trace) Value(id ID) (Value, error) {
	op, err := t.Op(id)
	if err != nil {
		return nil, err
	}
	return op.Val, nil
}

// AddInput appends an Input operation carrying the given value.
func (t *Trace) AddInput(v Value) ID {
	id := t.append(Operation{Kind: KindInput, Val: v})
	t.inputs = append(t.inputs, id)
	return id
}

// AddConstant appends a Constant literal fixed at trace time.
func (t *Trace) AddConstant(v Value) ID {
	return t.append(Operation{Kind: KindConstant, Val: v})
}

// AddCall appends a Call of the named function over prior operations and
// materializes its value immediately. Elementwise marks calls recorded
// through the broadcast wrapper.
func (t *Trace) AddCall(fn string, elementwise bool, args ...ID) (ID, error) {
	op := Operation{Kind: KindCall, Fn: fn, Args: args, Elementwise: elementwise}
	if err := t.checkArgs(&op); err != nil {
		return 0, err
	}
	val, err := t.eval(&op)
	if err != nil {
		return 0, err
	}
	op.Val = val
	return t.append(op), nil
}

// AddFieldRead appends a field-read Call over a composite-valued operation.
func (t *Trace) AddFieldRead(src ID, field string) (ID, error) {
	op := Operation{Kind: KindCall, Fn: FnGetField, Args: []ID{src}, Field: field}
	if err := t.checkArgs(&op); err != nil {
		return 0, err
	}
	val, err := t.eval(&op)
	if err != nil {
		return 0, err
	}
	op.Val = val
	return t.append(op), nil
}

func (t *Trace) append(op Operation) ID {
	op.ID = ID(len(t.ops))
	t.ops = append(t.ops, op)
	return op.ID
}

// checkArgs enforces the SSA invariant before an op is appended: every
// argument must already exist in the arena.
func (t *Trace) checkArgs(op *Operation) error {
	for _, a := range op.Args {
		if a < 0 || int(a) >= len(t.ops) {
			return fmt.Errorf("%s call references unrecorded operation %%%d", op.Fn, a)
		}
	}
	return nil
}

// eval materializes one operation against the current arena values.
func (t *Trace) eval(op *Operation) (Value, error) {
	switch op.Kind {
	case KindInput, KindConstant:
		return op.Val, nil

	case KindCall:
		if op.IsFieldRead() {
			src := t.ops[op.Args[0]].Val
			st, ok := src.(*tensor.Struct)
			if !ok {
				return nil, fmt.Errorf("getfield %q on non-composite operation %%%d", op.Field, op.Args[0])
			}
			v, ok := st.Field(op.Field)
			if !ok {
				return nil, fmt.Errorf("getfield: operation %%%d has no field %q", op.Args[0], op.Field)
			}
			return v, nil
		}

		kernel, ok := t.backend.Lookup(op.Fn)
		if !ok {
			return nil, fmt.Errorf("no kernel for %q: %w", op.Fn, ErrUnsupported)
		}
		args := make([]Value, len(op.Args))
		for i, a := range op.Args {
			args[i] = t.ops[a].Val
		}
		v, err := kernel(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Fn, err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("cannot evaluate %s operation: %w", op.Kind, ErrUnsupported)
	}
}
