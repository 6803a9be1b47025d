// Package trace implements the recorded-computation intermediate
// representation for tracegrad: an append-only arena of uniquely
// identified operations that doubles as the forward graph and, once
// extended by the backpropagation engine, as the combined
// forward+derivative graph.
package trace

import (
	"fmt"
	"strings"
)

// ID identifies an operation by its position in the trace arena.
// Ids are never reused or reordered.
type ID int

// Kind tags the operation variant. The set is closed; consumers switch
// exhaustively over it.
type Kind uint8

// Operation variants.
const (
	// KindInput is a trace entry point carrying a caller-supplied value.
	KindInput Kind = iota
	// KindConstant is a literal fixed at trace time; constants are
	// never differentiated.
	KindConstant
	// KindCall applies a named function to prior operations.
	KindCall
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConstant:
		return "constant"
	case KindCall:
		return "call"
	default:
		return "unknown"
	}
}

// FnGetField is the function name of field-read calls. Field reads are
// skipped by the backpropagation engine; their gradients surface through
// the field-path index instead.
const FnGetField = "getfield"

// Operation is one recorded step. Which fields are meaningful depends
// on Kind: Input and Constant carry only Val; Call additionally carries
// Fn, Args, and for field reads the Field name. Elementwise marks calls
// recorded through the broadcast wrapper, where Fn names the scalar
// function applied per element.
type Operation struct {
	ID          ID
	Kind        Kind
	Fn          string
	Args        []ID
	Field       string
	Elementwise bool

	// Val is the materialized value, updated on every replay.
	Val Value
}

// IsFieldRead reports whether the operation reads a field of a
// composite value.
func (op *Operation) IsFieldRead() bool {
	return op.Kind == KindCall && op.Fn == FnGetField
}

// String renders the operation for logs and debugging.
func (op *Operation) String() string {
	switch op.Kind {
	case KindInput:
		return fmt.Sprintf("%%%d = input %s", op.ID, op.Val)
	case KindConstant:
		return fmt.Sprintf("%%%d = const %s", op.ID, op.Val)
	case KindCall:
		args := make([]string, len(op.Args))
		for i, a := range op.Args {
			args[i] = fmt.Sprintf("%%%d", a)
		}
		fn := op.Fn
		if op.Elementwise {
			fn += "."
		}
		if op.Field != "" {
			return fmt.Sprintf("%%%d = %s(%s, :%s)", op.ID, fn, strings.Join(args, ", "), op.Field)
		}
		return fmt.Sprintf("%%%d = %s(%s)", op.ID, fn, strings.Join(args, ", "))
	default:
		return fmt.Sprintf("%%%d = ?", op.ID)
	}
}
