// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package grad

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

// Result is a read-only view over one grad call's gradients, indexed by
// original argument position. Gradient values are captured while the
// engine still holds the trace lock, so a Result stays consistent even
// after later calls with the same signature replay the underlying trace.
type Result struct {
	tr      *trace.Trace
	entries map[trace.ID]resultEntry
}

type resultEntry struct {
	composite bool
	paths     map[trace.FieldPath]Value
	direct    Value
}

// newResult snapshots the gradients of a differentiated trace. Composite
// roots map each contributing field path to its terminal operation's
// adjoint value; a path whose terminal has no adjoint is omitted
// (composites may be partially differentiated), and a root with no
// contributing path at all gets no entry, so access reports its gradient
// as missing. Plain inputs with an adjoint are stored directly. The
// caller holds the trace lock.
func newResult(tr *trace.Trace) (*Result, error) {
	entries := make(map[trace.ID]resultEntry)

	for root, paths := range tr.FieldIndex() {
		m := make(map[trace.FieldPath]Value)
		for p, terminal := range paths {
			adj, ok := tr.Derivs[terminal]
			if !ok {
				continue
			}
			v, err := tr.Value(adj)
			if err != nil {
				return nil, fmt.Errorf("gradient of path %q: %w", p, err)
			}
			m[p] = v
		}
		if len(m) == 0 {
			continue
		}
		entries[root] = resultEntry{composite: true, paths: m}
	}

	for i := 0; i < tr.NumInputs(); i++ {
		id, err := tr.InputID(i)
		if err != nil {
			continue
		}
		if _, covered := entries[id]; covered {
			continue
		}
		adj, ok := tr.Derivs[id]
		if !ok {
			continue
		}
		v, err := tr.Value(adj)
		if err != nil {
			return nil, fmt.Errorf("gradient of argument %d: %w", i, err)
		}
		entries[id] = resultEntry{direct: v}
	}

	return &Result{tr: tr, entries: entries}, nil
}

// At returns the gradient for the argument at the given position: a
// Value for tensor arguments, or a map[FieldPath]Value for composite
// ones. Arguments without a recorded adjoint fail with
// ErrMissingGradient.
func (r *Result) At(pos int) (any, error) {
	id, err := r.tr.InputID(pos)
	if err != nil {
		return nil, err
	}
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("argument %d: %w", pos, ErrMissingGradient)
	}

	if entry.composite {
		fields := make(map[trace.FieldPath]Value, len(entry.paths))
		for p, v := range entry.paths {
			fields[p] = v
		}
		return fields, nil
	}

	return entry.direct, nil
}

// Value returns the gradient of a tensor-valued argument.
func (r *Result) Value(pos int) (Value, error) {
	g, err := r.At(pos)
	if err != nil {
		return nil, err
	}
	v, ok := g.(Value)
	if !ok {
		return nil, fmt.Errorf("argument %d is composite; use Fields", pos)
	}
	return v, nil
}

// Fields returns the per-field-path gradients of a composite argument.
func (r *Result) Fields(pos int) (map[FieldPath]Value, error) {
	g, err := r.At(pos)
	if err != nil {
		return nil, err
	}
	fields, ok := g.(map[trace.FieldPath]Value)
	if !ok {
		return nil, fmt.Errorf("argument %d is not composite; use Value", pos)
	}
	return fields, nil
}

// Float returns the gradient of a scalar argument as a float64.
func (r *Result) Float(pos int) (float64, error) {
	v, err := r.Value(pos)
	if err != nil {
		return 0, err
	}
	t, ok := v.(*tensor.RawTensor)
	if !ok {
		return 0, fmt.Errorf("argument %d: gradient is not a tensor", pos)
	}
	return t.Item()
}
