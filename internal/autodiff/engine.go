package autodiff

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

// Engine extends a fully recorded trace with derivative-computing
// operations by walking it in reverse.
type Engine struct {
	oracle *Oracle
	log    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOracle replaces the default derivative rule table.
func WithOracle(o *Oracle) EngineOption {
	return func(e *Engine) { e.oracle = o }
}

// WithLogger sets the logger for advisory diagnostics.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates a backpropagation engine. Diagnostics are silent
// unless a logger is supplied.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		oracle: NewOracle(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Back runs the reverse pass over a trace whose forward pass is complete
// and whose ResultID is set. The trace is extended in place: a float32
// seed constant of 1 becomes the result's adjoint, and every
// contributing non-constant operation receives an entry in Derivs.
//
// Field-read calls are skipped entirely; their gradients surface through
// the field-path index rather than direct backpropagation. When an
// operation feeds several downstream calls, its final adjoint is an
// explicitly appended addition of the individual contributions, folded
// pairwise left to right.
func (e *Engine) Back(tr *trace.Trace) error {
	if tr.ResultID < 0 {
		return fmt.Errorf("back: trace %s has no result", tr.UUID())
	}
	if tr.Derivs == nil {
		tr.Derivs = make(map[trace.ID]trace.ID)
	}

	seedID := tr.AddConstant(tensor.Scalar32(1))
	tr.Derivs[tr.ResultID] = seedID

	for id := seedID - 1; id >= 0; id-- {
		op, err := tr.Op(id)
		if err != nil {
			return err
		}
		if op.Kind != trace.KindCall || op.IsFieldRead() {
			continue
		}
		// Reverse order guarantees every consumer of this op was
		// already visited, so its adjoint, if any, is final.
		dyID, contributes := tr.Derivs[id]
		if !contributes {
			continue
		}

		for pos, argID := range op.Args {
			arg, err := tr.Op(argID)
			if err != nil {
				return err
			}
			if arg.Kind == trace.KindConstant {
				continue
			}

			dxID, err := e.stepBack(tr, op, pos, dyID)
			if err != nil {
				return fmt.Errorf("back: %s at %%%d: %w", op.Fn, op.ID, err)
			}

			if priorID, ok := tr.Derivs[argID]; ok {
				e.log.Warn("accumulating fan-out gradient on a lightly exercised path",
					zap.String("trace", tr.UUID().String()),
					zap.Int("operation", int(argID)),
					zap.Int("prior_adjoint", int(priorID)),
					zap.Int("contribution", int(dxID)))
				sumID, err := tr.AddCall("add", false, priorID, dxID)
				if err != nil {
					return fmt.Errorf("back: accumulate at %%%d: %w", argID, err)
				}
				tr.Derivs[argID] = sumID
			} else {
				tr.Derivs[argID] = dxID
			}
		}
	}

	return nil
}

// stepBack computes the adjoint contribution for one argument of a call
// and returns the id of the operation holding it. For calls recorded
// through the broadcast wrapper the oracle is consulted with element
// metadata and the appended derivative calls keep the elementwise
// marking, so shapes stay broadcast-compatible.
func (e *Engine) stepBack(tr *trace.Trace, y *trace.Operation, pos int, dyID trace.ID) (trace.ID, error) {
	metas := make([]Meta, len(y.Args))
	for i, argID := range y.Args {
		v, err := tr.Value(argID)
		if err != nil {
			return 0, err
		}
		if y.Elementwise {
			metas[i] = elemMetaOf(v)
		} else {
			metas[i] = MetaOf(v)
		}
	}

	var out Meta
	if y.Elementwise {
		out = elemMetaOf(y.Val)
	} else {
		out = MetaOf(y.Val)
	}

	expr, err := e.oracle.Derive(y.Fn, metas, out, pos)
	if err != nil {
		return 0, err
	}
	return tr.Append(expr, y.Args, dyID, y.Elementwise)
}
