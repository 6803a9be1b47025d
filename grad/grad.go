// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package grad is the differentiable-programming entry point: it
// computes, for a function executed once on example inputs, both its
// output value and the gradient of that output with respect to every
// input, including nested fields of composite inputs.
//
// Example:
//
//	f := func(tc *grad.Tracer, args []*grad.Var) *grad.Var {
//	    x := args[0]
//	    return x.Mul(x)
//	}
//	value, grads, err := grad.Grad(f, tensor.Scalar(3.0))
//	// value = 9.0, grads.Float(0) = 6.0
//
// Each distinct (function, argument signature) pair is traced and
// differentiated once; later calls replay the cached trace against the
// new inputs.
package grad

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/born-ml/tracegrad/internal/autodiff"
	"github.com/born-ml/tracegrad/internal/backend/cpu"
	"github.com/born-ml/tracegrad/internal/cache"
	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
	"github.com/born-ml/tracegrad/internal/tracer"
)

// Func is a traceable function over symbolic variables.
type Func = tracer.Func

// Tracer records a Func's operations; user code receives it as the
// first argument.
type Tracer = tracer.Tracer

// Var is a symbolic handle to one traced value.
type Var = tracer.Var

// Value is a concrete argument or result: a tensor or a composite.
type Value = tensor.Value

// FieldPath identifies a leaf inside a composite input ("a" or "a.b").
type FieldPath = trace.FieldPath

// ErrUnsupported marks an operation the engine cannot execute or
// differentiate; it aborts the grad call.
var ErrUnsupported = trace.ErrUnsupported

// ErrMissingGradient is reported when a Result is indexed for an
// argument with no recorded adjoint.
var ErrMissingGradient = errors.New("no gradient recorded")

// Engine owns the pieces of one differentiation pipeline: the kernel
// backend, the backpropagation engine, and the trace cache. Engines are
// safe for concurrent use: replays of a shared cached trace are
// serialized, and each call's value and Result are captured together
// before the trace is handed to the next caller.
type Engine struct {
	backend tensor.Backend
	back    *autodiff.Engine
	cache   *cache.Cache
	log     *zap.Logger
	traces  atomic.Int64
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	backend   tensor.Backend
	oracle    *autodiff.Oracle
	log       *zap.Logger
	cacheSize int
}

// WithLogger sets the logger for advisory diagnostics (gradient shape
// mismatches, fan-out accumulation). Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithBackend replaces the default CPU kernel table.
func WithBackend(b tensor.Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithOracle replaces the default derivative rule table.
func WithOracle(o *autodiff.Oracle) Option {
	return func(c *config) { c.oracle = o }
}

// WithCacheSize bounds the trace cache to at most n signatures.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// New creates an Engine with its own trace cache.
func New(opts ...Option) (*Engine, error) {
	c := config{
		backend: cpu.New(),
		oracle:  autodiff.NewOracle(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	traceCache, err := cache.New(c.cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		backend: c.backend,
		back:    autodiff.NewEngine(autodiff.WithOracle(c.oracle), autodiff.WithLogger(c.log)),
		cache:   traceCache,
		log:     c.log,
	}, nil
}

// Grad computes f(args) and the gradient of the result with respect to
// every argument. On the first call for a given signature the function
// is traced, differentiated, shape-checked and compiled; subsequent
// calls with the same signature replay the cached trace against the new
// inputs.
func (e *Engine) Grad(f Func, args ...Value) (Value, *Result, error) {
	key, err := cache.Signature(f, args)
	if err != nil {
		return nil, nil, err
	}

	tr, hit, err := e.cache.GetOrBuild(key, func() (*trace.Trace, error) {
		return e.build(f, args)
	})
	if err != nil {
		return nil, nil, err
	}
	// Replay rewrites the cached trace's values in place; the lock spans
	// the replay and the snapshot so no caller observes another's run.
	tr.Lock()
	defer tr.Unlock()
	if hit {
		if err := tr.Replay(args); err != nil {
			return nil, nil, err
		}
	}

	val, err := tr.Value(tr.ResultID)
	if err != nil {
		return nil, nil, err
	}
	res, err := newResult(tr)
	if err != nil {
		return nil, nil, err
	}
	return val, res, nil
}

// build records, differentiates and finalizes a trace for one signature.
func (e *Engine) build(f Func, args []Value) (*trace.Trace, error) {
	e.traces.Add(1)

	tr, err := tracer.Run(e.backend, f, args)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	if err := e.back.Back(tr); err != nil {
		return nil, err
	}
	autodiff.CheckShapes(tr, e.log)
	tr.BuildFieldIndex()
	if err := tr.Compile(); err != nil {
		return nil, err
	}

	e.log.Debug("trace differentiated",
		zap.String("trace", tr.UUID().String()),
		zap.Int("operations", tr.Len()),
		zap.Int("gradients", len(tr.Derivs)))
	return tr, nil
}

// TraceCount returns how many traces this engine has recorded; cache
// hits do not re-trace.
func (e *Engine) TraceCount() int64 {
	return e.traces.Load()
}

// CacheStats returns cumulative trace-cache hit and miss counts.
func (e *Engine) CacheStats() (hits, misses uint64) {
	return e.cache.Stats()
}

var defaultEngine = sync.OnceValue(func() *Engine {
	e, err := New()
	if err != nil {
		panic(fmt.Sprintf("grad: default engine: %v", err))
	}
	return e
})

// Grad runs the default process-wide engine. The default engine's cache
// is bounded and synchronized; hosts wanting isolation or custom
// configuration create their own via New.
func Grad(f Func, args ...Value) (Value, *Result, error) {
	return defaultEngine().Grad(f, args...)
}
