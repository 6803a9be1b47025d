package tracer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tracegrad/internal/backend/cpu"
	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
	"github.com/born-ml/tracegrad/internal/tracer"
)

func TestRun_RecordsAndEvaluates(t *testing.T) {
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		x := args[0]
		return x.Mul(x).Add(tc.Lit(1))
	}

	tr, err := tracer.Run(cpu.New(), f, []tensor.Value{tensor.Scalar(3)})
	require.NoError(t, err)

	v, err := tr.Value(tr.ResultID)
	require.NoError(t, err)
	got, err := v.(*tensor.RawTensor).Item()
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	// Input, mul, literal, add.
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, 1, tr.NumInputs())
}

func TestRun_FieldAccess(t *testing.T) {
	p := tensor.NewStruct().Set("a", tensor.Scalar(2)).Set("b", tensor.Scalar(5))
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		return args[0].Field("a").Mul(args[0].Field("b"))
	}

	tr, err := tracer.Run(cpu.New(), f, []tensor.Value{p})
	require.NoError(t, err)

	v, err := tr.Value(tr.ResultID)
	require.NoError(t, err)
	got, err := v.(*tensor.RawTensor).Item()
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestRun_MapMarksElementwise(t *testing.T) {
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		return args[0].Map("square")
	}
	tr, err := tracer.Run(cpu.New(), f, []tensor.Value{tensor.Vector(1, 2)})
	require.NoError(t, err)

	op, err := tr.Op(tr.ResultID)
	require.NoError(t, err)
	assert.True(t, op.Elementwise)
	assert.Equal(t, "square", op.Fn)
}

func TestRun_UnknownKernelBecomesError(t *testing.T) {
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		return args[0].Map("no_such_fn")
	}
	_, err := tracer.Run(cpu.New(), f, []tensor.Value{tensor.Scalar(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, trace.ErrUnsupported)
}

func TestRun_NilResult(t *testing.T) {
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		return nil
	}
	_, err := tracer.Run(cpu.New(), f, []tensor.Value{tensor.Scalar(1)})
	assert.Error(t, err)
}

func TestRun_MixedTracers(t *testing.T) {
	var stray *tracer.Var
	first := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		stray = args[0]
		return args[0]
	}
	_, err := tracer.Run(cpu.New(), first, []tensor.Value{tensor.Scalar(1)})
	require.NoError(t, err)

	second := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		return args[0].Add(stray)
	}
	_, err = tracer.Run(cpu.New(), second, []tensor.Value{tensor.Scalar(1)})
	assert.Error(t, err)
}

func TestRun_ForeignPanicPropagates(t *testing.T) {
	f := func(tc *tracer.Tracer, args []*tracer.Var) *tracer.Var {
		panic("user bug")
	}
	assert.Panics(t, func() {
		_, _ = tracer.Run(cpu.New(), f, []tensor.Value{tensor.Scalar(1)})
	})
}
