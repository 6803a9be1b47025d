package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/born-ml/tracegrad/internal/autodiff"
	"github.com/born-ml/tracegrad/internal/backend/cpu"
	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

func adjointOf(t *testing.T, tr *trace.Trace, id trace.ID) *tensor.RawTensor {
	t.Helper()
	adjID, ok := tr.Derivs[id]
	require.True(t, ok, "operation %%%d has no adjoint", id)
	v, err := tr.Value(adjID)
	require.NoError(t, err)
	raw, ok := v.(*tensor.RawTensor)
	require.True(t, ok)
	return raw
}

func TestBack_Square(t *testing.T) {
	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(3))
	y, err := tr.AddCall("mul", false, x, x)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	dx, err := adjointOf(t, tr, x).Item()
	require.NoError(t, err)
	assert.Equal(t, 6.0, dx)
}

func TestBack_SeedIsOne(t *testing.T) {
	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(3))
	y, err := tr.AddCall("square", false, x)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	seed := adjointOf(t, tr, y)
	got, err := seed.Item()
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, tensor.Float32, seed.DType(), "seed is recorded at reduced precision")

	dx, err := adjointOf(t, tr, x).Item()
	require.NoError(t, err)
	assert.Equal(t, 6.0, dx)
	assert.Equal(t, tensor.Float64, adjointOf(t, tr, x).DType(), "promotion widens against float64 operands")
}

func TestBack_Sum(t *testing.T) {
	tr := trace.New(cpu.New())
	v := tr.AddInput(tensor.Vector(1, 2, 3))
	y, err := tr.AddCall("sum", false, v)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))
	assert.Equal(t, []float64{1, 1, 1}, adjointOf(t, tr, v).Floats())
}

func TestBack_FanOutAccumulates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(3))
	g, err := tr.AddCall("identity", false, x)
	require.NoError(t, err)
	h, err := tr.AddCall("identity", false, x)
	require.NoError(t, err)
	y, err := tr.AddCall("add", false, g, h)
	require.NoError(t, err)
	tr.ResultID = y

	eng := autodiff.NewEngine(autodiff.WithLogger(zap.New(core)))
	require.NoError(t, eng.Back(tr))

	dx, err := adjointOf(t, tr, x).Item()
	require.NoError(t, err)
	assert.Equal(t, 2.0, dx, "both identity branches contribute 1")

	// The accumulated adjoint is an explicitly recorded addition.
	sumOp, err := tr.Op(tr.Derivs[x])
	require.NoError(t, err)
	assert.Equal(t, "add", sumOp.Fn)

	require.Equal(t, 1, logs.FilterMessageSnippet("fan-out").Len(),
		"accumulation branch emits a diagnostic")
}

func TestBack_ConstantsGetNoGradient(t *testing.T) {
	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(3))
	c := tr.AddConstant(tensor.Scalar(10))
	y, err := tr.AddCall("mul", false, x, c)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	_, hasConstGrad := tr.Derivs[c]
	assert.False(t, hasConstGrad)
	dx, err := adjointOf(t, tr, x).Item()
	require.NoError(t, err)
	assert.Equal(t, 10.0, dx)
}

func TestBack_SkipsFieldReads(t *testing.T) {
	tr := trace.New(cpu.New())
	p := tensor.NewStruct().Set("a", tensor.Scalar(2)).Set("b", tensor.Scalar(5))
	root := tr.AddInput(p)
	a, err := tr.AddFieldRead(root, "a")
	require.NoError(t, err)
	b, err := tr.AddFieldRead(root, "b")
	require.NoError(t, err)
	y, err := tr.AddCall("mul", false, a, b)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	da, err := adjointOf(t, tr, a).Item()
	require.NoError(t, err)
	db, err := adjointOf(t, tr, b).Item()
	require.NoError(t, err)
	assert.Equal(t, 5.0, da)
	assert.Equal(t, 2.0, db)

	_, hasRootGrad := tr.Derivs[root]
	assert.False(t, hasRootGrad, "gradients do not flow through field reads to the composite root")
}

func TestBack_ElementwiseBroadcast(t *testing.T) {
	tr := trace.New(cpu.New())
	v := tr.AddInput(tensor.Vector(1, 2))
	y, err := tr.AddCall("square", true, v)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))
	assert.Equal(t, []float64{2, 4}, adjointOf(t, tr, v).Floats())

	// Derivative ops recorded on the broadcast path keep the marking.
	adjOp, err := tr.Op(tr.Derivs[v])
	require.NoError(t, err)
	assert.True(t, adjOp.Elementwise)
}

func TestBack_BroadcastReducesGradient(t *testing.T) {
	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(2))
	v := tr.AddInput(tensor.Vector(1, 2, 3))
	prod, err := tr.AddCall("mul", false, x, v)
	require.NoError(t, err)
	y, err := tr.AddCall("sum", false, prod)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	// d/dx sum(x*v) = sum(v); the broadcast scalar's gradient collapses.
	dx := adjointOf(t, tr, x)
	assert.Empty(t, dx.Shape())
	got, err := dx.Item()
	require.NoError(t, err)
	assert.Equal(t, 6.0, got)

	assert.Equal(t, []float64{2, 2, 2}, adjointOf(t, tr, v).Floats())
}

func TestBack_AdjointShapesMatchVariables(t *testing.T) {
	tr := trace.New(cpu.New())
	x := tr.AddInput(tensor.Scalar(2))
	v := tr.AddInput(tensor.Vector(1, 2, 3))
	prod, err := tr.AddCall("mul", false, x, v)
	require.NoError(t, err)
	y, err := tr.AddCall("sum", false, prod)
	require.NoError(t, err)
	tr.ResultID = y

	require.NoError(t, autodiff.NewEngine().Back(tr))

	for varID, adjID := range tr.Derivs {
		varVal, err := tr.Value(varID)
		require.NoError(t, err)
		adjVal, err := tr.Value(adjID)
		require.NoError(t, err)
		varShape, ok := tensor.ShapeOf(varVal)
		require.True(t, ok)
		adjShape, ok := tensor.ShapeOf(adjVal)
		require.True(t, ok)
		assert.True(t, varShape.Equal(adjShape),
			"operation %%%d has shape %v but adjoint %%%d has %v", varID, varShape, adjID, adjShape)
	}
}

func TestBack_NoResult(t *testing.T) {
	tr := trace.New(cpu.New())
	tr.AddInput(tensor.Scalar(1))
	assert.Error(t, autodiff.NewEngine().Back(tr))
}

func TestBack_MissingRuleIsFatal(t *testing.T) {
	backend := cpu.New()
	backend.Register("mystery", func(args []tensor.Value) (tensor.Value, error) {
		return tensor.Scalar(1), nil
	})
	tr := trace.New(backend)
	x := tr.AddInput(tensor.Scalar(3))
	y, err := tr.AddCall("mystery", false, x)
	require.NoError(t, err)
	tr.ResultID = y

	err = autodiff.NewEngine().Back(tr)
	require.Error(t, err)
	assert.ErrorIs(t, err, trace.ErrUnsupported)
}

func TestOracle_CustomRule(t *testing.T) {
	backend := cpu.New()
	backend.Register("triple", func(args []tensor.Value) (tensor.Value, error) {
		x := args[0].(*tensor.RawTensor)
		vals := x.Floats()
		for i := range vals {
			vals[i] *= 3
		}
		out, err := tensor.NewRaw(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		if err := out.SetFloats(vals); err != nil {
			return nil, err
		}
		return out, nil
	})
	oracle := autodiff.NewOracle()
	oracle.Register("triple", func(args []autodiff.Meta, out autodiff.Meta, pos int) (*trace.Expr, error) {
		return trace.CallOf("mul", trace.AdjointRef(), trace.Lit(3)), nil
	})

	tr := trace.New(backend)
	x := tr.AddInput(tensor.Scalar(5))
	y, err := tr.AddCall("triple", false, x)
	require.NoError(t, err)
	tr.ResultID = y

	eng := autodiff.NewEngine(autodiff.WithOracle(oracle))
	require.NoError(t, eng.Back(tr))

	dx, err := adjointOf(t, tr, x).Item()
	require.NoError(t, err)
	assert.Equal(t, 3.0, dx)
}
