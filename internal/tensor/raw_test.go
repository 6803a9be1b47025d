package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTensor_RoundTrip(t *testing.T) {
	v, err := FromFloat64([]float64{1, 2, 3}, Shape{3})
	require.NoError(t, err)
	assert.Equal(t, Float64, v.DType())
	assert.Equal(t, []float64{1, 2, 3}, v.Floats())

	w, err := FromFloat32([]float32{1.5, 2.5}, Shape{2})
	require.NoError(t, err)
	assert.Equal(t, Float32, w.DType())
	assert.Equal(t, []float64{1.5, 2.5}, w.Floats())
}

func TestRawTensor_LengthMismatch(t *testing.T) {
	_, err := FromFloat64([]float64{1, 2}, Shape{3})
	assert.Error(t, err)
}

func TestRawTensor_Scalar(t *testing.T) {
	s := Scalar(3.5)
	assert.Empty(t, s.Shape())
	got, err := s.Item()
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)

	s32 := Scalar32(1)
	assert.Equal(t, Float32, s32.DType())
	got, err = s32.Item()
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestRawTensor_Item_NonScalar(t *testing.T) {
	v := Vector(1, 2)
	_, err := v.Item()
	assert.Error(t, err)
}

func TestRawTensor_SetFloats_Narrows(t *testing.T) {
	w, err := NewRaw(Shape{2}, Float32)
	require.NoError(t, err)
	require.NoError(t, w.SetFloats([]float64{1.25, -2}))
	assert.Equal(t, []float32{1.25, -2}, w.AsFloat32())
}

func TestRawTensor_Clone(t *testing.T) {
	v := Vector(1, 2, 3)
	c := v.Clone()
	require.NoError(t, c.SetFloats([]float64{9, 9, 9}))
	assert.Equal(t, []float64{1, 2, 3}, v.Floats(), "clone must not alias")
}

func TestPromote(t *testing.T) {
	assert.Equal(t, Float32, Promote(Float32, Float32))
	assert.Equal(t, Float64, Promote(Float32, Float64))
	assert.Equal(t, Float64, Promote(Float64, Float32))
}

func TestStruct_Fields(t *testing.T) {
	s := NewStruct().
		Set("a", Scalar(2)).
		Set("b", Vector(1, 2))

	assert.Equal(t, []string{"a", "b"}, s.Names())

	a, ok := s.Field("a")
	require.True(t, ok)
	_, isTensor := a.(*RawTensor)
	assert.True(t, isTensor)

	_, ok = s.Field("missing")
	assert.False(t, ok)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "f64[]", Scalar(1).Signature())
	assert.Equal(t, "f64[3]", Vector(1, 2, 3).Signature())

	s := NewStruct().Set("a", Scalar(2)).Set("b", Vector(1, 2))
	assert.Equal(t, "{a:f64[];b:f64[2]}", s.Signature())

	nested := NewStruct().Set("inner", s)
	assert.Equal(t, "{inner:{a:f64[];b:f64[2]}}", nested.Signature())
}

func TestShapeOf(t *testing.T) {
	shape, ok := ShapeOf(Vector(1, 2))
	require.True(t, ok)
	assert.True(t, shape.Equal(Shape{2}))

	_, ok = ShapeOf(NewStruct())
	assert.False(t, ok)
}
