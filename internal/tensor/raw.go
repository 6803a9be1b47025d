package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is a dense, row-major tensor with runtime dtype dispatch.
// An empty shape represents a scalar holding exactly one element.
type RawTensor struct {
	shape Shape
	dtype DataType
	data  []byte
}

// NewRaw creates a zero-filled tensor with the given shape and dtype.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("new tensor: %w", err)
	}
	size := shape.NumElements() * dtype.Size()
	return &RawTensor{
		shape: shape.Clone(),
		dtype: dtype,
		data:  make([]byte, size),
	}, nil
}

// FromFloat32 creates a Float32 tensor from a slice. The slice length
// must match the shape's element count.
func FromFloat32(vals []float32, shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(vals) != shape.NumElements() {
		return nil, fmt.Errorf("from slice: %d values for shape %v (%d elements)",
			len(vals), shape, shape.NumElements())
	}
	copy(t.AsFloat32(), vals)
	return t, nil
}

// FromFloat64 creates a Float64 tensor from a slice.
func FromFloat64(vals []float64, shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Float64)
	if err != nil {
		return nil, err
	}
	if len(vals) != shape.NumElements() {
		return nil, fmt.Errorf("from slice: %d values for shape %v (%d elements)",
			len(vals), shape, shape.NumElements())
	}
	copy(t.AsFloat64(), vals)
	return t, nil
}

// Scalar creates a Float64 scalar tensor.
func Scalar(v float64) *RawTensor {
	t, _ := NewRaw(Shape{}, Float64)
	t.AsFloat64()[0] = v
	return t
}

// Scalar32 creates a Float32 scalar tensor.
func Scalar32(v float32) *RawTensor {
	t, _ := NewRaw(Shape{}, Float32)
	t.AsFloat32()[0] = v
	return t
}

// Vector creates a 1-D Float64 tensor from its arguments.
func Vector(vals ...float64) *RawTensor {
	t, _ := FromFloat64(vals, Shape{len(vals)})
	return t
}

// Shape returns the tensor's shape. Callers must not mutate it.
func (t *RawTensor) Shape() Shape {
	return t.shape
}

// DType returns the element type.
func (t *RawTensor) DType() DataType {
	return t.dtype
}

// AsFloat32 reinterprets the underlying buffer as []float32.
// Panics if the dtype is not Float32.
func (t *RawTensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("AsFloat32 on %s tensor", t.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.shape.NumElements())
}

// AsFloat64 reinterprets the underlying buffer as []float64.
// Panics if the dtype is not Float64.
func (t *RawTensor) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("AsFloat64 on %s tensor", t.dtype))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.shape.NumElements())
}

// Floats returns the elements widened to float64, as a fresh slice.
// Compute kernels work in float64 and narrow on write-back.
func (t *RawTensor) Floats() []float64 {
	switch t.dtype {
	case Float32:
		src := t.AsFloat32()
		out := make([]float64, len(src))
		for i, v := range src {
			out[i] = float64(v)
		}
		return out
	case Float64:
		out := make([]float64, t.shape.NumElements())
		copy(out, t.AsFloat64())
		return out
	default:
		panic("unknown data type")
	}
}

// SetFloats writes float64 values into the tensor, narrowing as needed.
func (t *RawTensor) SetFloats(vals []float64) error {
	if len(vals) != t.shape.NumElements() {
		return fmt.Errorf("set: %d values for shape %v", len(vals), t.shape)
	}
	switch t.dtype {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range vals {
			dst[i] = float32(v)
		}
	case Float64:
		copy(t.AsFloat64(), vals)
	}
	return nil
}

// Item returns the single element of a scalar tensor.
func (t *RawTensor) Item() (float64, error) {
	if len(t.shape) != 0 {
		return 0, fmt.Errorf("item: tensor has shape %v, want scalar", t.shape)
	}
	return t.Floats()[0], nil
}

// Clone returns a deep copy.
func (t *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &RawTensor{shape: t.shape.Clone(), dtype: t.dtype, data: data}
}

// String renders a compact type signature such as "f64[2 3]".
func (t *RawTensor) String() string {
	return fmt.Sprintf("%s%v", t.dtype, t.shape)
}
