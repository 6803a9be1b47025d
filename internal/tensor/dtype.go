// Package tensor provides the value model for the tracegrad differentiation core:
// dense float tensors, composite struct values, shapes and broadcasting.
package tensor

// DataType represents runtime type information for tensor elements.
type DataType int

// Supported element types. Gradients seed at Float32 and promote to
// Float64 whenever a wider operand participates.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return "unknown"
	}
}

// Promote returns the wider of two element types.
func Promote(a, b DataType) DataType {
	if a == Float64 || b == Float64 {
		return Float64
	}
	return Float32
}
