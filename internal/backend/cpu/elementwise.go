package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// unaryTable maps scalar function names to their float64 implementation.
// These double as the element functions usable through the broadcast
// wrapper during tracing.
var unaryTable = map[string]func(float64) float64{
	"neg":    func(x float64) float64 { return -x },
	"square": func(x float64) float64 { return x * x },
	"exp":    math.Exp,
	"log":    math.Log,
	"sin":    math.Sin,
	"cos":    math.Cos,
	"sqrt":   math.Sqrt,
}

// unaryKernel lifts a scalar function to an element-wise tensor kernel.
func unaryKernel(name string, f func(float64) float64) tensor.Kernel {
	return func(args []tensor.Value) (tensor.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: got %d arguments, want 1", name, len(args))
		}
		x, err := tensorArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		out, err := tensor.NewRaw(x.Shape(), x.DType())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		vals := x.Floats()
		for i, v := range vals {
			vals[i] = f(v)
		}
		if err := out.SetFloats(vals); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return out, nil
	}
}

// binaryKernel lifts a scalar function to a broadcasting binary kernel.
// The result dtype is the promotion of both operand dtypes.
func binaryKernel(name string, f func(x, y float64) float64) tensor.Kernel {
	return func(args []tensor.Value) (tensor.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: got %d arguments, want 2", name, len(args))
		}
		a, err := tensorArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := tensorArg(name, args, 1)
		if err != nil {
			return nil, err
		}

		outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out, err := tensor.NewRaw(outShape, tensor.Promote(a.DType(), b.DType()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		av, bv := a.Floats(), b.Floats()
		astr := broadcastStrides(a.Shape(), outShape)
		bstr := broadcastStrides(b.Shape(), outShape)

		vals := make([]float64, outShape.NumElements())
		idx := make([]int, len(outShape))
		for i := range vals {
			ai, bi := 0, 0
			for d, k := range idx {
				ai += k * astr[d]
				bi += k * bstr[d]
			}
			vals[i] = f(av[ai], bv[bi])
			advance(idx, outShape)
		}
		if err := out.SetFloats(vals); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return out, nil
	}
}

// broadcastStrides maps each output dimension to the operand's stride,
// with stride 0 for dimensions the operand is broadcast along.
func broadcastStrides(s, out tensor.Shape) []int {
	strides := make([]int, len(out))
	own := s.Strides()
	offset := len(out) - len(s)
	for d := range out {
		if d < offset || s[d-offset] == 1 {
			continue // broadcast dimension, stride stays 0
		}
		strides[d] = own[d-offset]
	}
	return strides
}

// advance increments a multi-index in row-major order.
func advance(idx []int, shape tensor.Shape) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}
