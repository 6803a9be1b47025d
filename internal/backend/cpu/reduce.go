package cpu

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// sumKernel reduces all elements to a scalar of the same dtype.
func sumKernel(args []tensor.Value) (tensor.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sum: got %d arguments, want 1", len(args))
	}
	x, err := tensorArg("sum", args, 0)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, v := range x.Floats() {
		total += v
	}
	out, err := tensor.NewRaw(tensor.Shape{}, x.DType())
	if err != nil {
		return nil, err
	}
	if err := out.SetFloats([]float64{total}); err != nil {
		return nil, err
	}
	return out, nil
}

// onesLikeKernel creates a tensor of ones matching the argument.
func onesLikeKernel(args []tensor.Value) (tensor.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("ones_like: got %d arguments, want 1", len(args))
	}
	x, err := tensorArg("ones_like", args, 0)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	vals := make([]float64, x.Shape().NumElements())
	for i := range vals {
		vals[i] = 1
	}
	if err := out.SetFloats(vals); err != nil {
		return nil, err
	}
	return out, nil
}

// expandLikeKernel broadcasts dy to the shape of x. The result dtype is
// the promotion of both operands, which is how a float32 gradient seed
// widens against float64 forward values.
func expandLikeKernel(args []tensor.Value) (tensor.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expand_like: got %d arguments, want 2", len(args))
	}
	dy, err := tensorArg("expand_like", args, 0)
	if err != nil {
		return nil, err
	}
	x, err := tensorArg("expand_like", args, 1)
	if err != nil {
		return nil, err
	}

	outShape := x.Shape()
	if _, _, err := tensor.BroadcastShapes(dy.Shape(), outShape); err != nil {
		return nil, fmt.Errorf("expand_like: %w", err)
	}
	out, err := tensor.NewRaw(outShape, tensor.Promote(dy.DType(), x.DType()))
	if err != nil {
		return nil, err
	}

	src := dy.Floats()
	strides := broadcastStrides(dy.Shape(), outShape)
	vals := make([]float64, outShape.NumElements())
	idx := make([]int, len(outShape))
	for i := range vals {
		off := 0
		for d, k := range idx {
			off += k * strides[d]
		}
		vals[i] = src[off]
		advance(idx, outShape)
	}
	if err := out.SetFloats(vals); err != nil {
		return nil, err
	}
	return out, nil
}

// unbroadcastKernel reduces a gradient to the shape of the target
// operand by summing over broadcast dimensions. This undoes forward
// broadcasting: a[3,1]+b[3,4] -> c[3,4] means grad_a sums over dim 1.
func unbroadcastKernel(args []tensor.Value) (tensor.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("unbroadcast: got %d arguments, want 2", len(args))
	}
	grad, err := tensorArg("unbroadcast", args, 0)
	if err != nil {
		return nil, err
	}
	target, err := tensorArg("unbroadcast", args, 1)
	if err != nil {
		return nil, err
	}

	gradShape, targetShape := grad.Shape(), target.Shape()
	if gradShape.Equal(targetShape) {
		return grad.Clone(), nil
	}

	vals := grad.Floats()
	shape := gradShape.Clone()

	// Sum away leading dimensions the target does not have.
	for len(shape) > len(targetShape) {
		vals, shape = sumAxis(vals, shape, 0)
	}
	// Sum along dimensions where the target is 1.
	for d := range targetShape {
		if targetShape[d] == 1 && shape[d] > 1 {
			summed, reduced := sumAxis(vals, shape, d)
			// Keep the dimension so the final shape matches the target.
			reduced = append(reduced[:d:d], append(tensor.Shape{1}, reduced[d:]...)...)
			vals, shape = summed, reduced
		}
	}

	out, err := tensor.NewRaw(targetShape, grad.DType())
	if err != nil {
		return nil, err
	}
	if err := out.SetFloats(vals); err != nil {
		return nil, fmt.Errorf("unbroadcast: %v vs target %v: %w", gradShape, targetShape, err)
	}
	return out, nil
}

// sumAxis sums vals along the given axis and drops it from the shape.
func sumAxis(vals []float64, shape tensor.Shape, axis int) ([]float64, tensor.Shape) {
	outShape := make(tensor.Shape, 0, len(shape)-1)
	outShape = append(outShape, shape[:axis]...)
	outShape = append(outShape, shape[axis+1:]...)

	outer := 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	n := shape[axis]

	out := make([]float64, outer*inner)
	for o := 0; o < outer; o++ {
		for k := 0; k < n; k++ {
			base := (o*n + k) * inner
			for i := 0; i < inner; i++ {
				out[o*inner+i] += vals[base+i]
			}
		}
	}
	return out, outShape
}
