// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public API for the tracegrad value model:
// dense float tensors, composite struct values, shapes and dtypes.
package tensor

import (
	"github.com/born-ml/tracegrad/internal/tensor"
)

// Shape represents tensor dimensions; empty means scalar.
type Shape = tensor.Shape

// DataType is the runtime element type of a tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// RawTensor is a dense, row-major tensor.
type RawTensor = tensor.RawTensor

// Struct is a composite value of named fields.
type Struct = tensor.Struct

// Value is a tensor or a composite struct.
type Value = tensor.Value

// Backend is the kernel table traces execute against.
type Backend = tensor.Backend

// Kernel computes one named operation over materialized values.
type Kernel = tensor.Kernel

// NewRaw creates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a Float32 tensor from a slice.
func FromFloat32(vals []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(vals, shape)
}

// FromFloat64 creates a Float64 tensor from a slice.
func FromFloat64(vals []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat64(vals, shape)
}

// Scalar creates a Float64 scalar tensor.
func Scalar(v float64) *RawTensor {
	return tensor.Scalar(v)
}

// Scalar32 creates a Float32 scalar tensor.
func Scalar32(v float32) *RawTensor {
	return tensor.Scalar32(v)
}

// Vector creates a 1-D Float64 tensor.
func Vector(vals ...float64) *RawTensor {
	return tensor.Vector(vals...)
}

// NewStruct creates an empty composite value.
func NewStruct() *Struct {
	return tensor.NewStruct()
}

// ShapeOf returns the shape of a tensor-valued Value.
func ShapeOf(v Value) (Shape, bool) {
	return tensor.ShapeOf(v)
}

// BroadcastShapes applies NumPy-style broadcasting rules to two shapes.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
