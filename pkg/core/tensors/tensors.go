// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a host (CPU memory) dense Tensor, used to hold images, batches of images
// and labels as they flow through the input pipeline.
//
// The flat data is stored in row-major order, as a Go slice of the type corresponding to the DType.
// Use the generic functions ConstFlatData, MutableFlatData and CopyFlatData to access it.
package tensors

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"

	"github.com/gomlx/augment/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Supported lists the Go types that can be used as the underlying storage of a Tensor.
type Supported interface {
	float32 | float64 | float16.Float16 | int32 | int64 | uint8
}

// Tensor is a multidimensional array stored in host memory.
//
// Tensors are safe for concurrent access: the flat data accessors lock the Tensor while the
// access function is running.
type Tensor struct {
	mu    sync.Mutex
	shape shapes.Shape
	flat  any
}

// FromShape returns a zero-initialized Tensor with the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	t := &Tensor{shape: shape.Clone()}
	switch shape.DType {
	case dtypes.Float32:
		t.flat = make([]float32, shape.Size())
	case dtypes.Float64:
		t.flat = make([]float64, shape.Size())
	case dtypes.Float16:
		t.flat = make([]float16.Float16, shape.Size())
	case dtypes.Int32:
		t.flat = make([]int32, shape.Size())
	case dtypes.Int64:
		t.flat = make([]int64, shape.Size())
	case dtypes.Uint8:
		t.flat = make([]uint8, shape.Size())
	default:
		exceptions.Panicf("tensors.FromShape(%s): dtype %s not supported", shape, shape.DType)
	}
	return t
}

// DTypeOf returns the DType for the generic type T.
func DTypeOf[T Supported]() dtypes.DType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	case float16.Float16:
		return dtypes.Float16
	case int32:
		return dtypes.Int32
	case int64:
		return dtypes.Int64
	case uint8:
		return dtypes.Uint8
	}
	return dtypes.InvalidDType
}

// FromFlatDataAndDimensions creates a Tensor with the given dimensions, using data as its storage.
// The Tensor takes ownership of data.
//
// It panics if len(data) doesn't match the dimensions.
func FromFlatDataAndDimensions[T Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(DTypeOf[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data has %d elements, but shape %s requires %d",
			len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: data}
}

// FromScalar returns a scalar (rank-0) Tensor holding value.
func FromScalar[T Supported](value T) *Tensor {
	return &Tensor{shape: shapes.Make(DTypeOf[T]()), flat: []T{value}}
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor data.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// ConstFlatDataAny calls accessFn with the flat data as `any`, holding the lock until it returns.
// accessFn must not modify the data.
func (t *Tensor) ConstFlatDataAny(accessFn func(flat any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// ConstFlatData calls accessFn with the flat data, holding the lock until it returns.
// accessFn must not modify the data.
//
// It panics if T doesn't match the tensor DType.
func ConstFlatData[T Supported](t *Tensor, accessFn func(flat []T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.ConstFlatData[%T]: tensor has dtype %s", *new(T), t.shape.DType)
	}
	accessFn(flat)
}

// MutableFlatData calls accessFn with the flat data, holding the lock until it returns.
//
// It panics if T doesn't match the tensor DType.
func MutableFlatData[T Supported](t *Tensor, accessFn func(flat []T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.MutableFlatData[%T]: tensor has dtype %s", *new(T), t.shape.DType)
	}
	accessFn(flat)
}

// CopyFlatData returns a copy of the flat data of the tensor.
func CopyFlatData[T Supported](t *Tensor) (flat []T) {
	ConstFlatData(t, func(data []T) {
		flat = slices.Clone(data)
	})
	return
}

// ToScalar returns the value of a scalar (or single element) tensor.
func ToScalar[T Supported](t *Tensor) (value T) {
	if t.Size() != 1 {
		exceptions.Panicf("tensors.ToScalar: tensor has shape %s, with %d elements", t.shape, t.Size())
	}
	ConstFlatData(t, func(flat []T) { value = flat[0] })
	return
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	t.mu.Lock()
	defer t.mu.Unlock()
	flatV := reflect.ValueOf(t.flat)
	clonedV := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(clonedV, flatV)
	return &Tensor{shape: t.shape.Clone(), flat: clonedV.Interface()}
}

// Stack creates a new tensor with a new leading axis, with each of the parts as one element.
// All parts must have the same shape.
func Stack(parts []*Tensor) *Tensor {
	if len(parts) == 0 {
		exceptions.Panicf("tensors.Stack: no tensors given")
	}
	shape := parts[0].Shape()
	for ii, part := range parts {
		if !part.Shape().Equal(shape) {
			exceptions.Panicf("tensors.Stack: part #%d has shape %s, but part #0 has shape %s", ii, part.Shape(), shape)
		}
	}
	return concatenateImpl(parts, shape.AddLeadingAxis(len(parts)))
}

// Concatenate concatenates the parts on their leading axis. All parts must have the same rank and dtype,
// and the same dimensions except on the leading axis.
func Concatenate(parts []*Tensor) *Tensor {
	if len(parts) == 0 {
		exceptions.Panicf("tensors.Concatenate: no tensors given")
	}
	shape := parts[0].Shape().Clone()
	if shape.Rank() == 0 {
		exceptions.Panicf("tensors.Concatenate: cannot concatenate scalars, use Stack instead")
	}
	for ii, part := range parts[1:] {
		partShape := part.Shape()
		if partShape.DType != shape.DType || partShape.Rank() != shape.Rank() ||
			!slices.Equal(partShape.Dimensions[1:], shape.Dimensions[1:]) {
			exceptions.Panicf("tensors.Concatenate: part #%d has shape %s, incompatible with part #0 shape %s",
				ii+1, partShape, parts[0].Shape())
		}
		shape.Dimensions[0] += partShape.Dimensions[0]
	}
	return concatenateImpl(parts, shape)
}

func concatenateImpl(parts []*Tensor, shape shapes.Shape) *Tensor {
	result := FromShape(shape)
	resultV := reflect.ValueOf(result.flat)
	pos := 0
	for _, part := range parts {
		part.ConstFlatDataAny(func(flat any) {
			flatV := reflect.ValueOf(flat)
			reflect.Copy(resultV.Slice(pos, pos+flatV.Len()), flatV)
			pos += flatV.Len()
		})
	}
	return result
}

// Float64s returns the values of the tensor converted to float64, in row-major order.
func (t *Tensor) Float64s() []float64 {
	values := make([]float64, t.Size())
	t.ConstFlatDataAny(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			for ii, v := range data {
				values[ii] = float64(v)
			}
		case []float64:
			copy(values, data)
		case []float16.Float16:
			for ii, v := range data {
				values[ii] = float64(v.Float32())
			}
		case []int32:
			for ii, v := range data {
				values[ii] = float64(v)
			}
		case []int64:
			for ii, v := range data {
				values[ii] = float64(v)
			}
		case []uint8:
			for ii, v := range data {
				values[ii] = float64(v)
			}
		}
	})
	return values
}

// InDelta returns whether both tensors have the same shape and all values are within delta of each other.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	values0, values1 := t.Float64s(), other.Float64s()
	for ii, v0 := range values0 {
		if math.Abs(v0-values1[ii]) > delta {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Large tensors only print their shape.
func (t *Tensor) String() string {
	if t.Size() > 32 {
		return fmt.Sprintf("Tensor%s", t.shape)
	}
	var s string
	t.ConstFlatDataAny(func(flat any) {
		s = fmt.Sprintf("Tensor%s: %v", t.shape, flat)
	})
	return s
}
