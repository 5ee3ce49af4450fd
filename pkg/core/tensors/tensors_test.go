// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/augment/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, dtypes.Float32, tensor.DType())
	require.Equal(t, 2, tensor.Rank())
	require.Equal(t, 6, tensor.Size())
	require.Equal(t, make([]float32, 6), CopyFlatData[float32](tensor))
	require.Panics(t, func() { CopyFlatData[float64](tensor) })
}

func TestFlatData(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]int32{1, 2, 3, 4}, 2, 2)
	MutableFlatData(tensor, func(flat []int32) {
		for ii := range flat {
			flat[ii] *= 10
		}
	})
	assert.Equal(t, []int32{10, 20, 30, 40}, CopyFlatData[int32](tensor))
	require.Panics(t, func() { FromFlatDataAndDimensions([]int32{1, 2, 3}, 2, 2) })

	scalar := FromScalar(uint8(7))
	assert.Equal(t, 0, scalar.Rank())
	assert.Equal(t, uint8(7), ToScalar[uint8](scalar))
}

func TestClone(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float64{1, 2}, 2)
	cloned := tensor.Clone()
	MutableFlatData(cloned, func(flat []float64) { flat[0] = 100 })
	assert.Equal(t, []float64{1, 2}, CopyFlatData[float64](tensor))
	assert.Equal(t, []float64{100, 2}, CopyFlatData[float64](cloned))
}

func TestStackAndConcatenate(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	b := FromFlatDataAndDimensions([]float32{4, 5, 6}, 3)
	stacked := Stack([]*Tensor{a, b})
	require.NoError(t, stacked.Shape().Check(dtypes.Float32, 2, 3))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, CopyFlatData[float32](stacked))

	scalars := Stack([]*Tensor{FromScalar(int32(3)), FromScalar(int32(5))})
	require.NoError(t, scalars.Shape().Check(dtypes.Int32, 2))
	assert.Equal(t, []int32{3, 5}, CopyFlatData[int32](scalars))

	concatenated := Concatenate([]*Tensor{stacked, FromFlatDataAndDimensions([]float32{7, 8, 9}, 1, 3)})
	require.NoError(t, concatenated.Shape().Check(dtypes.Float32, 3, 3))
	assert.Equal(t, float32(9), CopyFlatData[float32](concatenated)[8])

	require.Panics(t, func() { Stack([]*Tensor{a, FromFlatDataAndDimensions([]float32{1}, 1)}) })
	require.Panics(t, func() { Stack(nil) })
}

func TestInDelta(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	b := FromFlatDataAndDimensions([]float32{1.001, 2, 2.999}, 3)
	assert.True(t, a.InDelta(b, 0.01))
	assert.False(t, a.InDelta(b, 0.0001))
	assert.False(t, a.InDelta(FromFlatDataAndDimensions([]float32{1, 2, 3}, 1, 3), 0.01))
}
