// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Shape{}
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 24, shape1.Size())
	require.Equal(t, 4*24, int(shape1.Memory()))
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, 4, shape1.Dim(0))
	require.Panics(t, func() { _ = shape1.Dim(3) })
	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	require.True(t, shape1.Equal(Make(dtypes.Float32, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(dtypes.Float64, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(dtypes.Float32, 4, 3)))

	batched := shape1.AddLeadingAxis(5)
	require.Equal(t, []int{5, 4, 3, 2}, batched.Dimensions)
	require.Equal(t, []int{4, 3, 2}, shape1.Dimensions, "original shape must not change")
}

func TestMakeInvalid(t *testing.T) {
	require.Panics(t, func() { _ = Make(dtypes.Float32, 3, 0) })
}

func TestCheck(t *testing.T) {
	s := Make(dtypes.Uint8, 2, 3, 4)
	require.NoError(t, s.Check(dtypes.Uint8, 2, 3, 4))
	require.NoError(t, s.Check(dtypes.Uint8, -1, 3, -1))
	require.Error(t, s.Check(dtypes.Float32, 2, 3, 4))
	require.Error(t, s.Check(dtypes.Uint8, 2, 3))
	require.Error(t, s.Check(dtypes.Uint8, 2, 5, 4))
}
