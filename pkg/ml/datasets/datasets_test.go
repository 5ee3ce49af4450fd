/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package datasets

import (
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDS struct {
	count    atomic.Int64
	maxValue int64
	failAt   int64
}

var (
	testDSMaxValue = int64(10000)
)

func (ds *testDS) Name() string { return "testDS" }
func (ds *testDS) Reset()       { ds.count.Store(0) }
func (ds *testDS) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	value := ds.count.Add(1)
	maxValue := ds.maxValue
	if maxValue == 0 {
		maxValue = testDSMaxValue
	}
	if value > maxValue {
		err = io.EOF
		return
	}
	if ds.failAt > 0 && value == ds.failAt {
		err = errors.Errorf("testDS failed at %d", value)
		return
	}
	inputs = []*tensors.Tensor{tensors.FromScalar(int32(value))}
	labels = []*tensors.Tensor{tensors.FromScalar(int32(value % 2))}
	return
}

// readAll reads ds until io.EOF and returns the first input of each yield.
func readAll(t *testing.T, ds Dataset) []int32 {
	var values []int32
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		values = append(values, tensors.CopyFlatData[int32](inputs[0])...)
	}
	return values
}

// TestParallelDataset with and without buffer.
func TestParallelDataset(t *testing.T) {
	for _, cacheSize := range []int{0, 10} {
		ds := &testDS{}
		pDS := CustomParallel(ds).Parallelism(0).Buffer(cacheSize).Start()
		count := int64(0)
		for {
			_, inputs, _, err := pDS.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, "Test failed with unexpected error")
			require.Len(t, inputs, 1, "Expected Dataset to yield 1 input tensor")
			count++
		}
		require.Equalf(t, testDSMaxValue, count, "Number of yielded batches first loop, cacheSize=%d.", cacheSize)

		// Reset and loop again.
		count = 0
		pDS.Reset()
		for {
			_, _, _, err := pDS.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			count++
		}
		require.Equalf(t, testDSMaxValue, count, "Number of yielded batches second loop, cacheSize=%d.", cacheSize)
		pDS.Done()
	}
}

func TestParallelDatasetError(t *testing.T) {
	ds := &testDS{maxValue: 100, failAt: 50}
	pDS := Parallel(ds)
	defer pDS.Done()
	var err error
	for err == nil {
		_, _, _, err = pDS.Yield()
	}
	require.NotErrorIs(t, err, io.EOF)
	assert.ErrorContains(t, err, "testDS failed at 50")
}

func TestReadAhead(t *testing.T) {
	ds := ReadAhead(&testDS{maxValue: 100}, 10)
	values := readAll(t, ds)
	require.Len(t, values, 100)
	for ii, v := range values {
		require.Equal(t, int32(ii+1), v, "ReadAhead must preserve the order")
	}

	// A non-positive buffer returns the dataset itself.
	plain := &testDS{}
	assert.Same(t, plain, ReadAhead(plain, 0))
}

func TestBatch(t *testing.T) {
	t.Run("PartialBatch", func(t *testing.T) {
		ds := Batch(&testDS{maxValue: 10}, 3, true, false)
		var sizes []int
		for {
			_, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			require.Len(t, inputs, 1)
			require.Len(t, labels, 1)
			assert.Equal(t, dtypes.Int32, inputs[0].DType())
			assert.Equal(t, 1, inputs[0].Rank())
			sizes = append(sizes, inputs[0].Shape().Dim(0))
		}
		assert.Equal(t, []int{3, 3, 3, 1}, sizes)
	})

	t.Run("DropIncompleteBatch", func(t *testing.T) {
		ds := Batch(&testDS{maxValue: 10}, 3, true, true)
		values := readAll(t, ds)
		assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9}, values)
		ds.Reset()
		values = readAll(t, ds)
		assert.Len(t, values, 9)
	})

	t.Run("Concatenate", func(t *testing.T) {
		ds := Batch(Batch(&testDS{maxValue: 8}, 2, true, false), 2, false, false)
		_, inputs, _, err := ds.Yield()
		require.NoError(t, err)
		assert.Equal(t, []int{4}, inputs[0].Shape().Dimensions)
		assert.Equal(t, []int32{1, 2, 3, 4}, tensors.CopyFlatData[int32](inputs[0]))
	})

	t.Run("VaryingShapes", func(t *testing.T) {
		varying := Map(&testDS{maxValue: 4}, func(inputs, labels []*tensors.Tensor) ([]*tensors.Tensor, []*tensors.Tensor, error) {
			v := tensors.ToScalar[int32](inputs[0])
			return []*tensors.Tensor{tensors.FromFlatDataAndDimensions(make([]float32, v), int(v))}, labels, nil
		})
		_, _, _, err := Batch(varying, 2, true, false).Yield()
		require.Error(t, err)
		assert.ErrorContains(t, err, "varying shapes")
	})

	t.Run("ErrorDropsPartialBatch", func(t *testing.T) {
		ds := Batch(&testDS{maxValue: 10, failAt: 5}, 3, true, false)
		_, inputs, _, err := ds.Yield()
		require.NoError(t, err)
		assert.Equal(t, []int32{1, 2, 3}, tensors.CopyFlatData[int32](inputs[0]))
		_, _, _, err = ds.Yield()
		require.Error(t, err)
		assert.ErrorContains(t, err, "failed at 5")
		assert.Equal(t, []int32{6, 7, 8, 9, 10}, readAll(t, ds))
	})

	require.Panics(t, func() { Batch(&testDS{}, 0, true, false) })
}

func TestTake(t *testing.T) {
	ds := Take(&testDS{}, 7)
	assert.Len(t, readAll(t, ds), 7)
	ds.Reset()
	assert.Len(t, readAll(t, ds), 7)
	assert.Equal(t, "testDS [Take 7]", ds.Name())
}

func TestMap(t *testing.T) {
	ds := Map(&testDS{maxValue: 5}, func(inputs, labels []*tensors.Tensor) ([]*tensors.Tensor, []*tensors.Tensor, error) {
		v := tensors.ToScalar[int32](inputs[0])
		if v == 4 {
			return nil, nil, errors.New("four is not welcome")
		}
		return []*tensors.Tensor{tensors.FromScalar(v * 10)}, labels, nil
	})
	for _, want := range []int32{10, 20, 30} {
		_, inputs, _, err := ds.Yield()
		require.NoError(t, err)
		assert.Equal(t, want, tensors.ToScalar[int32](inputs[0]))
	}
	_, _, _, err := ds.Yield()
	require.Error(t, err)
	assert.ErrorContains(t, err, "four is not welcome")
	assert.ErrorContains(t, err, "datasets.Map()")
}

func ExampleBatch() {
	ds := Batch(&testDS{maxValue: 5}, 2, true, false)
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		fmt.Println(inputs[0].Shape().Dimensions)
	}
	// Output:
	// [2]
	// [2]
	// [1]
}
