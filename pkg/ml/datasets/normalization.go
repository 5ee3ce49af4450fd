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
	"io"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Normalization calculates the normalization parameters `mean` and `stddev` for the `inputsIndex`-th input
// from the given dataset, for each channel (the last axis of the input).
//
// It reads the dataset until io.EOF, so it must not be infinite. It doesn't Reset the dataset.
//
// These values can later be used for normalization with preprocessing.Normalization.
//
// Notice for any channel that happens to be constant, the `stddev` will be 0. Use ReplaceZerosByOnes
// to avoid the numeric issues.
func Normalization(ds Dataset, inputsIndex int) (mean, stddev []float64, err error) {
	// Per channel running mean and sum of squared differences from the mean, merged batch by batch.
	var sumSquaredDiffs, channel []float64
	var count float64
	batchNum := 0
	for {
		_, inputs, _, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			err = errors.WithMessagef(yieldErr, "while reading batch #%d of the dataset", batchNum)
			return
		}
		if inputsIndex >= len(inputs) {
			err = errors.Errorf("asked for inputsIndex=%d, but inputs has only %d elements",
				inputsIndex, len(inputs))
			return
		}
		batch := inputs[inputsIndex]
		if !batch.DType().IsFloat() {
			err = errors.Errorf("dataset input %d has invalid dtype (shape=%s): Normalization() only accepts float values.",
				inputsIndex, batch.Shape())
			return
		}
		numChannels := 1
		if batch.Rank() > 0 {
			numChannels = batch.Shape().Dim(-1)
		}
		if mean == nil {
			mean = make([]float64, numChannels)
			sumSquaredDiffs = make([]float64, numChannels)
		} else if len(mean) != numChannels {
			err = errors.Errorf("batch #%d has %d channels (shape=%s), but previous batches had %d channels",
				batchNum, numChannels, batch.Shape(), len(mean))
			return
		}
		values := batch.Float64s()
		batchCount := len(values) / numChannels
		if batchCount == 0 {
			batchNum++
			continue
		}
		channel = slices.Grow(channel[:0], batchCount)[:batchCount]
		newCount := count + float64(batchCount)
		for c := range numChannels {
			for ii := range batchCount {
				channel[ii] = values[ii*numChannels+c]
			}
			batchMean, batchVariance := stat.PopMeanVariance(channel, nil)
			delta := batchMean - mean[c]
			mean[c] += delta * float64(batchCount) / newCount
			sumSquaredDiffs[c] += batchVariance*float64(batchCount) + delta*delta*count*float64(batchCount)/newCount
		}
		count = newCount
		batchNum++
	}
	if count == 0 {
		err = errors.Errorf("dataset %q yielded no examples to calculate the normalization", ds.Name())
		mean = nil
		return
	}
	stddev = make([]float64, len(mean))
	for c := range mean {
		stddev[c] = math.Sqrt(max(0, sumSquaredDiffs[c]/count))
	}
	return
}

// ReplaceZerosByOnes replaces any zero values in x by one.
// This is useful if normalizing a value with a standard deviation
// (`stddev`) that has zeros.
func ReplaceZerosByOnes(x []float64) []float64 {
	result := make([]float64, len(x))
	for ii, v := range x {
		if v == 0 {
			v = 1
		}
		result[ii] = v
	}
	return result
}
