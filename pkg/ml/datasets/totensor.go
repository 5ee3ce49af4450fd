// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/augment/pkg/core/tensors/images"
	"github.com/gomlx/augment/pkg/ml/layers/preprocessing"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ToTensorsDataset converts the examples of an ImageDataset to tensors. Create it with ToTensors.
type ToTensorsDataset struct {
	ds       ImageDataset
	toTensor *images.ToTensorConfig
	layers   []preprocessing.TensorLayer
	training bool
}

var _ Dataset = (*ToTensorsDataset)(nil)

// ToTensors converts each Example of ds to one input, the image tensor shaped `[height, width, channels]`,
// and one label, the int32 scalar label. The tensor layers (e.g. preprocessing.Rescaling) are applied
// in order to the image tensor.
//
// It is safe for concurrent use if ds is.
func ToTensors(ds ImageDataset, toTensor *images.ToTensorConfig, tensorLayers ...preprocessing.TensorLayer) *ToTensorsDataset {
	return &ToTensorsDataset{ds: ds, toTensor: toTensor, layers: tensorLayers}
}

// Training sets the training mode passed to the tensor layers. Default is false.
// It returns the updated dataset, so calls can be cascaded.
func (ds *ToTensorsDataset) Training(training bool) *ToTensorsDataset {
	ds.training = training
	return ds
}

// Name implements Dataset.
func (ds *ToTensorsDataset) Name() string { return ds.ds.Name() }

// Reset implements Dataset.
func (ds *ToTensorsDataset) Reset() { ds.ds.Reset() }

// NumExamples implements HasNumExamples, if the wrapped dataset does.
func (ds *ToTensorsDataset) NumExamples() int {
	if hasNum, ok := ds.ds.(HasNumExamples); ok {
		return hasNum.NumExamples()
	}
	return -1
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (ds *ToTensorsDataset) IsInfinite() bool { return isInfinite(ds.ds) }

// Yield implements Dataset.
func (ds *ToTensorsDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	example, err := ds.ds.Yield()
	if err != nil {
		return
	}
	var input *tensors.Tensor
	err = exceptions.TryCatch[error](func() { input = ds.toTensor.Single(example.Image) })
	if err != nil {
		err = errors.WithMessagef(err, "while converting example #%d of %q to a tensor", example.Index, ds.Name())
		return
	}
	for _, layer := range ds.layers {
		input, err = layer.CallTensor(input, ds.training)
		if err != nil {
			err = errors.WithMessagef(err, "while converting example #%d of %q to a tensor", example.Index, ds.Name())
			return
		}
	}
	inputs = []*tensors.Tensor{input}
	labels = []*tensors.Tensor{tensors.FromScalar(int32(example.Label))}
	return
}
