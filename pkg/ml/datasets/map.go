// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"

	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/augment/pkg/ml/layers/preprocessing"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MapImageFn is a Go function that transforms an Example.
type MapImageFn func(example Example) (Example, error)

// mapImagesDataset implements an ImageDataset that maps a function to the examples of a wrapped dataset.
type mapImagesDataset struct {
	name  string
	ds    ImageDataset
	mapFn MapImageFn
}

var _ ImageDataset = (*mapImagesDataset)(nil)

// MapImages maps the examples of ds through mapFn.
//
// mapFn is called in the goroutine calling Yield, so when wrapped with ParallelImages it runs in parallel,
// and it must be safe for concurrent use.
func MapImages(ds ImageDataset, mapFn MapImageFn) ImageDataset {
	return &mapImagesDataset{name: ds.Name(), ds: ds, mapFn: mapFn}
}

// Augment maps each image of ds through the layer, with the given training mode.
// The random preprocessing layers only transform the images if training is true.
func Augment(ds ImageDataset, layer preprocessing.Layer, training bool) ImageDataset {
	mapDS := &mapImagesDataset{
		name: fmt.Sprintf("%s [%s]", ds.Name(), layer.Name()),
		ds:   ds,
	}
	mapDS.mapFn = func(example Example) (Example, error) {
		img, err := layer.Call(example.Image, training)
		if err != nil {
			return example, errors.WithMessagef(err, "while transforming example #%d", example.Index)
		}
		example.Image = img
		return example, nil
	}
	return mapDS
}

// Name implements ImageDataset.
func (ds *mapImagesDataset) Name() string { return ds.name }

// Reset implements ImageDataset.
func (ds *mapImagesDataset) Reset() { ds.ds.Reset() }

// NumExamples implements HasNumExamples, if the wrapped dataset does.
func (ds *mapImagesDataset) NumExamples() int {
	if hasNum, ok := ds.ds.(HasNumExamples); ok {
		return hasNum.NumExamples()
	}
	return -1
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (ds *mapImagesDataset) IsInfinite() bool { return isInfinite(ds.ds) }

// Yield implements ImageDataset.
func (ds *mapImagesDataset) Yield() (Example, error) {
	example, err := ds.ds.Yield()
	if err != nil {
		return example, err
	}
	var mapErr error
	err = exceptions.TryCatch[error](func() {
		example, mapErr = ds.mapFn(example)
	})
	if err == nil {
		err = mapErr
	}
	if err != nil {
		return Example{}, errors.WithMessagef(err, "dataset %q", ds.name)
	}
	return example, nil
}

// MapExampleFn is a Go function that applies a transformation to the inputs/labels of a dataset.
type MapExampleFn func(inputs, labels []*tensors.Tensor) (mappedInputs, mappedLabels []*tensors.Tensor, err error)

// mapDataset implements a Dataset that maps a function executed on the host to a wrapped dataset.
type mapDataset struct {
	ds    Dataset
	mapFn MapExampleFn
}

var _ Dataset = (*mapDataset)(nil)

// Map maps a dataset through a transformation with a (normal Go) function.
func Map(ds Dataset, mapFn MapExampleFn) Dataset {
	return &mapDataset{ds: ds, mapFn: mapFn}
}

// Name implements Dataset.
func (ds *mapDataset) Name() string { return ds.ds.Name() }

// Yield implements Dataset.
func (ds *mapDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	spec, inputs, labels, err = ds.ds.Yield()
	if err != nil {
		return
	}
	var mapErr error
	err = exceptions.TryCatch[error](func() {
		inputs, labels, mapErr = ds.mapFn(inputs, labels)
	})
	if err == nil {
		err = mapErr
	}
	if err != nil {
		err = errors.WithMessagef(err, "while executing MapExampleFn provided for datasets.Map()")
	}
	return
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (ds *mapDataset) IsInfinite() bool { return isInfinite(ds.ds) }

// Reset implements Dataset.
func (ds *mapDataset) Reset() {
	ds.ds.Reset()
}
