// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package preprocessing implements reusable image preprocessing and data augmentation layers, that can
// be composed with Sequential and applied to the examples of a dataset.
//
// There are two kinds of layers:
//
//   - Layer transforms an image.Image: resizing, cropping and all the random augmentations.
//   - TensorLayer transforms a tensor, after the image has been converted: Rescaling and Normalization.
//
// The random layers only transform the image when called with training=true, otherwise they return the
// image unchanged. They are safe for concurrent use, and by default are seeded from the clock. Use
// WithSeed for reproducible results.
//
// Example:
//
//	augment := preprocessing.Sequential("data_augmentation",
//		preprocessing.RandomFlip(preprocessing.HorizontalAndVertical),
//		preprocessing.RandomRotation(0.2),
//	)
//	img, err := augment.Call(img, true)
package preprocessing

import (
	"image"

	"github.com/gomlx/augment/internal/workerspool"
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Layer is a transformation of an image.
type Layer interface {
	// Name of the layer, used in error messages.
	Name() string

	// Call applies the layer to the image. The input image is not modified.
	// training indicates whether random augmentations should be applied.
	Call(img image.Image, training bool) (image.Image, error)
}

// TensorLayer is a transformation of a tensor holding an image (or a batch of images), with the
// channels as the last axis.
type TensorLayer interface {
	// Name of the layer, used in error messages.
	Name() string

	// CallTensor applies the layer to the tensor and returns a new tensor. The input is not modified.
	CallTensor(t *tensors.Tensor, training bool) (*tensors.Tensor, error)
}

// SequentialLayer applies a list of layers in order. Create it with Sequential.
type SequentialLayer struct {
	name   string
	layers []Layer
}

var _ Layer = &SequentialLayer{}

// Sequential creates a layer that applies the given layers in order.
func Sequential(name string, layers ...Layer) *SequentialLayer {
	return &SequentialLayer{name: name, layers: layers}
}

// Add layers to the end of the sequence. It returns the SequentialLayer, so calls can be cascaded.
func (s *SequentialLayer) Add(layers ...Layer) *SequentialLayer {
	s.layers = append(s.layers, layers...)
	return s
}

// Layers returns the layers in the sequence.
func (s *SequentialLayer) Layers() []Layer { return s.layers }

// Name implements Layer.
func (s *SequentialLayer) Name() string { return s.name }

// Call implements Layer.
func (s *SequentialLayer) Call(img image.Image, training bool) (image.Image, error) {
	var err error
	for _, layer := range s.layers {
		img, err = layer.Call(img, training)
		if err != nil {
			return nil, errors.WithMessagef(err, "in %s", s.name)
		}
	}
	return img, nil
}

// LambdaLayer wraps an arbitrary function as a Layer. Create it with Lambda.
type LambdaLayer struct {
	name string
	fn   func(img image.Image, training bool) (image.Image, error)
}

var _ Layer = &LambdaLayer{}

// Lambda creates a Layer from a custom function.
func Lambda(name string, fn func(img image.Image, training bool) (image.Image, error)) *LambdaLayer {
	return &LambdaLayer{name: name, fn: fn}
}

// Name implements Layer.
func (l *LambdaLayer) Name() string { return l.name }

// Call implements Layer.
func (l *LambdaLayer) Call(img image.Image, training bool) (image.Image, error) {
	img, err := l.fn(img, training)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.name)
	}
	return img, nil
}

var batchWorkers = workerspool.New()

// SetBatchParallelism sets the number of images transformed in parallel by ApplyBatch.
// If 0 the images are transformed sequentially, if -1 parallelism is unlimited.
// The default is the number of cores.
func SetBatchParallelism(n int) {
	batchWorkers.SetMaxParallelism(n)
}

// ApplyBatch applies the layer to each of the images, in parallel. The order of the images is preserved.
func ApplyBatch(layer Layer, imgs []image.Image, training bool) ([]image.Image, error) {
	results := make([]image.Image, len(imgs))
	err := batchWorkers.Map(len(imgs), func(ii int) error {
		var err error
		results[ii], err = layer.Call(imgs[ii], training)
		if err != nil {
			return errors.WithMessagef(err, "while transforming image #%d of the batch", ii)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
