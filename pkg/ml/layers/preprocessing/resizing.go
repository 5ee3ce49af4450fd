// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package preprocessing

import (
	"image"
	"math"

	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ResizingLayer resizes images to a fixed size. Create it with Resizing.
type ResizingLayer struct {
	height, width     int
	method            imageops.ResizeMethod
	cropToAspectRatio bool
}

var _ Layer = &ResizingLayer{}

// Resizing creates a layer that resizes the images to height x width, using bilinear interpolation by default.
func Resizing(height, width int) *ResizingLayer {
	if height <= 0 || width <= 0 {
		exceptions.Panicf("preprocessing.Resizing(height=%d, width=%d): size must be > 0", height, width)
	}
	return &ResizingLayer{height: height, width: width, method: imageops.Bilinear}
}

// Method sets the interpolation method. It returns the layer, so calls can be cascaded.
func (l *ResizingLayer) Method(method imageops.ResizeMethod) *ResizingLayer {
	l.method = method
	return l
}

// CropToAspectRatio configures the layer to first crop the largest centered region of the image with the
// target aspect ratio, so the image is not distorted by the resize.
// It returns the layer, so calls can be cascaded.
func (l *ResizingLayer) CropToAspectRatio(crop bool) *ResizingLayer {
	l.cropToAspectRatio = crop
	return l
}

// Name implements Layer.
func (l *ResizingLayer) Name() string { return "resizing" }

// Call implements Layer.
func (l *ResizingLayer) Call(img image.Image, _ bool) (image.Image, error) {
	if l.cropToAspectRatio {
		size := img.Bounds().Size()
		ratio := float64(l.width) / float64(l.height)
		cropH, cropW := size.Y, size.X
		if float64(size.X)/float64(size.Y) > ratio {
			cropW = max(1, int(math.Round(float64(size.Y)*ratio)))
		} else {
			cropH = max(1, int(math.Round(float64(size.X)/ratio)))
		}
		var err error
		img, err = imageops.CropToBoundingBox(img, (size.Y-cropH)/2, (size.X-cropW)/2, cropH, cropW)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %q", l.Name())
		}
	}
	resized, err := imageops.Resize(img, l.height, l.width, l.method)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	return resized, nil
}

// coverSize upscales the image, preserving the aspect ratio, if it is smaller than height x width on any axis.
func coverSize(img image.Image, height, width int) (image.Image, error) {
	size := img.Bounds().Size()
	if size.Y >= height && size.X >= width {
		return img, nil
	}
	scale := max(float64(height)/float64(size.Y), float64(width)/float64(size.X))
	return imageops.Resize(img,
		max(height, int(math.Ceil(float64(size.Y)*scale))),
		max(width, int(math.Ceil(float64(size.X)*scale))),
		imageops.Bilinear)
}

// CenterCropLayer crops the center of images. Create it with CenterCrop.
type CenterCropLayer struct {
	height, width int
}

var _ Layer = &CenterCropLayer{}

// CenterCrop creates a layer that crops the central height x width region of the images.
// Images smaller than the target are first upscaled, preserving the aspect ratio.
func CenterCrop(height, width int) *CenterCropLayer {
	if height <= 0 || width <= 0 {
		exceptions.Panicf("preprocessing.CenterCrop(height=%d, width=%d): size must be > 0", height, width)
	}
	return &CenterCropLayer{height: height, width: width}
}

// Name implements Layer.
func (l *CenterCropLayer) Name() string { return "center_crop" }

// Call implements Layer.
func (l *CenterCropLayer) Call(img image.Image, _ bool) (image.Image, error) {
	return centerCrop(l.Name(), img, l.height, l.width)
}

func centerCrop(name string, img image.Image, height, width int) (image.Image, error) {
	img, err := coverSize(img, height, width)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", name)
	}
	cropped, err := imageops.ResizeWithCropOrPad(img, height, width)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", name)
	}
	return cropped, nil
}

// mapFloat returns a copy of t with fn applied to each element. fn takes the flat index and the value.
// Only float dtypes are supported.
func mapFloat(t *tensors.Tensor, fn func(ii int, v float64) float64) (*tensors.Tensor, error) {
	result := t.Clone()
	switch result.DType() {
	case dtypes.Float32:
		mapFlat[float32](result, fn)
	case dtypes.Float64:
		mapFlat[float64](result, fn)
	case dtypes.Float16:
		tensors.MutableFlatData(result, func(flat []float16.Float16) {
			for ii, v := range flat {
				flat[ii] = float16.Fromfloat32(float32(fn(ii, float64(v.Float32()))))
			}
		})
	default:
		return nil, errors.Errorf("only float tensors are supported, got dtype %s", t.DType())
	}
	return result, nil
}

func mapFlat[T float32 | float64](t *tensors.Tensor, fn func(ii int, v float64) float64) {
	tensors.MutableFlatData(t, func(flat []T) {
		for ii, v := range flat {
			flat[ii] = T(fn(ii, float64(v)))
		}
	})
}

// RescalingLayer transforms values x to x*scale + offset. Create it with Rescaling.
type RescalingLayer struct {
	scale, offset float64
}

var _ TensorLayer = &RescalingLayer{}

// Rescaling creates a TensorLayer that transforms values x to x*scale + offset.
//
// E.g.: Rescaling(1.0/255, 0) maps [0, 255] to [0, 1]; Rescaling(1.0/127.5, -1) maps it to [-1, 1].
// It only works on float tensors.
func Rescaling(scale, offset float64) *RescalingLayer {
	return &RescalingLayer{scale: scale, offset: offset}
}

// Name implements TensorLayer.
func (l *RescalingLayer) Name() string { return "rescaling" }

// CallTensor implements TensorLayer.
func (l *RescalingLayer) CallTensor(t *tensors.Tensor, _ bool) (*tensors.Tensor, error) {
	result, err := mapFloat(t, func(_ int, v float64) float64 { return v*l.scale + l.offset })
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	return result, nil
}

// NormalizationLayer normalizes each channel to zero mean and unit variance. Create it with Normalization.
type NormalizationLayer struct {
	mean, stddev []float64
}

var _ TensorLayer = &NormalizationLayer{}

// Normalization creates a TensorLayer that transforms values x of channel c to (x-mean[c])/stddev[c].
// The channels are the last axis of the tensor. mean and stddev must have the same length, which can
// be 1, in which case the same values are used for all channels.
//
// See datasets.Normalization to calculate the mean and stddev of a dataset.
func Normalization(mean, stddev []float64) *NormalizationLayer {
	if len(mean) == 0 || len(mean) != len(stddev) {
		exceptions.Panicf("preprocessing.Normalization: mean (len=%d) and stddev (len=%d) must have the same length > 0",
			len(mean), len(stddev))
	}
	for c, s := range stddev {
		if s <= 0 {
			exceptions.Panicf("preprocessing.Normalization: stddev[%d]=%g must be > 0", c, s)
		}
	}
	return &NormalizationLayer{mean: mean, stddev: stddev}
}

// Name implements TensorLayer.
func (l *NormalizationLayer) Name() string { return "normalization" }

// CallTensor implements TensorLayer.
func (l *NormalizationLayer) CallTensor(t *tensors.Tensor, _ bool) (*tensors.Tensor, error) {
	numChannels := len(l.mean)
	if numChannels > 1 && (t.Rank() == 0 || t.Shape().Dim(-1) != numChannels) {
		return nil, errors.Errorf("layer %q configured for %d channels, got tensor shaped %s", l.Name(), numChannels, t.Shape())
	}
	result, err := mapFloat(t, func(ii int, v float64) float64 {
		c := ii % numChannels
		return (v - l.mean[c]) / l.stddev[c]
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	return result, nil
}
