// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imageops

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ResizeMethod selects the interpolation used when resizing.
type ResizeMethod int

const (
	Bilinear ResizeMethod = iota
	NearestNeighbor
	Bicubic
	Lanczos
	Area
)

var resizeMethodNames = map[ResizeMethod]string{
	Bilinear:        "bilinear",
	NearestNeighbor: "nearest",
	Bicubic:         "bicubic",
	Lanczos:         "lanczos",
	Area:            "area",
}

// String implements fmt.Stringer.
func (m ResizeMethod) String() string {
	if name, found := resizeMethodNames[m]; found {
		return name
	}
	return "invalid"
}

// ParseResizeMethod converts a method name ("bilinear", "nearest", "bicubic", "lanczos" or "area") to a ResizeMethod.
func ParseResizeMethod(s string) (ResizeMethod, error) {
	for m, name := range resizeMethodNames {
		if name == s {
			return m, nil
		}
	}
	return Bilinear, errors.Errorf("unknown resize method %q", s)
}

// Filter returns the imaging.ResampleFilter that implements the method.
func (m ResizeMethod) Filter() imaging.ResampleFilter {
	switch m {
	case NearestNeighbor:
		return imaging.NearestNeighbor
	case Bicubic:
		return imaging.CatmullRom
	case Lanczos:
		return imaging.Lanczos
	case Area:
		return imaging.Box
	default:
		return imaging.Linear
	}
}

// Resize the image to the given height and width, not preserving the aspect ratio.
func Resize(img image.Image, height, width int, method ResizeMethod) (*image.NRGBA, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("Resize(height=%d, width=%d): target size must be > 0", height, width)
	}
	return imaging.Resize(img, width, height, method.Filter()), nil
}

// ResizeWithPad resizes the image to fit the target size preserving the aspect ratio, and pads the
// extra space (centered) with transparent black.
func ResizeWithPad(img image.Image, height, width int, method ResizeMethod) (*image.NRGBA, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("ResizeWithPad(height=%d, width=%d): target size must be > 0", height, width)
	}
	imgSize := img.Bounds().Size()
	wRatio := float64(width) / float64(imgSize.X)
	hRatio := float64(height) / float64(imgSize.Y)

	adjustedWidth, adjustedHeight := width, height
	if wRatio < hRatio {
		adjustedHeight = max(1, int(wRatio*float64(imgSize.Y)))
	} else if hRatio < wRatio {
		adjustedWidth = max(1, int(hRatio*float64(imgSize.X)))
	}
	resized := imaging.Resize(img, adjustedWidth, adjustedHeight, method.Filter())
	if adjustedWidth != width || adjustedHeight != height {
		background := imaging.New(width, height, color.NRGBA{})
		resized = imaging.PasteCenter(background, resized)
	}
	return resized, nil
}

// ResizeShortestSideAndCrop resizes the smallest dimension of the image to size, preserving the ratio,
// and then crops the center of the largest dimension, yielding a size x size image.
func ResizeShortestSideAndCrop(img image.Image, size int, method ResizeMethod) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, errors.Errorf("ResizeShortestSideAndCrop(size=%d): size must be > 0", size)
	}
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width < height {
		ratio := float64(width) / float64(size)
		width = size
		height = int(math.Round(float64(height) / ratio))
	} else if height < width {
		ratio := float64(height) / float64(size)
		height = size
		width = int(math.Round(float64(width) / ratio))
	} else {
		width = size
		height = size
	}
	resized := imaging.Resize(img, width, height, method.Filter())
	return imaging.CropCenter(resized, size, size), nil
}

// CentralCrop crops the central region of the image, keeping the given fraction of each dimension.
// fraction must be in the range (0, 1].
func CentralCrop(img image.Image, fraction float64) (*image.NRGBA, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Errorf("CentralCrop(fraction=%g): fraction must be in the range (0, 1]", fraction)
	}
	if fraction == 1 {
		return imaging.Clone(img), nil
	}
	size := img.Bounds().Size()
	startY := int((float64(size.Y) - float64(size.Y)*fraction) / 2)
	startX := int((float64(size.X) - float64(size.X)*fraction) / 2)
	return CropToBoundingBox(img, startY, startX, size.Y-2*startY, size.X-2*startX)
}

// CropToBoundingBox crops the image to the box with the top-left corner at (offsetY, offsetX) and the
// given height and width. The box must be fully contained in the image.
func CropToBoundingBox(img image.Image, offsetY, offsetX, height, width int) (*image.NRGBA, error) {
	size := img.Bounds().Size()
	if offsetY < 0 || offsetX < 0 || height <= 0 || width <= 0 ||
		offsetY+height > size.Y || offsetX+width > size.X {
		return nil, errors.Errorf("CropToBoundingBox(offset=(%d, %d), size=(%d, %d)) out of the image bounds (height=%d, width=%d)",
			offsetY, offsetX, height, width, size.Y, size.X)
	}
	origin := img.Bounds().Min.Add(image.Pt(offsetX, offsetY))
	return imaging.Crop(img, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width, height))}), nil
}

// PadToBoundingBox pads the image with transparent black to the target height and width, placing the
// original image with its top-left corner at (offsetY, offsetX).
func PadToBoundingBox(img image.Image, offsetY, offsetX, targetHeight, targetWidth int) (*image.NRGBA, error) {
	size := img.Bounds().Size()
	if offsetY < 0 || offsetX < 0 || offsetY+size.Y > targetHeight || offsetX+size.X > targetWidth {
		return nil, errors.Errorf("PadToBoundingBox(offset=(%d, %d), target=(%d, %d)): image of height=%d, width=%d doesn't fit",
			offsetY, offsetX, targetHeight, targetWidth, size.Y, size.X)
	}
	background := imaging.New(targetWidth, targetHeight, color.NRGBA{})
	return imaging.Paste(background, img, image.Pt(offsetX, offsetY)), nil
}

// ResizeWithCropOrPad crops and/or pads the image to the target height and width. On each axis, if the
// image is larger it's cropped evenly around the center, if it's smaller it's padded evenly with
// transparent black.
func ResizeWithCropOrPad(img image.Image, targetHeight, targetWidth int) (*image.NRGBA, error) {
	if targetHeight <= 0 || targetWidth <= 0 {
		return nil, errors.Errorf("ResizeWithCropOrPad(height=%d, width=%d): target size must be > 0", targetHeight, targetWidth)
	}
	size := img.Bounds().Size()
	cropH, cropW := min(size.Y, targetHeight), min(size.X, targetWidth)
	cropped, err := CropToBoundingBox(img, (size.Y-cropH)/2, (size.X-cropW)/2, cropH, cropW)
	if err != nil {
		return nil, err
	}
	if cropH == targetHeight && cropW == targetWidth {
		return cropped, nil
	}
	return PadToBoundingBox(cropped, (targetHeight-cropH)/2, (targetWidth-cropW)/2, targetHeight, targetWidth)
}
