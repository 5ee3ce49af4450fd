// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package imageops implements direct pixel-level image transformations used for data augmentation:
// flips, rotations, crops, resizing and color adjustments.
//
// All functions take any image.Image and return a new *image.NRGBA, the input is never modified.
// Most of the work is delegated to github.com/disintegration/imaging.
//
// The "StatelessRandom*" variants take a Seed and are deterministic: the same image and seed always
// yield the same result. See package random for a Generator of seeds.
package imageops

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FlipLeftRight flips the image horizontally (the columns are reversed).
func FlipLeftRight(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// FlipUpDown flips the image vertically (the rows are reversed).
func FlipUpDown(img image.Image) *image.NRGBA {
	return imaging.FlipV(img)
}

// Transpose flips the image along its main diagonal (from the top-left corner).
func Transpose(img image.Image) *image.NRGBA {
	return imaging.Transpose(img)
}

// Rot90 rotates the image counter-clockwise by k times 90 degrees. k can be negative.
func Rot90(img image.Image, k int) *image.NRGBA {
	switch ((k % 4) + 4) % 4 {
	case 1:
		return imaging.Rotate90(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate270(img)
	}
	return imaging.Clone(img)
}

// Rotate the image counter-clockwise by the given angle in degrees.
//
// The output has the same size as the input, the corners that are rotated out of the image are
// lost, and the uncovered areas are filled with the fill color.
func Rotate(img image.Image, degrees float64, fill color.Color) *image.NRGBA {
	size := img.Bounds().Size()
	rotated := imaging.Rotate(img, degrees, fill)
	return cropOrPadCenter(rotated, size, fill)
}

// cropOrPadCenter returns an image of the given size, centered on img: it is cropped where img is
// larger and padded with fill where img is smaller.
//
// The bounding box of a rotated non-square image can be smaller than the original on one axis.
func cropOrPadCenter(img *image.NRGBA, size image.Point, fill color.Color) *image.NRGBA {
	if img.Bounds().Size().Eq(size) {
		return img
	}
	cropped := imaging.CropCenter(img, size.X, size.Y)
	if cropped.Bounds().Size().Eq(size) {
		return cropped
	}
	return imaging.PasteCenter(imaging.New(size.X, size.Y, fill), cropped)
}
