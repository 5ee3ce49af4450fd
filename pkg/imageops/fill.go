// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imageops

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// FillMode defines how the areas outside the original image are filled by geometric transformations
// (rotation, zoom, translation) and by Pad.
type FillMode int

const (
	// FillReflect mirrors the image about its edges: (d c b a | a b c d | d c b a).
	FillReflect FillMode = iota

	// FillWrap tiles the image: (a b c d | a b c d | a b c d).
	FillWrap

	// FillConstant fills with a constant color.
	FillConstant
)

// String implements fmt.Stringer.
func (m FillMode) String() string {
	switch m {
	case FillReflect:
		return "reflect"
	case FillWrap:
		return "wrap"
	case FillConstant:
		return "constant"
	}
	return "invalid"
}

// ParseFillMode converts "reflect", "wrap" or "constant" to a FillMode.
func ParseFillMode(s string) (FillMode, error) {
	for _, m := range []FillMode{FillReflect, FillWrap, FillConstant} {
		if m.String() == s {
			return m, nil
		}
	}
	return FillConstant, errors.Errorf("unknown fill mode %q, valid values are \"reflect\", \"wrap\" or \"constant\"", s)
}

// Pad the image with the given number of pixels on each side, using the fill mode.
// The fill color is only used for FillConstant, or if the image is empty.
func Pad(img image.Image, left, top, right, bottom int, mode FillMode, fill color.Color) *image.NRGBA {
	size := img.Bounds().Size()
	canvasSize := image.Pt(size.X+left+right, size.Y+top+bottom)
	if mode == FillConstant || size.X <= 0 || size.Y <= 0 {
		canvas := imaging.New(canvasSize.X, canvasSize.Y, fill)
		return imaging.Paste(canvas, img, image.Pt(left, top))
	}

	// Tile the canvas with copies of the image, flipped when reflecting.
	base := imaging.Clone(img)
	var flippedH, flippedV, flippedHV *image.NRGBA
	if mode == FillReflect {
		flippedH = imaging.FlipH(base)
		flippedV = imaging.FlipV(base)
		flippedHV = imaging.FlipV(flippedH)
	}
	canvas := imaging.New(canvasSize.X, canvasSize.Y, color.NRGBA{})
	tilesLeft := (left + size.X - 1) / size.X
	tilesTop := (top + size.Y - 1) / size.Y
	tilesRight := (right + size.X - 1) / size.X
	tilesBottom := (bottom + size.Y - 1) / size.Y
	for ty := -tilesTop; ty <= tilesBottom; ty++ {
		for tx := -tilesLeft; tx <= tilesRight; tx++ {
			tile := base
			if mode == FillReflect {
				oddX, oddY := tx%2 != 0, ty%2 != 0
				switch {
				case oddX && oddY:
					tile = flippedHV
				case oddX:
					tile = flippedH
				case oddY:
					tile = flippedV
				}
			}
			tileMin := image.Pt(left+tx*size.X, top+ty*size.Y)
			draw.Draw(canvas, image.Rectangle{Min: tileMin, Max: tileMin.Add(size)}, tile, image.Point{}, draw.Src)
		}
	}
	return canvas
}

// RotateWithFill rotates the image counter-clockwise by the given angle in degrees, keeping the
// original size. The areas uncovered by the rotation are filled according to the fill mode.
func RotateWithFill(img image.Image, degrees float64, mode FillMode, fill color.Color) *image.NRGBA {
	if mode == FillConstant {
		return Rotate(img, degrees, fill)
	}
	// The output window, rotated back, fits in a circle of radius half its diagonal: pad the image so
	// that the circle is always covered.
	size := img.Bounds().Size()
	radius := math.Hypot(float64(size.X), float64(size.Y)) / 2
	pad := int(math.Ceil(radius-float64(min(size.X, size.Y))/2)) + 1
	padded := Pad(img, pad, pad, pad, pad, mode, fill)
	rotated := imaging.Rotate(padded, degrees, fill)
	return cropOrPadCenter(rotated, size, fill)
}

// ZoomWithFill zooms the image by the given factors, keeping the original size.
// Factors > 1 zoom in (the image content gets larger and the borders are cropped), factors < 1
// zoom out (the content gets smaller and the borders are filled according to the fill mode).
func ZoomWithFill(img image.Image, heightFactor, widthFactor float64, mode FillMode, fill color.Color) (*image.NRGBA, error) {
	if heightFactor <= 0 || widthFactor <= 0 {
		return nil, errors.Errorf("ZoomWithFill(heightFactor=%g, widthFactor=%g): factors must be > 0", heightFactor, widthFactor)
	}
	size := img.Bounds().Size()
	// Window of the original image that will be stretched to the output size.
	windowW := max(1, int(math.Round(float64(size.X)/widthFactor)))
	windowH := max(1, int(math.Round(float64(size.Y)/heightFactor)))
	var window *image.NRGBA
	if windowW <= size.X && windowH <= size.Y {
		window = imaging.CropCenter(img, windowW, windowH)
	} else {
		padX := max(0, (windowW-size.X+1)/2)
		padY := max(0, (windowH-size.Y+1)/2)
		padded := Pad(img, padX, padY, padX, padY, mode, fill)
		window = imaging.CropCenter(padded, windowW, windowH)
	}
	return imaging.Resize(window, size.X, size.Y, imaging.Linear), nil
}

// TranslateWithFill shifts the image content by dx pixels to the right and dy pixels down, keeping
// the original size. Negative values shift left/up. Uncovered areas are filled according to the fill mode.
func TranslateWithFill(img image.Image, dx, dy int, mode FillMode, fill color.Color) *image.NRGBA {
	size := img.Bounds().Size()
	padX, padY := abs(dx), abs(dy)
	padded := Pad(img, padX, padY, padX, padY, mode, fill)
	origin := image.Pt(padX-dx, padY-dy)
	return imaging.Crop(padded, image.Rectangle{Min: origin, Max: origin.Add(size)})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
