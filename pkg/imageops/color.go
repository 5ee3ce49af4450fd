// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imageops

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"
)

// Grayscale converts the image to grayscale, keeping 3 (equal) color channels and the alpha channel.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// Invert the colors of the image: each color channel c becomes 255-c. Alpha is preserved.
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// AdjustBrightness adds delta to each color channel, on a [0, 1] scale. So delta=0.4 adds 102 to each
// channel of an 8-bit image. Values are clipped. delta is clamped to [-1, 1].
func AdjustBrightness(img image.Image, delta float64) *image.NRGBA {
	return imaging.AdjustBrightness(img, 100*delta)
}

// clipUint8 rounds and clips v to the [0, 255] range.
func clipUint8(v float64) uint8 {
	return uint8(max(0, min(255, math.Round(v))))
}

// AdjustContrast adjusts the contrast of each color channel independently: for each channel with mean
// value m (over all pixels), the value x is transformed to (x-m)*factor+m.
func AdjustContrast(img image.Image, factor float64) *image.NRGBA {
	src := imaging.Clone(img)
	numPixels := len(src.Pix) / 4
	if numPixels == 0 {
		return src
	}
	var means [3]float64
	channel := make([]float64, numPixels)
	for c := range 3 {
		for ii := range numPixels {
			channel[ii] = float64(src.Pix[ii*4+c])
		}
		means[c] = stat.Mean(channel, nil)
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clipUint8((float64(c.R)-means[0])*factor + means[0]),
			G: clipUint8((float64(c.G)-means[1])*factor + means[1]),
			B: clipUint8((float64(c.B)-means[2])*factor + means[2]),
			A: c.A,
		}
	})
}

// adjustHSV converts each pixel to HSV, applies fn and converts it back to RGB.
func adjustHSV(img image.Image, fn func(h, s, v float64) (float64, float64, float64)) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		rgb := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
		r, g, b := colorful.Hsv(fn(rgb.Hsv())).Clamped().RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: c.A}
	})
}

// AdjustSaturation multiplies the saturation (in the HSV color space) of each pixel by factor, and clips
// the result to [0, 1].
func AdjustSaturation(img image.Image, factor float64) *image.NRGBA {
	return adjustHSV(img, func(h, s, v float64) (float64, float64, float64) {
		return h, max(0, min(1, s*factor)), v
	})
}

// AdjustHue rotates the hue (in the HSV color space) of each pixel by delta, given as a fraction
// of a full turn, in the range [-1, 1].
func AdjustHue(img image.Image, delta float64) *image.NRGBA {
	return adjustHSV(img, func(h, s, v float64) (float64, float64, float64) {
		h = math.Mod(h+delta*360, 360)
		if h < 0 {
			h += 360
		}
		return h, s, v
	})
}

// AdjustGamma applies gamma correction: on a [0, 1] scale, each color channel x becomes gain * x^gamma.
func AdjustGamma(img image.Image, gamma, gain float64) *image.NRGBA {
	var lut [256]uint8
	for ii := range lut {
		lut[ii] = clipUint8(255 * gain * math.Pow(float64(ii)/255, gamma))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}
