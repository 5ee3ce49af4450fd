// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imageops

import (
	"bytes"
	"image"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Seed for the stateless random operations. The same seed always generates the same transformation.
type Seed [2]int64

// Rand returns a new random number generator deterministically derived from the seed.
func (s Seed) Rand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(s[0]), uint64(s[1])))
}

// uniform returns a value uniformly sampled from [lower, upper).
func uniform(rng *rand.Rand, lower, upper float64) float64 {
	return lower + rng.Float64()*(upper-lower)
}

// AdjustJPEGQuality encodes the image as JPEG with the given quality (from 1 to 100) and decodes it
// back, introducing compression artifacts.
//
// JPEG has no alpha channel: the color channels are compressed as if the image were opaque, and the
// alpha channel of img is copied unchanged to the result.
func AdjustJPEGQuality(img image.Image, quality int) (*image.NRGBA, error) {
	if quality < 1 || quality > 100 {
		return nil, errors.Errorf("AdjustJPEGQuality(quality=%d): quality must be between 1 and 100", quality)
	}
	src := imaging.Clone(img)
	opaque := imaging.Clone(src)
	for ii := 3; ii < len(opaque.Pix); ii += 4 {
		opaque.Pix[ii] = 0xFF
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, opaque, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrapf(err, "failed to encode image as JPEG")
	}
	decoded, err := imaging.Decode(&buf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode JPEG image")
	}
	dst := imaging.Clone(decoded)
	for ii := 3; ii < len(dst.Pix); ii += 4 {
		dst.Pix[ii] = src.Pix[ii]
	}
	return dst, nil
}

// StatelessRandomBrightness adjusts the brightness by a delta uniformly sampled from [-maxDelta, maxDelta).
func StatelessRandomBrightness(img image.Image, maxDelta float64, seed Seed) (*image.NRGBA, error) {
	if maxDelta < 0 {
		return nil, errors.Errorf("StatelessRandomBrightness(maxDelta=%g): maxDelta must be >= 0", maxDelta)
	}
	return AdjustBrightness(img, uniform(seed.Rand(), -maxDelta, maxDelta)), nil
}

// checkFactorRange validates the [lower, upper) range of random factors.
func checkFactorRange(name string, lower, upper float64) error {
	if lower < 0 {
		return errors.Errorf("%s(lower=%g, upper=%g): lower must be >= 0", name, lower, upper)
	}
	if upper <= lower {
		return errors.Errorf("%s(lower=%g, upper=%g): upper must be > lower", name, lower, upper)
	}
	return nil
}

// StatelessRandomContrast adjusts the contrast by a factor uniformly sampled from [lower, upper).
func StatelessRandomContrast(img image.Image, lower, upper float64, seed Seed) (*image.NRGBA, error) {
	if err := checkFactorRange("StatelessRandomContrast", lower, upper); err != nil {
		return nil, err
	}
	return AdjustContrast(img, uniform(seed.Rand(), lower, upper)), nil
}

// StatelessRandomSaturation adjusts the saturation by a factor uniformly sampled from [lower, upper).
func StatelessRandomSaturation(img image.Image, lower, upper float64, seed Seed) (*image.NRGBA, error) {
	if err := checkFactorRange("StatelessRandomSaturation", lower, upper); err != nil {
		return nil, err
	}
	return AdjustSaturation(img, uniform(seed.Rand(), lower, upper)), nil
}

// StatelessRandomHue rotates the hue by a delta uniformly sampled from [-maxDelta, maxDelta).
// maxDelta must be in [0, 0.5].
func StatelessRandomHue(img image.Image, maxDelta float64, seed Seed) (*image.NRGBA, error) {
	if maxDelta < 0 || maxDelta > 0.5 {
		return nil, errors.Errorf("StatelessRandomHue(maxDelta=%g): maxDelta must be in [0, 0.5]", maxDelta)
	}
	return AdjustHue(img, uniform(seed.Rand(), -maxDelta, maxDelta)), nil
}

// StatelessRandomCrop crops a random region of the given height and width from the image.
func StatelessRandomCrop(img image.Image, height, width int, seed Seed) (*image.NRGBA, error) {
	size := img.Bounds().Size()
	if height <= 0 || width <= 0 || height > size.Y || width > size.X {
		return nil, errors.Errorf("StatelessRandomCrop(height=%d, width=%d): crop must be within the image size (height=%d, width=%d)",
			height, width, size.Y, size.X)
	}
	rng := seed.Rand()
	offsetY := rng.IntN(size.Y - height + 1)
	offsetX := rng.IntN(size.X - width + 1)
	return CropToBoundingBox(img, offsetY, offsetX, height, width)
}

// StatelessRandomFlipLeftRight flips the image horizontally with 50% probability.
func StatelessRandomFlipLeftRight(img image.Image, seed Seed) *image.NRGBA {
	if seed.Rand().IntN(2) == 1 {
		return FlipLeftRight(img)
	}
	return imaging.Clone(img)
}

// StatelessRandomFlipUpDown flips the image vertically with 50% probability.
func StatelessRandomFlipUpDown(img image.Image, seed Seed) *image.NRGBA {
	if seed.Rand().IntN(2) == 1 {
		return FlipUpDown(img)
	}
	return imaging.Clone(img)
}

// StatelessRandomJPEGQuality re-encodes the image as JPEG with a quality uniformly sampled from
// [minQuality, maxQuality).
func StatelessRandomJPEGQuality(img image.Image, minQuality, maxQuality int, seed Seed) (*image.NRGBA, error) {
	if minQuality < 1 || maxQuality > 100 || minQuality >= maxQuality {
		return nil, errors.Errorf("StatelessRandomJPEGQuality(min=%d, max=%d): requires 1 <= min < max <= 100",
			minQuality, maxQuality)
	}
	quality := minQuality + seed.Rand().IntN(maxQuality-minQuality)
	return AdjustJPEGQuality(img, quality)
}
