// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package preprocessing

import (
	"image"
	"image/color"
	"math"

	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DefaultFillValue is the color used to fill uncovered areas when the fill mode is imageops.FillConstant.
var DefaultFillValue color.Color = color.NRGBA{A: 255}

// FlipMode selects the axes of RandomFlip.
type FlipMode int

const (
	HorizontalAndVertical FlipMode = iota
	Horizontal
	Vertical
)

// String implements fmt.Stringer.
func (m FlipMode) String() string {
	switch m {
	case HorizontalAndVertical:
		return "horizontal_and_vertical"
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	}
	return "invalid"
}

// ParseFlipMode converts "horizontal", "vertical" or "horizontal_and_vertical" to a FlipMode.
func ParseFlipMode(s string) (FlipMode, error) {
	for _, m := range []FlipMode{HorizontalAndVertical, Horizontal, Vertical} {
		if m.String() == s {
			return m, nil
		}
	}
	return HorizontalAndVertical, errors.Errorf("unknown flip mode %q", s)
}

// RandomFlipLayer randomly flips images. Create it with RandomFlip.
type RandomFlipLayer struct {
	mode FlipMode
	gen  *random.Generator
}

var _ Layer = &RandomFlipLayer{}

// RandomFlip creates a layer that flips each image with 50% probability on each of the axes
// selected by mode, independently.
func RandomFlip(mode FlipMode) *RandomFlipLayer {
	return &RandomFlipLayer{mode: mode, gen: random.NewGeneratorFromTime()}
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomFlipLayer) WithSeed(seed int64) *RandomFlipLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomFlipLayer) Name() string { return "random_flip" }

// Call implements Layer.
func (l *RandomFlipLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return img, nil
	}
	seeds := random.SplitSeed(l.gen.MakeSeed(), 2)
	if l.mode != Vertical {
		img = imageops.StatelessRandomFlipLeftRight(img, seeds[0])
	}
	if l.mode != Horizontal {
		img = imageops.StatelessRandomFlipUpDown(img, seeds[1])
	}
	return img, nil
}

// fillConfig holds the configuration of how uncovered areas are filled by geometric transformations.
type fillConfig struct {
	fillMode  imageops.FillMode
	fillValue color.Color
}

func defaultFillConfig() fillConfig {
	return fillConfig{fillMode: imageops.FillReflect, fillValue: DefaultFillValue}
}

// checkFactor panics if factor is not within [0, maxValue].
func checkFactor(layer string, factor, maxValue float64) {
	if factor < 0 || factor > maxValue || math.IsNaN(factor) {
		exceptions.Panicf("preprocessing.%s(factor=%g): factor must be in the range [0, %g]", layer, factor, maxValue)
	}
}

// RandomRotationLayer randomly rotates images. Create it with RandomRotation or RandomRotationRange.
type RandomRotationLayer struct {
	lower, upper float64
	fillConfig
	gen *random.Generator
}

var _ Layer = &RandomRotationLayer{}

// RandomRotation creates a layer that rotates each image by a random angle, uniformly sampled from
// [-factor, factor], given as a fraction of a full turn. So factor=0.2 rotates up to 72 degrees in
// either direction. Positive angles rotate counter-clockwise.
//
// By default, uncovered areas are filled by reflection, see FillMode.
func RandomRotation(factor float64) *RandomRotationLayer {
	checkFactor("RandomRotation", factor, 1)
	return RandomRotationRange(-factor, factor)
}

// RandomRotationRange creates a layer that rotates each image by a random angle, uniformly sampled from
// [lower, upper], given as fractions of a full turn.
func RandomRotationRange(lower, upper float64) *RandomRotationLayer {
	if lower > upper {
		exceptions.Panicf("preprocessing.RandomRotationRange(lower=%g, upper=%g): lower must be <= upper", lower, upper)
	}
	return &RandomRotationLayer{
		lower: lower, upper: upper,
		fillConfig: defaultFillConfig(),
		gen:        random.NewGeneratorFromTime(),
	}
}

// FillMode sets how the areas uncovered by the rotation are filled. It returns the layer, so calls can be cascaded.
func (l *RandomRotationLayer) FillMode(mode imageops.FillMode) *RandomRotationLayer {
	l.fillMode = mode
	return l
}

// FillValue sets the color used by imageops.FillConstant. It returns the layer, so calls can be cascaded.
func (l *RandomRotationLayer) FillValue(c color.Color) *RandomRotationLayer {
	l.fillValue = c
	return l
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomRotationLayer) WithSeed(seed int64) *RandomRotationLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomRotationLayer) Name() string { return "random_rotation" }

// Call implements Layer.
func (l *RandomRotationLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training || (l.lower == 0 && l.upper == 0) {
		return img, nil
	}
	degrees := l.gen.UniformRange(l.lower, l.upper) * 360
	return imageops.RotateWithFill(img, degrees, l.fillMode, l.fillValue), nil
}

// RandomZoomLayer randomly zooms images in or out. Create it with RandomZoom.
type RandomZoomLayer struct {
	heightFactor, widthFactor float64
	independentWidth          bool
	fillConfig
	gen *random.Generator
}

var _ Layer = &RandomZoomLayer{}

// RandomZoom creates a layer that zooms each image by a random amount z, uniformly sampled from
// [-heightFactor, heightFactor]. Positive values of z zoom out (the content is shrunk by 1+z, with
// the borders filled according to FillMode), negative values zoom in.
//
// By default, the width is zoomed by the same amount, preserving the aspect ratio. See WidthFactor.
func RandomZoom(heightFactor float64) *RandomZoomLayer {
	checkFactor("RandomZoom", heightFactor, 0.99)
	return &RandomZoomLayer{
		heightFactor: heightFactor,
		fillConfig:   defaultFillConfig(),
		gen:          random.NewGeneratorFromTime(),
	}
}

// WidthFactor makes the zoom of the width independent of the height, sampled from [-factor, factor].
// It returns the layer, so calls can be cascaded.
func (l *RandomZoomLayer) WidthFactor(factor float64) *RandomZoomLayer {
	checkFactor("RandomZoom.WidthFactor", factor, 0.99)
	l.widthFactor = factor
	l.independentWidth = true
	return l
}

// FillMode sets how the areas uncovered by zooming out are filled. It returns the layer, so calls can be cascaded.
func (l *RandomZoomLayer) FillMode(mode imageops.FillMode) *RandomZoomLayer {
	l.fillMode = mode
	return l
}

// FillValue sets the color used by imageops.FillConstant. It returns the layer, so calls can be cascaded.
func (l *RandomZoomLayer) FillValue(c color.Color) *RandomZoomLayer {
	l.fillValue = c
	return l
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomZoomLayer) WithSeed(seed int64) *RandomZoomLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomZoomLayer) Name() string { return "random_zoom" }

// Call implements Layer.
func (l *RandomZoomLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return img, nil
	}
	zoomH := l.gen.UniformRange(-l.heightFactor, l.heightFactor)
	zoomW := zoomH
	if l.independentWidth {
		zoomW = l.gen.UniformRange(-l.widthFactor, l.widthFactor)
	}
	zoomed, err := imageops.ZoomWithFill(img, 1/(1+zoomH), 1/(1+zoomW), l.fillMode, l.fillValue)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	return zoomed, nil
}

// RandomTranslationLayer randomly shifts images. Create it with RandomTranslation.
type RandomTranslationLayer struct {
	heightFactor, widthFactor float64
	fillConfig
	gen *random.Generator
}

var _ Layer = &RandomTranslationLayer{}

// RandomTranslation creates a layer that shifts each image vertically by a random fraction of its height,
// uniformly sampled from [-heightFactor, heightFactor], and horizontally by a fraction of its width sampled
// from [-widthFactor, widthFactor].
func RandomTranslation(heightFactor, widthFactor float64) *RandomTranslationLayer {
	checkFactor("RandomTranslation", heightFactor, 1)
	checkFactor("RandomTranslation", widthFactor, 1)
	return &RandomTranslationLayer{
		heightFactor: heightFactor, widthFactor: widthFactor,
		fillConfig: defaultFillConfig(),
		gen:        random.NewGeneratorFromTime(),
	}
}

// FillMode sets how the uncovered areas are filled. It returns the layer, so calls can be cascaded.
func (l *RandomTranslationLayer) FillMode(mode imageops.FillMode) *RandomTranslationLayer {
	l.fillMode = mode
	return l
}

// FillValue sets the color used by imageops.FillConstant. It returns the layer, so calls can be cascaded.
func (l *RandomTranslationLayer) FillValue(c color.Color) *RandomTranslationLayer {
	l.fillValue = c
	return l
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomTranslationLayer) WithSeed(seed int64) *RandomTranslationLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomTranslationLayer) Name() string { return "random_translation" }

// Call implements Layer.
func (l *RandomTranslationLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return img, nil
	}
	size := img.Bounds().Size()
	dy := int(math.Round(l.gen.UniformRange(-l.heightFactor, l.heightFactor) * float64(size.Y)))
	dx := int(math.Round(l.gen.UniformRange(-l.widthFactor, l.widthFactor) * float64(size.X)))
	return imageops.TranslateWithFill(img, dx, dy, l.fillMode, l.fillValue), nil
}

// RandomContrastLayer randomly adjusts the contrast of images. Create it with RandomContrast.
type RandomContrastLayer struct {
	factor float64
	gen    *random.Generator
}

var _ Layer = &RandomContrastLayer{}

// RandomContrast creates a layer that adjusts the contrast of each image by a random factor, uniformly
// sampled from [1-factor, 1+factor]. See imageops.AdjustContrast.
func RandomContrast(factor float64) *RandomContrastLayer {
	checkFactor("RandomContrast", factor, 1)
	return &RandomContrastLayer{factor: factor, gen: random.NewGeneratorFromTime()}
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomContrastLayer) WithSeed(seed int64) *RandomContrastLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomContrastLayer) Name() string { return "random_contrast" }

// Call implements Layer.
func (l *RandomContrastLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return img, nil
	}
	return imageops.AdjustContrast(img, l.gen.UniformRange(1-l.factor, 1+l.factor)), nil
}

// RandomBrightnessLayer randomly adjusts the brightness of images. Create it with RandomBrightness.
type RandomBrightnessLayer struct {
	factor float64
	gen    *random.Generator
}

var _ Layer = &RandomBrightnessLayer{}

// RandomBrightness creates a layer that adds to each image a random brightness delta, uniformly
// sampled from [-factor, factor], on a [0, 1] scale. See imageops.AdjustBrightness.
func RandomBrightness(factor float64) *RandomBrightnessLayer {
	checkFactor("RandomBrightness", factor, 1)
	return &RandomBrightnessLayer{factor: factor, gen: random.NewGeneratorFromTime()}
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomBrightnessLayer) WithSeed(seed int64) *RandomBrightnessLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomBrightnessLayer) Name() string { return "random_brightness" }

// Call implements Layer.
func (l *RandomBrightnessLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return img, nil
	}
	return imageops.AdjustBrightness(img, l.gen.UniformRange(-l.factor, l.factor)), nil
}

// RandomCropLayer randomly crops images. Create it with RandomCrop.
type RandomCropLayer struct {
	height, width int
	gen           *random.Generator
}

var _ Layer = &RandomCropLayer{}

// RandomCrop creates a layer that crops a random height x width region of each image when training,
// and the central region otherwise. Images smaller than the target are first upscaled, preserving the
// aspect ratio.
func RandomCrop(height, width int) *RandomCropLayer {
	if height <= 0 || width <= 0 {
		exceptions.Panicf("preprocessing.RandomCrop(height=%d, width=%d): size must be > 0", height, width)
	}
	return &RandomCropLayer{height: height, width: width, gen: random.NewGeneratorFromTime()}
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomCropLayer) WithSeed(seed int64) *RandomCropLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomCropLayer) Name() string { return "random_crop" }

// Call implements Layer.
func (l *RandomCropLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training {
		return centerCrop(l.Name(), img, l.height, l.width)
	}
	img, err := coverSize(img, l.height, l.width)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	cropped, err := imageops.StatelessRandomCrop(img, l.height, l.width, l.gen.MakeSeed())
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", l.Name())
	}
	return cropped, nil
}
