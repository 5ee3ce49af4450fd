// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package preprocessing

import (
	"image"

	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/augment/pkg/ml/random"
)

// RandomInvertLayer randomly inverts the colors of images. Create it with RandomInvert.
//
// It is an example of a custom augmentation layer: any type implementing Layer can be used in a
// Sequential or in a dataset pipeline. For one-off transformations, Lambda is simpler.
type RandomInvertLayer struct {
	probability float64
	gen         *random.Generator
}

var _ Layer = &RandomInvertLayer{}

// RandomInvert creates a layer that inverts the colors of each image (each channel c becomes 255-c)
// with the given probability. Alpha is preserved.
func RandomInvert(probability float64) *RandomInvertLayer {
	checkFactor("RandomInvert", probability, 1)
	return &RandomInvertLayer{probability: probability, gen: random.NewGeneratorFromTime()}
}

// WithSeed sets the seed of the random generator. It returns the layer, so calls can be cascaded.
func (l *RandomInvertLayer) WithSeed(seed int64) *RandomInvertLayer {
	l.gen = random.NewGenerator(seed)
	return l
}

// Name implements Layer.
func (l *RandomInvertLayer) Name() string { return "random_invert" }

// Call implements Layer.
func (l *RandomInvertLayer) Call(img image.Image, training bool) (image.Image, error) {
	if !training || l.gen.Uniform() >= l.probability {
		return img, nil
	}
	return imageops.Invert(img), nil
}
