// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"image"
	"sync/atomic"

	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/augment/pkg/ml/datasets"
	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/pkg/errors"
)

// cropOrPadMargin is the number of pixels added to the image size before the random crop.
const cropOrPadMargin = 6

// StatelessAugmentImage applies the stateless augmentations to one image, fully determined by seed:
//
//  1. Resize to cfg.ImageSize.
//  2. Crop or pad (centered) to cfg.ImageSize+6.
//  3. Random crop back to cfg.ImageSize, using seed.
//  4. Random brightness change of up to cfg.BrightnessDelta, using a seed split from seed.
//
// Pixel values are clipped to their valid range.
func StatelessAugmentImage(img image.Image, seed imageops.Seed, cfg *Config) (*image.NRGBA, error) {
	method, err := imageops.ParseResizeMethod(cfg.ResizeMethod)
	if err != nil {
		return nil, err
	}
	size := cfg.ImageSize
	augmented, err := imageops.Resize(img, size, size, method)
	if err != nil {
		return nil, err
	}
	augmented, err = imageops.ResizeWithCropOrPad(augmented, size+cropOrPadMargin, size+cropOrPadMargin)
	if err != nil {
		return nil, err
	}
	newSeed := random.SplitSeed(seed, 1)[0]
	augmented, err = imageops.StatelessRandomCrop(augmented, size, size, seed)
	if err != nil {
		return nil, err
	}
	return imageops.StatelessRandomBrightness(augmented, cfg.BrightnessDelta, newSeed)
}

// StatelessAugment returns a map function that augments each example with StatelessAugmentImage,
// with a new seed drawn from gen for each example.
func StatelessAugment(gen *random.Generator, cfg *Config) datasets.MapImageFn {
	return func(example datasets.Example) (datasets.Example, error) {
		img, err := StatelessAugmentImage(example.Image, gen.MakeSeed(), cfg)
		if err != nil {
			return example, errors.WithMessagef(err, "while augmenting example #%d", example.Index)
		}
		example.Image = img
		return example, nil
	}
}

// CounterAugment returns a map function that augments each example with StatelessAugmentImage, using
// the seed {n, n} for the n-th example mapped (starting from 0).
func CounterAugment(cfg *Config) datasets.MapImageFn {
	var counter atomic.Int64
	return func(example datasets.Example) (datasets.Example, error) {
		n := counter.Add(1) - 1
		img, err := StatelessAugmentImage(example.Image, imageops.Seed{n, n}, cfg)
		if err != nil {
			return example, errors.WithMessagef(err, "while augmenting example #%d", example.Index)
		}
		example.Image = img
		return example, nil
	}
}

// PrepareStateless builds the training pipeline for ds using StatelessAugment with seeds from gen,
// instead of the augmentation layers:
// shuffle, augment with a parallel map, convert to tensors and rescale, batch and prefetch.
func PrepareStateless(ds datasets.ImageDataset, gen *random.Generator, cfg *Config) (datasets.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid pipeline configuration for %q", ds.Name())
	}
	if cfg.ShuffleBuffer > 0 {
		ds = datasets.Shuffle(ds, cfg.ShuffleBuffer, cfg.Seed)
	}
	imgDS := parallel(datasets.MapImages(ds, StatelessAugment(gen, cfg)), cfg, ds.Name()+" [stateless_augment]")
	_, rescale := ResizeAndRescale(cfg)
	return finish(imgDS, cfg, rescale, true), nil
}
