// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline assembles the preprocessing layers and datasets into the input pipeline of an image
// classifier: load, resize and rescale, augment, batch and prefetch.
//
// The hyperparameters are held in a Config, which can be changed with settings strings
// (see ParseSettings).
//
// Example:
//
//	cfg := pipeline.DefaultConfig()
//	flowers, err := datasets.FromDirectory(dataDir).Shuffle(cfg.Seed).Done()
//	if err != nil { ... }
//	train, err := pipeline.Prepare(flowers, cfg, true)
//	if err != nil { ... }
//	for {
//		_, inputs, labels, err := train.Yield()
//		if err == io.EOF { break }
//		...
//	}
package pipeline

import (
	"github.com/gomlx/augment/pkg/core/tensors/images"
	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/augment/pkg/ml/datasets"
	"github.com/gomlx/augment/pkg/ml/layers/preprocessing"
	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ResizeAndRescale returns the image layer that resizes the images to cfg.ImageSize x cfg.ImageSize,
// and the tensor layer that rescales the pixel values (from [0, 1]) with cfg.Scale and cfg.Offset.
//
// It panics if cfg is invalid, see Config.Validate.
func ResizeAndRescale(cfg *Config) (resize *preprocessing.SequentialLayer, rescale *preprocessing.RescalingLayer) {
	method, err := imageops.ParseResizeMethod(cfg.ResizeMethod)
	if err != nil {
		panic(err)
	}
	resize = preprocessing.Sequential("resize_and_rescale",
		preprocessing.Resizing(cfg.ImageSize, cfg.ImageSize).Method(method))
	rescale = preprocessing.Rescaling(cfg.Scale, cfg.Offset)
	return
}

// DataAugmentation returns the sequence of random augmentation layers configured in cfg.
// Each layer gets its own seed derived from cfg.Seed, so the augmentations are reproducible.
//
// Layers whose factor is 0 (or flip mode is empty) are not included.
// It panics if cfg is invalid, see Config.Validate.
func DataAugmentation(cfg *Config) *preprocessing.SequentialLayer {
	fillMode, err := imageops.ParseFillMode(cfg.FillMode)
	if err != nil {
		panic(err)
	}
	gen := random.NewGenerator(cfg.Seed)
	augmentation := preprocessing.Sequential("data_augmentation")
	if cfg.FlipMode != "" {
		mode, err := preprocessing.ParseFlipMode(cfg.FlipMode)
		if err != nil {
			panic(err)
		}
		augmentation.Add(preprocessing.RandomFlip(mode).WithSeed(gen.Int64()))
	}
	if cfg.RotationFactor > 0 {
		augmentation.Add(preprocessing.RandomRotation(cfg.RotationFactor).FillMode(fillMode).WithSeed(gen.Int64()))
	}
	if cfg.ZoomFactor > 0 {
		augmentation.Add(preprocessing.RandomZoom(cfg.ZoomFactor).FillMode(fillMode).WithSeed(gen.Int64()))
	}
	if cfg.ContrastFactor > 0 {
		augmentation.Add(preprocessing.RandomContrast(cfg.ContrastFactor).WithSeed(gen.Int64()))
	}
	if cfg.InvertFactor > 0 {
		augmentation.Add(preprocessing.RandomInvert(cfg.InvertFactor).WithSeed(gen.Int64()))
	}
	return augmentation
}

// parallel runs the Yield calls of ds in cfg.Parallelism goroutines.
func parallel(ds datasets.ImageDataset, cfg *Config, name string) datasets.ImageDataset {
	return datasets.CustomParallelImages(ds).
		WithName(name).
		Parallelism(cfg.Parallelism).
		Buffer(cfg.BatchSize).
		Start()
}

// finish converts the images to tensors, rescales them, batches and prefetches.
func finish(ds datasets.ImageDataset, cfg *Config, rescale preprocessing.TensorLayer, training bool) datasets.Dataset {
	var tensorsDS datasets.Dataset = datasets.ToTensors(ds, images.ToTensor(cfg.TensorDType()), rescale).Training(training)
	tensorsDS = datasets.Batch(tensorsDS, cfg.BatchSize, true, false)
	return datasets.ReadAhead(tensorsDS, cfg.Prefetch)
}

// Prepare builds the input pipeline for ds:
//
//  1. Resize the images with a parallel map.
//  2. If training, shuffle with a buffer of cfg.ShuffleBuffer examples.
//  3. If training and cfg.Augment, apply DataAugmentation with a parallel map.
//  4. Convert to tensors and rescale.
//  5. Batch and prefetch.
//
// The parallel maps don't preserve the order of the examples.
//
// The returned Dataset yields batches of images shaped [batchSize, imageSize, imageSize, 3] and
// int32 labels shaped [batchSize]. The last batch of an epoch may be smaller.
func Prepare(ds datasets.ImageDataset, cfg *Config, training bool) (datasets.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid pipeline configuration for %q", ds.Name())
	}
	resize, rescale := ResizeAndRescale(cfg)
	imgDS := parallel(datasets.Augment(ds, resize, training), cfg, ds.Name())
	if training && cfg.ShuffleBuffer > 0 {
		imgDS = datasets.Shuffle(imgDS, cfg.ShuffleBuffer, cfg.Seed)
	}
	if training && cfg.Augment {
		augmentation := DataAugmentation(cfg)
		if len(augmentation.Layers()) > 0 {
			imgDS = parallel(datasets.Augment(imgDS, augmentation, true), cfg, imgDS.Name())
		}
	}
	klog.V(1).Infof("pipeline for %q (training=%v): %s", ds.Name(), training, imgDS.Name())
	return finish(imgDS, cfg, rescale, training), nil
}
