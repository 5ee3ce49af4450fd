// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/augment/pkg/core/tensors/images"
	"github.com/gomlx/augment/pkg/ml/layers/preprocessing"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labelColor returns a color that encodes the label in the red channel.
func labelColor(label int) color.NRGBA {
	return color.NRGBA{R: uint8(label * 10), G: 50, B: 100, A: 255}
}

// makeImagesDataset creates n images of size width x height, each filled with the labelColor of its label,
// with labels 0, 1, ..., n-1.
func makeImagesDataset(t *testing.T, n, width, height int) *InMemoryImagesDataset {
	imgs := make([]image.Image, n)
	labels := make([]int, n)
	for ii := range n {
		imgs[ii] = imaging.New(width, height, labelColor(ii))
		labels[ii] = ii
	}
	ds, err := FromImages("colors", imgs, labels)
	require.NoError(t, err)
	return ds
}

func readAllImages(t *testing.T, ds ImageDataset) []Example {
	var examples []Example
	for {
		example, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		examples = append(examples, example)
	}
	return examples
}

func labelsOf(examples []Example) []int {
	labels := make([]int, len(examples))
	for ii, example := range examples {
		labels[ii] = example.Label
	}
	return labels
}

func sequence(n int) []int {
	s := make([]int, n)
	for ii := range s {
		s[ii] = ii
	}
	return s
}

func TestInMemoryImagesDataset(t *testing.T) {
	_, err := FromImages("bad", make([]image.Image, 2), []int{1})
	require.Error(t, err)

	ds := makeImagesDataset(t, 10, 4, 4)
	assert.Equal(t, 10, ds.NumExamples())
	assert.Equal(t, "col", ds.ShortName())
	assert.Equal(t, sequence(10), labelsOf(readAllImages(t, ds)))
	ds.Reset()
	assert.Len(t, readAllImages(t, ds), 10)

	// Shuffled: a permutation, which changes at every epoch.
	ds.Shuffle(42)
	epoch1 := labelsOf(readAllImages(t, ds))
	ds.Reset()
	epoch2 := labelsOf(readAllImages(t, ds))
	assert.ElementsMatch(t, sequence(10), epoch1)
	assert.ElementsMatch(t, sequence(10), epoch2)
	assert.NotEqual(t, epoch1, epoch2)

	// Same seed, same order.
	other := makeImagesDataset(t, 10, 4, 4).Shuffle(42)
	assert.Equal(t, epoch1, labelsOf(readAllImages(t, other)))

	// Infinite loops over the data.
	ds.Infinite(true)
	ds.Reset()
	assert.Len(t, readAllImages(t, TakeImages(ds, 25)), 25)

	ds.SetName("renamed", "rn")
	assert.Equal(t, "renamed", ds.Name())
	assert.Equal(t, "rn", ds.ShortName())
}

// writeImageTree creates a directory with one sub-directory per class, with the given number of images each.
func writeImageTree(t *testing.T, counts map[string]int) string {
	dir := t.TempDir()
	for className, count := range counts {
		classDir := filepath.Join(dir, className)
		require.NoError(t, os.MkdirAll(classDir, 0o755))
		for ii := range count {
			img := imaging.New(8, 6, color.NRGBA{R: uint8(ii), G: 10, B: 20, A: 255})
			ext := ".png"
			if ii%2 == 1 {
				ext = ".jpg"
			}
			require.NoError(t, imaging.Save(img, filepath.Join(classDir, "img"+string(rune('a'+ii))+ext)))
		}
		// Not an image: ignored.
		require.NoError(t, os.WriteFile(filepath.Join(classDir, "README.txt"), []byte("ignore me"), 0o644))
	}
	// Hidden directories are not classes.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))
	return dir
}

func TestDirectoryDataset(t *testing.T) {
	dir := writeImageTree(t, map[string]int{"roses": 3, "daisy": 4, "tulips": 2})
	ds, err := FromDirectory(dir).WithName("flowers").Done()
	require.NoError(t, err)
	assert.Equal(t, "flowers", ds.Name())
	assert.Equal(t, []string{"daisy", "roses", "tulips"}, ds.ClassNames())
	assert.Equal(t, []int{4, 3, 2}, ds.ClassCounts())
	assert.Equal(t, 9, ds.NumExamples())
	assert.False(t, ds.IsInfinite())

	examples := readAllImages(t, ds)
	require.Len(t, examples, 9)
	for _, example := range examples {
		assert.Equal(t, image.Pt(8, 6), example.Image.Bounds().Size())
		assert.Equal(t, ds.ClassNames()[example.Label], filepath.Base(filepath.Dir(example.Path)))
	}
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 2, 2}, labelsOf(examples))

	// Shuffled.
	ds, err = FromDirectory(dir).Shuffle(7).Done()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 0, 0, 0, 1, 1, 1, 2, 2}, labelsOf(readAllImages(t, ds)))

	// Extension filter.
	ds, err = FromDirectory(dir).Extensions(".PNG").Done()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, ds.ClassCounts())

	// Errors.
	_, err = FromDirectory(filepath.Join(dir, "missing")).Done()
	require.Error(t, err)
	_, err = FromDirectory(filepath.Join(dir, "roses")).Done()
	require.Error(t, err, "roses has no class sub-directories")
}

func TestDirectoryDatasetFolds(t *testing.T) {
	dir := writeImageTree(t, map[string]int{"cats": 10, "dogs": 10})
	const numFolds = 4
	total := 0
	seen := make(map[string]bool)
	for fold := range numFolds {
		ds, err := FromDirectory(dir).Folds(numFolds, []int{fold}, 1).Done()
		if err != nil {
			// A fold may happen to be empty.
			continue
		}
		for _, path := range ds.Paths() {
			assert.False(t, seen[path], "path %q in more than one fold", path)
			seen[path] = true
			relPath, err := filepath.Rel(dir, path)
			require.NoError(t, err)
			assert.Equal(t, fold, FoldOf(relPath, numFolds, 1))
		}
		total += ds.NumExamples()
	}
	assert.Equal(t, 20, total)

	all, err := FromDirectory(dir).Folds(numFolds, []int{0, 1, 2, 3}, 1).Done()
	require.NoError(t, err)
	assert.Equal(t, 20, all.NumExamples())

	_, err = FromDirectory(dir).Folds(numFolds, nil, 1).Done()
	require.Error(t, err)
	_, err = FromDirectory(dir).Folds(numFolds, []int{4}, 1).Done()
	require.Error(t, err)
}

func TestShuffle(t *testing.T) {
	ds := Shuffle(makeImagesDataset(t, 100, 2, 2), 16, 3)
	assert.Equal(t, 100, ds.(HasNumExamples).NumExamples())
	epoch1 := labelsOf(readAllImages(t, ds))
	assert.ElementsMatch(t, sequence(100), epoch1)
	assert.NotEqual(t, sequence(100), epoch1)

	ds.Reset()
	epoch2 := labelsOf(readAllImages(t, ds))
	assert.ElementsMatch(t, sequence(100), epoch2)
	assert.NotEqual(t, epoch1, epoch2)

	// Reproducible with the same seed.
	again := Shuffle(makeImagesDataset(t, 100, 2, 2), 16, 3)
	assert.Equal(t, epoch1, labelsOf(readAllImages(t, again)))

	// A buffer of 1 doesn't shuffle.
	assert.Equal(t, sequence(10), labelsOf(readAllImages(t, Shuffle(makeImagesDataset(t, 10, 2, 2), 1, 3))))
	require.Panics(t, func() { Shuffle(makeImagesDataset(t, 10, 2, 2), 0, 3) })
}

func TestAugment(t *testing.T) {
	layer := preprocessing.Sequential("resize_and_invert",
		preprocessing.Resizing(5, 7),
		preprocessing.RandomInvert(1.0).WithSeed(1),
	)
	ds := makeImagesDataset(t, 3, 4, 4)

	training := Augment(ds, layer, true)
	assert.Equal(t, "colors [resize_and_invert]", training.Name())
	for _, example := range readAllImages(t, training) {
		assert.Equal(t, image.Pt(7, 5), example.Image.Bounds().Size())
		r, _, _, _ := example.Image.At(2, 2).RGBA()
		assert.InDelta(t, 255-example.Label*10, int(r>>8), 1)
	}

	ds.Reset()
	inference := Augment(ds, layer, false)
	for _, example := range readAllImages(t, inference) {
		r, _, _, _ := example.Image.At(2, 2).RGBA()
		assert.InDelta(t, example.Label*10, int(r>>8), 1)
	}

	failing := MapImages(makeImagesDataset(t, 3, 4, 4), func(example Example) (Example, error) {
		if example.Label == 1 {
			return example, errors.New("bad example")
		}
		return example, nil
	})
	_, err := failing.Yield()
	require.NoError(t, err)
	_, err = failing.Yield()
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad example")
}

func TestToTensors(t *testing.T) {
	ds := ToTensors(makeImagesDataset(t, 4, 4, 6), images.ToTensor(dtypes.Float32),
		preprocessing.Rescaling(2, -1))
	assert.Equal(t, 4, ds.NumExamples())
	_, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Len(t, labels, 1)
	assert.Equal(t, dtypes.Float32, inputs[0].DType())
	assert.Equal(t, []int{6, 4, 3}, inputs[0].Shape().Dimensions)
	assert.True(t, labels[0].Shape().IsScalar())
	assert.Equal(t, int32(0), tensors.ToScalar[int32](labels[0]))

	// Pixels rescaled from [0, 1] to [-1, 1].
	flat := inputs[0].Float64s()
	assert.InDelta(t, -1.0, flat[0], 1e-5)
	assert.InDelta(t, 2*50.0/255-1, flat[1], 1e-5)
	assert.InDelta(t, 2*100.0/255-1, flat[2], 1e-5)

	batched := Batch(ds, 3, true, false)
	_, inputs, labels, err = batched.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 4, 3}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int32{1, 2, 3}, tensors.CopyFlatData[int32](labels[0]))
}

func TestNormalization(t *testing.T) {
	imgs := []image.Image{
		imaging.New(3, 3, color.NRGBA{R: 255, A: 255}),
		imaging.New(3, 3, color.NRGBA{B: 255, A: 255}),
	}
	inMemory, err := FromImages("rb", imgs, []int{0, 1})
	require.NoError(t, err)
	ds := Batch(ToTensors(inMemory, images.ToTensor(dtypes.Float32)), 2, true, false)
	mean, stddev, err := Normalization(ds, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0, 0.5}, mean, 1e-5)
	assert.InDeltaSlice(t, []float64{0.5, 0, 0.5}, stddev, 1e-5)
	assert.Equal(t, []float64{0.5, 1, 0.5}, ReplaceZerosByOnes([]float64{0.5, 0, 0.5}))

	// Statistics are combined over batches of different sizes.
	imgs = append(imgs, imaging.New(3, 3, color.NRGBA{R: 255, A: 255}))
	inMemory, err = FromImages("rbr", imgs, []int{0, 1, 0})
	require.NoError(t, err)
	for _, batchSize := range []int{1, 2, 3} {
		inMemory.Reset()
		ds = Batch(ToTensors(inMemory, images.ToTensor(dtypes.Float32)), batchSize, true, false)
		mean, stddev, err = Normalization(ds, 0)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2.0 / 3, 0, 1.0 / 3}, mean, 1e-5, "batchSize=%d", batchSize)
		assert.InDeltaSlice(t, []float64{math.Sqrt(2.0 / 9), 0, math.Sqrt(2.0 / 9)}, stddev, 1e-5, "batchSize=%d", batchSize)
	}

	// Integer inputs are not accepted.
	inMemory.Reset()
	_, _, err = Normalization(ToTensors(inMemory, images.ToTensor(dtypes.Int32)), 0)
	require.Error(t, err)

	// Out of range input.
	inMemory.Reset()
	_, _, err = Normalization(ToTensors(inMemory, images.ToTensor(dtypes.Float32)), 1)
	require.Error(t, err)
}

func TestParallelImages(t *testing.T) {
	source := makeImagesDataset(t, 50, 2, 2)
	pds := ParallelImages(source)
	defer pds.Done()
	assert.Equal(t, 50, pds.NumExamples())
	assert.ElementsMatch(t, sequence(50), labelsOf(readAllImages(t, pds)))
	pds.Reset()
	assert.ElementsMatch(t, sequence(50), labelsOf(readAllImages(t, pds)))

	// ReadAheadImages preserves order.
	ahead := ReadAheadImages(makeImagesDataset(t, 20, 2, 2), 5)
	assert.Equal(t, sequence(20), labelsOf(readAllImages(t, ahead)))
}

func TestPreGeneratedDataset(t *testing.T) {
	const width, height, numEpochs = 4, 3, 2
	source := makeImagesDataset(t, 5, width, height)
	filePath := filepath.Join(t.TempDir(), "pregen.bin")
	f, err := os.Create(filePath)
	require.NoError(t, err)
	numSaved, err := Save(source, f, width, height, numEpochs, false)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, 10, numSaved)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, int64(10*entrySize(width, height)), info.Size())

	pds := NewPreGeneratedDataset("pregen", filePath, width, height)
	defer pds.Done()
	examples := readAllImages(t, pds)
	require.Len(t, examples, 10)
	labels := labelsOf(examples)
	slices.Sort(labels)
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, labels)
	for _, example := range examples {
		assert.Equal(t, image.Pt(width, height), example.Image.Bounds().Size())
		assert.Equal(t, labelColor(example.Label), example.Image.(*image.NRGBA).NRGBAAt(1, 1))
	}

	// Reset starts over.
	pds.Reset()
	assert.Len(t, readAllImages(t, pds), 10)

	// Infinite with a limited number of steps.
	pds.Reset()
	pds.Infinite(true).WithMaxSteps(25)
	assert.Len(t, readAllImages(t, pds), 25)

	// Images of the wrong size.
	source.Reset()
	_, err = Save(source, &bytes.Buffer{}, width+1, height, 1, false)
	require.Error(t, err)

	// Infinite datasets cannot be saved.
	_, err = Save(makeImagesDataset(t, 5, width, height).Infinite(true), &bytes.Buffer{}, width, height, 1, false)
	require.Error(t, err)

	// Not even when wrapped.
	identity := func(example Example) (Example, error) { return example, nil }
	parallel := ParallelImages(makeImagesDataset(t, 5, width, height).Infinite(true))
	defer parallel.Done()
	var wrapped ImageDataset = MapImages(Shuffle(parallel, 3, 1), identity)
	wrapped = Augment(wrapped, preprocessing.RandomInvert(0.5).WithSeed(7), true)
	assert.True(t, isInfinite(wrapped))
	assert.True(t, isInfinite(Batch(ToTensors(wrapped, images.ToTensor(dtypes.Float32)), 2, true, false)))
	assert.False(t, isInfinite(TakeImages(wrapped, 3)))
	_, err = Save(wrapped, &bytes.Buffer{}, width, height, 1, false)
	require.Error(t, err)
	assert.ErrorContains(t, err, "indefinitely")

	// Limited by the number of steps, an infinite pre-generated dataset ends.
	assert.False(t, pds.IsInfinite())
	looping := NewPreGeneratedDataset("pregen", filePath, width, height).Infinite(true)
	defer looping.Done()
	assert.True(t, looping.IsInfinite())

	// Truncated file.
	truncatedPath := filepath.Join(t.TempDir(), "truncated.bin")
	require.NoError(t, os.WriteFile(truncatedPath, make([]byte, entrySize(width, height)+3), 0o644))
	truncated := NewPreGeneratedDataset("truncated", truncatedPath, width, height)
	_, err = truncated.Yield()
	require.NoError(t, err)
	_, err = truncated.Yield()
	require.Error(t, err)
	assert.ErrorContains(t, err, "truncated")
}
