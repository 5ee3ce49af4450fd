package main

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/pkg/ml/datasets"
	"github.com/gomlx/augment/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolds(t *testing.T) {
	numFolds, folds, err := parseFolds("10:0-7")
	require.NoError(t, err)
	assert.Equal(t, 10, numFolds)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, folds)
	assert.Equal(t, []int{8, 9}, complementFolds(numFolds, folds))

	numFolds, folds, err = parseFolds("5: 4, 0-1,1")
	require.NoError(t, err)
	assert.Equal(t, 5, numFolds)
	assert.Equal(t, []int{0, 1, 4}, folds)
	assert.Equal(t, []int{2, 3}, complementFolds(numFolds, folds))

	for _, invalid := range []string{"10", "0:0", "x:1", "10:8-3", "10:10", "10:-1", "10:a"} {
		_, _, err = parseFolds(invalid)
		assert.Errorf(t, err, "parseFolds(%q) should have failed", invalid)
	}
}

func TestExportSamples(t *testing.T) {
	imgs := make([]image.Image, 5)
	labels := make([]int, 5)
	for ii := range imgs {
		imgs[ii] = imaging.New(12, 10, color.NRGBA{R: uint8(ii * 40), A: 255})
		labels[ii] = ii % 2
	}
	ds, err := datasets.FromImages("samples", imgs, labels)
	require.NoError(t, err)

	cfg := pipeline.DefaultConfig()
	cfg.ImageSize = 8
	outDir := t.TempDir()
	paths, err := exportSamples(datasets.TakeImages(augmentedImages(ds, nil, cfg), 3), outDir,
		[]string{"daisy", "sun flower"})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(outDir, "sample_000_daisy.png"), paths[0])
	assert.Equal(t, filepath.Join(outDir, "sample_001_sun_flower.png"), paths[1])
	for _, path := range paths {
		img, err := imaging.Open(path)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(8, 8), img.Bounds().Size())
	}
}

func TestTables(t *testing.T) {
	str := throughputTable([]throughputReport{
		{name: "train", numBatches: 2, numExamples: 64, numBytes: 1 << 20, batchShape: "(Float32)[32 180 180 3]"},
	})
	assert.True(t, strings.Contains(str, "train"))
	assert.True(t, strings.Contains(str, "64"))
}
