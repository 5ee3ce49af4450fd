// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	keysSet, err := ParseSettings(cfg,
		"image_size=64;batch_size=1_000;augment=false;flip_mode=horizontal;rotation_factor=0.1;dtype=Float64;seed=7")
	require.NoError(t, err)
	assert.Equal(t, []string{"image_size", "batch_size", "augment", "flip_mode", "rotation_factor", "dtype", "seed"}, keysSet)
	assert.Equal(t, 64, cfg.ImageSize)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.False(t, cfg.Augment)
	assert.Equal(t, "horizontal", cfg.FlipMode)
	assert.Equal(t, 0.1, cfg.RotationFactor)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, dtypes.Float64, cfg.TensorDType())

	// Empty settings change nothing.
	keysSet, err = ParseSettings(cfg, "")
	require.NoError(t, err)
	assert.Empty(t, keysSet)

	// Errors.
	_, err = ParseSettings(DefaultConfig(), "no_such_key=1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "image_size")
	_, err = ParseSettings(DefaultConfig(), "batch_size=many")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "batch_size")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "image_size=0")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "zoom_factor=1.5")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "flip_mode=diagonal")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "dtype=Int32")
	require.Error(t, err)
	_, err = ParseSettings(DefaultConfig(), "fill_mode=nearest")
	require.Error(t, err)

	// Disabling flips is valid.
	_, err = ParseSettings(DefaultConfig(), "flip_mode=")
	require.NoError(t, err)
}

func TestParseSettingsFromFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	contents := "# Small images.\nimage_size=32\n\nbatch_size=8;prefetch=0\n"
	require.NoError(t, os.WriteFile(filePath, []byte(contents), 0o644))

	cfg := DefaultConfig()
	keysSet, err := ParseSettings(cfg, "file:"+filePath+";seed=3")
	require.NoError(t, err)
	assert.Equal(t, []string{"image_size", "batch_size", "prefetch", "seed"}, keysSet)
	assert.Equal(t, 32, cfg.ImageSize)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 0, cfg.Prefetch)
	assert.Equal(t, int64(3), cfg.Seed)

	_, err = ParseSettings(cfg, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()
	assert.Contains(t, str, `"image_size": 180`)
	assert.Contains(t, str, `"flip_mode": horizontal_and_vertical`)
	assert.Contains(t, str, `"dtype": Float32`)

	keysSet, err := ParseSettings(cfg, "batch_size=16;image_size=90;batch_size=8")
	require.NoError(t, err)
	assert.Equal(t, "\t\"image_size\": 90\n\t\"batch_size\": 8", cfg.SprintModifiedSettings(keysSet))
}
