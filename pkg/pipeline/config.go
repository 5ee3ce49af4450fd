// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/augment/pkg/ml/layers/preprocessing"
	"github.com/gomlx/augment/pkg/support/fsutil"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Config holds the hyperparameters of the input pipeline.
//
// Create it with DefaultConfig and change it with ParseSettings, or by setting the fields directly.
type Config struct {
	// ImageSize is the height and width of the images after resizing.
	ImageSize int

	// ResizeMethod is the interpolation used for resizing, see imageops.ParseResizeMethod.
	ResizeMethod string

	// BatchSize is the number of examples per batch.
	BatchSize int

	// ShuffleBuffer is the size of the shuffle buffer used for training. If 0 the examples are not shuffled.
	ShuffleBuffer int

	// Seed for the shuffling and for the random augmentations.
	Seed int64

	// Augment enables the random augmentations in training.
	Augment bool

	// FlipMode for the random flips: "horizontal", "vertical" or "horizontal_and_vertical".
	// If empty, images are not flipped.
	FlipMode string

	// RotationFactor is the fraction of a full turn for the random rotations, in both directions.
	// So 0.2 rotates by up to ±72 degrees. If 0 images are not rotated.
	RotationFactor float64

	// FillMode of the areas uncovered by rotations and zooms, see imageops.ParseFillMode.
	FillMode string

	// ZoomFactor is the maximum fraction of zoom in or out. If 0 images are not zoomed.
	ZoomFactor float64

	// ContrastFactor is the maximum relative change of contrast. If 0 the contrast is not changed.
	ContrastFactor float64

	// InvertFactor is the probability of inverting the colors of an image. If 0 images are not inverted.
	InvertFactor float64

	// BrightnessDelta is the maximum brightness change of the stateless augmentations.
	BrightnessDelta float64

	// Parallelism is the number of goroutines used for the parallel map, 0 for the number of cores + 1.
	Parallelism int

	// Prefetch is the number of batches to read ahead, datasets.Autotune (-1) for the number of cores.
	// If 0 there is no prefetching.
	Prefetch int

	// Scale and Offset used to rescale pixels from their [0, 1] values: x*Scale + Offset.
	Scale, Offset float64

	// DType of the image tensors. It must be a float type.
	DType string
}

// DefaultConfig returns the default pipeline configuration: images resized to 180x180, batches of 32,
// horizontal and vertical flips and rotations of up to ±72 degrees.
func DefaultConfig() *Config {
	return &Config{
		ImageSize:       180,
		ResizeMethod:    imageops.Bilinear.String(),
		BatchSize:       32,
		ShuffleBuffer:   1000,
		Seed:            42,
		Augment:         true,
		FlipMode:        preprocessing.HorizontalAndVertical.String(),
		RotationFactor:  0.2,
		FillMode:        imageops.FillReflect.String(),
		BrightnessDelta: 0.5,
		Prefetch:        -1,
		Scale:           1,
		DType:           dtypes.Float32.String(),
	}
}

// setting is one entry of the settings a user can change by name.
type setting struct {
	key   string
	value any // Pointer to the Config field.
}

// settings returns the list of settings, in the order they are printed.
func (cfg *Config) settings() []setting {
	return []setting{
		{"image_size", &cfg.ImageSize},
		{"resize_method", &cfg.ResizeMethod},
		{"batch_size", &cfg.BatchSize},
		{"shuffle_buffer", &cfg.ShuffleBuffer},
		{"seed", &cfg.Seed},
		{"augment", &cfg.Augment},
		{"flip_mode", &cfg.FlipMode},
		{"rotation_factor", &cfg.RotationFactor},
		{"fill_mode", &cfg.FillMode},
		{"zoom_factor", &cfg.ZoomFactor},
		{"contrast_factor", &cfg.ContrastFactor},
		{"invert_factor", &cfg.InvertFactor},
		{"brightness_delta", &cfg.BrightnessDelta},
		{"parallelism", &cfg.Parallelism},
		{"prefetch", &cfg.Prefetch},
		{"scale", &cfg.Scale},
		{"offset", &cfg.Offset},
		{"dtype", &cfg.DType},
	}
}

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "image_size=224;batch_size=64;...".
//
// A setting can also be "file:<path>", in which case the settings are read from the file, with
// new-lines working as ";" and lines starting with "#" considered comments.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// It returns the list of settings keys that were set, and an error if a key is unknown, if a value
// fails to parse, or if the resulting configuration is invalid (see Config.Validate).
func ParseSettings(cfg *Config, settings string) (keysSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		keysSet, err = parseSetting(cfg, setting, keysSet)
		if err != nil {
			return
		}
	}
	err = cfg.Validate()
	return
}

func parseSetting(cfg *Config, settingStr string, keysSet []string) (newKeysSet []string, err error) {
	newKeysSet = keysSet
	settingStr = strings.TrimSpace(settingStr)
	if settingStr == "" {
		return
	}
	if filePath, found := strings.CutPrefix(settingStr, "file:"); found {
		filePath, err = fsutil.ExpandPath(filePath)
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, lineSetting := range strings.Split(line, ";") {
				newKeysSet, err = parseSetting(cfg, lineSetting, newKeysSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	key, valueStr, found := strings.Cut(settingStr, "=")
	if !found {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<key>=<value>\"", settingStr)
		return
	}
	key = strings.TrimSpace(key)
	idx := slices.IndexFunc(cfg.settings(), func(s setting) bool { return s.key == key })
	if idx == -1 {
		err = errors.Errorf("unknown setting %q, valid settings are: %s", key, strings.Join(cfg.keys(), ", "))
		return
	}
	switch v := cfg.settings()[idx].value.(type) {
	case *int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), v)
	case *int64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), v)
	case *float64:
		err = json.Unmarshal([]byte(valueStr), v)
	case *bool:
		err = json.Unmarshal([]byte(valueStr), v)
	case *string:
		*v = valueStr
	default:
		err = errors.Errorf("don't know how to parse type %T for setting %q", v, key)
	}
	if err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for setting %q", valueStr, key)
		return
	}
	newKeysSet = append(newKeysSet, key)
	return
}

func (cfg *Config) keys() []string {
	var keys []string
	for _, s := range cfg.settings() {
		keys = append(keys, s.key)
	}
	return keys
}

// Validate checks that the configuration values are valid.
func (cfg *Config) Validate() error {
	if cfg.ImageSize <= 0 {
		return errors.Errorf("image_size must be > 0, got %d", cfg.ImageSize)
	}
	if cfg.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.ShuffleBuffer < 0 {
		return errors.Errorf("shuffle_buffer must be >= 0, got %d", cfg.ShuffleBuffer)
	}
	if cfg.Parallelism < 0 {
		return errors.Errorf("parallelism must be >= 0, got %d", cfg.Parallelism)
	}
	if cfg.Prefetch < -1 {
		return errors.Errorf("prefetch must be >= -1 (-1 for autotune), got %d", cfg.Prefetch)
	}
	if _, err := imageops.ParseResizeMethod(cfg.ResizeMethod); err != nil {
		return err
	}
	if _, err := imageops.ParseFillMode(cfg.FillMode); err != nil {
		return err
	}
	if cfg.FlipMode != "" {
		if _, err := preprocessing.ParseFlipMode(cfg.FlipMode); err != nil {
			return err
		}
	}
	for _, factor := range []struct {
		key        string
		value, max float64
	}{
		{"rotation_factor", cfg.RotationFactor, 1},
		{"zoom_factor", cfg.ZoomFactor, 0.99},
		{"contrast_factor", cfg.ContrastFactor, 1},
		{"invert_factor", cfg.InvertFactor, 1},
		{"brightness_delta", cfg.BrightnessDelta, 1},
	} {
		if factor.value < 0 || factor.value > factor.max {
			return errors.Errorf("%s must be in the range [0, %g], got %g", factor.key, factor.max, factor.value)
		}
	}
	dtype, err := dtypes.DTypeString(cfg.DType)
	if err != nil {
		return errors.Wrapf(err, "invalid dtype %q", cfg.DType)
	}
	if !dtype.IsFloat() {
		return errors.Errorf("dtype must be a float type, got %s", dtype)
	}
	return nil
}

// TensorDType returns the parsed DType. It assumes the configuration is valid.
func (cfg *Config) TensorDType() dtypes.DType {
	dtype, _ := dtypes.DTypeString(cfg.DType)
	return dtype
}

// String implements fmt.Stringer, with one "key: value" per line.
func (cfg *Config) String() string {
	parts := make([]string, 0, len(cfg.settings()))
	for _, s := range cfg.settings() {
		parts = append(parts, fmt.Sprintf("\t%q: %v", s.key, deref(s.value)))
	}
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-prints only the settings in keysSet, as returned by ParseSettings.
func (cfg *Config) SprintModifiedSettings(keysSet []string) string {
	keysSet = slices.Clone(keysSet)
	slices.Sort(keysSet)
	keysSet = slices.Compact(keysSet)
	var parts []string
	for _, s := range cfg.settings() {
		if _, found := slices.BinarySearch(keysSet, s.key); found {
			parts = append(parts, fmt.Sprintf("\t%q: %v", s.key, deref(s.value)))
		}
	}
	return strings.Join(parts, "\n")
}

func deref(ptr any) any {
	switch v := ptr.(type) {
	case *int:
		return *v
	case *int64:
		return *v
	case *float64:
		return *v
	case *bool:
		return *v
	case *string:
		return *v
	}
	return ptr
}

// CreateSettingsFlag creates a string flag with the given flagName (if empty it will be named
// "set") and with a description of the settings and their default values in cfg.
//
// The flag should be created before the call to `flag.Parse()`.
//
// Example usage:
//
//	func main() {
//		cfg := pipeline.DefaultConfig()
//		settings := pipeline.CreateSettingsFlag(cfg, "")
//		flag.Parse()
//		_, err := pipeline.ParseSettings(cfg, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(cfg)
//		...
//	}
func CreateSettingsFlag(cfg *Config, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Set the pipeline parameters. ` +
			`It should be a list of elements "key=value" separated by ";". ` +
			`It can also be given an entry like: "file:settings_file.txt", in ` +
			`which case the file will be read and the settings will be parsed, ` +
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. ` +
			`Current available settings:`,
	}
	for _, s := range cfg.settings() {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", s.key, deref(s.value)))
	}
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(parts, "\n"))
	return &settings
}
