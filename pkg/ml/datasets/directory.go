// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	// Extra image formats, on top of the ones supported by imaging.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultExtensions lists the file extensions recognized as images by FromDirectory.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// DirectoryConfig holds the configuration of a DirectoryDataset, returned by FromDirectory.
// Once configured, call Done to create the dataset.
type DirectoryConfig struct {
	dir, name  string
	extensions []string
	infinite   bool
	shuffle    *random.Generator

	// Folds.
	numFolds  int
	folds     []int
	foldsSeed int32
}

// FromDirectory configures an ImageDataset that reads the images organized in sub-directories of dir,
// one sub-directory per class:
//
//	dir/
//	  daisy/
//	    image_0001.jpg
//	  roses/
//	    image_0002.jpg
//
// Class names are the sorted sub-directory names, and the label of an image is the index of its class.
// Images in nested directories are assigned the class of the top sub-directory.
//
// It returns a configuration that can be further customized, call Done to create the dataset.
func FromDirectory(dir string) *DirectoryConfig {
	return &DirectoryConfig{
		dir:        dir,
		name:       filepath.Base(dir),
		extensions: DefaultExtensions,
	}
}

// WithName sets the name of the dataset. It defaults to the base name of the directory.
func (c *DirectoryConfig) WithName(name string) *DirectoryConfig {
	c.name = name
	return c
}

// Shuffle the order of the examples at every epoch, using a generator seeded with seed.
func (c *DirectoryConfig) Shuffle(seed int64) *DirectoryConfig {
	c.shuffle = random.NewGenerator(seed)
	return c
}

// Infinite configures the dataset to loop indefinitely, never returning io.EOF.
// If shuffling, each loop is reshuffled.
func (c *DirectoryConfig) Infinite(infinite bool) *DirectoryConfig {
	c.infinite = infinite
	return c
}

// Extensions sets the (case-insensitive) file extensions recognized as images, including the dot.
func (c *DirectoryConfig) Extensions(extensions ...string) *DirectoryConfig {
	c.extensions = extensions
	return c
}

// Folds splits the images into numFolds folds (using foldsSeed) and only includes the images in
// the selected folds. Can be used to split train/validation datasets or run a cross-validation scheme.
//
// The fold of an image is given by the hash of its relative path, so it is stable across runs and
// doesn't depend on the other files in the directory.
func (c *DirectoryConfig) Folds(numFolds int, folds []int, foldsSeed int32) *DirectoryConfig {
	c.numFolds = numFolds
	c.folds = folds
	c.foldsSeed = foldsSeed
	return c
}

// checkFolds checks whether the folds configuration is valid.
func (c *DirectoryConfig) checkFolds() error {
	if c.numFolds < 0 {
		return errors.Errorf("invalid number of folds %d", c.numFolds)
	}
	if c.numFolds > 0 && len(c.folds) == 0 {
		return errors.Errorf("dataset with %d folds, but none selected for this dataset", c.numFolds)
	}
	for _, foldNum := range c.folds {
		if foldNum < 0 || foldNum >= c.numFolds {
			return errors.Errorf("fold %d invalid for dataset with %d folds (folds selection is %v)",
				foldNum, c.numFolds, c.folds)
		}
	}
	return nil
}

// FoldOf returns the fold in [0, numFolds) of the image with the given path (relative to the dataset directory).
func FoldOf(relPath string, numFolds int, foldsSeed int32) int {
	var buffer bytes.Buffer
	_ = binary.Write(&buffer, binary.LittleEndian, foldsSeed)
	buffer.WriteString(filepath.ToSlash(relPath))
	return int(crc32.ChecksumIEEE(buffer.Bytes()) % uint32(numFolds))
}

// inFolds checks whether the image with the relative path is in the folds selection.
func (c *DirectoryConfig) inFolds(relPath string) bool {
	if c.numFolds == 0 {
		return true
	}
	return slices.Contains(c.folds, FoldOf(relPath, c.numFolds, c.foldsSeed))
}

func (c *DirectoryConfig) isImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range c.extensions {
		if strings.ToLower(valid) == ext {
			return true
		}
	}
	return false
}

// Done lists the images in the directory and returns the configured dataset.
func (c *DirectoryConfig) Done() (*DirectoryDataset, error) {
	if err := c.checkFolds(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset directory %q", c.dir)
	}
	ds := &DirectoryDataset{config: *c}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			ds.classNames = append(ds.classNames, entry.Name())
		}
	}
	if len(ds.classNames) == 0 {
		return nil, errors.Errorf("no class sub-directories found in %q", c.dir)
	}
	slices.Sort(ds.classNames)
	ds.classCounts = make([]int, len(ds.classNames))

	for label, className := range ds.classNames {
		classDir := filepath.Join(c.dir, className)
		err = filepath.WalkDir(classDir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || !c.isImage(path) {
				return nil
			}
			relPath, err := filepath.Rel(c.dir, path)
			if err != nil {
				return err
			}
			if !c.inFolds(relPath) {
				return nil
			}
			ds.paths = append(ds.paths, path)
			ds.labels = append(ds.labels, label)
			ds.classCounts[label]++
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list images of class %q", className)
		}
	}
	if len(ds.paths) == 0 {
		return nil, errors.Errorf("no images found in %q (extensions %v, folds %v of %d)",
			c.dir, c.extensions, c.folds, c.numFolds)
	}
	klog.V(1).Infof("dataset %q: %d images in %d classes", ds.config.name, len(ds.paths), len(ds.classNames))
	ds.order = make([]int, len(ds.paths))
	ds.Reset()
	return ds, nil
}

// DirectoryDataset is an ImageDataset that reads images from a directory, see FromDirectory.
//
// It is safe for concurrent use: the images are decoded in the goroutine calling Yield, so it can
// be parallelized with ParallelImages.
type DirectoryDataset struct {
	config      DirectoryConfig
	classNames  []string
	classCounts []int
	paths       []string
	labels      []int

	mu    sync.Mutex
	order []int
	next  int
}

var _ ImageDataset = &DirectoryDataset{}

// Name implements ImageDataset.
func (ds *DirectoryDataset) Name() string { return ds.config.name }

// ClassNames returns the names of the classes, indexed by label.
func (ds *DirectoryDataset) ClassNames() []string { return ds.classNames }

// ClassCounts returns the number of images of each class, indexed by label.
func (ds *DirectoryDataset) ClassCounts() []int { return ds.classCounts }

// NumExamples implements HasNumExamples. It returns the number of images per epoch.
func (ds *DirectoryDataset) NumExamples() int { return len(ds.paths) }

// IsInfinite returns whether the dataset loops indefinitely.
func (ds *DirectoryDataset) IsInfinite() bool { return ds.config.infinite }

// Paths returns the paths of the images, indexed by Example.Index.
func (ds *DirectoryDataset) Paths() []string { return ds.paths }

// Reset implements ImageDataset. If shuffling, it reshuffles the images.
func (ds *DirectoryDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.lockedReset()
}

func (ds *DirectoryDataset) lockedReset() {
	ds.next = 0
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	if ds.config.shuffle != nil {
		ds.config.shuffle.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// Yield implements ImageDataset. It reads and decodes the next image, applying the EXIF orientation.
func (ds *DirectoryDataset) Yield() (Example, error) {
	ds.mu.Lock()
	if ds.next >= len(ds.order) {
		if !ds.config.infinite {
			ds.mu.Unlock()
			return Example{}, io.EOF
		}
		ds.lockedReset()
	}
	index := ds.order[ds.next]
	ds.next++
	ds.mu.Unlock()

	path := ds.paths[index]
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Example{}, errors.Wrapf(err, "dataset %q failed to read image %q", ds.config.name, path)
	}
	return Example{Image: img, Label: ds.labels[index], Index: index, Path: path}, nil
}
