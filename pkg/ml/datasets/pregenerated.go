// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// labelSize is the number of bytes used to store the label of each entry: an int32 little-endian.
const labelSize = 4

// entrySize returns the number of bytes of each saved example: the label followed by the RGBA pixels.
func entrySize(width, height int) int {
	return labelSize + 4*width*height
}

// encodeEntry writes the label and the image pixels in non-premultiplied RGBA to buffer.
func encodeEntry(buffer []byte, example Example, width, height int) error {
	if size := example.Image.Bounds().Size(); size.X != width || size.Y != height {
		return errors.Errorf("example #%d has size %dx%d, but saving requires %dx%d (width x height), "+
			"resize the images before saving", example.Index, size.X, size.Y, width, height)
	}
	binary.LittleEndian.PutUint32(buffer, uint32(int32(example.Label)))
	nrgba := imaging.Clone(example.Image)
	copy(buffer[labelSize:], nrgba.Pix)
	return nil
}

// Save generates numEpochs of the dataset, with its configured augmentations and resizing, and saves
// them to w, so they can be read back with NewPreGeneratedDataset. All images must have the same size
// width x height.
//
// Each example is saved as its label (int32 little-endian) followed by width*height*4 bytes of
// non-premultiplied RGBA pixels.
//
// The examples are read by parallel goroutines, so ds must be safe for concurrent use, and the order
// of the saved examples is not preserved. The dataset is Reset after each epoch.
//
// If verbose is set to true, it will output a progress bar.
// It returns the number of examples saved.
func Save(ds ImageDataset, w io.Writer, width, height, numEpochs int, verbose bool) (numExamples int, err error) {
	if isInfinite(ds) {
		return 0, errors.Errorf("cannot Save %d epochs of dataset %q configured to loop indefinitely", numEpochs, ds.Name())
	}
	numSteps := -1 // Unknown.
	if hasNum, ok := ds.(HasNumExamples); ok && hasNum.NumExamples() > 0 {
		numSteps = numEpochs * hasNum.NumExamples()
	}
	var pBar *progressbar.ProgressBar
	if verbose {
		pBar = progressbar.NewOptions(numSteps,
			progressbar.OptionSetDescription("Pre-generating"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
			progressbar.OptionThrottle(250*time.Millisecond),
		)
	}

	parallelism := runtime.NumCPU() + 1
	var muWrite sync.Mutex
	for epoch := range numEpochs {
		g, ctx := errgroup.WithContext(context.Background())
		for range parallelism {
			g.Go(func() error {
				buffer := make([]byte, entrySize(width, height))
				for ctx.Err() == nil {
					example, err := ds.Yield()
					if err == io.EOF {
						return nil
					}
					if err != nil {
						return err
					}
					if err = encodeEntry(buffer, example, width, height); err != nil {
						return err
					}
					muWrite.Lock()
					_, err = w.Write(buffer)
					if err == nil {
						numExamples++
						if pBar != nil {
							_ = pBar.Add(1)
						}
					}
					muWrite.Unlock()
					if err != nil {
						return errors.Wrapf(err, "failed to write pre-generated example")
					}
				}
				return nil
			})
		}
		if err = g.Wait(); err != nil {
			return numExamples, errors.WithMessagef(err, "while saving epoch %d of dataset %q", epoch, ds.Name())
		}
		ds.Reset() // Reset dataset and start over.
	}
	if pBar != nil {
		_ = pBar.Close()
		fmt.Println()
	}
	return numExamples, nil
}

// PreGeneratedDataset implements ImageDataset by reading the images from the pre-generated (resized and
// optionally augmented) images data. See Save for saving these pre-generated files.
//
// It is safe for concurrent use.
type PreGeneratedDataset struct {
	name          string
	filePath      string
	width, height int

	mu              sync.Mutex
	openedFile      *os.File
	reader          *bufio.Reader
	infinite        bool
	err             error
	buffer          []byte
	steps, maxSteps int
}

var _ ImageDataset = &PreGeneratedDataset{}

// NewPreGeneratedDataset creates a PreGeneratedDataset that yields the examples saved with Save
// in filePath. width and height must match the ones used to save it.
func NewPreGeneratedDataset(name, filePath string, width, height int) *PreGeneratedDataset {
	pds := &PreGeneratedDataset{
		name:     name,
		filePath: filePath,
		width:    width,
		height:   height,
		buffer:   make([]byte, entrySize(width, height)),
	}
	pds.Reset() // Sets pds.openedFile with the opened filePath.
	return pds
}

// Name implements ImageDataset.
func (pds *PreGeneratedDataset) Name() string { return pds.name }

// WithMaxSteps configures the dataset to exhaust after those many examples, returning `io.EOF`.
func (pds *PreGeneratedDataset) WithMaxSteps(numSteps int) *PreGeneratedDataset {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	pds.maxSteps = numSteps
	return pds
}

// Infinite configures the dataset to restart from the beginning of the file when it reaches its end.
func (pds *PreGeneratedDataset) Infinite(infinite bool) *PreGeneratedDataset {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	pds.infinite = infinite
	return pds
}

// IsInfinite implements HasIsInfinite. A dataset configured with WithMaxSteps always ends.
func (pds *PreGeneratedDataset) IsInfinite() bool {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	return pds.infinite && pds.maxSteps <= 0
}

// Yield implements ImageDataset.
func (pds *PreGeneratedDataset) Yield() (Example, error) {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	if pds.maxSteps > 0 && pds.steps >= pds.maxSteps {
		return Example{}, io.EOF
	}
	retries := 0
	for { // Loop in case pds.infinite is true, and we retry at end of file.
		if pds.err != nil {
			return Example{}, pds.err
		}
		_, err := io.ReadFull(pds.reader, pds.buffer)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if err == io.ErrUnexpectedEOF {
				pds.err = errors.Errorf("PreGeneratedDataset file %q is truncated, maybe it failed during generation, "+
					"or it was saved with a different image size than %dx%d?", pds.filePath, pds.width, pds.height)
				return Example{}, pds.err
			}
			if !pds.infinite {
				return Example{}, io.EOF
			}
			if retries != 0 {
				pds.err = errors.Errorf("PreGeneratedDataset file %q is empty", pds.filePath)
				return Example{}, pds.err
			}
			retries++
			pds.lockedReopen()
			continue
		}
		if err != nil {
			pds.err = errors.Wrapf(err, "failed reading PreGeneratedDataset from file %q", pds.filePath)
			return Example{}, pds.err
		}
		break
	}

	img := image.NewNRGBA(image.Rect(0, 0, pds.width, pds.height))
	copy(img.Pix, pds.buffer[labelSize:])
	example := Example{
		Image: img,
		Label: int(int32(binary.LittleEndian.Uint32(pds.buffer))),
		Index: pds.steps,
		Path:  pds.filePath,
	}
	pds.steps++
	return example, nil
}

// Reset implements ImageDataset.
func (pds *PreGeneratedDataset) Reset() {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	pds.steps = 0
	pds.lockedReopen()
}

func (pds *PreGeneratedDataset) lockedReopen() {
	if pds.openedFile != nil {
		_ = pds.openedFile.Close()
	}
	pds.openedFile, pds.err = os.Open(pds.filePath)
	if pds.err != nil {
		pds.err = errors.Wrapf(pds.err, "failed to open file %q", pds.filePath)
		return
	}
	pds.reader = bufio.NewReaderSize(pds.openedFile, 1<<20)
}

// Done closes the underlying file.
func (pds *PreGeneratedDataset) Done() {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	if pds.openedFile != nil {
		_ = pds.openedFile.Close()
		pds.openedFile = nil
	}
	pds.err = errors.Errorf("PreGeneratedDataset %q is closed", pds.name)
}
