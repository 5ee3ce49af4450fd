/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package datasets is a collection of datasets that can be combined into an efficient input pipeline
// for image models: load (FromDirectory, FromImages, NewPreGeneratedDataset), transform (Augment,
// MapImages, Shuffle), convert (ToTensors, Map), batch (Batch) and prefetch (Parallel, ReadAhead).
//
// There are two kinds of datasets:
//
//   - ImageDataset yields one Example at a time, holding a decoded image.Image and its label.
//   - Dataset yields tensors: a `spec`, a slice of `inputs` and a slice of `labels`.
//
// Both return io.EOF at the end of an epoch, and can be restarted with Reset.
//
// It also includes normalization tools.
package datasets

import (
	"fmt"
	"image"
	"io"
	"sync/atomic"

	"github.com/gomlx/augment/pkg/core/tensors"
)

// Example is one image with its label, as yielded by an ImageDataset.
type Example struct {
	// Image holds the decoded image.
	Image image.Image

	// Label is the index of the class of the image.
	Label int

	// Index of the example in its source dataset.
	Index int

	// Path of the file the image was read from, if any.
	Path string
}

// ImageDataset yields one Example at a time.
type ImageDataset interface {
	// Name identifies the dataset. Used for debugging and error messages.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached.
	Reset()

	// Yield the next example. It returns io.EOF at the end of the epoch, and any other error
	// should interrupt the pipeline.
	Yield() (Example, error)
}

// Dataset yields tensors, usually one batch at a time.
type Dataset interface {
	// Name identifies the dataset. Used for debugging and error messages.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one "batch" (or whatever is the unit for a training step) or an error.
	// It returns an opaque `spec` for the dataset (it can be nil), a slice of `inputs` and a slice
	// of `labels` tensors (even when there is only one tensor for each of them).
	//
	// If the error is io.EOF it marks the end of the epoch. Any other error should interrupt the
	// training/evaluation and be returned to the user.
	Yield() (spec any, inputs, labels []*tensors.Tensor, err error)
}

// HasShortName allows a dataset to specify a short name, used when displaying summaries.
// It defaults to the first 3 letters of the dataset name.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}

// HasNumExamples is implemented by datasets that know how many examples they yield per epoch.
type HasNumExamples interface {
	NumExamples() int
}

// HasIsInfinite is implemented by datasets that can be configured to loop indefinitely. Wrapper
// datasets forward it to the dataset they wrap.
type HasIsInfinite interface {
	// IsInfinite returns whether the dataset never returns io.EOF.
	IsInfinite() bool
}

// isInfinite returns whether ds implements HasIsInfinite and loops indefinitely.
func isInfinite(ds any) bool {
	inf, ok := ds.(HasIsInfinite)
	return ok && inf.IsInfinite()
}

// shortNameOf returns the short name of a dataset.
func shortNameOf(name string, ds any) string {
	if sn, ok := ds.(HasShortName); ok {
		return sn.ShortName()
	}
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

// takeDataset implements a Dataset that only yields `take` batches.
type takeDataset struct {
	ds    Dataset
	count atomic.Int64
	take  int64
}

// Take returns a wrapper to `ds`, a Dataset that only yields `n` batches.
func Take(ds Dataset, n int) Dataset {
	return &takeDataset{ds: ds, take: int64(n)}
}

// Name implements Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count.Store(0)
}

// IsInfinite implements HasIsInfinite: Take always ends the epoch.
func (ds *takeDataset) IsInfinite() bool { return false }

// Yield implements Dataset.
func (ds *takeDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if ds.count.Add(1) > ds.take {
		err = io.EOF
		return
	}
	return ds.ds.Yield()
}

// takeImagesDataset implements an ImageDataset that only yields `take` examples.
type takeImagesDataset struct {
	ds    ImageDataset
	count atomic.Int64
	take  int64
}

// TakeImages returns a wrapper to `ds` that only yields `n` examples per epoch.
func TakeImages(ds ImageDataset, n int) ImageDataset {
	return &takeImagesDataset{ds: ds, take: int64(n)}
}

// Name implements ImageDataset.
func (ds *takeImagesDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements ImageDataset.
func (ds *takeImagesDataset) Reset() {
	ds.ds.Reset()
	ds.count.Store(0)
}

// NumExamples implements HasNumExamples.
func (ds *takeImagesDataset) NumExamples() int {
	if hasNum, ok := ds.ds.(HasNumExamples); ok {
		return min(int(ds.take), hasNum.NumExamples())
	}
	return int(ds.take)
}

// IsInfinite implements HasIsInfinite: TakeImages always ends the epoch.
func (ds *takeImagesDataset) IsInfinite() bool { return false }

// Yield implements ImageDataset.
func (ds *takeImagesDataset) Yield() (Example, error) {
	if ds.count.Add(1) > ds.take {
		return Example{}, io.EOF
	}
	return ds.ds.Yield()
}
