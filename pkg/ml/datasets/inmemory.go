// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"image"
	"io"
	"sync"

	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/pkg/errors"
)

// InMemoryImagesDataset yields images held in memory. Create it with FromImages.
//
// It is safe for concurrent use.
type InMemoryImagesDataset struct {
	name      string
	shortName string
	images    []image.Image
	labels    []int

	mu       sync.Mutex
	order    []int
	next     int
	infinite bool
	shuffle  *random.Generator
}

var _ ImageDataset = &InMemoryImagesDataset{}

// FromImages creates an ImageDataset with the given images and labels, yielded in order.
// imgs and labels must have the same length.
func FromImages(name string, imgs []image.Image, labels []int) (*InMemoryImagesDataset, error) {
	if len(imgs) != len(labels) {
		return nil, errors.Errorf("FromImages(%q): %d images but %d labels given", name, len(imgs), len(labels))
	}
	ds := &InMemoryImagesDataset{
		name:   name,
		images: imgs,
		labels: labels,
		order:  make([]int, len(imgs)),
	}
	ds.Reset()
	return ds, nil
}

// Name implements ImageDataset.
func (ds *InMemoryImagesDataset) Name() string { return ds.name }

// ShortName implements HasShortName.
func (ds *InMemoryImagesDataset) ShortName() string {
	if ds.shortName != "" {
		return ds.shortName
	}
	return shortNameOf(ds.name, nil)
}

// SetName sets the name of the dataset, and optionally its short name.
// It returns the updated dataset, so calls can be cascaded.
func (ds *InMemoryImagesDataset) SetName(name string, shortName ...string) *InMemoryImagesDataset {
	ds.name = name
	if len(shortName) > 0 {
		ds.shortName = shortName[0]
	}
	return ds
}

// NumExamples implements HasNumExamples.
func (ds *InMemoryImagesDataset) NumExamples() int { return len(ds.images) }

// Shuffle the examples at every epoch, using a generator seeded with seed.
// It returns the updated dataset, so calls can be cascaded.
func (ds *InMemoryImagesDataset) Shuffle(seed int64) *InMemoryImagesDataset {
	ds.mu.Lock()
	ds.shuffle = random.NewGenerator(seed)
	ds.mu.Unlock()
	ds.Reset()
	return ds
}

// Infinite configures the dataset to loop indefinitely, never returning io.EOF.
// It returns the updated dataset, so calls can be cascaded.
func (ds *InMemoryImagesDataset) Infinite(infinite bool) *InMemoryImagesDataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.infinite = infinite
	return ds
}

// IsInfinite returns whether the dataset was configured to loop indefinitely.
func (ds *InMemoryImagesDataset) IsInfinite() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.infinite
}

// Reset implements ImageDataset.
func (ds *InMemoryImagesDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.lockedReset()
}

func (ds *InMemoryImagesDataset) lockedReset() {
	ds.next = 0
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	if ds.shuffle != nil {
		ds.shuffle.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// Yield implements ImageDataset.
func (ds *InMemoryImagesDataset) Yield() (Example, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.next >= len(ds.order) {
		if !ds.infinite || len(ds.order) == 0 {
			return Example{}, io.EOF
		}
		ds.lockedReset()
	}
	index := ds.order[ds.next]
	ds.next++
	return Example{Image: ds.images[index], Label: ds.labels[index], Index: index}, nil
}
