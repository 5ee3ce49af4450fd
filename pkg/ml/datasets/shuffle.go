// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/gomlx/exceptions"
)

// shuffleDataset implements a buffered shuffle over an ImageDataset. See Shuffle.
type shuffleDataset struct {
	ds         ImageDataset
	bufferSize int
	gen        *random.Generator

	mu        sync.Mutex
	buffer    []Example
	exhausted bool
}

var _ ImageDataset = (*shuffleDataset)(nil)

// Shuffle returns an ImageDataset that shuffles the examples of ds using a buffer of bufferSize examples:
// it fills the buffer with the first examples of ds, and then each Yield returns a random example from the
// buffer, replacing it with the next example from ds.
//
// A buffer larger or equal to the number of examples yields a perfect shuffle. A bufferSize of 1
// preserves the order.
//
// The generator is seeded with seed once, and each epoch (after Reset) continues with its state,
// so each epoch has a different order, but the sequence of epochs is reproducible.
//
// It is safe for concurrent use, but the upstream ds is only read by one goroutine at a time.
// To decode images in parallel, use ParallelImages on ds before shuffling.
func Shuffle(ds ImageDataset, bufferSize int, seed int64) ImageDataset {
	if bufferSize <= 0 {
		exceptions.Panicf("datasets.Shuffle(bufferSize=%d): bufferSize must be > 0", bufferSize)
	}
	return &shuffleDataset{
		ds:         ds,
		bufferSize: bufferSize,
		gen:        random.NewGenerator(seed),
		buffer:     make([]Example, 0, min(bufferSize, 1024)),
	}
}

// Name implements ImageDataset.
func (ds *shuffleDataset) Name() string {
	return fmt.Sprintf("%s [Shuffle]", ds.ds.Name())
}

// NumExamples implements HasNumExamples, if the wrapped dataset does.
func (ds *shuffleDataset) NumExamples() int {
	if hasNum, ok := ds.ds.(HasNumExamples); ok {
		return hasNum.NumExamples()
	}
	return -1
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (ds *shuffleDataset) IsInfinite() bool { return isInfinite(ds.ds) }

// Reset implements ImageDataset.
func (ds *shuffleDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	clear(ds.buffer)
	ds.buffer = ds.buffer[:0]
	ds.exhausted = false
	ds.ds.Reset()
}

// Yield implements ImageDataset.
func (ds *shuffleDataset) Yield() (Example, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	// Fill the buffer.
	for !ds.exhausted && len(ds.buffer) < ds.bufferSize {
		example, err := ds.ds.Yield()
		if err == io.EOF {
			ds.exhausted = true
			break
		}
		if err != nil {
			return Example{}, err
		}
		ds.buffer = append(ds.buffer, example)
	}
	if len(ds.buffer) == 0 {
		return Example{}, io.EOF
	}

	// Take a random element, and move the last one to its place.
	idx := ds.gen.IntN(len(ds.buffer))
	example := ds.buffer[idx]
	last := len(ds.buffer) - 1
	ds.buffer[idx] = ds.buffer[last]
	ds.buffer[last] = Example{}
	ds.buffer = ds.buffer[:last]
	return example, nil
}
