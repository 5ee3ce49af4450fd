// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/augment/pkg/support/xsync"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// parallelConfig holds the configuration shared by ParallelDataset and ParallelImagesDataset.
type parallelConfig struct {
	// name is set by default to the underlying dataset name.
	name, shortName string

	// parallelism is the number of goroutines started generating examples.
	parallelism int

	// extraBufferSize is the size of the buffer of pre-generated results.
	extraBufferSize int
}

// parallelImpl separates the implementation of the parallel datasets. It's important
// that it doesn't point back to the original dataset object, so garbage collecting
// it will also stop the goroutines.
type parallelImpl[U any] struct {
	config  parallelConfig
	yieldFn func() (U, error)
	resetFn func()

	err   error
	muErr sync.Mutex

	buffer                   chan U
	epochFinished, stopEpoch *xsync.Latch
	stopDataset              *xsync.Latch
}

func newParallelImpl[U any](config parallelConfig, yieldFn func() (U, error), resetFn func()) *parallelImpl[U] {
	impl := &parallelImpl[U]{
		config:      config,
		yieldFn:     yieldFn,
		resetFn:     resetFn,
		buffer:      make(chan U, config.extraBufferSize),
		stopDataset: xsync.NewLatch(),
	}
	impl.startGoRoutines()
	return impl
}

func (impl *parallelImpl[U]) startGoRoutines() {
	epochFinished, stopEpoch := xsync.NewLatch(), xsync.NewLatch()
	impl.epochFinished, impl.stopEpoch = epochFinished, stopEpoch
	var wg sync.WaitGroup
	for range impl.config.parallelism {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if stopEpoch.Test() || impl.stopDataset.Test() {
					return
				}
				unit, err := impl.yieldFn()
				if err == io.EOF {
					return
				}
				if err != nil {
					klog.Errorf("Error in parallel dataset %q: %+v", impl.config.name, err)
					// Fatal error, stop everything.
					impl.muErr.Lock()
					if impl.err == nil {
						impl.err = err
					}
					impl.muErr.Unlock()
					impl.stopDataset.Trigger()
					return
				}
				select {
				case <-stopEpoch.WaitChan():
					return
				case <-impl.stopDataset.WaitChan():
					return
				case impl.buffer <- unit:
					// Result generated and buffered, move to next.
				}
			}
		}()
	}

	// Controller: marks the end of the epoch once all goroutines exited.
	go func() {
		wg.Wait()
		epochFinished.Trigger()
	}()
}

func (impl *parallelImpl[U]) yield() (unit U, err error) {
	select {
	case <-impl.stopDataset.WaitChan():
		// An error occurred or the dataset was stopped.
		impl.muErr.Lock()
		err = impl.err
		impl.muErr.Unlock()
		if err == nil {
			err = errors.Errorf("parallel dataset %q was stopped with Done", impl.config.name)
		}
		return
	case unit = <-impl.buffer:
		// We got a new result.
	case <-impl.epochFinished.WaitChan():
		// No more records being produced (until Reset() is called), but we still need to exhaust the buffer.
		select {
		case unit = <-impl.buffer:
			// We got a new result, simply continue.
		default:
			// Generation exhausted, and no more records in buffer.
			err = io.EOF
		}
	}
	return
}

func (impl *parallelImpl[U]) reset() {
	// Indicate to the goroutines to stop generating, and drain whatever is still in the buffer.
	impl.stopEpoch.Trigger()
drainDataset:
	for {
		select {
		case <-impl.stopDataset.WaitChan():
			// Return immediately, do nothing.
			return
		case <-impl.epochFinished.WaitChan():
			// All finished, we can move on.
			break drainDataset
		case <-impl.buffer:
			// Discard remaining entries that were in the buffer.
		}
	}
	for len(impl.buffer) > 0 {
		<-impl.buffer
	}

	// Reset underlying dataset and start again.
	impl.resetFn()
	impl.startGoRoutines()
}

// stop the goroutines and wait for them to finish.
func (impl *parallelImpl[U]) stop() {
	impl.stopDataset.Trigger()
	impl.epochFinished.Wait()
}

func (c *parallelConfig) checkNotStarted(started bool, method string) {
	if started {
		exceptions.Panicf("parallel dataset %q: %s called after Start", c.name, method)
	}
}

func (c *parallelConfig) setParallelism(n int) {
	if n == 0 {
		n = runtime.NumCPU() + 1
	}
	c.parallelism = n
}

type yieldUnit struct {
	spec   any
	inputs []*tensors.Tensor
	labels []*tensors.Tensor
}

// ParallelDataset is a wrapper around a Dataset that parallelizes calls to Yield.
// See details in CustomParallel.
type ParallelDataset struct {
	Dataset Dataset
	config  parallelConfig
	impl    *parallelImpl[yieldUnit]
}

var _ Dataset = (*ParallelDataset)(nil)

// Parallel parallelizes yield calls of any thread-safe Dataset.
//
// It uses CustomParallel and automatically starts it with the default parameters.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
//
// The order of the yields is not preserved -- the parallelization may yield results in different order.
//
// Example:
//
//	var ds datasets.Dataset
//	ds = NewMyDataset(...)
//	ds = datasets.Parallel(ds)
//	MyTrainFunc(ds)
func Parallel(ds Dataset) *ParallelDataset {
	pd := CustomParallel(ds)
	return pd.Buffer(pd.config.parallelism).Start()
}

// CustomParallel builds a ParallelDataset that can be used to parallelize any
// Dataset, as long as the underlying dataset ds is thread-safe.
//
// ParallelDataset can be further configured (see Parallelism and Buffer),
// and then one has to call Start before actually using the Dataset.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
//
// Example:
//
//	ds = datasets.CustomParallel(ds).Buffer(10).Start()
func CustomParallel(ds Dataset) *ParallelDataset {
	pd := &ParallelDataset{Dataset: ds}
	pd.config.name = ds.Name()
	pd.config.shortName = shortNameOf(pd.config.name, ds)
	pd.config.setParallelism(0)
	return pd
}

// Parallelism is the number of goroutines to start, each calling `ds.Yield()` in parallel
// to accelerate the generation of batches. If set to 0 (the default), it will use the
// number of cores in the system plus 1.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Parallelism(n int) *ParallelDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Parallelism")
	pd.config.setParallelism(n)
	return pd
}

// WithName sets the name of the parallel dataset, and optionally its short name.
// It defaults to the original dataset name.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) WithName(name string, shortName ...string) *ParallelDataset {
	pd.config.name = name
	if len(shortName) > 0 {
		pd.config.shortName = shortName[0]
	}
	return pd
}

// Buffer reserved in the channel that collects the parallel yields.
// Notice there is already an intrinsic buffering that happens in the goroutines sampling
// in parallel.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Buffer(n int) *ParallelDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Buffer")
	pd.config.extraBufferSize = max(0, n)
	return pd
}

// Start indicates that the dataset is finished to be configured, and starts
// being a valid Dataset.
//
// After Start its configuration can no longer be changed.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Start() *ParallelDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Start")
	ds := pd.Dataset
	pd.impl = newParallelImpl(pd.config,
		func() (unit yieldUnit, err error) {
			unit.spec, unit.inputs, unit.labels, err = ds.Yield()
			return
		},
		ds.Reset)
	// If the ParallelDataset is garbage collected, stop all parallel goroutines.
	runtime.SetFinalizer(pd, func(pd *ParallelDataset) {
		if pd.impl != nil {
			pd.impl.stopDataset.Trigger()
		}
	})
	return pd
}

// Name implements Dataset.
func (pd *ParallelDataset) Name() string { return pd.config.name }

// ShortName returns a short version of the dataset name, it implements HasShortName.
func (pd *ParallelDataset) ShortName() string { return pd.config.shortName }

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (pd *ParallelDataset) IsInfinite() bool { return isInfinite(pd.Dataset) }

// Done stops all the parallel goroutines and waits for them to finish.
func (pd *ParallelDataset) Done() {
	if pd.impl != nil {
		pd.impl.stop()
	}
}

// Reset implements Dataset.
func (pd *ParallelDataset) Reset() {
	if pd.impl == nil {
		klog.Warningf("ParallelDataset.Reset was called before it was started with ParallelDataset.Start")
		return
	}
	pd.impl.reset()
	runtime.KeepAlive(pd)
}

// Yield implements Dataset.
func (pd *ParallelDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if pd.impl == nil {
		err = errors.Errorf("ParallelDataset.Yield was called before it was started with ParallelDataset.Start")
		return
	}
	unit, err := pd.impl.yield()
	spec, inputs, labels = unit.spec, unit.inputs, unit.labels
	runtime.KeepAlive(pd)
	return
}

// ParallelImagesDataset is a wrapper around an ImageDataset that parallelizes calls to Yield,
// typically to decode and augment images using all cores.
// See details in CustomParallelImages.
type ParallelImagesDataset struct {
	Dataset ImageDataset
	config  parallelConfig
	impl    *parallelImpl[Example]
}

var _ ImageDataset = (*ParallelImagesDataset)(nil)

// ParallelImages parallelizes yield calls of any thread-safe ImageDataset, with the default parameters.
// The order of the examples is not preserved.
//
// To avoid leaking goroutines, call ParallelImagesDataset.Done when exiting.
func ParallelImages(ds ImageDataset) *ParallelImagesDataset {
	pd := CustomParallelImages(ds)
	return pd.Buffer(pd.config.parallelism).Start()
}

// CustomParallelImages builds a ParallelImagesDataset, that can be further configured (see Parallelism
// and Buffer) before calling Start. The underlying dataset must be thread-safe.
func CustomParallelImages(ds ImageDataset) *ParallelImagesDataset {
	pd := &ParallelImagesDataset{Dataset: ds}
	pd.config.name = ds.Name()
	pd.config.shortName = shortNameOf(pd.config.name, ds)
	pd.config.setParallelism(0)
	return pd
}

// Parallelism is the number of goroutines to start, each calling `ds.Yield()` in parallel.
// If set to 0 (the default), it will use the number of cores in the system plus 1.
//
// This must be called before a call to Start.
func (pd *ParallelImagesDataset) Parallelism(n int) *ParallelImagesDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Parallelism")
	pd.config.setParallelism(n)
	return pd
}

// Buffer reserved in the channel that collects the parallel yields.
//
// This must be called before a call to Start.
func (pd *ParallelImagesDataset) Buffer(n int) *ParallelImagesDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Buffer")
	pd.config.extraBufferSize = max(0, n)
	return pd
}

// WithName sets the name of the parallel dataset, and optionally its short name.
func (pd *ParallelImagesDataset) WithName(name string, shortName ...string) *ParallelImagesDataset {
	pd.config.name = name
	if len(shortName) > 0 {
		pd.config.shortName = shortName[0]
	}
	return pd
}

// Start the goroutines. After Start its configuration can no longer be changed.
func (pd *ParallelImagesDataset) Start() *ParallelImagesDataset {
	pd.config.checkNotStarted(pd.impl != nil, "Start")
	pd.impl = newParallelImpl(pd.config, pd.Dataset.Yield, pd.Dataset.Reset)
	runtime.SetFinalizer(pd, func(pd *ParallelImagesDataset) {
		if pd.impl != nil {
			pd.impl.stopDataset.Trigger()
		}
	})
	return pd
}

// Name implements ImageDataset.
func (pd *ParallelImagesDataset) Name() string { return pd.config.name }

// ShortName implements HasShortName.
func (pd *ParallelImagesDataset) ShortName() string { return pd.config.shortName }

// NumExamples implements HasNumExamples, if the wrapped dataset does.
func (pd *ParallelImagesDataset) NumExamples() int {
	if hasNum, ok := pd.Dataset.(HasNumExamples); ok {
		return hasNum.NumExamples()
	}
	return -1
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (pd *ParallelImagesDataset) IsInfinite() bool { return isInfinite(pd.Dataset) }

// Done stops all the parallel goroutines and waits for them to finish.
func (pd *ParallelImagesDataset) Done() {
	if pd.impl != nil {
		pd.impl.stop()
	}
}

// Reset implements ImageDataset.
func (pd *ParallelImagesDataset) Reset() {
	if pd.impl == nil {
		klog.Warningf("ParallelImagesDataset.Reset was called before it was started with ParallelImagesDataset.Start")
		return
	}
	pd.impl.reset()
	runtime.KeepAlive(pd)
}

// Yield implements ImageDataset.
func (pd *ParallelImagesDataset) Yield() (Example, error) {
	if pd.impl == nil {
		return Example{}, errors.Errorf("ParallelImagesDataset.Yield was called before it was started with ParallelImagesDataset.Start")
	}
	example, err := pd.impl.yield()
	runtime.KeepAlive(pd)
	return example, err
}
