package datasets

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/augment/pkg/core/shapes"
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

type batchElement struct {
	inputs, labels []*tensors.Tensor
	spec           any
}

// batchedDataset implements Dataset and batches results from the underlying dataset.
//
// See details in Batch, the function used to create it.
type batchedDataset struct {
	ds Dataset // Source Dataset.

	batchSize                              int
	createLeadingAxis, dropIncompleteBatch bool

	buffer []batchElement
	mu     sync.Mutex // Protects buffer.
}

// Batch creates dataset that batches `ds` into batches of size `batchSize`. The tensors are batched
// on the host.
//
// Typically, Batch can benefit from ReadAhead, so while training or evaluation of batch
// is happening, the next batch is being built.
//
// Args:
//   - `ds`: the dataset to be batched.
//   - `batchSize`: size of each batch, except when there are no more examples, in which
//     case batches can be smaller (except if `dropIncompleteBatch` was selected).
//   - `createLeadingAxis`: usually set to true, it will create a new leading
//     axis that becomes the batch dimension. Otherwise, it simply concatenates the individual
//     results at the axis 0 -- this can be used for instance to increase the size of a batch.
//   - `dropIncompleteBatch`: at the end of an epoch, if there are not enough examples to fill a
//     batch, and this is set to true, the last batch is dropped. Otherwise, it returns only
//     a partial batch. Usually desirable for evaluation, but not desirable for training.
//
// Returns a Dataset that yields batched examples.
func Batch(ds Dataset, batchSize int, createLeadingAxis, dropIncompleteBatch bool) Dataset {
	if batchSize <= 0 {
		exceptions.Panicf("datasets.Batch(batchSize=%d): batchSize must be > 0", batchSize)
	}
	return &batchedDataset{
		ds:                  ds,
		batchSize:           batchSize,
		createLeadingAxis:   createLeadingAxis,
		dropIncompleteBatch: dropIncompleteBatch,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *batchedDataset) Name() string {
	return fmt.Sprintf("%s [Batch]", ds.ds.Name())
}

// IsInfinite implements HasIsInfinite, forwarding to the wrapped dataset.
func (ds *batchedDataset) IsInfinite() bool { return isInfinite(ds.ds) }

// Reset implements Dataset.
func (ds *batchedDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.lockedFreeBuffer()
	ds.ds.Reset()
}

// lockedFreeBuffer drops the references to the intermediary tensors. It must be called with `ds.mu` locked.
func (ds *batchedDataset) lockedFreeBuffer() {
	clear(ds.buffer)
	ds.buffer = ds.buffer[0:0]
}

// Yield implements Dataset.
func (ds *batchedDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for len(ds.buffer) < ds.batchSize {
		var e batchElement
		e.spec, e.inputs, e.labels, err = ds.ds.Yield()
		if err == io.EOF {
			if ds.dropIncompleteBatch || len(ds.buffer) == 0 {
				ds.lockedFreeBuffer()
				return
			}
			// Else returns incomplete batch.
			err = nil
			break
		}
		if err != nil {
			// Examples read before the error are not batched with the ones that follow.
			ds.lockedFreeBuffer()
			return
		}
		ds.buffer = append(ds.buffer, e)
	}

	// Return the batch -- in case this is the last one, and dropIncompleteBatch == false, it
	// may be a partial batch.
	batched, err := ds.lockedBatchBuffer()
	ds.lockedFreeBuffer()
	if err != nil {
		return
	}
	spec, inputs, labels = batched.spec, batched.inputs, batched.labels
	return
}

// lockedBatchBuffer batches each element of inputs and labels, and take the first `spec` value.
// It assumes `ds.mu` is locked.
func (ds *batchedDataset) lockedBatchBuffer() (batched batchElement, err error) {
	if len(ds.buffer) == 0 {
		err = errors.Errorf("trying to batch a zero elements in the buffer!?")
		return
	}
	e := ds.buffer[0]
	batched.spec = e.spec
	inputsShapes := tensorsShapes(e.inputs)
	labelsShapes := tensorsShapes(e.labels)

	// Check that the other elements of the buffer have the same shape.
	for ii := 1; ii < len(ds.buffer); ii++ {
		e = ds.buffer[ii]
		if err = checkShapes("input", inputsShapes, e.inputs); err != nil {
			return
		}
		if err = checkShapes("label", labelsShapes, e.labels); err != nil {
			return
		}
	}

	allInputs := make([][]*tensors.Tensor, 0, len(ds.buffer))
	allLabels := make([][]*tensors.Tensor, 0, len(ds.buffer))
	for _, e := range ds.buffer {
		allInputs = append(allInputs, e.inputs)
		allLabels = append(allLabels, e.labels)
	}
	err = exceptions.TryCatch[error](func() {
		batched.inputs = ds.batchTensorsList(allInputs)
		batched.labels = ds.batchTensorsList(allLabels)
	})
	return
}

func tensorsShapes(ts []*tensors.Tensor) []shapes.Shape {
	if len(ts) == 0 {
		return nil
	}
	result := make([]shapes.Shape, 0, len(ts))
	for _, t := range ts {
		result = append(result, t.Shape())
	}
	return result
}

// checkShapes checks that the tensors have the expected shapes. kind is "input" or "label".
func checkShapes(kind string, want []shapes.Shape, ts []*tensors.Tensor) error {
	if len(ts) != len(want) {
		return errors.Errorf("%ss to be batched don't have all the same number of elements: seen one Yield() "+
			"returns %d elements and another returns %d elements", kind, len(want), len(ts))
	}
	for ii, t := range ts {
		if !want[ii].Equal(t.Shape()) {
			return errors.Errorf("%s #%d returned by Yield has varying shapes (seen %s and %s)",
				kind, ii, want[ii], t.Shape())
		}
	}
	return nil
}

// batchTensorsList receives a list of inputs or labels collections, and concatenate them
// into a batch. Returns the list of the concatenated tensors.
//
// The batching happens on the tensors on the first axis of the `inputs` slice.
func (ds *batchedDataset) batchTensorsList(inputs [][]*tensors.Tensor) (batchedTensors []*tensors.Tensor) {
	numBatchedTensors := len(inputs[0])
	batchedTensors = make([]*tensors.Tensor, 0, numBatchedTensors)
	parts := make([]*tensors.Tensor, len(inputs))
	for batchedTensorIdx := range numBatchedTensors {
		for ii, inputTensors := range inputs {
			parts[ii] = inputTensors[batchedTensorIdx]
		}
		if ds.createLeadingAxis {
			batchedTensors = append(batchedTensors, tensors.Stack(parts))
		} else {
			batchedTensors = append(batchedTensors, tensors.Concatenate(parts))
		}
	}
	return
}

// Autotune can be given as the buffer size to ReadAhead and ReadAheadImages, to use a buffer
// the size of the number of cores.
const Autotune = -1

// ReadAhead returns a Dataset that reads bufferSize elements of the given `ds`
// so that when Yield is called, the results are immediate. The order is preserved.
//
// It uses ParallelDataset to implement it.
func ReadAhead(ds Dataset, bufferSize int) Dataset {
	if bufferSize == Autotune {
		bufferSize = runtime.NumCPU()
	}
	if bufferSize <= 0 {
		return ds
	}
	return CustomParallel(ds).Parallelism(1).Buffer(bufferSize - 1).Start()
}

// ReadAheadImages is the ReadAhead equivalent for an ImageDataset.
func ReadAheadImages(ds ImageDataset, bufferSize int) ImageDataset {
	if bufferSize == Autotune {
		bufferSize = runtime.NumCPU()
	}
	if bufferSize <= 0 {
		return ds
	}
	return CustomParallelImages(ds).Parallelism(1).Buffer(bufferSize - 1).Start()
}
