package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/augment/pkg/support/xsync"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := New().SetMaxParallelism(3)
	var running, maxRunning atomic.Int32
	release := xsync.NewLatch()
	var started atomic.Int32
	for range 3 {
		pool.WaitToStart(func() {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			started.Add(1)
			release.Wait()
			running.Add(-1)
		})
	}
	// Pool is full now.
	assert.False(t, pool.StartIfAvailable(func() {}))

	done := xsync.NewLatch()
	go func() {
		pool.WaitToStart(func() { done.Trigger() })
	}()
	select {
	case <-done.WaitChan():
		t.Fatal("task started beyond the max parallelism")
	case <-time.After(20 * time.Millisecond):
	}
	release.Trigger()
	select {
	case <-done.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("task never started after workers were released")
	}
	assert.LessOrEqual(t, maxRunning.Load(), int32(3))
}

func TestPool_NoParallelism(t *testing.T) {
	pool := New().SetMaxParallelism(0)
	var count int
	pool.WaitToStart(func() { count++ })
	assert.Equal(t, 1, count, "task should have run inline")
	assert.False(t, pool.StartIfAvailable(func() {}))
}

func TestPool_Map(t *testing.T) {
	for _, parallelism := range []int{-1, 0, 1, 4} {
		pool := New().SetMaxParallelism(parallelism)
		results := make([]int, 100)
		require.NoError(t, pool.Map(len(results), func(ii int) error {
			results[ii] = ii * ii
			return nil
		}))
		for ii, v := range results {
			require.Equal(t, ii*ii, v, "parallelism=%d", parallelism)
		}

		err := pool.Map(10, func(ii int) error {
			if ii == 3 || ii == 7 {
				return errors.Errorf("failed #%d", ii)
			}
			return nil
		})
		require.ErrorContains(t, err, "failed #3")
	}

	// Nested calls don't deadlock.
	pool := New().SetMaxParallelism(2)
	var total atomic.Int32
	require.NoError(t, pool.Map(4, func(int) error {
		return pool.Map(4, func(int) error {
			total.Add(1)
			return nil
		})
	}))
	assert.Equal(t, int32(16), total.Load())
}
