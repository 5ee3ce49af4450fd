package random

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterminism(t *testing.T) {
	g0, g1 := NewGenerator(42), NewGenerator(42)
	for range 10 {
		assert.Equal(t, g0.Uniform(), g1.Uniform())
		assert.Equal(t, g0.IntN(17), g1.IntN(17))
		assert.Equal(t, g0.MakeSeed(), g1.MakeSeed())
	}
	assert.NotEqual(t, NewGenerator(1).MakeSeed(), NewGenerator(2).MakeSeed())
}

func TestGeneratorDistributions(t *testing.T) {
	g := NewGenerator(7)
	const n = 10_000
	var sum, sumSq float64
	for range n {
		v := g.UniformRange(-2, 2)
		require.GreaterOrEqual(t, v, -2.0)
		require.Less(t, v, 2.0)
		sum += v
	}
	assert.InDelta(t, 0, sum/n, 0.1)

	sum = 0
	for range n {
		v := g.Normal()
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, math.Sqrt(sumSq/n-mean*mean), 0.05)

	require.Panics(t, func() { g.IntN(0) })
}

func TestSplit(t *testing.T) {
	g := NewGenerator(3)
	splits := g.Split(3)
	require.Len(t, splits, 3)
	assert.NotEqual(t, splits[0].Uniform(), splits[1].Uniform())

	// Splitting is deterministic.
	again := NewGenerator(3).Split(3)
	splits = NewGenerator(3).Split(3)
	for ii := range splits {
		assert.Equal(t, splits[ii].Uniform(), again[ii].Uniform())
	}

	seed := g.MakeSeed()
	seeds := SplitSeed(seed, 4)
	require.Len(t, seeds, 4)
	assert.Equal(t, seeds, SplitSeed(seed, 4))
	assert.NotEqual(t, seeds[0], seeds[1])
	assert.NotEqual(t, seed, seeds[0])
}

func TestConcurrentUse(t *testing.T) {
	g := NewGenerator(11)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				_ = g.Uniform()
				_ = g.MakeSeed()
			}
		}()
	}
	wg.Wait()
}
