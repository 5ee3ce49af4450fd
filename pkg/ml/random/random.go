// Package random provides a seeded, concurrency-safe Generator used by the random preprocessing layers,
// and the generation of seeds for the stateless operations in package imageops.
//
// Two Generator created with the same seed generate the same sequence of values.
package random

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gomlx/augment/pkg/imageops"
	"github.com/gomlx/exceptions"
)

// Generator of random numbers and seeds. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator initialized from the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// NewGeneratorFromTime returns a Generator initialized from the system clock.
func NewGeneratorFromTime() *Generator {
	return NewGenerator(time.Now().UnixNano())
}

// Uniform returns a uniform random value in [0, 1).
func (g *Generator) Uniform() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// UniformRange returns a uniform random value in [lower, upper).
func (g *Generator) UniformRange(lower, upper float64) float64 {
	return lower + g.Uniform()*(upper-lower)
}

// Normal returns a random value from a normal distribution with mean 0 and standard deviation 1.
func (g *Generator) Normal() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.NormFloat64()
}

// IntN returns a random integer uniformly from 0 to n-1. It panics if n <= 0.
func (g *Generator) IntN(n int) int {
	if n <= 0 {
		exceptions.Panicf("random.Generator.IntN(%d): n must be > 0", n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Int64 returns a random non-negative int64.
func (g *Generator) Int64() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Int64()
}

// Shuffle pseudo-randomizes the order of n elements, using swap to exchange the elements at i and j.
func (g *Generator) Shuffle(n int, swap func(i, j int)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng.Shuffle(n, swap)
}

// MakeSeed returns a new seed for the stateless random operations of package imageops.
func (g *Generator) MakeSeed() imageops.Seed {
	g.mu.Lock()
	defer g.mu.Unlock()
	return imageops.Seed{g.rng.Int64(), g.rng.Int64()}
}

// MakeSeeds returns n new seeds.
func (g *Generator) MakeSeeds(n int) []imageops.Seed {
	seeds := make([]imageops.Seed, n)
	for ii := range seeds {
		seeds[ii] = g.MakeSeed()
	}
	return seeds
}

// Split returns n new generators, independent of this one and of each other.
//
// The state of g is advanced, so calling Split twice returns different generators.
func (g *Generator) Split(n int) []*Generator {
	generators := make([]*Generator, n)
	for ii := range generators {
		seed := g.MakeSeed()
		generators[ii] = &Generator{rng: seed.Rand()}
	}
	return generators
}

// SplitSeed deterministically derives n new seeds from seed.
// The same seed always yields the same n seeds.
func SplitSeed(seed imageops.Seed, n int) []imageops.Seed {
	rng := seed.Rand()
	seeds := make([]imageops.Seed, n)
	for ii := range seeds {
		seeds[ii] = imageops.Seed{rng.Int64(), rng.Int64()}
	}
	return seeds
}
