package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/bqhnsw/distance"
)

// Neighbor is an ordinal with its exact similarity score.
type Neighbor struct {
	Ordinal int
	Score   float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
		vectors[i] = vec
	}

	return vectors
}

// GaussianVectors generates random vectors with values from a standard normal distribution.
func (r *RNG) GaussianVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	vectors := r.GaussianVectors(num, dimensions)
	for _, vec := range vectors {
		normalize(vec)
	}
	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	return r.UnitVectors(1, dimensions)[0]
}

// ClusteredVectors generates vectors clustered around random unit centroids.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)

	for i := range num {
		centroid := centroids[i%clusters]
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}

	return vectors
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
}

// BruteForce returns the exact top-k neighbors of query, ordered by score
// descending and then by ordinal ascending.
func BruteForce(vectors [][]float32, query []float32, k int, sim distance.Similarity) []Neighbor {
	all := make([]Neighbor, len(vectors))
	for i, v := range vectors {
		all[i] = Neighbor{Ordinal: i, Score: sim.Compare(query, v)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Ordinal < all[j].Ordinal
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

// ComputeRecall computes recall@k by comparing approximate ordinals against ground truth.
func ComputeRecall(groundTruth []Neighbor, approximate []int) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truthSet := make(map[int]struct{}, k)
	for i := range k {
		truthSet[groundTruth[i].Ordinal] = struct{}{}
	}

	hits := 0
	for _, ord := range approximate[:k] {
		if _, ok := truthSet[ord]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}
