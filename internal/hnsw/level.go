package hnsw

import "math"

// splitmix64 is the finalizer of the SplitMix64 generator.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// maxLevels returns the number of levels a graph of n nodes may use:
// floor(ln n / -ln p) + 1.
func maxLevels(n int, p float64) int {
	if n <= 1 {
		return 1
	}
	return int(math.Floor(math.Log(float64(n))/-math.Log(p))) + 1
}

// levelFor draws the top level of ord from a geometric distribution with
// success probability p. The draw depends only on seed and ord.
func levelFor(seed int64, ord uint32, p float64, levels int) int {
	h := splitmix64(uint64(seed) ^ splitmix64(uint64(ord)))
	// uniform in (0, 1]
	u := (float64(h>>11) + 1) / (1 << 53)
	level := int(math.Floor(-math.Log(u) / -math.Log(p)))
	return min(level, levels-1)
}
