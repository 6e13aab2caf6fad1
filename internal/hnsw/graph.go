package hnsw

import (
	"fmt"
	"slices"
)

// Graph is a sealed, immutable graph. Neighbor lists are sorted by ordinal.
// It is safe for concurrent use.
type Graph struct {
	n     int
	m     int
	entry uint32

	// levelNodes[l] lists the ordinals present on level l > 0 in ascending
	// order. Level 0 holds every ordinal and is left nil.
	levelNodes [][]uint32

	// adj[l][i] is the neighbor list of the i-th node on level l.
	adj [][][]uint32
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return g.n }

// NumLevels returns the number of levels.
func (g *Graph) NumLevels() int { return len(g.adj) }

// EntryPoint returns the entry node, which sits on the top level.
func (g *Graph) EntryPoint() (uint32, int) { return g.entry, len(g.adj) - 1 }

// M returns the per-level connection cap the graph was built with.
func (g *Graph) M() int { return g.m }

// LevelNodes returns the ascending ordinals on level. The result must not be
// modified.
func (g *Graph) LevelNodes(level int) []uint32 {
	if level == 0 {
		nodes := make([]uint32, g.n)
		for i := range nodes {
			nodes[i] = uint32(i)
		}
		return nodes
	}
	return g.levelNodes[level]
}

// Neighbors appends the neighbors of ord on level to dst.
func (g *Graph) Neighbors(level int, ord uint32, dst []uint32) ([]uint32, error) {
	pos, err := nodeIndex(g.n, g.levelNodes, level, ord)
	if err != nil {
		return dst, err
	}
	return append(dst, g.adj[level][pos]...), nil
}

// Stats returns per-level node and connection counts.
func (g *Graph) Stats() []LevelStats {
	stats := make([]LevelStats, len(g.adj))
	for l, adj := range g.adj {
		st := LevelStats{Level: l, Nodes: len(adj)}
		for _, list := range adj {
			st.Connections += len(list)
			st.MaxConnections = max(st.MaxConnections, len(list))
		}
		stats[l] = st
	}
	return stats
}

// nodeIndex returns the position of ord within level.
func nodeIndex(n int, levelNodes [][]uint32, level int, ord uint32) (int, error) {
	if level < 0 || level >= len(levelNodes) {
		return 0, fmt.Errorf("%w: level %d out of range", ErrCorrupt, level)
	}
	if level == 0 {
		if int(ord) >= n {
			return 0, &ErrOrdinal{Ord: ord, Reason: "out of range"}
		}
		return int(ord), nil
	}
	pos, ok := slices.BinarySearch(levelNodes[level], ord)
	if !ok {
		return 0, fmt.Errorf("%w: node %d not on level %d", ErrCorrupt, ord, level)
	}
	return pos, nil
}
