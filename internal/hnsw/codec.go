package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

// GraphMeta locates every neighbor list inside an encoded graph block.
type GraphMeta struct {
	NumNodes  int
	NumLevels int
	EntryOrd  uint32
	// LevelNodes[l] lists the ascending ordinals on level l > 0.
	// LevelNodes[0] is nil.
	LevelNodes [][]uint32
	// Offsets[l][i] is the byte offset of the i-th node's list on level l.
	Offsets [][]uint64
	// Length is the total size of the graph block in bytes.
	Length int64
}

// Encode writes g as a graph block: per level, per node in ascending
// ordinal, a uvarint neighbor count followed by uvarint deltas of the
// ascending neighbor ordinals.
func Encode(g *Graph, w io.Writer) (GraphMeta, int64, error) {
	meta := GraphMeta{
		NumNodes:   g.n,
		NumLevels:  len(g.adj),
		EntryOrd:   g.entry,
		LevelNodes: make([][]uint32, len(g.adj)),
		Offsets:    make([][]uint64, len(g.adj)),
	}

	bw := bufio.NewWriter(w)
	var (
		buf [binary.MaxVarintLen64]byte
		off uint64
	)
	put := func(v uint64) error {
		n := binary.PutUvarint(buf[:], v)
		off += uint64(n)
		_, err := bw.Write(buf[:n])
		return err
	}

	for l, adj := range g.adj {
		if l > 0 {
			meta.LevelNodes[l] = slices.Clone(g.levelNodes[l])
		}
		offsets := make([]uint64, len(adj))
		for i, list := range adj {
			offsets[i] = off
			if err := put(uint64(len(list))); err != nil {
				return GraphMeta{}, 0, err
			}
			var prev uint32
			for _, nb := range list {
				if err := put(uint64(nb - prev)); err != nil {
					return GraphMeta{}, 0, err
				}
				prev = nb
			}
		}
		meta.Offsets[l] = offsets
	}

	if err := bw.Flush(); err != nil {
		return GraphMeta{}, 0, err
	}
	meta.Length = int64(off)

	return meta, meta.Length, nil
}

// AppendBinary appends the encoded metadata to dst.
func (m *GraphMeta) AppendBinary(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(m.NumNodes))
	dst = binary.AppendUvarint(dst, uint64(m.NumLevels))
	dst = binary.AppendUvarint(dst, uint64(m.EntryOrd))
	dst = binary.AppendUvarint(dst, uint64(m.Length))

	for l := 1; l < m.NumLevels; l++ {
		nodes := m.LevelNodes[l]
		dst = binary.AppendUvarint(dst, uint64(len(nodes)))
		var prev uint32
		for _, ord := range nodes {
			dst = binary.AppendUvarint(dst, uint64(ord-prev))
			prev = ord
		}
	}

	for l := range m.NumLevels {
		var prev uint64
		for _, off := range m.Offsets[l] {
			dst = binary.AppendUvarint(dst, off-prev)
			prev = off
		}
	}

	return dst
}

type metaDecoder struct {
	src []byte
	err error
}

func (d *metaDecoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.src)
	if n <= 0 {
		d.err = fmt.Errorf("%w: truncated graph metadata", ErrCorrupt)
		return 0
	}
	d.src = d.src[n:]
	return v
}

// DecodeGraphMeta decodes and validates metadata produced by AppendBinary.
func DecodeGraphMeta(src []byte) (GraphMeta, error) {
	d := metaDecoder{src: src}
	corrupt := func(format string, args ...any) (GraphMeta, error) {
		return GraphMeta{}, fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
	}

	numNodes := d.uvarint()
	numLevels := d.uvarint()
	entry := d.uvarint()
	length := d.uvarint()
	if d.err != nil {
		return GraphMeta{}, d.err
	}
	if numNodes == 0 || numNodes > 1<<32 {
		return corrupt("node count %d", numNodes)
	}
	if numLevels == 0 || numLevels > 64 {
		return corrupt("level count %d", numLevels)
	}
	if entry >= numNodes {
		return corrupt("entry point %d out of range", entry)
	}
	if length > 1<<62 {
		return corrupt("graph length %d", length)
	}

	m := GraphMeta{
		NumNodes:   int(numNodes),
		NumLevels:  int(numLevels),
		EntryOrd:   uint32(entry),
		LevelNodes: make([][]uint32, numLevels),
		Offsets:    make([][]uint64, numLevels),
		Length:     int64(length),
	}

	for l := 1; l < m.NumLevels; l++ {
		count := d.uvarint()
		if d.err != nil {
			return GraphMeta{}, d.err
		}
		below := m.NumNodes
		if l > 1 {
			below = len(m.LevelNodes[l-1])
		}
		if count == 0 || count > uint64(below) {
			return corrupt("level %d has %d nodes", l, count)
		}
		nodes := make([]uint32, count)
		var prev uint64
		for i := range nodes {
			delta := d.uvarint()
			if i > 0 && delta == 0 {
				return corrupt("level %d ordinals not ascending", l)
			}
			prev += delta
			if prev >= numNodes {
				return corrupt("level %d ordinal %d out of range", l, prev)
			}
			nodes[i] = uint32(prev)
		}
		if d.err != nil {
			return GraphMeta{}, d.err
		}
		if l > 1 && !isSubset(nodes, m.LevelNodes[l-1]) {
			return corrupt("level %d is not contained in level %d", l, l-1)
		}
		m.LevelNodes[l] = nodes
	}

	top := m.NumLevels - 1
	if top > 0 {
		if _, ok := slices.BinarySearch(m.LevelNodes[top], m.EntryOrd); !ok {
			return corrupt("entry point %d not on top level", m.EntryOrd)
		}
	}

	for l := range m.NumLevels {
		count := m.NumNodes
		if l > 0 {
			count = len(m.LevelNodes[l])
		}
		offsets := make([]uint64, count)
		var prev uint64
		for i := range offsets {
			delta := d.uvarint()
			if i > 0 && delta == 0 {
				return corrupt("level %d offsets not increasing", l)
			}
			prev += delta
			if prev >= length {
				return corrupt("level %d offset %d beyond graph length %d", l, prev, length)
			}
			offsets[i] = prev
		}
		if d.err != nil {
			return GraphMeta{}, d.err
		}
		m.Offsets[l] = offsets
	}

	if len(d.src) != 0 {
		return corrupt("%d trailing bytes", len(d.src))
	}

	return m, nil
}

func isSubset(sub, super []uint32) bool {
	j := 0
	for _, v := range sub {
		for j < len(super) && super[j] < v {
			j++
		}
		if j == len(super) || super[j] != v {
			return false
		}
	}
	return true
}

// OffHeapGraph decodes neighbor lists lazily from an encoded graph block,
// typically backed by a memory mapping. It is safe for concurrent use.
type OffHeapGraph struct {
	meta GraphMeta
	data []byte
}

// Decode wraps data, which must hold exactly meta.Length bytes.
func Decode(meta GraphMeta, data []byte) (*OffHeapGraph, error) {
	if int64(len(data)) != meta.Length {
		return nil, fmt.Errorf("%w: graph block is %d bytes, expected %d", ErrCorrupt, len(data), meta.Length)
	}
	return &OffHeapGraph{meta: meta, data: data}, nil
}

// Len returns the number of nodes.
func (g *OffHeapGraph) Len() int { return g.meta.NumNodes }

// NumLevels returns the number of levels.
func (g *OffHeapGraph) NumLevels() int { return g.meta.NumLevels }

// EntryPoint returns the entry node and the top level.
func (g *OffHeapGraph) EntryPoint() (uint32, int) { return g.meta.EntryOrd, g.meta.NumLevels - 1 }

// Meta returns the graph metadata.
func (g *OffHeapGraph) Meta() GraphMeta { return g.meta }

// Neighbors decodes the neighbors of ord on level and appends them to dst.
func (g *OffHeapGraph) Neighbors(level int, ord uint32, dst []uint32) ([]uint32, error) {
	pos, err := nodeIndex(g.meta.NumNodes, g.meta.LevelNodes, level, ord)
	if err != nil {
		return dst, err
	}

	src := g.data[g.meta.Offsets[level][pos]:]
	count, n := binary.Uvarint(src)
	if n <= 0 || count > uint64(g.meta.NumNodes) {
		return dst, fmt.Errorf("%w: bad neighbor count for node %d on level %d", ErrCorrupt, ord, level)
	}
	src = src[n:]

	var prev uint64
	for range count {
		delta, n := binary.Uvarint(src)
		if n <= 0 {
			return dst, fmt.Errorf("%w: truncated neighbors of node %d on level %d", ErrCorrupt, ord, level)
		}
		src = src[n:]
		prev += delta
		if prev >= uint64(g.meta.NumNodes) {
			return dst, fmt.Errorf("%w: neighbor %d of node %d out of range", ErrCorrupt, prev, ord)
		}
		dst = append(dst, uint32(prev))
	}

	return dst, nil
}

// Stats returns per-level node and connection counts.
func (g *OffHeapGraph) Stats() ([]LevelStats, error) {
	stats := make([]LevelStats, g.meta.NumLevels)
	var buf []uint32
	for l := range g.meta.NumLevels {
		st := LevelStats{Level: l, Nodes: len(g.meta.Offsets[l])}
		for i := range st.Nodes {
			ord := uint32(i)
			if l > 0 {
				ord = g.meta.LevelNodes[l][i]
			}
			var err error
			if buf, err = g.Neighbors(l, ord, buf[:0]); err != nil {
				return nil, err
			}
			st.Connections += len(buf)
			st.MaxConnections = max(st.MaxConnections, len(buf))
		}
		stats[l] = st
	}
	return stats, nil
}
