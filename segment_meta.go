package bqhnsw

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/hash"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
)

const (
	// MetaExtension is the metadata file extension. Its presence marks a
	// published segment.
	MetaExtension = ".vem"

	// GraphExtension is the graph block file extension.
	GraphExtension = ".vex"

	metaMagic   = 0x57485142 // "BQHW"
	metaVersion = 1

	metaHeaderSize = 16
)

// segmentMeta is the decoded content of a .vem file.
type segmentMeta struct {
	ID             uuid.UUID
	MaxConnections int
	BeamWidth      int
	Similarity     distance.Similarity
	Dimension      int
	Count          int
	RawDirect      bool
	Centroid       []float32
	Graph          hnsw.GraphMeta
}

func metaName(segment string) string  { return segment + MetaExtension }
func graphName(segment string) string { return segment + GraphExtension }

// WriteTo writes the metadata in binary format.
// Format:
// Magic (4 bytes) "BQHW"
// Version (4 bytes)
// Checksum (4 bytes) - CRC32C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	ID (16 bytes)
//	MaxConnections (4 bytes)
//	BeamWidth (4 bytes)
//	Similarity (1 byte)
//	RawDirect (1 byte)
//	Dimension (4 bytes)
//	Count (4 bytes)
//	Centroid (Dimension * 4 bytes)
//	GraphMetaLength (4 bytes)
//	GraphMeta (bytes) - levels, level nodes, offsets, entry point
func (m *segmentMeta) WriteTo(w io.Writer) (int64, error) {
	pb := newPayloadBuffer(make([]byte, 0, 64+len(m.Centroid)*4))

	pb.writeBytes(m.ID[:])
	pb.writeUint32(uint32(m.MaxConnections))
	pb.writeUint32(uint32(m.BeamWidth))
	pb.writeUint8(uint8(m.Similarity))
	pb.writeBool(m.RawDirect)
	pb.writeUint32(uint32(m.Dimension))
	pb.writeUint32(uint32(m.Count))
	for _, c := range m.Centroid {
		pb.writeUint32(math.Float32bits(c))
	}
	graph := m.Graph.AppendBinary(nil)
	pb.writeUint32(uint32(len(graph)))
	pb.writeBytes(graph)

	payload := pb.buf

	header := make([]byte, metaHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], metaMagic)
	binary.LittleEndian.PutUint32(header[4:8], metaVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	n, err := w.Write(header)
	if err != nil {
		return int64(n), err
	}
	m2, err := w.Write(payload)
	return int64(n + m2), err
}

// decodeSegmentMeta parses and validates a .vem file.
func decodeSegmentMeta(data []byte) (*segmentMeta, error) {
	corrupt := func(format string, args ...any) (*segmentMeta, error) {
		return nil, fmt.Errorf("%w: metadata: "+format, append([]any{ErrCorruptSegment}, args...)...)
	}

	if len(data) < metaHeaderSize {
		return corrupt("truncated header")
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != metaMagic {
		return corrupt("invalid magic: %x", magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != metaVersion {
		return corrupt("unsupported version: %d", version)
	}
	checksum := binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])

	payload := data[metaHeaderSize:]
	if uint64(len(payload)) != uint64(length) {
		return corrupt("payload is %d bytes, header says %d", len(payload), length)
	}
	if hash.CRC32C(payload) != checksum {
		return corrupt("checksum mismatch")
	}

	pb := newPayloadBuffer(payload)
	m := &segmentMeta{}

	copy(m.ID[:], pb.readBytes(16))
	m.MaxConnections = int(pb.readUint32())
	m.BeamWidth = int(pb.readUint32())
	m.Similarity = distance.Similarity(pb.readUint8())
	m.RawDirect = pb.readBool()
	m.Dimension = int(pb.readUint32())
	m.Count = int(pb.readUint32())
	if pb.err != nil {
		return corrupt("%v", pb.err)
	}

	if !m.Similarity.Valid() {
		return corrupt("unknown similarity %d", m.Similarity)
	}
	if m.Dimension <= 0 || m.Count <= 0 {
		return corrupt("dimension %d, count %d", m.Dimension, m.Count)
	}
	if m.Dimension > pb.remaining()/4 {
		return corrupt("centroid truncated")
	}

	m.Centroid = make([]float32, m.Dimension)
	for i := range m.Centroid {
		m.Centroid[i] = math.Float32frombits(pb.readUint32())
	}

	graphLen := int(pb.readUint32())
	graph := pb.readBytes(graphLen)
	if pb.err != nil {
		return corrupt("%v", pb.err)
	}
	if pb.remaining() != 0 {
		return corrupt("%d trailing bytes", pb.remaining())
	}

	gm, err := hnsw.DecodeGraphMeta(graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSegment, err)
	}
	if gm.NumNodes != m.Count {
		return corrupt("graph has %d nodes, segment has %d vectors", gm.NumNodes, m.Count)
	}
	m.Graph = gm

	return m, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) remaining() int { return len(p.buf) - p.pos }

func (p *payloadBuffer) writeUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint8(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeBool(v bool) {
	if v {
		p.writeUint8(1)
	} else {
		p.writeUint8(0)
	}
}

func (p *payloadBuffer) writeBytes(b []byte) {
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readUint8() uint8 {
	if p.err != nil {
		return 0
	}
	if p.pos+1 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readBool() bool {
	return p.readUint8() != 0
}

func (p *payloadBuffer) readBytes(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}
