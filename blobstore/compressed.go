package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec defines the compression algorithm of a blob.
type Codec uint8

const (
	// CodecNone stores the payload as is.
	CodecNone Codec = 0
	// CodecLZ4 uses LZ4 frames (fast, good for hot data).
	CodecLZ4 Codec = 1
	// CodecZstd uses Zstandard frames (better ratio, good for cold data).
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// ParseCodec parses a codec name as rendered by String.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd", "zstandard":
		return CodecZstd, nil
	}
	return CodecNone, fmt.Errorf("blobstore: unknown codec %q", s)
}

// Compressed blob header.
// Format:
// Magic (4 bytes) "BQZB"
// Codec (1 byte)
// Version (1 byte)
// Reserved (2 bytes)
const (
	compressedHeaderSize = 8
	compressedVersion    = 1
)

var compressedMagic = [4]byte{'B', 'Q', 'Z', 'B'}

// ErrInvalidHeader is returned when opening a blob that was not written by a
// compressed store.
var ErrInvalidHeader = errors.New("blobstore: invalid compressed blob header")

// CompressedStore wraps a BlobStore and compresses every blob it writes.
// Reads decompress the whole blob into memory, whatever codec it was written
// with.
type CompressedStore struct {
	inner BlobStore
	codec Codec
}

// Compressed wraps inner so that new blobs are written with codec.
func Compressed(inner BlobStore, codec Codec) *CompressedStore {
	return &CompressedStore{inner: inner, codec: codec}
}

// Codec returns the codec used for writes.
func (s *CompressedStore) Codec() Codec { return s.codec }

// Open reads and decompresses a blob.
func (s *CompressedStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	if b.Size() < compressedHeaderSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrInvalidHeader, name, b.Size())
	}
	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var header [compressedHeaderSize]byte
	if _, err := io.ReadFull(rc, header[:]); err != nil {
		return nil, err
	}
	if [4]byte(header[:4]) != compressedMagic || header[5] != compressedVersion {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, name)
	}

	dec, err := newDecoder(Codec(header[4]), rc)
	if err != nil {
		return nil, fmt.Errorf("blobstore: %s: %w", name, err)
	}
	defer func() { _ = dec.Close() }()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompress %s: %w", name, err)
	}
	return &memoryBlob{data: data}, nil
}

// Create starts a compressed streaming write.
func (s *CompressedStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	header := [compressedHeaderSize]byte{}
	copy(header[:4], compressedMagic[:])
	header[4] = byte(s.codec)
	header[5] = compressedVersion
	if _, err := w.Write(header[:]); err != nil {
		return nil, errors.Join(err, w.Close())
	}

	enc, err := newEncoder(s.codec, w)
	if err != nil {
		return nil, errors.Join(err, w.Close())
	}
	return &compressedWritableBlob{inner: w, enc: enc}, nil
}

// Put compresses and writes a blob.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}

// Delete removes a blob.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List returns all blobs matching the prefix.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type compressedWritableBlob struct {
	inner WritableBlob
	enc   io.WriteCloser
}

func (w *compressedWritableBlob) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

func (w *compressedWritableBlob) Sync() error {
	if f, ok := w.enc.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return w.inner.Sync()
}

func (w *compressedWritableBlob) Close() error {
	err := w.enc.Close()
	return errors.Join(err, w.inner.Close())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newEncoder(codec Codec, w io.Writer) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.ChecksumOption(true)); err != nil {
			return nil, err
		}
		return zw, nil
	case CodecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	return nil, fmt.Errorf("unknown codec %s", codec)
}

type decoder struct {
	io.Reader
	close func()
}

func (d decoder) Close() error {
	if d.close != nil {
		d.close()
	}
	return nil
}

func newDecoder(codec Codec, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case CodecNone:
		return decoder{Reader: r}, nil
	case CodecLZ4:
		return decoder{Reader: lz4.NewReader(r)}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder{Reader: zr, close: zr.Close}, nil
	}
	return nil, fmt.Errorf("unknown codec %s", codec)
}
