package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// readFvecs reads up to limit vectors (all when limit <= 0) from an .fvecs
// file.
func readFvecs(path string, limit int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return decodeFvecs(bufio.NewReader(f), limit)
}

func decodeFvecs(r io.Reader, limit int) ([][]float32, error) {
	var (
		vectors [][]float32
		hdr     [4]byte
		dim     int
	)

	for limit <= 0 || len(vectors) < limit {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("fvecs: record %d: %w", len(vectors), err)
		}

		d := int(int32(binary.LittleEndian.Uint32(hdr[:])))
		if d <= 0 {
			return nil, fmt.Errorf("fvecs: record %d: invalid dimension %d", len(vectors), d)
		}
		if dim == 0 {
			dim = d
		} else if d != dim {
			return nil, fmt.Errorf("fvecs: record %d: dimension %d, expected %d", len(vectors), d, dim)
		}

		buf := make([]byte, 4*d)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("fvecs: record %d: %w", len(vectors), err)
		}
		v := make([]float32, d)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		vectors = append(vectors, v)
	}

	if len(vectors) == 0 {
		return nil, errors.New("fvecs: no vectors")
	}
	return vectors, nil
}

func encodeFvecs(w io.Writer, vectors [][]float32) error {
	buf := make([]byte, 0, 4)
	for _, v := range vectors {
		buf = binary.LittleEndian.AppendUint32(buf[:0], uint32(len(v)))
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
