package vectorstore

import (
	"errors"
	"fmt"
	"unsafe"
)

// File extensions of the blocks owned by this package.
const (
	RawExtension       = ".vec"
	QuantizedExtension = ".veb"
)

var (
	// ErrOrdinalOutOfOrder is returned when vectors are not appended densely.
	ErrOrdinalOutOfOrder = errors.New("vectorstore: ordinal out of order")
	// ErrOutOfRange is returned for an ordinal outside [0, count).
	ErrOutOfRange = errors.New("vectorstore: ordinal out of range")
	// ErrCorrupt is returned when a block's size does not match its header.
	ErrCorrupt = errors.New("vectorstore: corrupt block")
	// ErrFinished is returned when writing to a finished or aborted writer.
	ErrFinished = errors.New("vectorstore: writer finished")
)

// ErrWrongDimension indicates a vector whose length differs from the store.
type ErrWrongDimension struct {
	Expected int
	Actual   int
}

func (e *ErrWrongDimension) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// RawName returns the raw-vector file name of segment.
func RawName(segment string) string { return segment + RawExtension }

// QuantizedName returns the quantized-code file name of segment.
func QuantizedName(segment string) string { return segment + QuantizedExtension }

var littleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1 //nolint:gosec // endianness check
}()

// floatView reinterprets b as float32s without copying. ok is false when b is
// misaligned or the host is big endian.
func floatView(b []byte, n int) ([]float32, bool) {
	if n == 0 {
		return nil, true
	}
	if !littleEndian || len(b) < n*4 || uintptr(unsafe.Pointer(&b[0]))%4 != 0 { //nolint:gosec // alignment check
		return nil, false
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n), true //nolint:gosec // zero-copy view of mapped memory
}
