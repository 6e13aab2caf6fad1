package bqhnsw

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/internal/scorer"
	"github.com/hupe1980/bqhnsw/internal/vectorstore"
	"github.com/hupe1980/bqhnsw/store"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrWriterSealed is returned when adding to a sealed or aborted writer.
	ErrWriterSealed = errors.New("writer is sealed")

	// ErrOrdinalOutOfOrder is returned when vectors are not added densely
	// starting at ordinal 0.
	ErrOrdinalOutOfOrder = errors.New("ordinal out of order")

	// ErrEmptySegment is returned when sealing a writer without vectors.
	ErrEmptySegment = errors.New("segment has no vectors")

	// ErrReaderClosed is returned when using a closed reader.
	ErrReaderClosed = errors.New("reader is closed")

	// ErrCorruptSegment is returned when segment files fail validation.
	ErrCorruptSegment = errors.New("corrupt segment")
)

// InvalidConfigurationError reports a rejected constructor parameter.
type InvalidConfigurationError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Parameter, e.Value, e.Reason)
}

// InvalidDimensionError indicates a vector or query whose length differs from
// the segment dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type InvalidDimensionError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *InvalidDimensionError) Unwrap() error { return e.cause }

// SimilarityMismatchError is returned when a query asks for a similarity other
// than the one the segment was built with.
type SimilarityMismatchError struct {
	Segment   distance.Similarity
	Requested distance.Similarity
	cause     error
}

func (e *SimilarityMismatchError) Error() string {
	return fmt.Sprintf("similarity mismatch: segment uses %s, query requested %s", e.Segment, e.Requested)
}

func (e *SimilarityMismatchError) Unwrap() error { return e.cause }

// UnsupportedStorageModeError is returned at open time when the requested
// access mode cannot be honored. Callers are expected to retry with another
// mode.
type UnsupportedStorageModeError struct {
	Mode  store.AccessMode
	cause error
}

func (e *UnsupportedStorageModeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("unsupported storage mode %s: %v", e.Mode, e.cause)
	}
	return fmt.Sprintf("unsupported storage mode %s", e.Mode)
}

func (e *UnsupportedStorageModeError) Unwrap() error { return e.cause }

// StorageReadError is returned when a query fails to read segment data. The
// query result is discarded; the segment itself is not affected.
type StorageReadError struct {
	File   string
	Offset int64
	cause  error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("storage read failed: %s at offset %d: %v", e.File, e.Offset, e.cause)
}

func (e *StorageReadError) Unwrap() error { return e.cause }

// Retryable reports whether the failed operation may be retried. Read
// failures always are.
func (e *StorageReadError) Retryable() bool { return true }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dq *quantization.ErrInvalidDimension
	if errors.As(err, &dq) {
		return &InvalidDimensionError{Expected: dq.Expected, Actual: dq.Actual, cause: err}
	}
	var dv *vectorstore.ErrWrongDimension
	if errors.As(err, &dv) {
		return &InvalidDimensionError{Expected: dv.Expected, Actual: dv.Actual, cause: err}
	}
	var sm *scorer.ErrSimilarityMismatch
	if errors.As(err, &sm) {
		return &SimilarityMismatchError{Segment: sm.Segment, Requested: sm.Requested, cause: err}
	}
	var um *store.UnsupportedModeError
	if errors.As(err, &um) {
		return &UnsupportedStorageModeError{Mode: um.Mode, cause: err}
	}
	var re *store.ReadError
	if errors.As(err, &re) {
		return &StorageReadError{File: re.Name, Offset: re.Offset, cause: err}
	}

	if errors.Is(err, vectorstore.ErrOrdinalOutOfOrder) {
		return fmt.Errorf("%w: %w", ErrOrdinalOutOfOrder, err)
	}
	if errors.Is(err, vectorstore.ErrCorrupt) || errors.Is(err, hnsw.ErrCorrupt) || errors.Is(err, quantization.ErrInvalidRecord) {
		return fmt.Errorf("%w: %w", ErrCorruptSegment, err)
	}

	return err
}
