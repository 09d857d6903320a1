package shmem

import (
	"fmt"
	"unsafe"
)

// TypedRegion overlays a fixed-layout header struct T at offset 0 of a
// Mapping's bytes. The header's own fields are expected to use atomic
// accessors where more than one process may read or write them concurrently.
type TypedRegion[T any] struct {
	mapping *Mapping
}

// NewTypedRegion validates that mapping is large enough to hold a T and
// returns a TypedRegion overlaying it.
func NewTypedRegion[T any](mapping *Mapping) (*TypedRegion[T], error) {
	var zero T
	want := int(unsafe.Sizeof(zero))
	if mapping.Size() < want {
		return nil, fmt.Errorf("shmem: region too small for header (have %d, want %d): %w", mapping.Size(), want, ErrTooSmall)
	}
	return &TypedRegion[T]{mapping: mapping}, nil
}

// Header returns a pointer to the T overlaid at offset 0 of the mapping.
// The pointer's lifetime is tied to the mapping: it must not be dereferenced
// after Close.
func (r *TypedRegion[T]) Header() *T {
	data := r.mapping.Bytes()
	if data == nil {
		return nil
	}
	return (*T)(unsafe.Pointer(&data[0]))
}

// Bytes returns the region past the header, i.e. the payload area for
// callers that lay out their own data after a fixed header.
func (r *TypedRegion[T]) Bytes() []byte {
	var zero T
	headerSize := int(unsafe.Sizeof(zero))
	data := r.mapping.Bytes()
	if data == nil || len(data) <= headerSize {
		return nil
	}
	return data[headerSize:]
}

// Mapping returns the underlying Mapping.
func (r *TypedRegion[T]) Mapping() *Mapping {
	return r.mapping
}

// Close closes the underlying mapping.
func (r *TypedRegion[T]) Close() error {
	return r.mapping.Close()
}
