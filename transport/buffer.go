package transport

import (
	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/errors"
)

// Buffer owns one block of guest memory, or holds the null value. The zero
// Buffer is empty. A Buffer must not be copied after first use.
type Buffer struct {
	heap  wasmudf.Heap
	ptr   Ptr
	valid bool
}

// Allocate obtains a block of exactly size bytes. It fails with a value too
// large error for NullSize and with an allocation failure when the
// allocator has no memory; no buffer escapes a failed call.
func Allocate(heap wasmudf.Heap, size uint32) (*Buffer, error) {
	if size == NullSize {
		return nil, errors.TooLarge(errors.PhaseTransport, nil, uint64(size))
	}
	addr, err := heap.Alloc(size)
	if err != nil {
		failed := errors.AllocationFailed(errors.PhaseTransport, size)
		failed.Cause = err
		return nil, failed
	}
	if addr == 0 {
		return nil, errors.AllocationFailed(errors.PhaseTransport, size)
	}
	return &Buffer{heap: heap, ptr: Pack(size, addr), valid: true}, nil
}

// Adopt takes ownership of a word received from the other side of a call.
// Adopting Null yields a buffer that holds null and owns nothing.
func Adopt(heap wasmudf.Heap, p Ptr) *Buffer {
	return &Buffer{heap: heap, ptr: p, valid: true}
}

// NullBuffer returns a buffer holding the absent value.
func NullBuffer() *Buffer {
	return &Buffer{ptr: Null, valid: true}
}

// IsNull reports whether the buffer holds the absent value.
func (b *Buffer) IsNull() bool { return b.valid && b.ptr.IsNull() }

// Released reports whether the handle has been emptied.
func (b *Buffer) Released() bool { return !b.valid }

// Len returns the block size; 0 for null.
func (b *Buffer) Len() int {
	size, ok := b.ptr.Size()
	if !b.valid || !ok {
		return 0
	}
	return int(size)
}

// Ptr returns the word without giving up ownership.
func (b *Buffer) Ptr() Ptr { return b.ptr }

// Bytes returns a view of the block. The view is valid only until the buffer
// is released and must not be retained.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.valid {
		return nil, errors.Released("read")
	}
	size, ok := b.ptr.Size()
	if !ok {
		return nil, errors.InvalidData(errors.PhaseTransport, nil, "read of null buffer")
	}
	data, err := b.heap.Read(b.ptr.Addr(), size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindInvalidData, err, "read buffer "+b.ptr.String())
	}
	return data, nil
}

// Fill writes data, which must be exactly the block size, into the block.
func (b *Buffer) Fill(data []byte) error {
	if !b.valid {
		return errors.Released("write")
	}
	size, ok := b.ptr.Size()
	if !ok {
		return errors.InvalidData(errors.PhaseTransport, nil, "write to null buffer")
	}
	if uint64(len(data)) != uint64(size) {
		return errors.New(errors.PhaseTransport, errors.KindInvalidData).
			Detail("write of %d bytes into a %d byte buffer", len(data), size).
			Build()
	}
	if err := b.heap.Write(b.ptr.Addr(), data); err != nil {
		return errors.Wrap(errors.PhaseTransport, errors.KindInvalidData, err, "write buffer "+b.ptr.String())
	}
	return nil
}

// Release returns the block to the allocator and empties the handle. Null
// buffers release nothing. Releasing an empty handle is an error and never
// frees twice.
func (b *Buffer) Release() error {
	if !b.valid {
		return errors.Released("release")
	}
	b.valid = false
	if b.ptr.IsNull() {
		return nil
	}
	if err := b.heap.Free(b.ptr.Addr()); err != nil {
		return errors.Wrap(errors.PhaseTransport, errors.KindAllocation, err, "free buffer "+b.ptr.String())
	}
	return nil
}

// Take moves ownership of the word to the caller and empties the handle.
func (b *Buffer) Take() (Ptr, error) {
	if !b.valid {
		return 0, errors.Released("take")
	}
	b.valid = false
	return b.ptr, nil
}
