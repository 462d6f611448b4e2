// Package transport carries encoded values across the host/guest memory
// boundary.
//
// A value travels as one 64-bit word, Ptr, packing a 32-bit size over a
// 32-bit address: (size << 32) | addr. A size of NullSize (0xFFFFFFFF) is the
// absent value and refers to no memory. NullSize is unrelated to the wire
// null length prefix, even though both happen to be 0xFFFFFFFF; the marshal
// package converts between the two explicitly.
//
// A non-null word refers to a block obtained from the guest allocator.
// Buffer is the owning handle for such a block. It is released exactly
// once, after which the handle is empty; Take moves ownership out, for
// example to hand the word to the other side of a call. Every access through an
// empty handle fails with a released error instead of touching memory.
//
//	buf, err := transport.Allocate(heap, uint32(len(payload)))
//	if err != nil {
//		return err
//	}
//	if err := buf.Fill(payload); err != nil {
//		buf.Release()
//		return err
//	}
//	word, _ := buf.Take()
//
// Arena is an in-process Heap with failure injection and leak and
// double-free accounting, used to run and test marshaling without a wasm
// engine.
package transport
