//go:build wasip1

package udf

import (
	"sync"
	"unsafe"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/errors"
)

// goHeap serves guest allocations from Go byte slices. A slice stays reachable
// from blocks until freed, and the Go collector does not move heap objects,
// so its address is stable for the host to write through.
type goHeap struct {
	blocks map[uint32][]byte
	mu     sync.Mutex
}

var guestHeap = &goHeap{blocks: make(map[uint32][]byte)}

// GuestHeap returns the heap behind the module's allocator exports.
func GuestHeap() wasmudf.Heap { return guestHeap }

func (h *goHeap) Alloc(size uint32) (uint32, error) {
	// a zero-size block still needs a distinct address
	block := make([]byte, max(size, 1))
	addr := uint32(uintptr(unsafe.Pointer(unsafe.SliceData(block))))
	h.mu.Lock()
	h.blocks[addr] = block[:size]
	h.mu.Unlock()
	return addr, nil
}

func (h *goHeap) Free(ptr uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.blocks[ptr]; !ok {
		return errors.InvalidData(errors.PhaseTransport, nil, "free of unknown block")
	}
	delete(h.blocks, ptr)
	return nil
}

func (h *goHeap) block(op string, offset, length uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	block, ok := h.blocks[offset]
	if !ok || uint64(length) > uint64(len(block)) {
		return nil, errors.InvalidData(errors.PhaseTransport, nil, op+" outside an allocated block")
	}
	return block[:length], nil
}

func (h *goHeap) Read(offset, length uint32) ([]byte, error) {
	return h.block("read", offset, length)
}

func (h *goHeap) Write(offset uint32, data []byte) error {
	block, err := h.block("write", offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(block, data)
	return nil
}

//go:wasmexport _scylla_malloc
func scyllaMalloc(size uint32) uint32 {
	addr, _ := guestHeap.Alloc(size)
	return addr
}

// scyllaFree traps on a double or unknown free; the host's view of the heap
// no longer matches the guest's.
//
//go:wasmexport _scylla_free
func scyllaFree(ptr uint32) {
	if err := guestHeap.Free(ptr); err != nil {
		panic(err)
	}
}

//go:wasmexport _scylla_abi_version
func scyllaABIVersion() uint32 {
	return wasmudf.ABIVersion
}

// Call invokes the function registered under name on behalf of a wasm export
// stub. Exports have no error result, so a failure traps the call.
func Call(name string, args ...uint64) uint64 {
	f, ok := Lookup(name)
	if !ok {
		panic(errors.NotFound(errors.PhaseRuntime, "function", name))
	}
	word, err := f.Invoke(guestHeap, args...)
	if err != nil {
		panic(err)
	}
	return word
}
