package wasmudf

// ABIVersion is the marshaling protocol version advertised by guest modules.
// A host rejects modules that advertise a different version before calling into them.
const ABIVersion uint32 = 2

// Export names of the guest allocator boundary and the protocol version.
const (
	ExportMalloc      = "_scylla_malloc"
	ExportFree        = "_scylla_free"
	ExportABI         = "_scylla_abi"         // global holding the address of a u32 version
	ExportABIFunction = "_scylla_abi_version" // func () -> i32, for guests that cannot export globals
	ExportMemory      = "memory"
)

// Memory represents guest-visible linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// Allocator allocates blocks in guest-visible memory.
// Alloc returns address 0 when the allocator has no memory; the error
// result is reserved for failures of the allocator call itself.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr uint32) error
}

// Heap is a memory together with the allocator that owns its blocks.
type Heap interface {
	Memory
	Allocator
}
