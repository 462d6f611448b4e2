package transport

import (
	"sync"

	wasmudf "github.com/wippyai/wasm-udf"
)

// AllocationList tracks the blocks handed out while preparing one call, so
// they can all be freed if a later step fails.
type AllocationList struct {
	ptrs []Ptr
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{ptrs: make([]Ptr, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns to pool. Must call after Free or Forget; list invalid after Release.
func (al *AllocationList) Release() {
	// Only pool small lists to prevent memory bloat
	if cap(al.ptrs) > maxPooledAllocationCapacity {
		return
	}
	al.Forget()
	allocationListPool.Put(al)
}

// Add records a word; null words are ignored.
func (al *AllocationList) Add(p Ptr) {
	if !p.IsNull() {
		al.ptrs = append(al.ptrs, p)
	}
}

// Free releases every recorded block and forgets them. It keeps going past
// errors and returns the first one.
func (al *AllocationList) Free(alloc wasmudf.Allocator) error {
	var first error
	for _, p := range al.ptrs {
		if err := alloc.Free(p.Addr()); err != nil && first == nil {
			first = err
		}
	}
	al.Forget()
	return first
}

func (al *AllocationList) FreeAndRelease(alloc wasmudf.Allocator) error {
	err := al.Free(alloc)
	al.Release()
	return err
}

// Forget drops the records after ownership has been handed off.
func (al *AllocationList) Forget() {
	al.ptrs = al.ptrs[:0]
}

func (al *AllocationList) Count() int {
	return len(al.ptrs)
}
