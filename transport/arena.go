package transport

import (
	"fmt"
	"sync"

	"github.com/wippyai/wasm-udf/errors"
)

const (
	arenaBase  = 16
	arenaAlign = 8

	// DefaultArenaLimit caps the simulated linear memory.
	DefaultArenaLimit = 64 << 20
)

// Arena is an in-process Heap simulating a 32-bit linear memory. It hands
// out fresh addresses and never reuses them, so every use after free and
// double free is observable. Reads and writes must stay inside a live block.
type Arena struct {
	mu        sync.Mutex
	mem       []byte
	blocks    map[uint32]uint32 // addr -> size, live blocks
	faults    []string
	next      uint32
	limit     uint32
	failAfter int
	allocs    int
	frees     int
}

func NewArena() *Arena {
	return NewArenaWithLimit(DefaultArenaLimit)
}

func NewArenaWithLimit(limit uint32) *Arena {
	return &Arena{
		blocks:    make(map[uint32]uint32),
		next:      arenaBase,
		limit:     limit,
		failAfter: -1,
	}
}

// FailAfter makes the allocator report no memory once n more allocations
// have succeeded. A negative n disables failure injection.
func (a *Arena) FailAfter(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failAfter = n
}

// Alloc returns address 0 when the arena is exhausted or a failure was
// injected.
func (a *Arena) Alloc(size uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failAfter == 0 {
		return 0, nil
	}
	span := uint64(size)
	if span == 0 {
		span = 1 // distinct addresses for empty blocks
	}
	span = (span + arenaAlign - 1) &^ (arenaAlign - 1)
	end := uint64(a.next) + span
	if end > uint64(a.limit) {
		return 0, nil
	}
	if a.failAfter > 0 {
		a.failAfter--
	}
	addr := a.next
	a.next = uint32(end)
	if int(end) > len(a.mem) {
		grown := make([]byte, end, max(end, uint64(2*len(a.mem))))
		copy(grown, a.mem)
		a.mem = grown
	}
	a.blocks[addr] = size
	a.allocs++
	return addr, nil
}

func (a *Arena) Free(ptr uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.blocks[ptr]; !ok {
		return a.fault("free of %#x which is not a live block", ptr)
	}
	delete(a.blocks, ptr)
	a.frees++
	return nil
}

func (a *Arena) Read(offset, length uint32) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("read", offset, length); err != nil {
		return nil, err
	}
	return a.mem[offset : offset+length : offset+length], nil
}

func (a *Arena) Write(offset uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("write", offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.mem[offset:], data)
	return nil
}

// check requires [offset, offset+length) to lie within the live block that
// starts at offset.
func (a *Arena) check(op string, offset, length uint32) error {
	size, ok := a.blocks[offset]
	if !ok {
		return a.fault("%s at %#x outside any live block", op, offset)
	}
	if length > size {
		return a.fault("%s of %d bytes at %#x overruns a %d byte block", op, length, offset, size)
	}
	return nil
}

func (a *Arena) fault(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	a.faults = append(a.faults, msg)
	return errors.New(errors.PhaseTransport, errors.KindInvalidData).
		Detail("%s", msg).
		Build()
}

// Live returns the number of allocated, unreleased blocks.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// Faults returns the invalid frees and accesses observed so far.
func (a *Arena) Faults() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.faults...)
}

// Stats returns the number of successful allocations and frees.
func (a *Arena) Stats() (allocs, frees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees
}
