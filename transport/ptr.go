package transport

import "fmt"

// NullSize is the size field of the absent value.
const NullSize uint32 = 0xFFFFFFFF

// Ptr is the packed (size, address) transport word.
type Ptr uint64

// Null is the absent value. It owns no memory.
const Null = Ptr(uint64(NullSize) << 32)

// Pack builds a word from a size and an address.
func Pack(size, addr uint32) Ptr {
	return Ptr(uint64(size)<<32 | uint64(addr))
}

// Size returns the block size, or false for Null.
func (p Ptr) Size() (uint32, bool) {
	size := uint32(p >> 32)
	return size, size != NullSize
}

func (p Ptr) Addr() uint32 { return uint32(p) }

func (p Ptr) IsNull() bool { return uint32(p>>32) == NullSize }

func (p Ptr) String() string {
	if p.IsNull() {
		return "null"
	}
	size, _ := p.Size()
	return fmt.Sprintf("%d@%#x", size, p.Addr())
}
