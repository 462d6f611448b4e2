package wasmbin

import "encoding/binary"

// GuestOptions selects variations of the fixture built by Guest.
type GuestOptions struct {
	// ABIVersion is the advertised protocol version.
	ABIVersion uint32
	// ABIFunction advertises the version through _scylla_abi_version
	// instead of the _scylla_abi global.
	ABIFunction bool
	// NoABI omits the version entirely.
	NoABI bool
	// NoFree omits _scylla_free.
	NoFree bool
	// BadMalloc exports _scylla_malloc with an i64 parameter.
	BadMalloc bool
	// ImportWASI adds a wasi_snapshot_preview1 import.
	ImportWASI bool
	// Reactor exports _initialize, which must run before initialized
	// reports 1.
	Reactor bool
}

const (
	// GuestHeapBase is the first address the fixture allocator hands out.
	GuestHeapBase = 1024
	guestABIAddr  = 16
)

// Guest builds a module implementing the UDF allocator boundary with a bump
// allocator over one page of memory, plus these functions:
//
//	echo(i64) i64         returns its argument, passing the buffer back
//	add(i32, i32) i32
//	size(i64) i32         frees its argument and returns its size, -1 for null
//	trap(i64) i64         traps
//	bad_result() i64      returns a word outside memory
//	hello() i64           returns a freshly allocated "hello"
//	null() i64            returns the null word
//	fill(i64) i64         overwrites the argument buffer with 0xff and returns it
//	allocs() i32, frees() i32  allocator counters
func Guest(opts GuestOptions) []byte {
	m := New()
	if opts.ImportWASI {
		m.Import("wasi_snapshot_preview1", "proc_exit", Sig([]ValType{I32}))
	}

	m.Memory(1, "memory")
	heap := m.Global(I32, true, GuestHeapBase)
	allocs := m.Global(I32, true, 0)
	frees := m.Global(I32, true, 0)
	initialized := m.Global(I32, true, 0)

	if !opts.NoABI && !opts.ABIFunction {
		abi := m.Global(I32, false, guestABIAddr)
		m.ExportGlobal("_scylla_abi", abi)
		version := make([]byte, 4)
		binary.LittleEndian.PutUint32(version, opts.ABIVersion)
		m.Data(guestABIAddr, version)
	}

	// _scylla_malloc(size) -> ptr, 0 when the page is exhausted
	memBytes := func(c *Code) *Code { return c.MemorySize().I32Const(16).I32Shl() }
	body := NewCode()
	body.LocalGet(0)
	memBytes(body).I32GtU().If().I32Const(0).Return().End()
	body.GlobalGet(heap).LocalSet(1).
		LocalGet(1).LocalGet(0).I32Add().I32Const(8).I32Add().I32Const(-8).I32And().
		GlobalSet(heap).
		GlobalGet(heap)
	memBytes(body).I32GtU().If().
		LocalGet(1).GlobalSet(heap).I32Const(0).Return().
		End()
	body.GlobalGet(allocs).I32Const(1).I32Add().GlobalSet(allocs).
		LocalGet(1)
	malloc := m.Func(Sig([]ValType{I32}, I32), []ValType{I32}, body)
	if opts.BadMalloc {
		m.ExportFunc("_scylla_malloc", Sig([]ValType{I64}, I32), nil, NewCode().I32Const(0))
	} else {
		m.Export("_scylla_malloc", malloc)
	}

	// _scylla_free only counts; addresses are never reused
	free := m.Func(Sig([]ValType{I32}), nil,
		NewCode().GlobalGet(frees).I32Const(1).I32Add().GlobalSet(frees))
	if !opts.NoFree {
		m.Export("_scylla_free", free)
	}

	if !opts.NoABI && opts.ABIFunction {
		m.ExportFunc("_scylla_abi_version", Sig(nil, I32), nil,
			NewCode().I32Const(int32(opts.ABIVersion)))
	}

	if opts.Reactor {
		m.ExportFunc("_initialize", Sig(nil), nil,
			NewCode().I32Const(1).GlobalSet(initialized))
		m.ExportFunc("initialized", Sig(nil, I32), nil,
			NewCode().GlobalGet(initialized))
	}

	word := func(c *Code) *Code { return c.I64Const(32).I64ShrU().I32WrapI64() }

	m.ExportFunc("echo", Sig([]ValType{I64}, I64), nil, NewCode().LocalGet(0))
	m.ExportFunc("add", Sig([]ValType{I32, I32}, I32), nil,
		NewCode().LocalGet(0).LocalGet(1).I32Add())

	size := NewCode().LocalGet(0)
	word(size).LocalTee(1).I32Const(-1).I32Ne().If().
		LocalGet(0).I32WrapI64().Call(free).
		End().
		LocalGet(1)
	m.ExportFunc("size", Sig([]ValType{I64}, I32), []ValType{I32}, size)

	m.ExportFunc("trap", Sig([]ValType{I64}, I64), nil, NewCode().Unreachable())
	m.ExportFunc("bad_result", Sig(nil, I64), nil,
		NewCode().I64Const(16<<32|0xFFFFFFF0))
	m.ExportFunc("hello", Sig(nil, I64), []ValType{I32},
		NewCode().
			I32Const(5).Call(malloc).LocalSet(0).
			LocalGet(0).I32Const(0x6c6c6568).I32Store(0). // "hell"
			LocalGet(0).I32Const('o').I32Store8(4).
			I64Const(5<<32).LocalGet(0).I64ExtendI32U().I64Or())
	m.ExportFunc("null", Sig(nil, I64), nil, NewCode().I64Const(-1<<32))

	// fill: for i in [0, size) mem[addr+i] = 0xff
	fill := NewCode().
		LocalGet(0).I32WrapI64().LocalSet(1).
		LocalGet(0)
	word(fill).LocalSet(2).
		Block().Loop().
		LocalGet(2).I32Eqz().BrIf(1).
		LocalGet(1).I32Const(0xff).I32Store8(0).
		LocalGet(1).I32Const(1).I32Add().LocalSet(1).
		LocalGet(2).I32Const(1).I32Sub().LocalSet(2).
		Br(0).
		End().End().
		LocalGet(0)
	m.ExportFunc("fill", Sig([]ValType{I64}, I64), []ValType{I32, I32}, fill)

	m.ExportFunc("allocs", Sig(nil, I32), nil, NewCode().GlobalGet(allocs))
	m.ExportFunc("frees", Sig(nil, I32), nil, NewCode().GlobalGet(frees))

	return m.Encode()
}
