package wasmbin

const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Load8U   = 0x2d
	opI32Store    = 0x36
	opI32Store8   = 0x3a
	opMemorySize  = 0x3f
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32Ne       = 0x47
	opI32LtU      = 0x49
	opI32GtU      = 0x4b
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32Mul      = 0x6c
	opI32And      = 0x71
	opI32Shl      = 0x74
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ShrU     = 0x88
	opI32WrapI64  = 0xa7
	opI64ExtendU  = 0xad

	blockEmpty = 0x40
)

// Code is a function body under construction. Methods append one
// instruction each and return the receiver for chaining. The closing end
// is added when the body is passed to Func.
type Code struct {
	w writer
}

func NewCode() *Code { return &Code{} }

func (c *Code) op(b byte) *Code {
	c.w.u8(b)
	return c
}

func (c *Code) idx(b byte, i uint32) *Code {
	c.w.u8(b)
	c.w.u32(i)
	return c
}

func (c *Code) mem(b byte, align, offset uint32) *Code {
	c.w.u8(b)
	c.w.u32(align)
	c.w.u32(offset)
	return c
}

func (c *Code) end() []byte {
	c.w.u8(opEnd)
	return c.w.bytes()
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }

func (c *Code) imm(b, imm byte) *Code {
	c.w.u8(b)
	c.w.u8(imm)
	return c
}

// Block opens a block with no result.
func (c *Code) Block() *Code { return c.imm(opBlock, blockEmpty) }

// Loop opens a loop with no result.
func (c *Code) Loop() *Code { return c.imm(opLoop, blockEmpty) }

// If opens an if with no result.
func (c *Code) If() *Code { return c.imm(opIf, blockEmpty) }

// IfResult opens an if producing one value of type t.
func (c *Code) IfResult(t ValType) *Code { return c.imm(opIf, byte(t)) }

func (c *Code) Else() *Code { return c.op(opElse) }
func (c *Code) End() *Code  { return c.op(opEnd) }

func (c *Code) Br(depth uint32) *Code   { return c.idx(opBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.idx(opBrIf, depth) }
func (c *Code) Return() *Code           { return c.op(opReturn) }
func (c *Code) Call(fn uint32) *Code    { return c.idx(opCall, fn) }
func (c *Code) Drop() *Code             { return c.op(opDrop) }

func (c *Code) LocalGet(i uint32) *Code  { return c.idx(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.idx(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.idx(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.idx(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.idx(opGlobalSet, i) }

func (c *Code) I32Load(offset uint32) *Code   { return c.mem(opI32Load, 2, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.mem(opI32Load8U, 0, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.mem(opI32Store, 2, offset) }
func (c *Code) I32Store8(offset uint32) *Code { return c.mem(opI32Store8, 0, offset) }

func (c *Code) MemorySize() *Code { return c.imm(opMemorySize, 0x00) }
func (c *Code) MemoryGrow() *Code { return c.imm(opMemoryGrow, 0x00) }

func (c *Code) I32Const(v int32) *Code {
	c.w.u8(opI32Const)
	c.w.s64(int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.u8(opI64Const)
	c.w.s64(v)
	return c
}

func (c *Code) I32Eqz() *Code       { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code        { return c.op(opI32Eq) }
func (c *Code) I32Ne() *Code        { return c.op(opI32Ne) }
func (c *Code) I32LtU() *Code       { return c.op(opI32LtU) }
func (c *Code) I32GtU() *Code       { return c.op(opI32GtU) }
func (c *Code) I32Add() *Code       { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code       { return c.op(opI32Sub) }
func (c *Code) I32Mul() *Code       { return c.op(opI32Mul) }
func (c *Code) I32And() *Code       { return c.op(opI32And) }
func (c *Code) I32Shl() *Code       { return c.op(opI32Shl) }
func (c *Code) I64Or() *Code        { return c.op(opI64Or) }
func (c *Code) I64Shl() *Code       { return c.op(opI64Shl) }
func (c *Code) I64ShrU() *Code      { return c.op(opI64ShrU) }
func (c *Code) I32WrapI64() *Code   { return c.op(opI32WrapI64) }

func (c *Code) I64ExtendI32U() *Code { return c.op(opI64ExtendU) }
