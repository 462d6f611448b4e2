package wasmbin

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Sig is shorthand for a FuncType.
func Sig(params []ValType, results ...ValType) FuncType {
	return FuncType{Params: params, Results: results}
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type funcDef struct {
	locals  []ValType
	body    []byte
	typeIdx uint32
}

type global struct {
	init    int64
	typ     ValType
	mutable bool
}

type export struct {
	name string
	idx  uint32
	kind byte
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// Module accumulates the contents of a module. Function imports must be
// declared before any function is defined.
type Module struct {
	types    []FuncType
	imports  []funcImport
	funcs    []funcDef
	globals  []global
	exports  []export
	data     []dataSegment
	memPages uint32
	memory   bool
}

func New() *Module { return &Module{} }

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if equalTypes(t.Params, ft.Params) && equalTypes(t.Results, ft.Results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: imports must precede function definitions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its function index. Parameters are
// locals 0..n-1; extra locals follow them.
func (m *Module) Func(ft FuncType, locals []ValType, body *Code) uint32 {
	m.funcs = append(m.funcs, funcDef{typeIdx: m.typeIndex(ft), locals: locals, body: body.end()})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// ExportFunc defines and exports a function in one step.
func (m *Module) ExportFunc(name string, ft FuncType, locals []ValType, body *Code) uint32 {
	idx := m.Func(ft, locals, body)
	m.Export(name, idx)
	return idx
}

// Export exports function idx.
func (m *Module) Export(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
}

// Memory declares the module memory with an initial size in pages and
// exports it as name when name is not empty.
func (m *Module) Memory(pages uint32, name string) {
	m.memory = true
	m.memPages = pages
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory})
	}
}

// Global declares an i32 or i64 global and returns its index.
func (m *Module) Global(typ ValType, mutable bool, init int64) uint32 {
	m.globals = append(m.globals, global{typ: typ, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports global idx.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, idx: idx})
}

// Data places bytes at a fixed memory offset at instantiation.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, dataSegment{offset: offset, data: data})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var w writer
	w.raw([]byte{0x00, 0x61, 0x73, 0x6d}) // \0asm
	w.raw([]byte{0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.types)))
		for _, ft := range m.types {
			sec.u8(0x60)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		w.section(sectionType, &sec)
	}

	if len(m.imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.u8(kindFunc)
			sec.u32(imp.typeIdx)
		}
		w.section(sectionImport, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.u32(f.typeIdx)
		}
		w.section(sectionFunction, &sec)
	}

	if m.memory {
		var sec writer
		sec.u32(1)
		sec.u8(0x00) // no maximum
		sec.u32(m.memPages)
		w.section(sectionMemory, &sec)
	}

	if len(m.globals) > 0 {
		var sec writer
		sec.u32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.u8(byte(g.typ))
			if g.mutable {
				sec.u8(0x01)
			} else {
				sec.u8(0x00)
			}
			if g.typ == I64 {
				sec.u8(opI64Const)
			} else {
				sec.u8(opI32Const)
			}
			sec.s64(g.init)
			sec.u8(opEnd)
		}
		w.section(sectionGlobal, &sec)
	}

	if len(m.exports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.name(e.name)
			sec.u8(e.kind)
			sec.u32(e.idx)
		}
		w.section(sectionExport, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body writer
			body.u32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.u32(1)
				body.u8(byte(l))
			}
			body.raw(f.body)
			sec.u32(uint32(body.buf.Len()))
			sec.raw(body.bytes())
		}
		w.section(sectionCode, &sec)
	}

	if len(m.data) > 0 {
		var sec writer
		sec.u32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.u32(0) // active, memory 0
			sec.u8(opI32Const)
			sec.s64(int64(int32(d.offset)))
			sec.u8(opEnd)
			sec.u32(uint32(len(d.data)))
			sec.raw(d.data)
		}
		w.section(sectionData, &sec)
	}

	return w.bytes()
}

func writeValTypes(w *writer, types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.u8(byte(t))
	}
}
