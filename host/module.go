package host

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/marshal"
)

// Module is a compiled, ABI-checked UDF module.
type Module struct {
	engine     *Engine
	compiled   wazero.CompiledModule
	exports    map[string]api.FunctionDefinition
	pool       chan *Instance
	mu         sync.Mutex
	closed     bool
	abiVersion uint32
}

// Export is an exported function and its wasm signature.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

func (e Export) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteByte(')')
	for i, r := range e.Results {
		if i == 0 {
			b.WriteString(" -> ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(r))
	}
	return b.String()
}

var reserved = map[string]bool{
	wasmudf.ExportMalloc:      true,
	wasmudf.ExportFree:        true,
	wasmudf.ExportABIFunction: true,
	"_initialize":             true,
	"_start":                  true,
}

func newModule(e *Engine, compiled wazero.CompiledModule) (*Module, error) {
	funcs := compiled.ExportedFunctions()

	if err := checkExport(funcs, wasmudf.ExportMalloc,
		[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}); err != nil {
		return nil, err
	}
	if err := checkExport(funcs, wasmudf.ExportFree,
		[]api.ValueType{api.ValueTypeI32}, nil); err != nil {
		return nil, err
	}
	if _, ok := compiled.ExportedMemories()[wasmudf.ExportMemory]; !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "memory export", wasmudf.ExportMemory)
	}

	m := &Module{
		engine:   e,
		compiled: compiled,
		exports:  make(map[string]api.FunctionDefinition),
		pool:     make(chan *Instance, e.cfg.poolSize()),
	}
	for name, def := range funcs {
		if !reserved[name] {
			m.exports[name] = def
		}
	}
	return m, nil
}

func checkExport(funcs map[string]api.FunctionDefinition, name string, params, results []api.ValueType) error {
	def, ok := funcs[name]
	if !ok {
		return errors.NotFound(errors.PhaseLoad, "allocator export", name)
	}
	if !slices.Equal(def.ParamTypes(), params) || !slices.Equal(def.ResultTypes(), results) {
		return errors.Incompatible(name + " has signature " + exportOf(name, def).String())
	}
	return nil
}

func exportOf(name string, def api.FunctionDefinition) Export {
	return Export{Name: name, Params: def.ParamTypes(), Results: def.ResultTypes()}
}

// ABIVersion returns the version the module advertised, 0 if none.
func (m *Module) ABIVersion() uint32 { return m.abiVersion }

// Exports lists the callable exports ordered by name, excluding the
// allocator and ABI exports.
func (m *Module) Exports() []Export {
	out := make([]Export, 0, len(m.exports))
	for name, def := range m.exports {
		out = append(out, exportOf(name, def))
	}
	slices.SortFunc(out, func(a, b Export) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Decl declares a function as CREATE FUNCTION would: argument types, return
// type and null handling.
type Decl struct {
	Name   string
	Params []*cql.Type
	Result *cql.Type
	// CalledOnNullInput declares that the function accepts null arguments
	// and may return null. Its scalar parameters and result are then
	// passed as buffers, since a register cannot hold null.
	CalledOnNullInput bool
}

// Func is a declaration bound to an export of a module.
type Func struct {
	Decl
	params []*marshal.Converter
	result *marshal.Converter
}

// Signature returns the wasm-level shape of the bound function.
func (f *Func) Signature() Export {
	e := Export{Name: f.Name, Results: []api.ValueType{f.result.ValueType()}}
	for _, p := range f.params {
		e.Params = append(e.Params, p.ValueType())
	}
	return e
}

// Func binds d to the export of the same name and checks that the export's
// signature matches the transport shape of every declared type. A scalar
// type whose export slot is i64 where a narrower register was expected is
// taken as nullable.
func (m *Module) Func(d Decl) (*Func, error) {
	def, ok := m.exports[d.Name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "function", d.Name)
	}
	if d.Result == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, d.Name+": result type required")
	}
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != len(d.Params) || len(results) != 1 {
		return nil, errors.New(errors.PhaseLoad, errors.KindIncompatible).
			Detail("%s is declared with %d arguments and one result, export is %s",
				d.Name, len(d.Params), exportOf(d.Name, def)).
			Build()
	}

	f := &Func{Decl: d}
	for i, t := range d.Params {
		conv, err := m.bind(t, d.CalledOnNullInput, params[i])
		if err != nil {
			return nil, errors.WithPath(err, d.Name, "param["+strconv.Itoa(i)+"]")
		}
		f.params = append(f.params, conv)
	}
	conv, err := m.bind(d.Result, d.CalledOnNullInput, results[0])
	if err != nil {
		return nil, errors.WithPath(err, d.Name, "result")
	}
	f.result = conv
	return f, nil
}

func (m *Module) bind(t *cql.Type, nullable bool, vt api.ValueType) (*marshal.Converter, error) {
	conv, err := m.engine.converters.Dynamic(t, nullable)
	if err != nil {
		return nil, err
	}
	if conv.ValueType() != vt && conv.Shape == marshal.ShapeScalar && vt == api.ValueTypeI64 {
		if conv, err = m.engine.converters.Dynamic(t, true); err != nil {
			return nil, err
		}
	}
	if conv.ValueType() != vt {
		return nil, errors.New(errors.PhaseLoad, errors.KindIncompatible).
			CQLType(t.String()).
			Detail("passed as %s (%s), export slot is %s",
				api.ValueTypeName(conv.ValueType()), conv.Shape, api.ValueTypeName(vt)).
			Build()
	}
	return conv, nil
}

// Instantiate creates a fresh instance, running _initialize when the
// module exports it.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	e := m.engine
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions("_initialize")
	if e.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(e.cfg.Stdout)
	}
	if e.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(e.cfg.Stderr)
	}

	mod, err := e.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst := &Instance{
		module: mod,
		logger: e.logger,
		funcs:  make(map[string]api.Function),
	}
	inst.heap = guestHeap{
		mem:    mod.Memory(),
		malloc: mod.ExportedFunction(wasmudf.ExportMalloc),
		free:   mod.ExportedFunction(wasmudf.ExportFree),
		logger: e.logger,
	}
	e.logger.Debug("instance created")
	return inst, nil
}

// Call runs fn on a pooled instance, creating one when none is idle.
func (m *Module) Call(ctx context.Context, fn *Func, args ...any) (any, error) {
	inst, err := m.get(ctx)
	if err != nil {
		return nil, err
	}
	out, err := inst.Call(ctx, fn, args...)
	m.put(ctx, inst)
	return out, err
}

func (m *Module) get(ctx context.Context) (*Instance, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "module (closed)")
	}
	select {
	case inst := <-m.pool:
		return inst, nil
	default:
		return m.Instantiate(ctx)
	}
}

// put returns inst to the pool, discarding it when broken or when the pool
// is full.
func (m *Module) put(ctx context.Context, inst *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed && !inst.Broken() {
		select {
		case m.pool <- inst:
			return
		default:
		}
	}
	m.engine.logger.Debug("instance discarded", zap.Bool("broken", inst.Broken()))
	inst.Close(ctx)
}

// Close closes idle instances and the compiled module. Instances obtained
// from Instantiate must be closed by their owner.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	for {
		select {
		case inst := <-m.pool:
			inst.Close(ctx)
		default:
			return m.compiled.Close(ctx)
		}
	}
}
