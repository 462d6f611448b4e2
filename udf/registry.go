package udf

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/marshal"
	"github.com/wippyai/wasm-udf/transport"
)

var typeError = reflect.TypeFor[error]()

var registry = struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}{funcs: make(map[string]*Func)}

// Func is a registered function.
type Func struct {
	fn           reflect.Value
	params       []*marshal.Converter
	result       *marshal.Converter
	name         string
	returnsError bool
}

// Export registers fn under name. fn must be a function with one result, or
// a result and an error; every parameter and the result must have a CQL
// equivalent.
func Export(name string, fn any) (*Func, error) {
	return exportWith(marshal.Default, name, fn)
}

// MustExport is Export for init-time registration; it panics on error.
func MustExport(name string, fn any) *Func {
	f, err := Export(name, fn)
	if err != nil {
		panic(err)
	}
	return f
}

func exportWith(reg *marshal.Registry, name string, fn any) (*Func, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseCompile, "function name cannot be empty")
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.Registration(name, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
			Detail("handler must be a function, got %T", fn).
			Build())
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, errors.Registration(name, errors.Unsupported(errors.PhaseCompile, "variadic functions"))
	}

	f := &Func{name: name, fn: rv}
	switch {
	case ft.NumOut() == 1 && ft.Out(0) != typeError:
	case ft.NumOut() == 2 && ft.Out(1) == typeError:
		f.returnsError = true
	default:
		return nil, errors.Registration(name, errors.InvalidInput(errors.PhaseCompile,
			"function must return one value, optionally followed by an error"))
	}

	for i := range ft.NumIn() {
		conv, err := reg.For(ft.In(i))
		if err != nil {
			return nil, errors.Registration(name, errors.WithPath(err, "param"+indexSegment(i)))
		}
		f.params = append(f.params, conv)
	}
	conv, err := reg.For(ft.Out(0))
	if err != nil {
		return nil, errors.Registration(name, errors.WithPath(err, "result"))
	}
	f.result = conv

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.funcs[name]; exists {
		return nil, errors.Registration(name, errors.InvalidInput(errors.PhaseCompile, "already registered"))
	}
	registry.funcs[name] = f
	return f, nil
}

// Lookup returns the function registered under name.
func Lookup(name string) (*Func, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	f, ok := registry.funcs[name]
	return f, ok
}

// Functions returns every registered function ordered by name.
func Functions() []*Func {
	registry.mu.RLock()
	funcs := make([]*Func, 0, len(registry.funcs))
	for _, f := range registry.funcs {
		funcs = append(funcs, f)
	}
	registry.mu.RUnlock()
	slices.SortFunc(funcs, func(a, b *Func) int { return strings.Compare(a.name, b.name) })
	return funcs
}

func (f *Func) Name() string { return f.name }

// Params returns the parameter converters.
func (f *Func) Params() []*marshal.Converter { return f.params }

// Result returns the result converter.
func (f *Func) Result() *marshal.Converter { return f.result }

// Invoke lifts args, calls the function and lowers its result. It owns
// every buffered argument: each is released exactly once, including those
// never lifted because an earlier argument failed. On success the caller
// owns the returned word.
func (f *Func) Invoke(heap wasmudf.Heap, args ...uint64) (uint64, error) {
	if len(args) != len(f.params) {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("%s takes %d arguments, got %d", f.name, len(f.params), len(args)).
			Build()
	}

	in := make([]reflect.Value, len(args))
	for i, word := range args {
		v, err := f.params[i].Lift(heap, word)
		if err != nil {
			releaseArgs(heap, f.params[i+1:], args[i+1:])
			return 0, errors.WithPath(err, "param"+indexSegment(i))
		}
		in[i] = v
	}

	out := f.fn.Call(in)
	if f.returnsError && !out[1].IsNil() {
		return 0, errors.New(errors.PhaseRuntime, errors.KindTrap).
			Cause(out[1].Interface().(error)).
			Detail("%s failed", f.name).
			Build()
	}

	word, err := f.result.Lower(heap, out[0])
	if err != nil {
		return 0, errors.WithPath(err, "result")
	}
	return word, nil
}

func releaseArgs(heap wasmudf.Heap, params []*marshal.Converter, args []uint64) {
	for i, conv := range params {
		if conv.Shape == marshal.ShapeBuffered {
			transport.Adopt(heap, transport.Ptr(args[i])).Release()
		}
	}
}

// Signature describes a function at both the wasm and the CQL level.
type Signature struct {
	ParamTypes []*cql.Type
	ResultType *cql.Type
	Params     []api.ValueType
	Result     api.ValueType
}

func (f *Func) Signature() Signature {
	sig := Signature{
		ResultType: f.result.CQLType,
		Result:     f.result.ValueType(),
	}
	for _, p := range f.params {
		sig.ParamTypes = append(sig.ParamTypes, p.CQLType)
		sig.Params = append(sig.Params, p.ValueType())
	}
	return sig
}

// String renders the signature as "(int, list<text>) -> text [i32, i64] -> i64".
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range s.ParamTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString(") -> ")
	b.WriteString(s.ResultType.String())
	b.WriteString(" [")
	for i, vt := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(vt))
	}
	b.WriteString("] -> ")
	b.WriteString(api.ValueTypeName(s.Result))
	return b.String()
}

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
