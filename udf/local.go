package udf

import (
	"reflect"

	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/marshal"
	"github.com/wippyai/wasm-udf/transport"
)

// Local calls registered functions natively against an Arena, going through
// the same lowering, transport and lifting as a call across a wasm
// boundary.
type Local struct {
	Arena *transport.Arena
}

func NewLocal() *Local {
	return &Local{Arena: transport.NewArena()}
}

// Call invokes the function registered under name with Go arguments. Each
// argument must be assignable to its parameter type; nil passes a null.
func (l *Local) Call(name string, args ...any) (any, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return l.Invoke(f, args...)
}

// Invoke is Call for an already resolved function.
func (l *Local) Invoke(f *Func, args ...any) (any, error) {
	if len(args) != len(f.params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("%s takes %d arguments, got %d", f.name, len(f.params), len(args)).
			Build()
	}

	al := transport.NewAllocationList()
	defer al.Release()

	words := make([]uint64, len(args))
	for i, arg := range args {
		word, err := l.lower(f.params[i], arg)
		if err != nil {
			al.Free(l.Arena)
			return nil, errors.WithPath(err, "param"+indexSegment(i))
		}
		if f.params[i].Shape == marshal.ShapeBuffered {
			al.Add(transport.Ptr(word))
		}
		words[i] = word
	}
	// Invoke owns the arguments from here on.
	al.Forget()

	word, err := f.Invoke(l.Arena, words...)
	if err != nil {
		return nil, err
	}
	v, err := f.result.Lift(l.Arena, word)
	if err != nil {
		return nil, errors.WithPath(err, "result")
	}
	return v.Interface(), nil
}

func (l *Local) lower(conv *marshal.Converter, arg any) (uint64, error) {
	v := reflect.New(conv.GoType).Elem()
	if arg != nil {
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(conv.GoType) {
			return 0, errors.TypeMismatch(errors.PhaseRuntime, nil, av.Type().String(), conv.CQLType.String())
		}
		v.Set(av)
	} else if !conv.Plan().Nullable() {
		return 0, errors.NilPointer(errors.PhaseRuntime, nil, conv.GoType.String())
	}
	return conv.Lower(l.Arena, v)
}
