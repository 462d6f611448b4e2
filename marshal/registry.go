package marshal

import (
	"reflect"
	"sync"

	"github.com/wippyai/wasm-udf/codec"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

// Registry caches one Converter per Go type. The zero value is not usable;
// create one with NewRegistry.
type Registry struct {
	compiler   *codec.Compiler
	converters sync.Map // reflect.Type -> *Converter
	dynamic    sync.Map // dynamicKey -> *Converter
}

type dynamicKey struct {
	sig   string
	shape Shape
}

func NewRegistry() *Registry {
	return NewRegistryWithCompiler(codec.NewCompiler())
}

func NewRegistryWithCompiler(c *codec.Compiler) *Registry {
	return &Registry{compiler: c}
}

// Default is the process-wide registry.
var Default = NewRegistryWithCompiler(codec.DefaultCompiler())

// For returns the converter for goType, deriving its CQL type on first use
// unless one was registered.
func (r *Registry) For(goType reflect.Type) (*Converter, error) {
	if conv, ok := r.converters.Load(goType); ok {
		return conv.(*Converter), nil
	}
	if goType == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	t, err := cql.TypeOf(goType)
	if err != nil {
		return nil, err
	}
	conv, err := r.build(goType, t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.converters.LoadOrStore(goType, conv)
	return actual.(*Converter), nil
}

// Register binds goType to an explicit CQL type, for pairings derivation
// cannot choose, such as string as ascii or uuid.UUID as timeuuid. A type can
// be registered once, before its first use.
func (r *Registry) Register(goType reflect.Type, t *cql.Type) (*Converter, error) {
	conv, err := r.build(goType, t)
	if err != nil {
		return nil, err
	}
	if existing, loaded := r.converters.LoadOrStore(goType, conv); loaded {
		if existing.(*Converter).CQLType.Equal(t) {
			return existing.(*Converter), nil
		}
		return nil, errors.Registration(goType.String(),
			errors.InvalidInput(errors.PhaseCompile, "already bound to "+existing.(*Converter).CQLType.String()))
	}
	return conv, nil
}

// Dynamic returns a converter for values of type t held in an interface, as
// used by hosts that learn types from declarations. nullable selects the
// buffered shape for scalar kinds.
func (r *Registry) Dynamic(t *cql.Type, nullable bool) (*Converter, error) {
	shape := ShapeOf(t, nullable)
	key := dynamicKey{sig: t.Signature(), shape: shape}
	if conv, ok := r.dynamic.Load(key); ok {
		return conv.(*Converter), nil
	}
	conv, err := newConverter(r.compiler, reflect.TypeFor[any](), t, shape)
	if err != nil {
		return nil, err
	}
	actual, _ := r.dynamic.LoadOrStore(key, conv)
	return actual.(*Converter), nil
}

func (r *Registry) build(goType reflect.Type, t *cql.Type) (*Converter, error) {
	plan, err := r.compiler.Compile(t, goType)
	if err != nil {
		return nil, err
	}
	return newConverter(r.compiler, goType, t, ShapeOf(t, plan.Nullable()))
}
