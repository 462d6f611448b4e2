package codec

import (
	"math/big"
	"net/netip"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

// repr says how a Go value of a compiled type is laid out.
type repr uint8

const (
	reprBool repr = iota
	reprInt
	reprFloat
	reprString
	reprBytes
	reprUUID
	reprBigInt
	reprDecimal
	reprAddr
	reprTime
	reprDuration
	reprOption    // *T, Option holds the plan for T
	reprDynamic   // interface, Dynamic holds the plan for the default Go type
	reprSlice     // list, set, tuple from []T
	reprSetMap    // set from map[T]struct{}
	reprMap       // map
	reprArray     // tuple from [N]T
	reprStruct    // tuple or udt from a struct
	reprStringMap // udt from map[string]V
)

// CompiledType is the encode/decode plan for one pairing of a CQL type and a
// Go type. Plans are immutable and shared.
type CompiledType struct {
	CQL     *cql.Type
	GoType  reflect.Type
	Option  *CompiledType
	Dynamic *CompiledType
	Elem    *CompiledType
	Key     *CompiledType
	Value   *CompiledType
	Fields  []CompiledField
	Kind    cql.Kind
	repr    repr
}

// CompiledField is one tuple element or udt field. Index is the Go struct
// field index, or -1 when the Go value is not a struct.
type CompiledField struct {
	Type  *CompiledType
	Name  string
	Index int
}

// Nullable reports whether the Go side can represent null.
func (ct *CompiledType) Nullable() bool {
	return ct.repr == reprOption || ct.repr == reprDynamic || ct.repr == reprBigInt || ct.repr == reprDecimal
}

type Compiler struct {
	cache sync.Map // cacheKey -> *CompiledType
}

type cacheKey struct {
	goType reflect.Type
	sig    string
}

func NewCompiler() *Compiler {
	return &Compiler{}
}

var defaultCompiler = NewCompiler()

// DefaultCompiler returns the process-wide compiler.
func DefaultCompiler() *Compiler { return defaultCompiler }

var (
	typeTime     = reflect.TypeFor[time.Time]()
	typeBigInt   = reflect.TypeFor[*big.Int]()
	typeDecimal  = reflect.TypeFor[*apd.Decimal]()
	typeUUID     = reflect.TypeFor[uuid.UUID]()
	typeAddr     = reflect.TypeFor[netip.Addr]()
	typeDuration = reflect.TypeFor[cql.Duration]()
	typeAny      = reflect.TypeFor[any]()
)

// Compile returns the plan for encoding goType values as t. Compatibility is
// checked once here; encode and decode never re-validate the pairing.
func (c *Compiler) Compile(t *cql.Type, goType reflect.Type) (*CompiledType, error) {
	if goType == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey{goType: goType, sig: t.Signature()}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*CompiledType), nil
	}

	ct, err := c.compile(t, goType, nil)
	if err != nil {
		return nil, err
	}

	actual, _ := c.cache.LoadOrStore(key, ct)
	return actual.(*CompiledType), nil
}

// CompileFor derives the CQL type from goType and compiles it.
func (c *Compiler) CompileFor(goType reflect.Type) (*CompiledType, error) {
	t, err := cql.TypeOf(goType)
	if err != nil {
		return nil, err
	}
	return c.Compile(t, goType)
}

func (c *Compiler) compile(t *cql.Type, goType reflect.Type, path []string) (*CompiledType, error) {
	ct := &CompiledType{CQL: t, GoType: goType, Kind: t.Kind}

	if goType.Kind() == reflect.Interface {
		if goType != typeAny {
			return nil, mismatch(path, goType, t)
		}
		dyn, err := c.compile(t, DynamicType(t), path)
		if err != nil {
			return nil, err
		}
		ct.repr, ct.Dynamic = reprDynamic, dyn
		return ct, nil
	}

	if goType.Kind() == reflect.Pointer && goType != typeBigInt && goType != typeDecimal {
		if goType.Elem().Kind() == reflect.Pointer {
			return nil, mismatch(path, goType, t)
		}
		inner, err := c.compile(t, goType.Elem(), path)
		if err != nil {
			return nil, err
		}
		ct.repr, ct.Option = reprOption, inner
		return ct, nil
	}

	if t.Kind.IsPrimitive() {
		r, ok := primitiveRepr(t.Kind, goType)
		if !ok {
			return nil, mismatch(path, goType, t)
		}
		ct.repr = r
		return ct, nil
	}

	switch t.Kind {
	case cql.KindList, cql.KindSet:
		return c.compileCollection(ct, path)
	case cql.KindMap:
		return c.compileMap(ct, path)
	case cql.KindTuple:
		return c.compileTuple(ct, path)
	case cql.KindUDT:
		return c.compileUDT(ct, path)
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		CQLType(t.String()).
		Detail("unsupported CQL type kind %s", t.Kind).
		Build()
}

func primitiveRepr(k cql.Kind, rt reflect.Type) (repr, bool) {
	rk := rt.Kind()
	switch k {
	case cql.KindBoolean:
		return reprBool, rk == reflect.Bool
	case cql.KindTinyInt:
		return reprInt, rk == reflect.Int8
	case cql.KindSmallInt:
		return reprInt, rk == reflect.Int16
	case cql.KindInt:
		return reprInt, rk == reflect.Int32
	case cql.KindBigInt, cql.KindCounter:
		return reprInt, rk == reflect.Int64
	case cql.KindFloat:
		return reprFloat, rk == reflect.Float32
	case cql.KindDouble:
		return reprFloat, rk == reflect.Float64
	case cql.KindText, cql.KindAscii:
		return reprString, rk == reflect.String
	case cql.KindBlob:
		return reprBytes, rk == reflect.Slice && rt.Elem().Kind() == reflect.Uint8
	case cql.KindUuid, cql.KindTimeuuid:
		return reprUUID, rk == reflect.Array && rt.Len() == 16 && rt.Elem().Kind() == reflect.Uint8
	case cql.KindVarint:
		if rt == typeBigInt {
			return reprBigInt, true
		}
		return reprInt, rk == reflect.Int64
	case cql.KindDecimal:
		return reprDecimal, rt == typeDecimal
	case cql.KindInet:
		return reprAddr, rt == typeAddr
	case cql.KindTimestamp:
		if rt == typeTime {
			return reprTime, true
		}
		return reprInt, rk == reflect.Int64
	case cql.KindDate:
		if rt == typeTime {
			return reprTime, true
		}
		return reprInt, rk == reflect.Int32
	case cql.KindTime:
		return reprInt, rk == reflect.Int64
	case cql.KindDuration:
		return reprDuration, rt == typeDuration
	}
	return 0, false
}

func (c *Compiler) compileCollection(ct *CompiledType, path []string) (*CompiledType, error) {
	goType := ct.GoType
	elemPath := subPath(path, "[elem]")
	switch {
	case goType.Kind() == reflect.Slice:
		ct.repr = reprSlice
		elem, err := c.compile(ct.CQL.Elem, goType.Elem(), elemPath)
		if err != nil {
			return nil, err
		}
		ct.Elem = elem
	case ct.Kind == cql.KindSet && cql.IsSetType(goType):
		ct.repr = reprSetMap
		elem, err := c.compile(ct.CQL.Elem, goType.Key(), elemPath)
		if err != nil {
			return nil, err
		}
		if err := comparableKey(elem, elemPath); err != nil {
			return nil, err
		}
		ct.Elem = elem
	default:
		return nil, mismatch(path, goType, ct.CQL)
	}
	return ct, nil
}

func (c *Compiler) compileMap(ct *CompiledType, path []string) (*CompiledType, error) {
	goType := ct.GoType
	if goType.Kind() != reflect.Map {
		return nil, mismatch(path, goType, ct.CQL)
	}
	key, err := c.compile(ct.CQL.Key, goType.Key(), subPath(path, "[key]"))
	if err != nil {
		return nil, err
	}
	if err := comparableKey(key, subPath(path, "[key]")); err != nil {
		return nil, err
	}
	value, err := c.compile(ct.CQL.Value, goType.Elem(), subPath(path, "[value]"))
	if err != nil {
		return nil, err
	}
	ct.repr, ct.Key, ct.Value = reprMap, key, value
	return ct, nil
}

// comparableKey rejects dynamic map keys whose default Go type cannot be a
// map key.
func comparableKey(key *CompiledType, path []string) error {
	if key.repr == reprDynamic && !key.Dynamic.GoType.Comparable() {
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			CQLType(key.CQL.String()).
			Detail("dynamic values of this type cannot be map keys; use a concrete Go key type").
			Build()
	}
	return nil
}

func (c *Compiler) compileTuple(ct *CompiledType, path []string) (*CompiledType, error) {
	goType := ct.GoType
	elems := ct.CQL.Fields
	ct.Fields = make([]CompiledField, len(elems))

	var goFields []int
	switch goType.Kind() {
	case reflect.Array:
		if goType.Len() != len(elems) {
			return nil, arity(path, goType, ct.CQL, goType.Len())
		}
		ct.repr = reprArray
	case reflect.Slice:
		ct.repr = reprSlice
	case reflect.Struct:
		goFields, _ = cql.StructFields(goType)
		if len(goFields) != len(elems) {
			return nil, arity(path, goType, ct.CQL, len(goFields))
		}
		ct.repr = reprStruct
	default:
		return nil, mismatch(path, goType, ct.CQL)
	}

	for i, e := range elems {
		var elemGoType reflect.Type
		index := -1
		if ct.repr == reprStruct {
			index = goFields[i]
			elemGoType = goType.Field(index).Type
		} else {
			elemGoType = goType.Elem()
		}
		ft, err := c.compile(e.Type, elemGoType, subPath(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return nil, err
		}
		ct.Fields[i] = CompiledField{Type: ft, Index: index}
	}
	return ct, nil
}

func (c *Compiler) compileUDT(ct *CompiledType, path []string) (*CompiledType, error) {
	goType := ct.GoType
	fields := ct.CQL.Fields
	ct.Fields = make([]CompiledField, len(fields))

	switch {
	case goType.Kind() == reflect.Struct:
		ct.repr = reprStruct
		idx, names := cql.StructFields(goType)
		byName := make(map[string]int, len(names))
		for i, n := range names {
			byName[n] = idx[i]
		}
		for i, f := range fields {
			index, ok := byName[f.Name]
			if !ok {
				return nil, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
					Path(path...).
					GoType(goType.String()).
					CQLType(ct.CQL.String()).
					Detail("no Go field for udt field %q", f.Name).
					Build()
			}
			ft, err := c.compile(f.Type, goType.Field(index).Type, subPath(path, f.Name))
			if err != nil {
				return nil, err
			}
			ct.Fields[i] = CompiledField{Type: ft, Name: f.Name, Index: index}
		}
	case goType.Kind() == reflect.Map && goType.Key().Kind() == reflect.String:
		ct.repr = reprStringMap
		for i, f := range fields {
			ft, err := c.compile(f.Type, goType.Elem(), subPath(path, f.Name))
			if err != nil {
				return nil, err
			}
			ct.Fields[i] = CompiledField{Type: ft, Name: f.Name, Index: -1}
		}
	default:
		return nil, mismatch(path, goType, ct.CQL)
	}
	return ct, nil
}

func mismatch(path []string, goType reflect.Type, t *cql.Type) error {
	return errors.TypeMismatch(errors.PhaseCompile, path, goType.String(), t.String())
}

func arity(path []string, goType reflect.Type, t *cql.Type, have int) error {
	return errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
		Path(path...).
		GoType(goType.String()).
		CQLType(t.String()).
		Detail("tuple has %d elements but Go type has %d", len(t.Fields), have).
		Build()
}

func subPath(path []string, seg string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), seg)
}
