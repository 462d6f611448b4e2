package cql

import (
	"math/big"
	"net/netip"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/errors"
)

var derived sync.Map // reflect.Type -> *Type

var (
	typeTime        = reflect.TypeFor[time.Time]()
	typeBigInt      = reflect.TypeFor[*big.Int]()
	typeDecimal     = reflect.TypeFor[*apd.Decimal]()
	typeUUID        = reflect.TypeFor[uuid.UUID]()
	typeAddr        = reflect.TypeFor[netip.Addr]()
	typeCounter     = reflect.TypeFor[Counter]()
	typeDate        = reflect.TypeFor[Date]()
	typeTimeOfDay   = reflect.TypeFor[Time]()
	typeDuration    = reflect.TypeFor[Duration]()
	typeTupleMarker = reflect.TypeFor[TupleMarker]()
	typeNamer       = reflect.TypeFor[TypeNamer]()
)

// NativeType returns the Go type that carries values of a primitive kind
// natively, or false if the kind has no fixed native type.
func NativeType(k Kind) (reflect.Type, bool) {
	switch k {
	case KindAscii, KindText:
		return reflect.TypeFor[string](), true
	case KindBigInt:
		return reflect.TypeFor[int64](), true
	case KindBlob:
		return reflect.TypeFor[[]byte](), true
	case KindBoolean:
		return reflect.TypeFor[bool](), true
	case KindCounter:
		return typeCounter, true
	case KindDecimal:
		return typeDecimal, true
	case KindDouble:
		return reflect.TypeFor[float64](), true
	case KindFloat:
		return reflect.TypeFor[float32](), true
	case KindInt:
		return reflect.TypeFor[int32](), true
	case KindTimestamp:
		return typeTime, true
	case KindUuid, KindTimeuuid:
		return typeUUID, true
	case KindVarint:
		return typeBigInt, true
	case KindInet:
		return typeAddr, true
	case KindDate:
		return typeDate, true
	case KindTime:
		return typeTimeOfDay, true
	case KindSmallInt:
		return reflect.TypeFor[int16](), true
	case KindTinyInt:
		return reflect.TypeFor[int8](), true
	case KindDuration:
		return typeDuration, true
	}
	return nil, false
}

// Nullable reports whether a Go type has a null representation. Pointers
// (including *big.Int and *apd.Decimal) and interfaces do.
func Nullable(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface
}

// TypeFor returns the descriptor derived from T.
func TypeFor[T any]() (*Type, error) {
	return TypeOf(reflect.TypeFor[T]())
}

// MustTypeFor is like TypeFor but panics on error. Intended for package-level
// variables.
func MustTypeFor[T any]() *Type {
	t, err := TypeFor[T]()
	if err != nil {
		panic(err)
	}
	return t
}

// TypeOf derives the descriptor of a Go type. Results are memoized per type.
// A pointer is an Option of its element and has no descriptor of its own.
func TypeOf(rt reflect.Type) (*Type, error) {
	if rt == nil {
		return nil, errors.NilPointer(errors.PhaseCompile, nil, "reflect.Type")
	}
	if cached, ok := derived.Load(rt); ok {
		return cached.(*Type), nil
	}
	t, err := derive(rt, make(map[reflect.Type]bool), nil)
	if err != nil {
		return nil, err
	}
	actual, _ := derived.LoadOrStore(rt, t)
	return actual.(*Type), nil
}

func derive(rt reflect.Type, active map[reflect.Type]bool, path []string) (*Type, error) {
	if cached, ok := derived.Load(rt); ok {
		return cached.(*Type), nil
	}

	switch rt {
	case typeTime:
		return Primitive(KindTimestamp), nil
	case typeBigInt:
		return Primitive(KindVarint), nil
	case typeDecimal:
		return Primitive(KindDecimal), nil
	case typeUUID:
		return Primitive(KindUuid), nil
	case typeAddr:
		return Primitive(KindInet), nil
	case typeCounter:
		return Primitive(KindCounter), nil
	case typeDate:
		return Primitive(KindDate), nil
	case typeTimeOfDay:
		return Primitive(KindTime), nil
	case typeDuration:
		return Primitive(KindDuration), nil
	}

	switch rt.Kind() {
	case reflect.Bool:
		return Primitive(KindBoolean), nil
	case reflect.Int8:
		return Primitive(KindTinyInt), nil
	case reflect.Int16:
		return Primitive(KindSmallInt), nil
	case reflect.Int32:
		return Primitive(KindInt), nil
	case reflect.Int64:
		return Primitive(KindBigInt), nil
	case reflect.Float32:
		return Primitive(KindFloat), nil
	case reflect.Float64:
		return Primitive(KindDouble), nil
	case reflect.String:
		return Primitive(KindText), nil
	case reflect.Pointer:
		if rt.Elem().Kind() == reflect.Pointer {
			return nil, unsupported(path, rt, "nested pointers have no CQL equivalent")
		}
		return derive(rt.Elem(), active, path)
	}

	if active[rt] {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidData).
			Path(path...).
			GoType(rt.String()).
			Detail("type contains itself").
			Build()
	}
	active[rt] = true
	defer delete(active, rt)

	var (
		t   *Type
		err error
	)
	switch rt.Kind() {
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return Primitive(KindBlob), nil
		}
		var elem *Type
		if elem, err = derive(rt.Elem(), active, subPath(path, "[elem]")); err == nil {
			t = ListOf(elem)
		}
	case reflect.Map:
		t, err = deriveMap(rt, active, path)
	case reflect.Array:
		t, err = deriveArray(rt, active, path)
	case reflect.Struct:
		if isTupleStruct(rt) {
			t, err = deriveTupleStruct(rt, active, path)
		} else {
			t, err = deriveUDT(rt, active, path)
		}
	case reflect.Int, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil, unsupported(path, rt, "CQL has only sized signed integers")
	default:
		return nil, unsupported(path, rt, "no CQL type for Go kind "+rt.Kind().String())
	}
	if err != nil {
		return nil, err
	}
	derived.LoadOrStore(rt, t)
	return t, nil
}

func unsupported(path []string, rt reflect.Type, detail string) error {
	return errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		GoType(rt.String()).
		Detail("%s", detail).
		Build()
}

func deriveMap(rt reflect.Type, active map[reflect.Type]bool, path []string) (*Type, error) {
	key, err := derive(rt.Key(), active, subPath(path, "[key]"))
	if err != nil {
		return nil, err
	}
	if IsSetType(rt) {
		return SetOf(key), nil
	}
	value, err := derive(rt.Elem(), active, subPath(path, "[value]"))
	if err != nil {
		return nil, err
	}
	return MapOf(key, value), nil
}

// IsSetType reports whether a map type is treated as a set.
func IsSetType(rt reflect.Type) bool {
	return rt.Kind() == reflect.Map && rt.Elem().Kind() == reflect.Struct && rt.Elem().NumField() == 0
}

func deriveArray(rt reflect.Type, active map[reflect.Type]bool, path []string) (*Type, error) {
	if rt.Len() == 0 {
		return nil, unsupported(path, rt, "empty tuple")
	}
	elems := make([]*Type, rt.Len())
	for i := range elems {
		e, err := derive(rt.Elem(), active, subPath(path, indexSegment(i)))
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	return TupleOf(elems...), nil
}

func isTupleStruct(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous && f.Type == typeTupleMarker {
			return true
		}
	}
	return false
}

// StructFields returns the indexes of the struct fields that carry values,
// in declaration order, with their CQL field names.
func StructFields(rt reflect.Type) (idx []int, names []string) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() || f.Type == typeTupleMarker {
			continue
		}
		name := f.Tag.Get("cql")
		if name == "-" {
			continue
		}
		if name == "" {
			name = snakeCase(f.Name)
		}
		idx = append(idx, i)
		names = append(names, name)
	}
	return idx, names
}

func deriveTupleStruct(rt reflect.Type, active map[reflect.Type]bool, path []string) (*Type, error) {
	idx, _ := StructFields(rt)
	if len(idx) == 0 {
		return nil, unsupported(path, rt, "empty tuple")
	}
	elems := make([]*Type, len(idx))
	for i, fi := range idx {
		e, err := derive(rt.Field(fi).Type, active, subPath(path, indexSegment(i)))
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	return TupleOf(elems...), nil
}

func deriveUDT(rt reflect.Type, active map[reflect.Type]bool, path []string) (*Type, error) {
	idx, names := StructFields(rt)
	fields := make([]Field, len(idx))
	for i, fi := range idx {
		e, err := derive(rt.Field(fi).Type, active, subPath(path, names[i]))
		if err != nil {
			return nil, err
		}
		fields[i] = Field{Name: names[i], Type: e}
	}
	keyspace, name := "", snakeCase(rt.Name())
	if rt.Implements(typeNamer) || reflect.PointerTo(rt).Implements(typeNamer) {
		full := reflect.New(rt).Interface().(TypeNamer).CQLTypeName()
		if ks, n, ok := strings.Cut(full, "."); ok {
			keyspace, name = ks, n
		} else {
			name = full
		}
	}
	if name == "" {
		return nil, unsupported(path, rt, "anonymous struct needs a CQLTypeName method")
	}
	t := UDTOf(keyspace, name, fields...)
	if err := t.validate(path); err != nil {
		return nil, err
	}
	return t, nil
}

// snakeCase converts a Go identifier to the lower_snake_case CQL convention.
// Acronyms stay together: "HTTPCode" -> "http_code".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
