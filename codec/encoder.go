package codec

import (
	"bytes"
	"math"
	"math/big"
	"net/netip"
	"reflect"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/codec/internal/wire"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

// NullLength is the wire length prefix of a null value.
const NullLength = wire.NullLength

type Encoder struct {
	compiler *Compiler
}

func NewEncoder() *Encoder {
	return &Encoder{compiler: defaultCompiler}
}

func NewEncoderWithCompiler(c *Compiler) *Encoder {
	return &Encoder{compiler: c}
}

// Encode encodes v with the CQL type derived from its Go type. The result is
// a complete envelope: the 4-byte length prefix followed by the payload, or
// only the null prefix for a nil pointer.
func (e *Encoder) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, errors.NilPointer(errors.PhaseEncode, nil, "nil")
	}
	rv := reflect.ValueOf(v)
	ct, err := e.compiler.CompileFor(rv.Type())
	if err != nil {
		return nil, err
	}
	return e.AppendValue(nil, ct, rv)
}

// EncodeAs encodes v as t. A nil v encodes as null.
func (e *Encoder) EncodeAs(t *cql.Type, v any) ([]byte, error) {
	rv := reflect.ValueOf(&v).Elem()
	ct, err := e.compiler.Compile(t, rv.Type())
	if err != nil {
		return nil, err
	}
	return e.AppendValue(nil, ct, rv)
}

// AppendPayload appends the payload of a present value without a length
// prefix. It fails for null values, which have no payload.
func (e *Encoder) AppendPayload(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	if isNull(ct, v) {
		return b, errors.New(errors.PhaseEncode, errors.KindNilPointer).
			CQLType(ct.CQL.String()).
			Detail("null value has no payload").
			Build()
	}
	return e.appendPayload(b, ct, v)
}

// AppendValue appends the envelope of v: a length-prefixed payload, or the
// null prefix. On error b is returned truncated to its original length.
func (e *Encoder) AppendValue(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	if isNull(ct, v) {
		return wire.AppendNull(b), nil
	}
	off := len(b)
	b = append(b, 0, 0, 0, 0)
	b, err := e.appendPayload(b, ct, v)
	if err != nil {
		return b[:off], err
	}
	if err := wire.PatchLength(b, off); err != nil {
		return b[:off], withType(err, ct)
	}
	return b, nil
}

func isNull(ct *CompiledType, v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch ct.repr {
	case reprOption, reprBigInt, reprDecimal:
		return v.IsNil()
	case reprDynamic:
		// A typed nil pointer stored in an interface is null as well.
		return v.IsNil() || (v.Elem().Kind() == reflect.Pointer && v.Elem().IsNil())
	}
	return false
}

func (e *Encoder) appendPayload(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	switch ct.repr {
	case reprOption:
		return e.appendPayload(b, ct.Option, v.Elem())
	case reprDynamic:
		return e.appendDynamic(b, ct, v.Elem())
	case reprSlice:
		if ct.Kind == cql.KindTuple {
			return e.appendTuple(b, ct, v)
		}
		return e.appendSlice(b, ct, v)
	case reprSetMap:
		return e.appendSetMap(b, ct, v)
	case reprMap:
		return e.appendMap(b, ct, v)
	case reprArray, reprStruct:
		return e.appendTuple(b, ct, v)
	case reprStringMap:
		return e.appendStringMap(b, ct, v)
	}
	return appendPrimitive(b, ct, v)
}

// appendDynamic encodes a concrete value held in an interface. Values whose
// Go type pairs directly with the CQL type are encoded as is; others are
// coerced to the default Go type first.
func (e *Encoder) appendDynamic(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	if v.Type() == ct.Dynamic.GoType {
		return e.appendPayload(b, ct.Dynamic, v)
	}
	if direct, err := e.compiler.Compile(ct.CQL, v.Type()); err == nil {
		return e.appendPayload(b, direct, v)
	}
	cv, err := coerce(ct.CQL, v.Interface())
	if err != nil {
		return b, err
	}
	return e.appendPayload(b, ct.Dynamic, cv)
}

func (e *Encoder) appendSlice(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	n := v.Len()
	if err := wire.CheckLength(uint64(n)); err != nil {
		return b, withType(err, ct)
	}
	b = wire.AppendUint32(b, uint32(n))
	for i := 0; i < n; i++ {
		var err error
		if b, err = e.AppendValue(b, ct.Elem, v.Index(i)); err != nil {
			return b, errors.WithPath(err, "["+strconv.Itoa(i)+"]")
		}
	}
	return b, nil
}

// Sets and maps are written in ascending order of their encoded keys, so
// equal values always produce equal bytes.
func (e *Encoder) appendSetMap(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	keys, err := e.sortedKeys(ct.Elem, v)
	if err != nil {
		return b, err
	}
	b = wire.AppendUint32(b, uint32(len(keys)))
	for _, k := range keys {
		b = append(b, k.enc...)
	}
	return b, nil
}

func (e *Encoder) appendMap(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	keys, err := e.sortedKeys(ct.Key, v)
	if err != nil {
		return b, err
	}
	b = wire.AppendUint32(b, uint32(len(keys)))
	for i, k := range keys {
		b = append(b, k.enc...)
		if b, err = e.AppendValue(b, ct.Value, v.MapIndex(k.key)); err != nil {
			return b, errors.WithPath(err, "["+strconv.Itoa(i)+"]", "value")
		}
	}
	return b, nil
}

type encodedKey struct {
	key reflect.Value
	enc []byte
}

func (e *Encoder) sortedKeys(kt *CompiledType, m reflect.Value) ([]encodedKey, error) {
	if err := wire.CheckLength(uint64(m.Len())); err != nil {
		return nil, err
	}
	keys := make([]encodedKey, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		enc, err := e.AppendValue(nil, kt, iter.Key())
		if err != nil {
			return nil, errors.WithPath(err, "[key]")
		}
		keys = append(keys, encodedKey{key: iter.Key(), enc: enc})
	}
	slices.SortFunc(keys, func(a, b encodedKey) int { return bytes.Compare(a.enc, b.enc) })
	return keys, nil
}

func (e *Encoder) appendTuple(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	if ct.repr == reprSlice && v.Len() != len(ct.Fields) {
		return b, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			CQLType(ct.CQL.String()).
			Detail("tuple has %d elements, value has %d", len(ct.Fields), v.Len()).
			Build()
	}
	for i, f := range ct.Fields {
		var fv reflect.Value
		if f.Index >= 0 {
			fv = v.Field(f.Index)
		} else {
			fv = v.Index(i)
		}
		var err error
		if b, err = e.AppendValue(b, f.Type, fv); err != nil {
			return b, errors.WithPath(err, fieldSegment(ct, i))
		}
	}
	return b, nil
}

func (e *Encoder) appendStringMap(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	known := 0
	for _, f := range ct.Fields {
		fv := v.MapIndex(reflect.ValueOf(f.Name).Convert(v.Type().Key()))
		if fv.IsValid() {
			known++
		}
		var err error
		if b, err = e.AppendValue(b, f.Type, fv); err != nil {
			return b, errors.WithPath(err, f.Name)
		}
	}
	if known != v.Len() {
		return b, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			CQLType(ct.CQL.String()).
			Detail("value has fields not declared by the type").
			Build()
	}
	return b, nil
}

func fieldSegment(ct *CompiledType, i int) string {
	if ct.Kind == cql.KindUDT {
		return ct.Fields[i].Name
	}
	return "[" + strconv.Itoa(i) + "]"
}

func appendPrimitive(b []byte, ct *CompiledType, v reflect.Value) ([]byte, error) {
	switch ct.Kind {
	case cql.KindBoolean:
		if v.Bool() {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case cql.KindTinyInt:
		return wire.AppendUint8(b, uint8(v.Int())), nil
	case cql.KindSmallInt:
		return wire.AppendUint16(b, uint16(v.Int())), nil
	case cql.KindInt:
		return wire.AppendUint32(b, uint32(v.Int())), nil
	case cql.KindBigInt, cql.KindCounter:
		return wire.AppendUint64(b, uint64(v.Int())), nil
	case cql.KindFloat:
		return wire.AppendFloat32(b, float32(v.Float())), nil
	case cql.KindDouble:
		return wire.AppendFloat64(b, v.Float()), nil
	case cql.KindText:
		s := v.String()
		if !utf8.ValidString(s) {
			return b, encodeInvalid(ct, "invalid UTF-8")
		}
		return append(b, s...), nil
	case cql.KindAscii:
		s := v.String()
		for i := 0; i < len(s); i++ {
			if s[i] >= 0x80 {
				return b, encodeInvalid(ct, "non-ASCII byte at offset "+strconv.Itoa(i))
			}
		}
		return append(b, s...), nil
	case cql.KindBlob:
		return append(b, v.Bytes()...), nil
	case cql.KindUuid, cql.KindTimeuuid:
		u := v.Convert(typeUUID).Interface().(uuid.UUID)
		return append(b, u[:]...), nil
	case cql.KindVarint:
		if ct.repr == reprBigInt {
			return wire.AppendVarint(b, v.Interface().(*big.Int)), nil
		}
		return wire.AppendVarint(b, big.NewInt(v.Int())), nil
	case cql.KindDecimal:
		return appendDecimal(b, ct, v.Interface().(*apd.Decimal))
	case cql.KindInet:
		a := v.Interface().(netip.Addr)
		switch {
		case a.Is4():
			ip := a.As4()
			return append(b, ip[:]...), nil
		case a.Is6():
			ip := a.As16()
			return append(b, ip[:]...), nil
		}
		return b, encodeInvalid(ct, "invalid address")
	case cql.KindTimestamp:
		if ct.repr == reprTime {
			return wire.AppendUint64(b, uint64(v.Interface().(time.Time).UnixMilli())), nil
		}
		return wire.AppendUint64(b, uint64(v.Int())), nil
	case cql.KindDate:
		if ct.repr == reprTime {
			return wire.AppendUint32(b, cql.DateOf(v.Interface().(time.Time)).Wire()), nil
		}
		return wire.AppendUint32(b, cql.Date(v.Int()).Wire()), nil
	case cql.KindTime:
		t := cql.Time(v.Int())
		if !t.Valid() {
			return b, errors.Overflow(errors.PhaseEncode, nil, v.Int(), ct.CQL.String())
		}
		return wire.AppendUint64(b, uint64(t)), nil
	case cql.KindDuration:
		d := v.Interface().(cql.Duration)
		b = wire.AppendVint(b, int64(d.Months))
		b = wire.AppendVint(b, int64(d.Days))
		return wire.AppendVint(b, d.Nanoseconds), nil
	}
	return b, errors.Unsupported(errors.PhaseEncode, "encode "+ct.CQL.String())
}

func appendDecimal(b []byte, ct *CompiledType, d *apd.Decimal) ([]byte, error) {
	if d.Form != apd.Finite {
		return b, encodeInvalid(ct, "decimal is not finite")
	}
	if int64(d.Exponent) == math.MinInt32 {
		return b, errors.Overflow(errors.PhaseEncode, nil, d.Exponent, ct.CQL.String())
	}
	unscaled := d.Coeff.MathBigInt()
	if d.Negative {
		unscaled.Neg(unscaled)
	}
	b = wire.AppendUint32(b, uint32(-d.Exponent))
	return wire.AppendVarint(b, unscaled), nil
}

func encodeInvalid(ct *CompiledType, detail string) error {
	return errors.New(errors.PhaseEncode, errors.KindInvalidData).
		CQLType(ct.CQL.String()).
		GoType(ct.GoType.String()).
		Detail("%s", detail).
		Build()
}

// withType fills in the CQL type of an error that has none.
func withType(err error, ct *CompiledType) error {
	e, ok := err.(*errors.Error)
	if !ok || e.CQLType != "" {
		return err
	}
	cp := *e
	cp.CQLType = ct.CQL.String()
	return &cp
}
