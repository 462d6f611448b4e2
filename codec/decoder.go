package codec

import (
	"bytes"
	"math"
	"net/netip"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/codec/internal/wire"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

type Decoder struct {
	compiler *Compiler
}

func NewDecoder() *Decoder {
	return &Decoder{compiler: defaultCompiler}
}

func NewDecoderWithCompiler(c *Compiler) *Decoder {
	return &Decoder{compiler: c}
}

// Decode decodes a present payload into dst, which must be a non-nil
// pointer. The CQL type is derived from the pointed-to Go type. The payload
// must be consumed exactly.
func (d *Decoder) Decode(payload []byte, dst any) error {
	rv, err := target(dst)
	if err != nil {
		return err
	}
	ct, err := d.compiler.CompileFor(rv.Type())
	if err != nil {
		return err
	}
	return d.DecodeInto(ct, payload, rv)
}

// DecodeAs decodes a present payload of type t into dst.
func (d *Decoder) DecodeAs(t *cql.Type, payload []byte, dst any) error {
	rv, err := target(dst)
	if err != nil {
		return err
	}
	ct, err := d.compiler.Compile(t, rv.Type())
	if err != nil {
		return err
	}
	return d.DecodeInto(ct, payload, rv)
}

// DecodeNull stores the null representation of t in dst: a nil pointer or
// nil interface. Non-nullable destinations fail with a malformed value error.
func (d *Decoder) DecodeNull(t *cql.Type, dst any) error {
	rv, err := target(dst)
	if err != nil {
		return err
	}
	ct, err := d.compiler.Compile(t, rv.Type())
	if err != nil {
		return err
	}
	return d.DecodeNullInto(ct, rv)
}

// DecodeValue decodes a payload into the default Go type for t.
func (d *Decoder) DecodeValue(t *cql.Type, payload []byte) (any, error) {
	var out any
	if err := d.DecodeAs(t, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeEnvelope decodes a length-prefixed value, null included. The
// envelope must be consumed exactly.
func (d *Decoder) DecodeEnvelope(t *cql.Type, envelope []byte, dst any) error {
	rv, err := target(dst)
	if err != nil {
		return err
	}
	ct, err := d.compiler.Compile(t, rv.Type())
	if err != nil {
		return err
	}
	r := wire.NewReader(envelope)
	payload, null, err := r.Value()
	if err != nil {
		return withType(err, ct)
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	if null {
		return d.DecodeNullInto(ct, rv)
	}
	return d.DecodeInto(ct, payload, rv)
}

func target(dst any) (reflect.Value, error) {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindNilPointer).
			Detail("decode target must be a non-nil pointer, got %T", dst).
			Build()
	}
	return rv.Elem(), nil
}

// DecodeInto decodes a present payload into the settable dst of type
// ct.GoType. Nothing is stored in dst when decoding fails.
func (d *Decoder) DecodeInto(ct *CompiledType, payload []byte, dst reflect.Value) error {
	tmp := reflect.New(ct.GoType).Elem()
	if err := d.decodePayload(ct, payload, tmp); err != nil {
		return err
	}
	dst.Set(tmp)
	return nil
}

// DecodeNullInto stores the null representation of ct in dst.
func (d *Decoder) DecodeNullInto(ct *CompiledType, dst reflect.Value) error {
	if !ct.Nullable() {
		return errors.New(errors.PhaseDecode, errors.KindMalformedValue).
			GoType(ct.GoType.String()).
			CQLType(ct.CQL.String()).
			Detail("null value for a non-nullable Go type").
			Build()
	}
	dst.Set(reflect.Zero(ct.GoType))
	return nil
}

func (d *Decoder) decodeElem(ct *CompiledType, payload []byte, null bool, dst reflect.Value) error {
	if null {
		return d.DecodeNullInto(ct, dst)
	}
	return d.decodePayload(ct, payload, dst)
}

func (d *Decoder) decodePayload(ct *CompiledType, p []byte, dst reflect.Value) error {
	switch ct.repr {
	case reprOption:
		ptr := reflect.New(ct.GoType.Elem())
		if err := d.decodePayload(ct.Option, p, ptr.Elem()); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	case reprDynamic:
		v := reflect.New(ct.Dynamic.GoType).Elem()
		if err := d.decodePayload(ct.Dynamic, p, v); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	case reprSlice:
		if ct.Kind == cql.KindTuple {
			return d.decodeTuple(ct, p, dst)
		}
		return d.decodeSlice(ct, p, dst)
	case reprSetMap:
		return d.decodeSetMap(ct, p, dst)
	case reprMap:
		return d.decodeMap(ct, p, dst)
	case reprArray, reprStruct:
		if ct.Kind == cql.KindUDT {
			return d.decodeUDT(ct, p, dst)
		}
		return d.decodeTuple(ct, p, dst)
	case reprStringMap:
		return d.decodeUDT(ct, p, dst)
	}
	return decodePrimitive(ct, p, dst)
}

func (d *Decoder) decodeSlice(ct *CompiledType, p []byte, dst reflect.Value) error {
	r := wire.NewReader(p)
	n, err := r.Count()
	if err != nil {
		return withType(err, ct)
	}
	s := reflect.MakeSlice(ct.GoType, n, n)
	for i := 0; i < n; i++ {
		elem, null, err := r.Value()
		if err != nil {
			return errors.WithPath(withType(err, ct), indexSegment(i))
		}
		if err := d.decodeElem(ct.Elem, elem, null, s.Index(i)); err != nil {
			return errors.WithPath(err, indexSegment(i))
		}
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	dst.Set(s)
	return nil
}

func (d *Decoder) decodeSetMap(ct *CompiledType, p []byte, dst reflect.Value) error {
	r := wire.NewReader(p)
	n, err := r.Count()
	if err != nil {
		return withType(err, ct)
	}
	m := reflect.MakeMapWithSize(ct.GoType, n)
	present := reflect.Zero(ct.GoType.Elem())
	for i := 0; i < n; i++ {
		elem, null, err := r.Value()
		if err != nil {
			return errors.WithPath(withType(err, ct), indexSegment(i))
		}
		k := reflect.New(ct.GoType.Key()).Elem()
		if err := d.decodeElem(ct.Elem, elem, null, k); err != nil {
			return errors.WithPath(err, indexSegment(i))
		}
		m.SetMapIndex(k, present)
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	dst.Set(m)
	return nil
}

func (d *Decoder) decodeMap(ct *CompiledType, p []byte, dst reflect.Value) error {
	r := wire.NewReader(p)
	n, err := r.Count()
	if err != nil {
		return withType(err, ct)
	}
	m := reflect.MakeMapWithSize(ct.GoType, n)
	for i := 0; i < n; i++ {
		k := reflect.New(ct.GoType.Key()).Elem()
		if err := d.readElem(r, ct, ct.Key, k); err != nil {
			return errors.WithPath(err, indexSegment(i), "key")
		}
		v := reflect.New(ct.GoType.Elem()).Elem()
		if err := d.readElem(r, ct, ct.Value, v); err != nil {
			return errors.WithPath(err, indexSegment(i), "value")
		}
		m.SetMapIndex(k, v)
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	dst.Set(m)
	return nil
}

func (d *Decoder) readElem(r *wire.Reader, parent, ct *CompiledType, dst reflect.Value) error {
	p, null, err := r.Value()
	if err != nil {
		return withType(err, parent)
	}
	return d.decodeElem(ct, p, null, dst)
}

func (d *Decoder) decodeTuple(ct *CompiledType, p []byte, dst reflect.Value) error {
	r := wire.NewReader(p)
	v := dst
	if ct.repr == reprSlice {
		v = reflect.MakeSlice(ct.GoType, len(ct.Fields), len(ct.Fields))
	}
	for i, f := range ct.Fields {
		if err := d.readElem(r, ct, f.Type, fieldValue(v, f, i)); err != nil {
			return errors.WithPath(err, indexSegment(i))
		}
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	if ct.repr == reprSlice {
		dst.Set(v)
	}
	return nil
}

// decodeUDT stops reading when the payload is exhausted: fields appended to
// the type after the value was written are absent and decode as null.
func (d *Decoder) decodeUDT(ct *CompiledType, p []byte, dst reflect.Value) error {
	r := wire.NewReader(p)
	var m reflect.Value
	if ct.repr == reprStringMap {
		m = reflect.MakeMapWithSize(ct.GoType, len(ct.Fields))
	}
	for i, f := range ct.Fields {
		var fv reflect.Value
		if ct.repr == reprStringMap {
			fv = reflect.New(ct.GoType.Elem()).Elem()
		} else {
			fv = fieldValue(dst, f, i)
		}
		var err error
		if r.Len() == 0 {
			err = d.DecodeNullInto(f.Type, fv)
		} else {
			err = d.readElem(r, ct, f.Type, fv)
		}
		if err != nil {
			return errors.WithPath(err, f.Name)
		}
		if ct.repr == reprStringMap {
			m.SetMapIndex(reflect.ValueOf(f.Name).Convert(ct.GoType.Key()), fv)
		}
	}
	if r.Len() != 0 {
		return trailing(ct, r.Len())
	}
	if ct.repr == reprStringMap {
		dst.Set(m)
	}
	return nil
}

func fieldValue(v reflect.Value, f CompiledField, i int) reflect.Value {
	if f.Index >= 0 {
		return v.Field(f.Index)
	}
	return v.Index(i)
}

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func malformed(ct *CompiledType, format string, args ...any) error {
	return errors.New(errors.PhaseDecode, errors.KindMalformedValue).
		CQLType(ct.CQL.String()).
		Detail(format, args...).
		Build()
}

func trailing(ct *CompiledType, n int) error {
	return malformed(ct, "%d trailing bytes after value", n)
}

func decodePrimitive(ct *CompiledType, p []byte, dst reflect.Value) error {
	if size, ok := ct.Kind.FixedSize(); ok && len(p) != size {
		return malformed(ct, "expected %d bytes, got %d", size, len(p))
	}

	r := wire.NewReader(p)
	switch ct.Kind {
	case cql.KindBoolean:
		dst.SetBool(p[0] != 0)
	case cql.KindTinyInt:
		dst.SetInt(int64(int8(p[0])))
	case cql.KindSmallInt:
		v, _ := r.Uint16()
		dst.SetInt(int64(int16(v)))
	case cql.KindInt:
		v, _ := r.Uint32()
		dst.SetInt(int64(int32(v)))
	case cql.KindBigInt, cql.KindCounter:
		v, _ := r.Uint64()
		dst.SetInt(int64(v))
	case cql.KindFloat:
		v, _ := r.Uint32()
		dst.SetFloat(float64(math.Float32frombits(v)))
	case cql.KindDouble:
		v, _ := r.Uint64()
		dst.SetFloat(math.Float64frombits(v))
	case cql.KindText:
		if !utf8.Valid(p) {
			return malformed(ct, "invalid UTF-8")
		}
		dst.SetString(string(p))
	case cql.KindAscii:
		for i, c := range p {
			if c >= 0x80 {
				return malformed(ct, "non-ASCII byte at offset %d", i)
			}
		}
		dst.SetString(string(p))
	case cql.KindBlob:
		// The payload is borrowed from a transport buffer and must not be retained.
		dst.Set(reflect.ValueOf(bytes.Clone(p)).Convert(ct.GoType))
	case cql.KindUuid, cql.KindTimeuuid:
		u, _ := uuid.FromBytes(p)
		dst.Set(reflect.ValueOf(u).Convert(ct.GoType))
	case cql.KindVarint:
		x := wire.Varint(p)
		if ct.repr == reprBigInt {
			dst.Set(reflect.ValueOf(x))
			return nil
		}
		if !x.IsInt64() {
			return errors.Overflow(errors.PhaseDecode, nil, x.String(), ct.GoType.String())
		}
		dst.SetInt(x.Int64())
	case cql.KindDecimal:
		dec, err := decodeDecimal(ct, p)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(dec))
	case cql.KindInet:
		switch len(p) {
		case 4:
			dst.Set(reflect.ValueOf(netip.AddrFrom4([4]byte(p))))
		case 16:
			dst.Set(reflect.ValueOf(netip.AddrFrom16([16]byte(p))))
		default:
			return malformed(ct, "invalid inet address length %d", len(p))
		}
	case cql.KindTimestamp:
		v, _ := r.Uint64()
		if ct.repr == reprTime {
			dst.Set(reflect.ValueOf(time.UnixMilli(int64(v)).UTC()))
		} else {
			dst.SetInt(int64(v))
		}
	case cql.KindDate:
		v, _ := r.Uint32()
		date := cql.DateFromWire(v)
		if ct.repr == reprTime {
			dst.Set(reflect.ValueOf(date.Time()))
		} else {
			dst.SetInt(int64(date))
		}
	case cql.KindTime:
		v, _ := r.Uint64()
		if t := cql.Time(v); !t.Valid() {
			return malformed(ct, "time %d is outside a day", int64(v))
		}
		dst.SetInt(int64(v))
	case cql.KindDuration:
		dur, err := decodeDuration(ct, r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(dur))
	default:
		return errors.Unsupported(errors.PhaseDecode, "decode "+ct.CQL.String())
	}
	return nil
}

func decodeDecimal(ct *CompiledType, p []byte) (*apd.Decimal, error) {
	r := wire.NewReader(p)
	scale, err := r.Uint32()
	if err != nil {
		return nil, withType(err, ct)
	}
	rest, _ := r.Bytes(r.Len())
	unscaled := wire.Varint(rest)
	exp := -int64(int32(scale))
	if exp > math.MaxInt32 {
		return nil, malformed(ct, "scale %d out of range", int32(scale))
	}
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(unscaled), int32(exp)), nil
}

func decodeDuration(ct *CompiledType, r *wire.Reader) (cql.Duration, error) {
	var parts [3]int64
	for i := range parts {
		v, err := r.Vint()
		if err != nil {
			return cql.Duration{}, withType(err, ct)
		}
		parts[i] = v
	}
	if r.Len() != 0 {
		return cql.Duration{}, trailing(ct, r.Len())
	}
	for _, v := range parts[:2] {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return cql.Duration{}, malformed(ct, "duration component %d overflows int32", v)
		}
	}
	return cql.Duration{Months: int32(parts[0]), Days: int32(parts[1]), Nanoseconds: parts[2]}, nil
}
