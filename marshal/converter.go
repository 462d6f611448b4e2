package marshal

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/codec"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/transport"
)

// Converter lowers Go values of one type into transport words and lifts
// them back.
type Converter struct {
	GoType  reflect.Type
	CQLType *cql.Type
	Shape   Shape

	plan    *codec.CompiledType
	encoder *codec.Encoder
	decoder *codec.Decoder
}

func newConverter(c *codec.Compiler, goType reflect.Type, t *cql.Type, shape Shape) (*Converter, error) {
	plan, err := c.Compile(t, goType)
	if err != nil {
		return nil, err
	}
	if shape == ShapeScalar && !ScalarKind(t.Kind) {
		return nil, errors.Unsupported(errors.PhaseCompile, "scalar transport of "+t.String())
	}
	return &Converter{
		GoType:  goType,
		CQLType: t,
		Shape:   shape,
		plan:    plan,
		encoder: codec.NewEncoderWithCompiler(c),
		decoder: codec.NewDecoderWithCompiler(c),
	}, nil
}

// Plan returns the compiled codec plan.
func (c *Converter) Plan() *codec.CompiledType { return c.plan }

// ValueType returns the wasm register type carrying the value.
func (c *Converter) ValueType() api.ValueType {
	if c.Shape == ShapeBuffered {
		return api.ValueTypeI64
	}
	return ScalarValueType(c.CQLType.Kind)
}

// ScalarValueType returns the register type of a scalar kind.
func ScalarValueType(k cql.Kind) api.ValueType {
	switch k {
	case cql.KindBigInt:
		return api.ValueTypeI64
	case cql.KindFloat:
		return api.ValueTypeF32
	case cql.KindDouble:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

// Lower converts v into a transport word. Buffered values are serialized
// into a block allocated from heap, which the receiver then owns; if any
// step fails the block is released and no word is produced.
func (c *Converter) Lower(heap wasmudf.Heap, v reflect.Value) (uint64, error) {
	if c.Shape == ShapeScalar {
		return c.lowerScalar(v)
	}

	scratch := getScratch()
	defer putScratch(scratch)

	env, err := c.encoder.AppendValue((*scratch)[:0], c.plan, v)
	*scratch = env[:0]
	if err != nil {
		return 0, err
	}
	if binary.BigEndian.Uint32(env) == codec.NullLength {
		return uint64(transport.Null), nil
	}
	payload := env[4:]

	buf, err := transport.Allocate(heap, uint32(len(payload)))
	if err != nil {
		return 0, withType(err, c)
	}
	if err := buf.Fill(payload); err != nil {
		_ = buf.Release() // the fill error is reported first
		return 0, withType(err, c)
	}
	word, err := buf.Take()
	return uint64(word), err
}

// Lift converts a transport word into a Go value of c.GoType. A buffered
// word is owned by the call and released before Lift returns. A failed
// release is reported only when decoding succeeded.
func (c *Converter) Lift(heap wasmudf.Heap, word uint64) (_ reflect.Value, err error) {
	if c.Shape == ShapeScalar {
		return c.liftScalar(word)
	}

	out := reflect.New(c.GoType).Elem()

	buf := transport.Adopt(heap, transport.Ptr(word))
	defer func() {
		if rerr := buf.Release(); rerr != nil && err == nil {
			err = withType(rerr, c)
		}
	}()

	if buf.IsNull() {
		if err := c.decoder.DecodeNullInto(c.plan, out); err != nil {
			return reflect.Value{}, err
		}
		return out, nil
	}
	payload, err := buf.Bytes()
	if err != nil {
		return reflect.Value{}, withType(err, c)
	}
	if err := c.decoder.DecodeInto(c.plan, payload, out); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

func (c *Converter) lowerScalar(v reflect.Value) (uint64, error) {
	if v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, errors.New(errors.PhaseTransport, errors.KindNilPointer).
				CQLType(c.CQLType.String()).
				Detail("null cannot be passed in a register").
				Build()
		}
		native, err := codec.Coerce(c.CQLType, v.Interface())
		if err != nil {
			return 0, err
		}
		v = reflect.ValueOf(native)
	}
	if !v.IsValid() {
		return 0, errors.NilPointer(errors.PhaseTransport, nil, c.GoType.String())
	}

	switch c.CQLType.Kind {
	case cql.KindBoolean:
		if v.Bool() {
			return api.EncodeI32(1), nil
		}
		return api.EncodeI32(0), nil
	case cql.KindTinyInt, cql.KindSmallInt, cql.KindInt:
		return api.EncodeI32(int32(v.Int())), nil
	case cql.KindBigInt:
		return api.EncodeI64(v.Int()), nil
	case cql.KindFloat:
		return api.EncodeF32(float32(v.Float())), nil
	case cql.KindDouble:
		return api.EncodeF64(v.Float()), nil
	}
	return 0, errors.Unsupported(errors.PhaseTransport, "scalar transport of "+c.CQLType.String())
}

func (c *Converter) liftScalar(word uint64) (reflect.Value, error) {
	var native any
	switch c.CQLType.Kind {
	case cql.KindBoolean:
		native = api.DecodeI32(word) != 0
	case cql.KindTinyInt:
		n := api.DecodeI32(word)
		if n < math.MinInt8 || n > math.MaxInt8 {
			return reflect.Value{}, errors.Overflow(errors.PhaseTransport, nil, n, "tinyint")
		}
		native = int8(n)
	case cql.KindSmallInt:
		n := api.DecodeI32(word)
		if n < math.MinInt16 || n > math.MaxInt16 {
			return reflect.Value{}, errors.Overflow(errors.PhaseTransport, nil, n, "smallint")
		}
		native = int16(n)
	case cql.KindInt:
		native = api.DecodeI32(word)
	case cql.KindBigInt:
		native = int64(word)
	case cql.KindFloat:
		native = api.DecodeF32(word)
	case cql.KindDouble:
		native = api.DecodeF64(word)
	default:
		return reflect.Value{}, errors.Unsupported(errors.PhaseTransport, "scalar transport of "+c.CQLType.String())
	}

	out := reflect.New(c.GoType).Elem()
	nv := reflect.ValueOf(native)
	if c.GoType.Kind() == reflect.Interface {
		out.Set(nv)
	} else {
		// Named Go types such as a newtype over int32 share the native layout.
		out.Set(nv.Convert(c.GoType))
	}
	return out, nil
}

func withType(err error, c *Converter) error {
	e, ok := err.(*errors.Error)
	if !ok || e.CQLType != "" {
		return err
	}
	cp := *e
	cp.CQLType = c.CQLType.String()
	return &cp
}
