package codec

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

var (
	typeAnySlice  = reflect.TypeFor[[]any]()
	typeAnyMap    = reflect.TypeFor[map[any]any]()
	typeStringMap = reflect.TypeFor[map[string]any]()
)

// DynamicType returns the Go type values of t decode into when the
// destination is an interface: the native type for primitives, []any for
// lists, sets and tuples, map[any]any for maps and map[string]any for udts.
func DynamicType(t *cql.Type) reflect.Type {
	switch t.Kind {
	case cql.KindList, cql.KindSet, cql.KindTuple:
		return typeAnySlice
	case cql.KindMap:
		return typeAnyMap
	case cql.KindUDT:
		return typeStringMap
	}
	rt, ok := cql.NativeType(t.Kind)
	if !ok {
		return typeAny
	}
	return rt
}

// Coerce converts a loosely typed value (as produced by encoding/json, or
// written by hand) into the default Go type for t. Composite values are
// converted one level deep; their elements stay untyped and are coerced when
// they are encoded.
func Coerce(t *cql.Type, value any) (any, error) {
	v, err := coerce(t, value)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func coerce(t *cql.Type, value any) (reflect.Value, error) {
	if value == nil {
		return reflect.Value{}, errors.NilPointer(errors.PhaseEncode, nil, "nil")
	}
	want := DynamicType(t)
	rv := reflect.ValueOf(value)
	if rv.Type() == want {
		return rv, nil
	}
	if t.Kind.IsPrimitive() {
		out, err := coercePrimitive(t.Kind, value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(out), nil
	}

	switch t.Kind {
	case cql.KindList, cql.KindSet, cql.KindTuple:
		var items []any
		switch {
		case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
			items = make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
		case t.Kind == cql.KindSet && rv.Kind() == reflect.Map:
			items = make([]any, 0, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				items = append(items, iter.Key().Interface())
			}
		default:
			return reflect.Value{}, coerceMismatch(t, value)
		}
		return reflect.ValueOf(items), nil
	case cql.KindMap:
		if rv.Kind() != reflect.Map {
			return reflect.Value{}, coerceMismatch(t, value)
		}
		out := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := coerceKey(t.Key, iter.Key().Interface())
			if err != nil {
				return reflect.Value{}, errors.WithPath(err, "[key]")
			}
			out[k] = iter.Value().Interface()
		}
		return reflect.ValueOf(out), nil
	case cql.KindUDT:
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, coerceMismatch(t, value)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return reflect.ValueOf(out), nil
	}
	return reflect.Value{}, coerceMismatch(t, value)
}

// coerceKey converts a map key. JSON object keys are always strings, so
// string keys are first parsed as JSON for non-text key types.
func coerceKey(t *cql.Type, key any) (any, error) {
	if s, ok := key.(string); ok && t.Kind != cql.KindText && t.Kind != cql.KindAscii {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			if out, err := Coerce(t, parsed); err == nil {
				return out, nil
			}
		}
	}
	return Coerce(t, key)
}

func coerceMismatch(t *cql.Type, value any) error {
	return errors.TypeMismatch(errors.PhaseEncode, nil, fmt.Sprintf("%T", value), t.String())
}

func coercePrimitive(k cql.Kind, value any) (any, error) {
	t := cql.Primitive(k)
	fail := func() (any, error) { return nil, coerceMismatch(t, value) }

	if n, ok := value.(json.Number); ok {
		if k == cql.KindVarint || k == cql.KindDecimal {
			value = n.String()
		} else if i, err := n.Int64(); err == nil {
			value = i
		} else if f, err := n.Float64(); err == nil {
			value = f
		}
	}

	switch k {
	case cql.KindBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return fail()
	case cql.KindTinyInt:
		if v, ok := coerceToInt64(value); ok && v >= math.MinInt8 && v <= math.MaxInt8 {
			return int8(v), nil
		}
		return overflowOrFail(t, value)
	case cql.KindSmallInt:
		if v, ok := coerceToInt64(value); ok && v >= math.MinInt16 && v <= math.MaxInt16 {
			return int16(v), nil
		}
		return overflowOrFail(t, value)
	case cql.KindInt:
		if v, ok := coerceToInt32(value); ok {
			return v, nil
		}
		return overflowOrFail(t, value)
	case cql.KindBigInt:
		if v, ok := coerceToInt64(value); ok {
			return v, nil
		}
		return fail()
	case cql.KindCounter:
		if v, ok := coerceToInt64(value); ok {
			return cql.Counter(v), nil
		}
		return fail()
	case cql.KindFloat:
		if v, ok := coerceToFloat64(value); ok {
			return float32(v), nil
		}
		return fail()
	case cql.KindDouble:
		if v, ok := coerceToFloat64(value); ok {
			return v, nil
		}
		return fail()
	case cql.KindText, cql.KindAscii:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return fail()
	case cql.KindBlob:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
				b, err := hex.DecodeString(v[2:])
				if err != nil {
					return nil, invalid(t, err)
				}
				return b, nil
			}
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return b, nil
		}
		return fail()
	case cql.KindUuid, cql.KindTimeuuid:
		switch v := value.(type) {
		case [16]byte:
			return uuid.UUID(v), nil
		case string:
			u, err := uuid.Parse(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return u, nil
		}
		return fail()
	case cql.KindVarint:
		switch v := value.(type) {
		case *big.Int:
			return v, nil
		case string:
			x, ok := new(big.Int).SetString(v, 10)
			if !ok {
				return nil, invalid(t, fmt.Errorf("invalid integer %q", v))
			}
			return x, nil
		}
		if v, ok := coerceToInt64(value); ok {
			return big.NewInt(v), nil
		}
		return fail()
	case cql.KindDecimal:
		switch v := value.(type) {
		case *apd.Decimal:
			return v, nil
		case string:
			d, _, err := apd.NewFromString(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return d, nil
		case float64:
			d, err := new(apd.Decimal).SetFloat64(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return d, nil
		}
		if v, ok := coerceToInt64(value); ok {
			return apd.New(v, 0), nil
		}
		return fail()
	case cql.KindInet:
		switch v := value.(type) {
		case netip.Addr:
			return v, nil
		case string:
			a, err := netip.ParseAddr(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return a, nil
		}
		return fail()
	case cql.KindTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return ts, nil
		}
		if ms, ok := coerceToInt64(value); ok {
			return time.UnixMilli(ms).UTC(), nil
		}
		return fail()
	case cql.KindDate:
		switch v := value.(type) {
		case cql.Date:
			return v, nil
		case time.Time:
			return cql.DateOf(v), nil
		case string:
			d, err := cql.ParseDate(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return d, nil
		}
		if days, ok := coerceToInt32(value); ok {
			return cql.Date(days), nil
		}
		return fail()
	case cql.KindTime:
		switch v := value.(type) {
		case cql.Time:
			return v, nil
		case time.Duration:
			return cql.Time(v), nil
		case string:
			tm, err := cql.ParseTime(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return tm, nil
		}
		if ns, ok := coerceToInt64(value); ok {
			return cql.Time(ns), nil
		}
		return fail()
	case cql.KindDuration:
		switch v := value.(type) {
		case cql.Duration:
			return v, nil
		case string:
			d, err := cql.ParseDuration(v)
			if err != nil {
				return nil, invalid(t, err)
			}
			return d, nil
		}
		return fail()
	}
	return fail()
}

func overflowOrFail(t *cql.Type, value any) (any, error) {
	if f, ok := coerceToFloat64(value); ok && f == math.Trunc(f) {
		return nil, errors.Overflow(errors.PhaseEncode, nil, value, t.String())
	}
	return nil, coerceMismatch(t, value)
}

func invalid(t *cql.Type, cause error) error {
	return errors.New(errors.PhaseEncode, errors.KindInvalidData).
		CQLType(t.String()).
		Cause(cause).
		Detail("cannot convert value").
		Build()
}
