package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/wippyai/wasm-udf/cql"
	udferrors "github.com/wippyai/wasm-udf/errors"
)

// env prefixes payload with its 4-byte length.
func env(payload ...byte) []byte {
	return append(binary.BigEndian.AppendUint32(nil, uint32(len(payload))), payload...)
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestEncodeGolden(t *testing.T) {
	u := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	tests := []struct {
		name  string
		value any
		want  []byte
	}{
		{"boolean true", true, env(0x01)},
		{"boolean false", false, env(0x00)},
		{"tinyint", int8(-1), env(0xff)},
		{"smallint", int16(0x0102), env(0x01, 0x02)},
		{"int", int32(-2), env(0xff, 0xff, 0xff, 0xfe)},
		{"bigint", int64(1), env(0, 0, 0, 0, 0, 0, 0, 1)},
		{"counter", cql.Counter(7), env(0, 0, 0, 0, 0, 0, 0, 7)},
		{"float", float32(1.5), env(0x3f, 0xc0, 0, 0)},
		{"double", 1.0, env(0x3f, 0xf0, 0, 0, 0, 0, 0, 0)},
		{"text", "hé", env('h', 0xc3, 0xa9)},
		{"empty text", "", env()},
		{"blob", []byte{1, 2}, env(1, 2)},
		{"uuid", u, env(0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff)},
		{"varint", big.NewInt(128), env(0x00, 0x80)},
		{"negative varint", big.NewInt(-129), env(0xff, 0x7f)},
		{"timestamp", time.UnixMilli(1000), env(0, 0, 0, 0, 0, 0, 0x03, 0xe8)},
		{"date", cql.Date(0), env(0x80, 0, 0, 0)},
		{"date before epoch", cql.Date(-1), env(0x7f, 0xff, 0xff, 0xff)},
		{"time", cql.Time(1), env(0, 0, 0, 0, 0, 0, 0, 1)},
		{"inet4", netip.MustParseAddr("127.0.0.1"), env(127, 0, 0, 1)},
		{"inet6", netip.MustParseAddr("::1"), env(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1)},
		{"duration", cql.Duration{Months: 1, Days: 2, Nanoseconds: 3}, env(0x02, 0x04, 0x06)},
		{"negative duration", cql.Duration{Months: -1, Days: -2, Nanoseconds: -3}, env(0x01, 0x03, 0x05)},
		{"null option", (*int32)(nil), []byte{0xff, 0xff, 0xff, 0xff}},
		{"present option", ptr(int32(3)), env(0, 0, 0, 3)},
		{"null varint", (*big.Int)(nil), []byte{0xff, 0xff, 0xff, 0xff}},
	}

	enc := NewEncoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%v) = % x, want % x", tt.value, got, tt.want)
			}
		})
	}
}

func TestEncodeDecimalGolden(t *testing.T) {
	enc := NewEncoder()
	tests := []struct {
		in   string
		want []byte
	}{
		{"12.34", env(0, 0, 0, 2, 0x04, 0xd2)},
		{"-1.5", env(0, 0, 0, 1, 0xf1)},
		{"0", env(0, 0, 0, 0, 0x00)},
		{"1E+3", env(0xff, 0xff, 0xff, 0xfd, 0x01)},
	}
	for _, tt := range tests {
		got, err := enc.Encode(mustDecimal(t, tt.in))
		if err != nil {
			t.Fatalf("Encode(%s): %v", tt.in, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Encode(%s) = % x, want % x", tt.in, got, tt.want)
		}
		var back *apd.Decimal
		if err := NewDecoder().Decode(got[4:], &back); err != nil {
			t.Fatalf("Decode(%s): %v", tt.in, err)
		}
		if back.Cmp(mustDecimal(t, tt.in)) != 0 {
			t.Errorf("round trip %s = %s", tt.in, back)
		}
	}

	if _, err := enc.Encode(&apd.Decimal{Form: apd.NaN}); err == nil {
		t.Error("NaN decimal should not encode")
	}
}

func TestNestedListLayout(t *testing.T) {
	got, err := NewEncoder().Encode([][]int32{{}, {1, 2}, {3}})
	if err != nil {
		t.Fatal(err)
	}
	want := env(cat(
		[]byte{0, 0, 0, 3},
		env(0, 0, 0, 0),
		env(cat([]byte{0, 0, 0, 2}, env(0, 0, 0, 1), env(0, 0, 0, 2))...),
		env(cat([]byte{0, 0, 0, 1}, env(0, 0, 0, 3))...),
	)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("layout\n got % x\nwant % x", got, want)
	}
	if binary.BigEndian.Uint32(got) != 52 {
		t.Errorf("outer length = %d, want 52", binary.BigEndian.Uint32(got))
	}

	var back [][]int32
	if err := NewDecoder().Decode(got[4:], &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, [][]int32{{}, {1, 2}, {3}}) {
		t.Errorf("decoded %v", back)
	}
}

func TestMapTextSmallint(t *testing.T) {
	in := map[string]int16{"a": 5, "b": 55}
	got, err := NewEncoder().Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	want := env(cat(
		[]byte{0, 0, 0, 2},
		env('a'), env(0, 5),
		env('b'), env(0, 55),
	)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("layout\n got % x\nwant % x", got, want)
	}
	if n := binary.BigEndian.Uint32(got[4:]); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	var back map[string]int16
	if err := NewDecoder().Decode(got[4:], &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, in) {
		t.Errorf("decoded %v, want %v", back, in)
	}
}

func TestSetOrdering(t *testing.T) {
	enc := NewEncoder()
	a, err := enc.Encode(cql.NewSet("b", "a", "c"))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := enc.Encode(cql.NewSet("c", "b", "a"))
	if !bytes.Equal(a, b) {
		t.Error("equal sets should encode to equal bytes")
	}
	want := env(cat([]byte{0, 0, 0, 3}, env('a'), env('b'), env('c'))...)
	if !bytes.Equal(a, want) {
		t.Errorf("got % x, want % x", a, want)
	}

	var asSlice []string
	if err := NewDecoder().DecodeAs(cql.SetOf(cql.Primitive(cql.KindText)), a[4:], &asSlice); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(asSlice, []string{"a", "b", "c"}) {
		t.Errorf("set into slice = %v", asSlice)
	}
}

type pair struct {
	cql.TupleMarker
	A *int32
	B string
}

func TestTupleNullField(t *testing.T) {
	got, err := NewEncoder().Encode(pair{B: "x"})
	if err != nil {
		t.Fatal(err)
	}
	want := env(cat([]byte{0xff, 0xff, 0xff, 0xff}, env('x'))...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	back := pair{A: ptr(int32(9))}
	if err := NewDecoder().Decode(got[4:], &back); err != nil {
		t.Fatal(err)
	}
	if back.A != nil || back.B != "x" {
		t.Errorf("decoded %+v", back)
	}
}

func TestNullDistinctFromEmpty(t *testing.T) {
	enc := NewEncoder()
	none, err := enc.Encode((*[]int32)(nil))
	if err != nil {
		t.Fatal(err)
	}
	empty, err := enc.Encode(&[]int32{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(none, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("None = % x", none)
	}
	if !bytes.Equal(empty, env(0, 0, 0, 0)) {
		t.Errorf("Some(empty) = % x", empty)
	}

	typ := cql.ListOf(cql.Primitive(cql.KindInt))
	dec := NewDecoder()
	var a, b *[]int32
	if err := dec.DecodeEnvelope(typ, none, &a); err != nil {
		t.Fatal(err)
	}
	if err := dec.DecodeEnvelope(typ, empty, &b); err != nil {
		t.Fatal(err)
	}
	if a != nil {
		t.Errorf("None decoded to %v", *a)
	}
	if b == nil || *b == nil || len(*b) != 0 {
		t.Errorf("Some(empty) decoded to %v", b)
	}
}

type item struct {
	Name  string
	Qty   int32
	Note  *string
	Tags  []string
	Extra int64 `cql:"-"`
}

func TestUDT(t *testing.T) {
	in := item{Name: "bolt", Qty: 4, Tags: []string{"m6"}}
	got, err := NewEncoder().Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	wantPayload := cat(
		env('b', 'o', 'l', 't'),
		env(0, 0, 0, 4),
		[]byte{0xff, 0xff, 0xff, 0xff},
		env(cat([]byte{0, 0, 0, 1}, env('m', '6'))...),
	)
	if !bytes.Equal(got, env(wantPayload...)) {
		t.Fatalf("got % x, want % x", got, env(wantPayload...))
	}

	var back item
	if err := NewDecoder().Decode(got[4:], &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, in) {
		t.Errorf("decoded %+v, want %+v", back, in)
	}
}

type grown struct {
	Name  string
	Qty   int32
	Since *cql.Date
}

type grownStrict struct {
	Name  string
	Qty   int32
	Since cql.Date
}

func TestUDTMissingTrailingFields(t *testing.T) {
	old := cat(env('a'), env(0, 0, 0, 1))

	var g grown
	if err := NewDecoder().Decode(old, &g); err != nil {
		t.Fatalf("decode older value: %v", err)
	}
	if g.Name != "a" || g.Qty != 1 || g.Since != nil {
		t.Errorf("decoded %+v", g)
	}

	var s grownStrict
	err := NewDecoder().Decode(old, &s)
	if !errors.Is(err, udferrors.ErrMalformedValue) {
		t.Errorf("missing non-nullable field err = %v, want malformed", err)
	}
}

func TestUDTAsStringMap(t *testing.T) {
	typ := cql.MustTypeFor[item]()
	payload, err := NewEncoder().EncodeAs(typ, map[string]any{"name": "nut", "qty": 2.0, "tags": []any{"x"}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewDecoder().DecodeValue(typ, payload[4:])
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"name": "nut", "qty": int32(2), "note": nil, "tags": []any{"x"}}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("DecodeValue = %#v, want %#v", v, want)
	}

	if _, err := NewEncoder().EncodeAs(typ, map[string]any{"name": "n", "bogus": 1}); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestRoundTrip(t *testing.T) {
	s := "note"
	tests := []any{
		true,
		int8(-128),
		int16(32767),
		int32(-2147483648),
		int64(1 << 62),
		float32(-0.25),
		3.141592653589793,
		"unicode ✓",
		[]byte{},
		[]byte{0, 255},
		uuid.New(),
		big.NewInt(0),
		new(big.Int).Lsh(big.NewInt(-3), 100),
		time.UnixMilli(1700000000123).UTC(),
		cql.Date(19000),
		cql.MaxTime,
		cql.Duration{Months: 14, Days: -0, Nanoseconds: 1 << 40},
		netip.MustParseAddr("2001:db8::1"),
		[]string{"a", "", "c"},
		map[int32][]string{1: {"x"}, 2: {}},
		cql.NewSet(int64(1), int64(2)),
		[2]int32{7, 8},
		[]*int32{ptr(int32(1)), nil},
		item{Name: "n", Note: &s, Tags: []string{}},
		map[string]item{"k": {Name: "n", Tags: []string{"t"}}},
	}
	enc, dec := NewEncoder(), NewDecoder()
	for _, in := range tests {
		got, err := enc.Encode(in)
		if err != nil {
			t.Errorf("Encode(%T): %v", in, err)
			continue
		}
		out := reflect.New(reflect.TypeOf(in))
		if err := dec.Decode(got[4:], out.Interface()); err != nil {
			t.Errorf("Decode(%T): %v", in, err)
			continue
		}
		if !equalValues(in, out.Elem().Interface()) {
			t.Errorf("round trip %T: got %v, want %v", in, out.Elem().Interface(), in)
		}
	}
}

func equalValues(a, b any) bool {
	if x, ok := a.(*big.Int); ok {
		return x.Cmp(b.(*big.Int)) == 0
	}
	if x, ok := a.(time.Time); ok {
		return x.Equal(b.(time.Time))
	}
	return reflect.DeepEqual(a, b)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		typ     *cql.Type
		payload []byte
		dst     any
	}{
		{"short int", cql.Primitive(cql.KindInt), []byte{0, 0, 1}, new(int32)},
		{"long int", cql.Primitive(cql.KindInt), []byte{0, 0, 0, 0, 1}, new(int32)},
		{"empty boolean", cql.Primitive(cql.KindBoolean), []byte{}, new(bool)},
		{"bad utf8", cql.Primitive(cql.KindText), []byte{0xff}, new(string)},
		{"non ascii", cql.Primitive(cql.KindAscii), []byte{'a', 0xc3}, new(string)},
		{"inet length", cql.Primitive(cql.KindInet), []byte{1, 2, 3, 4, 5}, new(netip.Addr)},
		{"time outside day", cql.Primitive(cql.KindTime), []byte{0x7f, 0, 0, 0, 0, 0, 0, 0}, new(cql.Time)},
		{"decimal without scale", cql.Primitive(cql.KindDecimal), []byte{0, 0}, new(*apd.Decimal)},
		{"duration truncated", cql.Primitive(cql.KindDuration), []byte{0x02, 0x04}, new(cql.Duration)},
		{"duration trailing", cql.Primitive(cql.KindDuration), []byte{0x02, 0x04, 0x06, 0x00}, new(cql.Duration)},
		{"count too large", cql.ListOf(cql.Primitive(cql.KindInt)), []byte{0, 0, 0, 9, 0, 0, 0, 4}, new([]int32)},
		{"element truncated", cql.ListOf(cql.Primitive(cql.KindInt)), []byte{0, 0, 0, 1, 0, 0, 0, 4, 0, 0}, new([]int32)},
		{"trailing bytes", cql.ListOf(cql.Primitive(cql.KindInt)), cat([]byte{0, 0, 0, 1}, env(0, 0, 0, 1), []byte{9}), new([]int32)},
		{"null element", cql.ListOf(cql.Primitive(cql.KindInt)), []byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff}, new([]int32)},
		{"tuple missing field", cql.TupleOf(cql.Primitive(cql.KindInt), cql.Primitive(cql.KindInt)), env(0, 0, 0, 1), new([2]int32)},
		{"map missing value", cql.MapOf(cql.Primitive(cql.KindText), cql.Primitive(cql.KindInt)), cat([]byte{0, 0, 0, 1}, env('a')), new(map[string]int32)},
	}
	dec := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dec.DecodeAs(tt.typ, tt.payload, tt.dst)
			if !errors.Is(err, udferrors.ErrMalformedValue) {
				t.Fatalf("err = %v, want malformed value", err)
			}
		})
	}
}

func TestDecodeFailureLeavesTargetUntouched(t *testing.T) {
	dst := []int32{42}
	payload := cat([]byte{0, 0, 0, 2}, env(0, 0, 0, 1), env(0, 0))
	err := NewDecoder().Decode(payload, &dst)
	if err == nil {
		t.Fatal("expected error")
	}
	var ue *udferrors.Error
	if !errors.As(err, &ue) || udferrors.JoinPath(ue.Path) != "[1]" {
		t.Errorf("error path = %v", err)
	}
	if !reflect.DeepEqual(dst, []int32{42}) {
		t.Errorf("target modified to %v", dst)
	}
}

func TestDecodeNull(t *testing.T) {
	dec := NewDecoder()
	typ := cql.Primitive(cql.KindText)

	s := ptr("x")
	if err := dec.DecodeNull(typ, &s); err != nil || s != nil {
		t.Errorf("DecodeNull(*string) = %v, %v", s, err)
	}
	var a any = "x"
	if err := dec.DecodeNull(typ, &a); err != nil || a != nil {
		t.Errorf("DecodeNull(any) = %v, %v", a, err)
	}
	var plain string
	if err := dec.DecodeNull(typ, &plain); !errors.Is(err, udferrors.ErrMalformedValue) {
		t.Errorf("DecodeNull(string) err = %v, want malformed", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	enc := NewEncoder()
	tests := []struct {
		name  string
		typ   *cql.Type
		value any
	}{
		{"invalid utf8", cql.Primitive(cql.KindText), "\xff"},
		{"non ascii", cql.Primitive(cql.KindAscii), "é"},
		{"time out of range", cql.Primitive(cql.KindTime), cql.Time(-1)},
		{"tinyint overflow", cql.Primitive(cql.KindTinyInt), 300.0},
		{"int from text", cql.Primitive(cql.KindInt), "five"},
		{"tuple arity", cql.TupleOf(cql.Primitive(cql.KindInt)), []any{1.0, 2.0}},
		{"nested failure", cql.ListOf(cql.Primitive(cql.KindText)), []string{"ok", "\xfe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := enc.EncodeAs(tt.typ, tt.value); err == nil {
				t.Errorf("EncodeAs = % x, want error", got)
			}
		})
	}
}

func TestEncodeNestedErrorPath(t *testing.T) {
	_, err := NewEncoder().Encode(map[string][]string{"k": {"ok", "\xfe"}})
	var ue *udferrors.Error
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v", err)
	}
	if got := udferrors.JoinPath(ue.Path); got != "[0].value[1]" {
		t.Errorf("path = %q, want [0].value[1]", got)
	}
}

func TestCompileMismatch(t *testing.T) {
	c := NewCompiler()
	tests := []struct {
		name string
		typ  *cql.Type
		goT  reflect.Type
	}{
		{"int as int64", cql.Primitive(cql.KindInt), reflect.TypeFor[int64]()},
		{"text as bytes", cql.Primitive(cql.KindText), reflect.TypeFor[[]byte]()},
		{"list as map", cql.ListOf(cql.Primitive(cql.KindInt)), reflect.TypeFor[map[int32]int32]()},
		{"tuple arity", cql.TupleOf(cql.Primitive(cql.KindInt)), reflect.TypeFor[[2]int32]()},
		{"udt field missing", cql.UDTOf("", "u", cql.Field{Name: "zzz", Type: cql.Primitive(cql.KindInt)}), reflect.TypeFor[item]()},
		{"dynamic blob key", cql.MapOf(cql.Primitive(cql.KindBlob), cql.Primitive(cql.KindInt)), reflect.TypeFor[map[any]any]()},
		{"non-empty interface", cql.Primitive(cql.KindText), reflect.TypeFor[error]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Compile(tt.typ, tt.goT); err == nil {
				t.Error("expected compile error")
			}
		})
	}
}

func TestCompileCache(t *testing.T) {
	c := NewCompiler()
	a, err := c.Compile(cql.ListOf(cql.Primitive(cql.KindText)), reflect.TypeFor[[]string]())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Compile(cql.MustParseType("list<text>"), reflect.TypeFor[[]string]())
	if a != b {
		t.Error("structurally equal types should share a compiled plan")
	}
}

func ptr[T any](v T) *T { return &v }
