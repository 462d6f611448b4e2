package cql

import (
	"errors"
	"testing"

	udferrors "github.com/wippyai/wasm-udf/errors"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{Primitive(KindInt), "int"},
		{ListOf(Primitive(KindText)), "list<text>"},
		{MapOf(Primitive(KindText), ListOf(Primitive(KindSmallInt))), "map<text, list<smallint>>"},
		{SetOf(Primitive(KindUuid)), "set<uuid>"},
		{TupleOf(Primitive(KindInt), Primitive(KindBoolean)), "tuple<int, boolean>"},
		{UDTOf("ks", "point", Field{Name: "x", Type: Primitive(KindDouble)}), "ks.point"},
		{UDTOf("", "point"), "point"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	a := UDTOf("", "p", Field{Name: "x", Type: Primitive(KindInt)})
	b := UDTOf("", "p", Field{Name: "x", Type: Primitive(KindInt)})
	c := UDTOf("", "p", Field{Name: "y", Type: Primitive(KindInt)})

	if !a.Equal(b) || a.Signature() != b.Signature() {
		t.Error("structurally equal UDTs should be Equal with equal signatures")
	}
	if a.Equal(c) || a.Signature() == c.Signature() {
		t.Error("UDTs with different field names should differ")
	}
	if ListOf(Primitive(KindInt)).Equal(SetOf(Primitive(KindInt))) {
		t.Error("list and set should differ")
	}
}

func TestTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		typ     *Type
		wantErr bool
	}{
		{"primitive", Primitive(KindDuration), false},
		{"nested", MapOf(Primitive(KindText), ListOf(TupleOf(Primitive(KindInt)))), false},
		{"nil elem", ListOf(nil), true},
		{"empty tuple", TupleOf(), true},
		{"primitive with children", &Type{Kind: KindInt, Elem: Primitive(KindInt)}, true},
		{"custom", &Type{Kind: KindCustom}, true},
		{"duplicate field", UDTOf("", "u",
			Field{Name: "a", Type: Primitive(KindInt)},
			Field{Name: "a", Type: Primitive(KindText)}), true},
		{"unnamed udt", UDTOf("", ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrimitivePanicsForComposite(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Primitive(KindList) should panic")
		}
	}()
	Primitive(KindList)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"VARCHAR", "text"},
		{"list<text>", "list<text>"},
		{" map < text , frozen<list<int>> > ", "map<text, list<int>>"},
		{"tuple<int, set<bigint>>", "tuple<int, set<bigint>>"},
		{"frozen<tuple<duration>>", "tuple<duration>"},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if err != nil {
			t.Errorf("ParseType(%q): %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "list", "list<>", "map<int>", "list<int", "int>", "my_udt", "list<int, int>"} {
		_, err := ParseType(in)
		if err == nil {
			t.Errorf("ParseType(%q) should fail", in)
			continue
		}
		var ue *udferrors.Error
		if !errors.As(err, &ue) || ue.Phase != udferrors.PhaseParse {
			t.Errorf("ParseType(%q) error = %v, want parse phase", in, err)
		}
	}
}

func TestParseTypes(t *testing.T) {
	got, err := ParseTypes("int, map<text, int>,list<tuple<int,text>>")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"int", "map<text, int>", "list<tuple<int, text>>"}
	if len(got) != len(want) {
		t.Fatalf("got %d types, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if none, err := ParseTypes("  "); err != nil || none != nil {
		t.Errorf("empty list = %v, %v", none, err)
	}
}

func TestSchemaParseType(t *testing.T) {
	point := UDTOf("ks", "point", Field{Name: "x", Type: Primitive(KindInt)}, Field{Name: "y", Type: Primitive(KindInt)})
	schema := Schema{}
	schema.Add(point)

	for _, in := range []string{"point", "ks.point", "POINT"} {
		got, err := schema.ParseType(in)
		if err != nil || got != point {
			t.Errorf("ParseType(%q) = %v, %v", in, got, err)
		}
	}
	got, err := schema.ParseType("map<text, frozen<point>>")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != point {
		t.Errorf("map value = %s, want point", got.Value)
	}
	if _, err := schema.ParseType("other"); err == nil {
		t.Error("unknown type should fail")
	}
}
