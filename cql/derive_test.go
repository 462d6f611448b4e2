package cql

import (
	"math/big"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

type fib int64

type point struct {
	X, Y  float64
	Label *string `cql:"label_text"`
	skip  int
	Tmp   int32 `cql:"-"`
}

type located struct {
	TupleMarker
	Lat, Lon float64
}

type qualified struct {
	ID uuid.UUID
}

func (qualified) CQLTypeName() string { return "shop.item_ref" }

type node struct {
	Name     string
	Children []node
}

type linked struct {
	Next *linked
}

type HTTPStatus struct {
	HTTPCode   int32
	StatusText string
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"bool", reflect.TypeFor[bool](), "boolean"},
		{"int8", reflect.TypeFor[int8](), "tinyint"},
		{"int16", reflect.TypeFor[int16](), "smallint"},
		{"int32", reflect.TypeFor[int32](), "int"},
		{"int64", reflect.TypeFor[int64](), "bigint"},
		{"newtype", reflect.TypeFor[fib](), "bigint"},
		{"float32", reflect.TypeFor[float32](), "float"},
		{"float64", reflect.TypeFor[float64](), "double"},
		{"string", reflect.TypeFor[string](), "text"},
		{"blob", reflect.TypeFor[[]byte](), "blob"},
		{"counter", reflect.TypeFor[Counter](), "counter"},
		{"date", reflect.TypeFor[Date](), "date"},
		{"time", reflect.TypeFor[Time](), "time"},
		{"duration", reflect.TypeFor[Duration](), "duration"},
		{"timestamp", reflect.TypeFor[time.Time](), "timestamp"},
		{"varint", reflect.TypeFor[*big.Int](), "varint"},
		{"decimal", reflect.TypeFor[*apd.Decimal](), "decimal"},
		{"uuid", reflect.TypeFor[uuid.UUID](), "uuid"},
		{"inet", reflect.TypeFor[netip.Addr](), "inet"},
		{"option", reflect.TypeFor[*int32](), "int"},
		{"list", reflect.TypeFor[[]string](), "list<text>"},
		{"option list", reflect.TypeFor[*[]string](), "list<text>"},
		{"map", reflect.TypeFor[map[string]int16](), "map<text, smallint>"},
		{"set", reflect.TypeFor[map[string]struct{}](), "set<text>"},
		{"named set", reflect.TypeFor[Set[int32]](), "set<int>"},
		{"array tuple", reflect.TypeFor[[2]int32](), "tuple<int, int>"},
		{"struct tuple", reflect.TypeFor[located](), "tuple<double, double>"},
		{"udt", reflect.TypeFor[point](), "point"},
		{"qualified udt", reflect.TypeFor[qualified](), "shop.item_ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeOf(tt.typ)
			if err != nil {
				t.Fatalf("TypeOf(%v): %v", tt.typ, err)
			}
			if got.String() != tt.want {
				t.Errorf("TypeOf(%v) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestTypeOfUDTFields(t *testing.T) {
	got, err := TypeFor[point]()
	if err != nil {
		t.Fatal(err)
	}
	want := UDTOf("", "point",
		Field{Name: "x", Type: Primitive(KindDouble)},
		Field{Name: "y", Type: Primitive(KindDouble)},
		Field{Name: "label_text", Type: Primitive(KindText)},
	)
	if !got.Equal(want) {
		t.Errorf("TypeFor[point]() = %s, want %s", got.Signature(), want.Signature())
	}

	h := MustTypeFor[HTTPStatus]()
	if h.Name != "http_status" || h.Fields[0].Name != "http_code" || h.Fields[1].Name != "status_text" {
		t.Errorf("snake case naming = %s", h.Signature())
	}
}

func TestTypeOfMemoized(t *testing.T) {
	a, _ := TypeFor[map[string][]point]()
	b, _ := TypeFor[map[string][]point]()
	if a != b {
		t.Error("derivation should be memoized per Go type")
	}
}

func TestTypeOfErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"int", reflect.TypeFor[int]()},
		{"uint32", reflect.TypeFor[uint32]()},
		{"recursive slice", reflect.TypeFor[node]()},
		{"recursive pointer", reflect.TypeFor[linked]()},
		{"nested pointer", reflect.TypeFor[**int32]()},
		{"interface", reflect.TypeFor[any]()},
		{"chan", reflect.TypeFor[chan int]()},
		{"anonymous struct", reflect.TypeFor[struct{ A int32 }]()},
		{"empty array", reflect.TypeFor[[0]int32]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := TypeOf(tt.typ); err == nil {
				t.Errorf("TypeOf(%v) = %s, want error", tt.typ, got)
			}
		})
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Name":       "name",
		"FirstName":  "first_name",
		"HTTPCode":   "http_code",
		"ID":         "id",
		"UserID":     "user_id",
		"already_ok": "already_ok",
	}
	for in, want := range tests {
		if got := snakeCase(in); got != want {
			t.Errorf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
