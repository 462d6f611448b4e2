package marshal

import "github.com/wippyai/wasm-udf/cql"

// Shape is how a value is passed across the call boundary.
type Shape uint8

const (
	// ShapeScalar passes the value itself in a wasm register.
	ShapeScalar Shape = iota
	// ShapeBuffered passes a transport word referring to a serialized value.
	ShapeBuffered
)

func (s Shape) String() string {
	if s == ShapeScalar {
		return "scalar"
	}
	return "buffered"
}

// ScalarKind reports whether values of kind k fit in a register.
func ScalarKind(k cql.Kind) bool {
	switch k {
	case cql.KindInt, cql.KindBigInt, cql.KindFloat, cql.KindDouble,
		cql.KindBoolean, cql.KindTinyInt, cql.KindSmallInt:
		return true
	}
	return false
}

// ShapeOf returns the shape of t. A nullable value is always buffered, since
// a register has no room for null.
func ShapeOf(t *cql.Type, nullable bool) Shape {
	if !nullable && ScalarKind(t.Kind) {
		return ShapeScalar
	}
	return ShapeBuffered
}
