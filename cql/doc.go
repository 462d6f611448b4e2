// Package cql describes CQL column types and the Go types that carry them.
//
// A Type is an immutable, acyclic descriptor tree. Descriptors are built
// explicitly (Primitive, ListOf, MapOf, UDTOf, ...), parsed from CQL syntax
// (ParseType), or derived from Go types (TypeOf, TypeFor):
//
//	bool                     boolean
//	int8 / int16             tinyint / smallint
//	int32 / int64            int / bigint
//	float32 / float64        float / double
//	string / []byte          text / blob
//	cql.Counter              counter
//	cql.Date / cql.Time      date / time
//	cql.Duration             duration
//	time.Time                timestamp
//	*big.Int / *apd.Decimal  varint / decimal
//	uuid.UUID / netip.Addr   uuid / inet
//	*T                       T, nullable
//	[]T / map[K]V            list<T> / map<K, V>
//	map[T]struct{}           set<T>
//	[N]T                     tuple of N elements
//	struct + TupleMarker     tuple of the exported fields
//	struct                   user-defined type
//
// A user-defined type takes its name from a CQLTypeName method or from the
// snake_cased Go type name. Field names come from `cql:"name"` tags or the
// snake_cased Go field name; `cql:"-"` skips a field. Field declaration order
// is the wire order and must be kept stable.
package cql
