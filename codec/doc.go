// Package codec encodes Go values to the CQL native binary value format and
// decodes them back.
//
// # Architecture
//
// A Compiler pairs a cql.Type with a Go type once and caches the resulting
// CompiledType. Encoder and Decoder walk compiled plans with reflect; they
// never re-derive or re-validate a type on the hot path.
//
//	cql.Type + reflect.Type -> Compiler -> CompiledType -> Encoder / Decoder
//
// # Layout
//
// Every value is written as a payload whose length is carried by the
// enclosing 4-byte big-endian prefix. A prefix of 0xFFFFFFFF (NullLength)
// stands for null and has no payload. Composite values nest the same rule:
//
//	list<T>, set<T>   count:i32, then count x (len:i32, payload)
//	map<K, V>         count:i32, then count x (key, value) envelopes
//	tuple<...>, udt   one envelope per field, in declaration order
//
// Sets and maps are written in ascending byte order of their encoded keys.
//
// # Null
//
// Go pointers, interfaces, *big.Int and *apd.Decimal represent null as nil.
// A null decoded into any other Go type is a malformed value; it is never
// replaced by a zero value. A nil pointer has no payload, so Encode returns
// only the null prefix for it, while an empty but present string or
// collection has a zero-length or zero-count payload.
//
// # Dynamic values
//
// When the Go side is an interface the payload decodes into DynamicType(t),
// and encoding accepts loosely typed values (JSON numbers, strings for uuids,
// dates, decimals, and so on), coercing them with Coerce.
package codec
