// Package marshal decides, per Go type, how a value crosses the wasm call
// boundary, and performs the crossing.
//
// Small numeric kinds travel directly in a wasm register (ShapeScalar):
// int, bigint, float, double, boolean, tinyint and smallint. Every other
// type, nullable ones included, is serialized with the codec package and
// travels as a transport word pointing at a guest buffer (ShapeBuffered).
// The decision is a function of the type alone and is the same in both
// directions, so a parameter lifted by the guest is always lowered by the
// host in the same shape.
//
// A Converter holds the compiled codec plan for one Go type:
//
//	conv, err := marshal.ConverterFor[[]string]()
//	word, err := conv.Lower(heap, reflect.ValueOf([]string{"a", "b"}))
//	v, err := conv.Lift(heap, word) // releases the buffer
//
// Lift takes ownership of the buffer it is given and releases it on every
// path, success or failure.
package marshal
