// Package udf adapts ordinary Go functions into CQL user-defined functions.
//
// A function is registered by name together with its Go signature:
//
//	func commas(strs *[]string) *string { ... }
//
//	func init() { udf.MustExport("commas", commas) }
//
// Every parameter and the result get a marshal.Converter chosen from their
// Go types, so the wasm-level signature follows from the Go one: scalar
// kinds travel in registers and everything else travels as a transport
// word. Func.Invoke performs one call on raw words against a Heap, which is
// what a guest export stub does:
//
//	//go:wasmexport commas
//	func commasExport(strs uint64) uint64 { return udf.Call("commas", strs) }
//
// Local runs registered functions natively against an in-process arena so
// UDFs can be unit tested without a wasm engine.
//
// A function may also return (T, error). A non-nil error aborts the call;
// inside a guest that becomes a trap.
package udf
