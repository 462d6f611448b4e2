// Package wasmudf carries CQL values across the boundary of a WebAssembly
// user-defined function.
//
// Arguments and return values travel as the database's column binary
// encoding, wrapped in transport buffers that live in guest memory. The
// library covers both sides of that boundary: the guest side that receives
// buffers and calls a Go function, and an embedding host that loads UDF
// modules with wazero and invokes them.
//
// # Architecture Overview
//
//	wasmudf/           Root package with Memory, Allocator and Heap interfaces
//	├── cql/           Column type descriptors, native value types, type derivation
//	├── codec/         Binary value codec (CQL wire format) driven by descriptors
//	├── transport/     Packed (size, address) buffers and allocation ownership
//	├── marshal/       Scalar vs buffered dispatch per Go type
//	├── udf/           Function registry, call adapter and guest exports
//	├── host/          wazero embedding: ABI check, instance pool, typed calls
//	├── errors/        Structured error types
//	├── cmd/udfrun/    Command line runner
//	└── examples/udfs/ Guest module of example functions
//
// # Quick Start
//
// Guest side (built with GOOS=wasip1 GOARCH=wasm -buildmode=c-shared):
//
//	func init() {
//	    udf.MustExport("wordcount", func(text string) int32 {
//	        return int32(len(strings.Fields(text)))
//	    })
//	}
//
//	//go:wasmexport wordcount
//	func wordcountABI(text uint64) int32 {
//	    return udf.AsI32(udf.Call("wordcount", text))
//	}
//
// Host side:
//
//	cfg := host.DefaultConfig()
//	eng, err := host.New(ctx, &cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	fn, err := mod.Func(host.Decl{
//	    Name:   "wordcount",
//	    Params: []*cql.Type{cql.Primitive(cql.KindText)},
//	    Result: cql.Primitive(cql.KindInt),
//	})
//	n, err := mod.Call(ctx, fn, "a b c")
//
// # Transport Representation
//
// Int, BigInt, Float, Double, Boolean, SmallInt and TinyInt travel as wasm
// scalar registers. Every other type travels as one i64 word packing a
// 32-bit size and a 32-bit address; a size of 0xFFFFFFFF means null.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Calls into one Instance are
// serialized; the guest allocator is never entered by two calls at once.
package wasmudf
