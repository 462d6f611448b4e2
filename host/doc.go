// Package host loads WebAssembly UDF modules with wazero and calls their
// functions with Go values.
//
// Loading checks the module against the allocator boundary before anything
// runs: _scylla_malloc(i32) i32 and _scylla_free(i32) must be exported with
// those signatures, and the module must advertise ABI version
// wasmudf.ABIVersion, either through the _scylla_abi global (the address of
// a little-endian u32) or the _scylla_abi_version function.
//
//	eng, err := host.New(ctx, nil)
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	fn, err := mod.Func(host.Decl{
//		Name:   "commas",
//		Params: []*cql.Type{cql.MustParseType("list<text>")},
//		Result: cql.MustParseType("text"),
//		CalledOnNullInput: true,
//	})
//	out, err := mod.Call(ctx, fn, []any{"a", "b"})
//
// Arguments are coerced to the declared CQL types (see codec.Coerce) and
// results come back as the default Go type of the result type.
//
// Thread Safety:
//
// Engine and Module are safe for concurrent use. An Instance serializes
// calls made into it; Module.Call spreads concurrent callers over a pool of
// instances. A call that traps leaves its instance broken, and broken
// instances are discarded rather than reused.
package host
