// Package wasmbin writes small core WebAssembly modules. It covers the
// subset of the binary format needed to build guest fixtures in tests:
// function types, function imports, one memory, i32/i64 globals, exports,
// code and active data segments.
package wasmbin
