package udf

import "github.com/tetratelabs/wazero/api"

// Register helpers for export stubs. A wasm export receives scalar
// parameters as typed values while Invoke works on raw words.

func I32(v int32) uint64 { return api.EncodeI32(v) }

func I64(v int64) uint64 { return uint64(v) }

func F32(v float32) uint64 { return api.EncodeF32(v) }

func F64(v float64) uint64 { return api.EncodeF64(v) }

func AsI32(w uint64) int32 { return api.DecodeI32(w) }

func AsI64(w uint64) int64 { return int64(w) }

func AsF32(w uint64) float32 { return api.DecodeF32(w) }

func AsF64(w uint64) float64 { return api.DecodeF64(w) }
