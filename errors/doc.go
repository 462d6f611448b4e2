// Package errors provides structured error types for the wasm-udf library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: element path, Go/CQL type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindMalformedValue).
//		Path("[2]", "name").
//		CQLType("text").
//		Detail("length prefix %d exceeds remaining %d bytes", n, rem).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Malformed(path, "text", "invalid UTF-8")
//	err := errors.TooLarge(errors.PhaseEncode, path, size)
//
// The three marshaling failures have sentinels that work with the standard
// library:
//
//	if errors.Is(err, errors.ErrMalformedValue) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
