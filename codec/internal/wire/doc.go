// Package wire implements the byte-level primitives of the CQL native value
// encoding: big-endian integers, 4-byte length prefixes with the null
// sentinel, unsigned and zigzag variable-length integers, and minimal
// two's-complement big integers.
//
// This package is internal to the codec.
package wire
