package marshal

import (
	"reflect"

	wasmudf "github.com/wippyai/wasm-udf"
)

// ConverterFor returns the Default registry's converter for T.
func ConverterFor[T any]() (*Converter, error) {
	return Default.For(reflect.TypeFor[T]())
}

// Lower converts v into a transport word using the Default registry.
func Lower[T any](heap wasmudf.Heap, v T) (uint64, error) {
	conv, err := ConverterFor[T]()
	if err != nil {
		return 0, err
	}
	return conv.Lower(heap, reflect.ValueOf(&v).Elem())
}

// Lift converts a transport word into a T using the Default registry. The
// buffer behind a buffered word is released whether or not decoding
// succeeds; a word is left untouched only when T has no converter.
func Lift[T any](heap wasmudf.Heap, word uint64) (T, error) {
	var zero T
	conv, err := ConverterFor[T]()
	if err != nil {
		return zero, err
	}
	v, err := conv.Lift(heap, word)
	if err != nil {
		return zero, err
	}
	return *v.Addr().Interface().(*T), nil
}
