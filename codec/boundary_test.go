package codec

import (
	"errors"
	"os"
	"testing"

	"github.com/wippyai/wasm-udf/codec/internal/wire"
	udferrors "github.com/wippyai/wasm-udf/errors"
)

// The length boundary itself is covered cheaply through wire.CheckLength;
// this test exercises a real 4 GiB value and only runs when asked to.
func TestTextLengthBoundary(t *testing.T) {
	if os.Getenv("WASMUDF_LARGE_TESTS") == "" {
		t.Skip("set WASMUDF_LARGE_TESTS=1 to run (needs ~12 GiB of memory)")
	}
	payload := make([]byte, wire.MaxLength)
	for i := range payload {
		payload[i] = 'a'
	}
	s := string(payload)

	got, err := NewEncoder().Encode(s)
	if err != nil {
		t.Fatalf("encode 0xFFFFFFFE bytes: %v", err)
	}
	var back string
	if err := NewDecoder().Decode(got[4:], &back); err != nil || len(back) != len(s) {
		t.Fatalf("decode: len %d, %v", len(back), err)
	}

	_, err = NewEncoder().Encode(s + "a")
	if !errors.Is(err, udferrors.ErrValueTooLarge) {
		t.Fatalf("encode 0xFFFFFFFF bytes: err = %v, want value too large", err)
	}
}

func TestLengthPrefixBoundary(t *testing.T) {
	if err := wire.CheckLength(0xFFFFFFFE); err != nil {
		t.Errorf("0xFFFFFFFE rejected: %v", err)
	}
	if err := wire.CheckLength(0xFFFFFFFF); !errors.Is(err, udferrors.ErrValueTooLarge) {
		t.Errorf("0xFFFFFFFF err = %v, want value too large", err)
	}
}
