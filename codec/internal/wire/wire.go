package wire

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-udf/errors"
)

// NullLength is the length prefix that stands for a null value. It is only
// meaningful where an enclosing length prefix is written.
const NullLength uint32 = 0xFFFFFFFF

// MaxLength is the largest length or count a prefix can carry.
const MaxLength = uint64(NullLength) - 1

// CheckLength rejects lengths that would collide with or exceed NullLength.
func CheckLength(n uint64) error {
	if n > MaxLength {
		return errors.TooLarge(errors.PhaseEncode, nil, n)
	}
	return nil
}

// AppendLength appends a 4-byte big-endian length prefix.
func AppendLength(b []byte, n int) ([]byte, error) {
	if err := CheckLength(uint64(n)); err != nil {
		return b, err
	}
	return binary.BigEndian.AppendUint32(b, uint32(n)), nil
}

// AppendNull appends the null length prefix.
func AppendNull(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, NullLength)
}

func AppendUint8(b []byte, v uint8) []byte { return append(b, v) }

func AppendUint16(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }

func AppendUint32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

func AppendUint64(b []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(b, v) }

func AppendFloat32(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

func AppendFloat64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

// PatchLength overwrites the 4-byte prefix reserved at off with the number of
// bytes written after it.
func PatchLength(b []byte, off int) error {
	n := len(b) - off - 4
	if err := CheckLength(uint64(n)); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b[off:], uint32(n))
	return nil
}

// Reader is a cursor over a payload. Every read either consumes exactly the
// requested bytes or fails with a malformed value error without advancing.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) need(n int) error {
	if n < 0 || r.Len() < n {
		return errors.Truncated(nil, "", n, r.Len())
	}
	return nil
}

// Bytes returns the next n bytes. The result aliases the payload.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Value reads one length-prefixed value. A negative length denotes null and
// consumes only the prefix.
func (r *Reader) Value() (payload []byte, null bool, err error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, false, err
	}
	if int32(n) < 0 {
		return nil, true, nil
	}
	if err := r.need(int(n)); err != nil {
		r.off -= 4
		return nil, false, err
	}
	b, _ := r.Bytes(int(n))
	return b, false, nil
}

// Count reads a collection element count. Each element occupies at least a
// 4-byte prefix, so counts that cannot fit the remaining bytes are rejected
// before anything is allocated for them.
func (r *Reader) Count() (int, error) {
	n, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	if int32(n) < 0 {
		r.off -= 4
		return 0, errors.Malformed(nil, "", "negative collection count")
	}
	if uint64(n)*4 > uint64(r.Len()) {
		r.off -= 4
		return 0, errors.Malformed(nil, "", "collection count exceeds remaining bytes")
	}
	return int(n), nil
}
