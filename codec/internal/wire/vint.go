package wire

import "math/bits"

// AppendUvint appends v in the CQL unsigned variable-length encoding: the
// number of leading one bits in the first byte is the count of extra bytes.
func AppendUvint(b []byte, v uint64) []byte {
	n := (639 - 9*bits.LeadingZeros64(v)) >> 6
	if n <= 1 {
		return append(b, byte(v))
	}
	if n == 9 {
		b = append(b, 0xff)
		n = 8
	} else {
		extra := n - 1
		v |= uint64(^(0xff>>extra)&0xff) << (8 * extra)
	}
	for i := n - 1; i >= 0; i-- {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// AppendVint appends a signed value, zigzag encoded.
func AppendVint(b []byte, v int64) []byte {
	return AppendUvint(b, uint64(v>>63)^uint64(v<<1))
}

func (r *Reader) Uvint() (uint64, error) {
	start := r.off
	first, err := r.Uint8()
	if err != nil {
		return 0, err
	}
	extra := bits.LeadingZeros8(^first)
	var v uint64
	if extra != 8 {
		v = uint64(first & (0xff >> extra))
	}
	for i := 0; i < extra; i++ {
		c, err := r.Uint8()
		if err != nil {
			r.off = start
			return 0, err
		}
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func (r *Reader) Vint() (int64, error) {
	u, err := r.Uvint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}
