package wire

import "math/big"

// AppendVarint appends x as a minimal big-endian two's-complement integer.
// Zero is a single 0x00 byte.
func AppendVarint(b []byte, x *big.Int) []byte {
	switch x.Sign() {
	case 0:
		return append(b, 0)
	case 1:
		mag := x.Bytes()
		if mag[0]&0x80 != 0 {
			b = append(b, 0)
		}
		return append(b, mag...)
	}
	// -x-1 inverted bitwise is the two's complement of x.
	y := new(big.Int).Neg(x)
	y.Sub(y, big.NewInt(1))
	mag := y.Bytes()
	for i := range mag {
		mag[i] = ^mag[i]
	}
	if len(mag) == 0 || mag[0]&0x80 == 0 {
		b = append(b, 0xff)
	}
	return append(b, mag...)
}

// Varint decodes a whole payload as a two's-complement integer. An empty
// payload is zero.
func Varint(p []byte) *big.Int {
	x := new(big.Int)
	if len(p) == 0 {
		return x
	}
	if p[0]&0x80 == 0 {
		return x.SetBytes(p)
	}
	inv := make([]byte, len(p))
	for i, c := range p {
		inv[i] = ^c
	}
	x.SetBytes(inv)
	x.Add(x, big.NewInt(1))
	return x.Neg(x)
}
