package cipher

import "math/big"

// gf127 implements arithmetic in GF(2^127) under the reduction polynomial
// x^127 + x^63 + 1, the field CWC's Carter-Wegman universal hash is defined
// over. Elements are represented as big.Int values in [0, 2^127).

var gf127ReduceTerm = new(big.Int).Or(
	new(big.Int).Lsh(big.NewInt(1), 63),
	big.NewInt(1),
) // x^63 + 1

func gf127Add(x, y *big.Int) *big.Int {
	return new(big.Int).Xor(x, y)
}

// gf127Mul computes x*y mod (x^127 + x^63 + 1) via shift-and-reduce,
// processing y from bit 0 up to bit 126 while v steps through x*X^i.
func gf127Mul(x, y *big.Int) *big.Int {
	z := new(big.Int)
	v := new(big.Int).Set(x)
	for i := 0; i <= 126; i++ {
		if y.Bit(i) == 1 {
			z.Xor(z, v)
		}
		overflow := v.Bit(126) == 1
		v.Lsh(v, 1)
		if overflow {
			v.SetBit(v, 127, 0)
			v.Xor(v, gf127ReduceTerm)
		}
	}
	return z
}

// gf127FromBlock folds a 16-byte block into a field element by clearing
// the top bit (bit 127), keeping the remaining 127 bits as-is.
func gf127FromBlock(block [16]byte) *big.Int {
	v := new(big.Int).SetBytes(block[:])
	v.SetBit(v, 127, 0)
	return v
}

// polyHash computes the Carter-Wegman universal hash of blocks (already
// folded into GF(2^127) elements) under subkey h, via Horner's method:
// acc = ((b1*h + b2)*h + ... + bn)*h ... equivalently acc = Σ bi * h^(n-i+1).
// We use the conventional Horner form: acc = (acc + bi) * h for each block.
func polyHash(h *big.Int, blocks []*big.Int) *big.Int {
	acc := new(big.Int)
	for _, b := range blocks {
		acc = gf127Mul(gf127Add(acc, b), h)
	}
	return acc
}
