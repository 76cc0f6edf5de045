package cipher

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// rsaOAEPEncryptForTest stands in for the client side of the handshake,
// which holds only the public key.
func rsaOAEPEncryptForTest(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// rsaRawTransformPublicForTest computes block^e mod n, the client-side
// verify step for the server's X9.31-padded, privately-transformed block.
func rsaRawTransformPublicForTest(pub *rsa.PublicKey, block []byte) ([]byte, error) {
	keySize := (pub.N.BitLen() + 7) / 8
	if len(block) != keySize {
		return nil, fmt.Errorf("unexpected block size")
	}
	c := new(big.Int).SetBytes(block)
	m := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N)
	return leftPad(m.Bytes(), keySize), nil
}
