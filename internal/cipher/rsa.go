package cipher

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// RSAModulusBytes is the modulus size used for the handshake cipher
// (2048-bit RSA, one block per message as spec.md §4.1 requires).
const RSAModulusBytes = 256

// RSACipher implements Cipher over a single RSA key: decrypt with
// OAEP using the server's private key, encrypt (really: pad-and-sign)
// with X9.31 padding using the same private key, so the client — which
// only holds the public key — can reverse it. Both directions operate
// on exactly one RSA-modulus-sized block, per spec.md §4.1.
type RSACipher struct {
	priv *rsa.PrivateKey
}

// NewRSACipher wraps a private key for the handshake cipher. The key's
// CRT values are precomputed for the raw RSA operation X9.31 encode uses.
func NewRSACipher(priv *rsa.PrivateKey) *RSACipher {
	priv.Precompute()
	return &RSACipher{priv: priv}
}

// Decrypt OAEP-decrypts a single RSA block using the server's private key.
func (c *RSACipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != c.priv.Size() {
		return nil, fmt.Errorf("rsa decrypt: expected %d bytes, got %d", c.priv.Size(), len(ciphertext))
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, c.priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa oaep decrypt: %w", err)
	}
	return pt, nil
}

// Encrypt X9.31-pads plaintext to one RSA block and raw-RSA-transforms it
// with the private key (the inverse of the public-key verify the client
// performs). plaintext must be short enough to leave room for the padding
// (at least 3 bytes of overhead).
func (c *RSACipher) Encrypt(plaintext []byte) ([]byte, error) {
	k := c.priv.Size()
	padded, err := padX931(plaintext, k)
	if err != nil {
		return nil, err
	}
	return rsaRawTransform(c.priv, padded)
}

// padX931 lays plaintext into an X9.31-style encoding block of exactly k
// bytes: header 0x6B, 0xBB padding, 0xBA delimiter, message, 0xCC trailer.
func padX931(message []byte, k int) ([]byte, error) {
	n := len(message)
	pad := k - n - 3
	if pad < 0 {
		return nil, fmt.Errorf("x9.31 pad: message too long for %d-byte block (%d bytes)", k, n)
	}
	eb := make([]byte, k)
	eb[0] = 0x6B
	for i := 1; i <= pad; i++ {
		eb[i] = 0xBB
	}
	eb[pad+1] = 0xBA
	copy(eb[pad+2:k-1], message)
	eb[k-1] = 0xCC
	return eb, nil
}

// unpadX931 reverses padX931, used by tests to verify the round trip a
// client-side public-key unpad would perform.
func unpadX931(eb []byte) ([]byte, error) {
	if len(eb) < 3 || eb[0] != 0x6B || eb[len(eb)-1] != 0xCC {
		return nil, fmt.Errorf("x9.31 unpad: malformed block")
	}
	i := 1
	for i < len(eb)-1 && eb[i] == 0xBB {
		i++
	}
	if i >= len(eb)-1 || eb[i] != 0xBA {
		return nil, fmt.Errorf("x9.31 unpad: missing delimiter")
	}
	return eb[i+1 : len(eb)-1], nil
}

// rsaRawTransform computes block^d mod n, the raw RSA private-key
// operation with no further padding, using CRT (Garner's algorithm) when
// the precomputed values are available. Adapted from the same CRT shortcut
// used for the LoginServer's RSA/ECB/NoPadding auth-login decrypt.
func rsaRawTransform(priv *rsa.PrivateKey, block []byte) ([]byte, error) {
	keySize := priv.Size()
	if len(block) != keySize {
		return nil, fmt.Errorf("rsa raw transform: expected %d bytes, got %d", keySize, len(block))
	}

	c := new(big.Int).SetBytes(block)

	if priv.Precomputed.Dp != nil && priv.Precomputed.Dq != nil &&
		priv.Precomputed.Qinv != nil && len(priv.Primes) >= 2 {
		m1 := new(big.Int).Exp(c, priv.Precomputed.Dp, priv.Primes[0])
		m2 := new(big.Int).Exp(c, priv.Precomputed.Dq, priv.Primes[1])
		h := new(big.Int).Sub(m1, m2)
		h.Mul(h, priv.Precomputed.Qinv)
		h.Mod(h, priv.Primes[0])
		m := new(big.Int).Mul(h, priv.Primes[1])
		m.Add(m, m2)
		return leftPad(m.Bytes(), keySize), nil
	}

	m := new(big.Int).Exp(c, priv.D, priv.N)
	return leftPad(m.Bytes(), keySize), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}
