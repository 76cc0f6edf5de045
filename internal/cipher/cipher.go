// Package cipher implements the uniform encrypt/decrypt contract used by
// the SVFW message layer (see internal/svfw), backed first by RSA and then,
// after the auth handshake installs a session key, by AES-CWC-128.
package cipher

// Cipher is the symmetric contract every message-layer codec implements:
// a single-shot transform over a byte slice. Implementations do not retain
// the input slice; callers own its lifetime.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Pair bundles a connection's two directions. The auth state machine
// (internal/authsvc) installs a new Pair atomically when the handshake
// key material is accepted; the SVFW message framer snapshots the active
// Pair (and whether it's enabled) once per send/receive, never splitting
// that decision across a header write and a payload write.
type Pair struct {
	Encrypt Cipher
	Decrypt Cipher
}

// NoopCipher passes bytes through unchanged.
type NoopCipher struct{}

func (NoopCipher) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (NoopCipher) Decrypt(b []byte) ([]byte, error) { return b, nil }

// NoopPair is the identity Pair: the initial pair of a new SVFW message
// framer and of a new UDP peer, until a real pair is installed. (While
// cipher_enabled is false the message framer does not call its pair at
// all.)
func NoopPair() Pair {
	return Pair{Encrypt: NoopCipher{}, Decrypt: NoopCipher{}}
}
