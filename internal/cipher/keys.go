package cipher

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// GenerateRSAKeyPair generates an RSA key sized for the handshake cipher.
// Precompute runs up front so every later decrypt/encrypt takes the CRT
// fast path.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAModulusBytes*8)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	priv.Precompute()
	return priv, nil
}

// LoadOrCreateRSAKeyPair loads a PEM-encoded PKCS#1 private key from
// privPath, generating and persisting a fresh one (plus its public half at
// pubPath) if privPath does not exist. PEM is the wire format both
// crypto/x509 functions and every external tool (openssl) expect; there is
// no ecosystem library for this beyond stdlib (see DESIGN.md).
func LoadOrCreateRSAKeyPair(privPath, pubPath string) (*rsa.PrivateKey, error) {
	if data, err := os.ReadFile(privPath); err == nil {
		priv, err := parsePrivatePEM(data)
		if err != nil {
			return nil, fmt.Errorf("parsing private key %s: %w", privPath, err)
		}
		priv.Precompute()
		return priv, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading private key %s: %w", privPath, err)
	}

	priv, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(privPath, encodePrivatePEM(priv), 0o600); err != nil {
		return nil, fmt.Errorf("writing private key %s: %w", privPath, err)
	}
	if pubPath != "" {
		if err := os.WriteFile(pubPath, encodePublicPEM(&priv.PublicKey), 0o644); err != nil {
			return nil, fmt.Errorf("writing public key %s: %w", pubPath, err)
		}
	}
	return priv, nil
}

func parsePrivatePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func encodePrivatePEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

func encodePublicPEM(pub *rsa.PublicKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(pub),
	})
}
