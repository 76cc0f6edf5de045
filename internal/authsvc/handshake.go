package authsvc

import (
	"crypto/rand"
	"fmt"

	"github.com/wraithcore/ac5gate/internal/cipher"
	"github.com/wraithcore/ac5gate/internal/protocolmsg"
	"github.com/wraithcore/ac5gate/internal/svfw"
)

// handshakeResponseSize is the fixed 27-byte handshake acknowledgment:
// 11 random bytes followed by 16 zero bytes (spec.md §8 scenario 1).
const handshakeResponseSize = 27
const handshakeResponseRandomBytes = 11

func (s *Session) handleHandshake(msg svfw.Message) error {
	if msg.Type != svfw.MessageTypeRequestHandshake {
		return fmt.Errorf("%w: expected RequestHandshake, got %v", errProtocolViolation, msg.Type)
	}

	req, err := protocolmsg.DecodeRequestHandshake(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errProtocolViolation, err)
	}

	aesCipher, err := cipher.NewAESCWC(req.AESCWCKey[:])
	if err != nil {
		return fmt.Errorf("%w: installing AES-CWC cipher: %v", errProtocolViolation, err)
	}

	// The swap and the disable/enable bracket around the plaintext
	// handshake response must be observed atomically by the very next send
	// (spec.md §4.4, §9 "hot cipher swap").
	s.framer.SetCipher(cipher.Pair{Encrypt: aesCipher, Decrypt: aesCipher})
	s.framer.SetCipherEnabled(false)

	var resp [handshakeResponseSize]byte
	if _, err := rand.Read(resp[:handshakeResponseRandomBytes]); err != nil {
		return fmt.Errorf("authsvc: generating handshake response: %w", err)
	}
	// resp[handshakeResponseRandomBytes:] is already zero.

	if err := s.framer.Send(svfw.MessageTypeRequestHandshake, msg.Index, resp[:]); err != nil {
		return fmt.Errorf("authsvc: sending handshake response: %w", err)
	}

	s.framer.SetCipherEnabled(true)
	s.state = StateWaitingForServiceStatusRequest
	return nil
}
