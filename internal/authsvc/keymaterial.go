package authsvc

import (
	"crypto/rand"
	"fmt"

	"github.com/wraithcore/ac5gate/internal/svfw"
)

const keyMaterialPayloadSize = 16

func (s *Session) handleKeyMaterial(msg svfw.Message) error {
	if msg.Type != svfw.MessageTypeKeyMaterial {
		return fmt.Errorf("%w: expected KeyMaterial, got %v", errProtocolViolation, msg.Type)
	}
	if len(msg.Payload) != keyMaterialPayloadSize {
		return fmt.Errorf("%w: KeyMaterial payload is %d bytes, want %d", errProtocolViolation, len(msg.Payload), keyMaterialPayloadSize)
	}

	// bytes 0..8 are the client's app-version echo, ignored here; bytes
	// 8..16 are the client-contributed key half.
	clientHalf := msg.Payload[8:16]

	var combined [16]byte
	if _, err := rand.Read(combined[:]); err != nil {
		return fmt.Errorf("authsvc: generating key material: %w", err)
	}
	copy(combined[0:8], clientHalf)

	// The buffer handed to Send below is fair game for the outbound cipher
	// to transform; the committed key must be a separate copy taken before
	// the send is enqueued (spec.md §9 "key-buffer aliasing hazard").
	s.commitmentKey = combined
	s.hasCommitmentKey = true

	sendBuf := combined // copy; combined's own storage is what we commit
	if err := s.framer.Send(svfw.MessageTypeKeyMaterial, msg.Index, sendBuf[:]); err != nil {
		return fmt.Errorf("authsvc: sending key material reply: %w", err)
	}

	s.state = StateWaitingForTicket
	return nil
}
