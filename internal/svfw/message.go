package svfw

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/wraithcore/ac5gate/internal/cipher"
)

// MessageType enumerates the SVFW message-header type field (spec.md §3).
type MessageType uint32

const (
	MessageTypeReply                       MessageType = 0
	MessageTypeKeyMaterial                 MessageType = 1
	MessageTypeGetServiceStatus             MessageType = 2
	MessageTypeTicket                       MessageType = 3
	MessageTypeRequestQueryLoginServerInfo  MessageType = 5
	MessageTypeRequestHandshake             MessageType = 6
)

// MessageHeaderSize is the fixed 12-byte SVFW message header.
const MessageHeaderSize = 12

// ResponseHeaderSize is the 16-byte sub-header that follows a Reply
// message header.
const ResponseHeaderSize = 16

// responseHeaderMagic is the fixed (0, 1, 0, 0) big-endian u32 sequence
// every Reply sub-header carries.
var responseHeaderMagic = [4]uint32{0, 1, 0, 0}

// Message is a parsed SVFW message: header fields plus decrypted payload.
type Message struct {
	Type    MessageType
	Index   uint32
	Payload []byte
}

// decodeMessageHeader parses the 12-byte message header from buf.
func decodeMessageHeader(buf []byte) (headerSize, msgType, msgIndex uint32, err error) {
	if len(buf) < MessageHeaderSize {
		return 0, 0, 0, fmt.Errorf("%w: message header too short", ErrInvalidPacket)
	}
	headerSize = binary.BigEndian.Uint32(buf[0:4])
	msgType = binary.BigEndian.Uint32(buf[4:8])
	msgIndex = binary.BigEndian.Uint32(buf[8:12])
	return
}

func encodeMessageHeader(buf []byte, msgType, msgIndex uint32) {
	binary.BigEndian.PutUint32(buf[0:4], MessageHeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], msgType)
	binary.BigEndian.PutUint32(buf[8:12], msgIndex)
}

func decodeResponseHeader(buf []byte) error {
	if len(buf) < ResponseHeaderSize {
		return fmt.Errorf("%w: response sub-header too short", ErrInvalidPacket)
	}
	for i, want := range responseHeaderMagic {
		got := binary.BigEndian.Uint32(buf[i*4 : i*4+4])
		if got != want {
			return fmt.Errorf("%w: response sub-header field %d = %d, want %d", ErrInvalidPacket, i, got, want)
		}
	}
	return nil
}

func encodeResponseHeader(buf []byte) {
	for i, v := range responseHeaderMagic {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], v)
	}
}

// MessageFramer sits on a PacketFramer and applies the per-direction
// cipher to message payloads (spec.md §4.4). The cipher and the
// cipher_enabled flag are snapshotted once per Send/Receive call so a hot
// cipher swap (spec.md §4.6 step 1, §9) is never split across a header
// write and a payload write.
type MessageFramer struct {
	packets *PacketFramer
	pair    atomic.Pointer[cipher.Pair]
	enabled atomic.Bool
}

// NewMessageFramer wraps pf with cipher application. Encryption starts
// enabled with a no-op Pair, matching "cipher_enabled flag (default true)"
// from spec.md §4.4 — callers install the real RSA pair before first use.
func NewMessageFramer(pf *PacketFramer) *MessageFramer {
	mf := &MessageFramer{packets: pf}
	pair := cipher.NoopPair()
	mf.pair.Store(&pair)
	mf.enabled.Store(true)
	return mf
}

// SetCipher atomically replaces the installed cipher pair.
func (mf *MessageFramer) SetCipher(pair cipher.Pair) {
	mf.pair.Store(&pair)
}

// SetCipherEnabled atomically toggles whether Send/Receive apply the
// installed cipher to payloads.
func (mf *MessageFramer) SetCipherEnabled(enabled bool) {
	mf.enabled.Store(enabled)
}

// Receive reads one SVFW message, decrypting its payload if the cipher is
// currently enabled (snapshotted at the start of this call).
func (mf *MessageFramer) Receive() (Message, error) {
	pair := *mf.pair.Load()
	enabled := mf.enabled.Load()

	raw, err := mf.packets.ReadPacket()
	if err != nil {
		return Message{}, err
	}

	headerSize, msgTypeRaw, msgIndex, err := decodeMessageHeader(raw)
	if err != nil {
		return Message{}, err
	}
	if headerSize != MessageHeaderSize {
		return Message{}, fmt.Errorf("%w: header_size field = %d, want %d", ErrInvalidPacket, headerSize, MessageHeaderSize)
	}
	msgType := MessageType(msgTypeRaw)

	rest := raw[MessageHeaderSize:]
	if msgType == MessageTypeReply {
		if err := decodeResponseHeader(rest); err != nil {
			return Message{}, err
		}
		rest = rest[ResponseHeaderSize:]
	}

	payload := rest
	if enabled {
		payload, err = pair.Decrypt.Decrypt(rest)
		if err != nil {
			return Message{}, fmt.Errorf("svfw: decrypting payload: %w", err)
		}
	}

	return Message{Type: msgType, Index: msgIndex, Payload: payload}, nil
}

// Send writes msgType/msgIndex/payload as one SVFW message, encrypting the
// payload if the cipher is currently enabled (snapshotted at the start of
// this call) and attaching the Reply sub-header when msgType is Reply.
func (mf *MessageFramer) Send(msgType MessageType, msgIndex uint32, payload []byte) error {
	pair := *mf.pair.Load()
	enabled := mf.enabled.Load()

	out := payload
	var err error
	if enabled {
		out, err = pair.Encrypt.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("svfw: encrypting payload: %w", err)
		}
	}

	extra := 0
	if msgType == MessageTypeReply {
		extra = ResponseHeaderSize
	}

	buf := make([]byte, MessageHeaderSize+extra+len(out))
	encodeMessageHeader(buf, uint32(msgType), msgIndex)
	if msgType == MessageTypeReply {
		encodeResponseHeader(buf[MessageHeaderSize : MessageHeaderSize+ResponseHeaderSize])
	}
	copy(buf[MessageHeaderSize+extra:], out)

	return mf.packets.WritePacket(buf)
}
