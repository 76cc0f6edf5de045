// Package svfw implements the SVFW wire framing: a 2-byte big-endian
// length prefix around a 12-byte packet header (spec.md §3/§4.3), and,
// layered on top, the message framer with its per-direction cipher
// (spec.md §4.4).
package svfw

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed SVFW packet header size in bytes.
const HeaderSize = 12

// ErrInvalidPacket is returned for any malformed SVFW packet: a length
// prefix shorter than HeaderSize, or a header whose payload_length fields
// disagree with the actual payload size.
var ErrInvalidPacket = fmt.Errorf("svfw: invalid packet")

// PacketHeader is the 12-byte, big-endian SVFW packet header.
// Invariant: PayloadLength == PayloadLengthShort == len(payload).
type PacketHeader struct {
	SendCounter       uint16
	PayloadLength     uint32
	PayloadLengthShort uint16
}

// Encode writes the 12-byte header to buf, which must be at least
// HeaderSize bytes.
func (h PacketHeader) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.SendCounter)
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint32(buf[4:8], h.PayloadLength)
	binary.BigEndian.PutUint16(buf[8:10], 0)
	binary.BigEndian.PutUint16(buf[10:12], h.PayloadLengthShort)
}

// DecodePacketHeader parses a 12-byte SVFW packet header.
func DecodePacketHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < HeaderSize {
		return PacketHeader{}, fmt.Errorf("%w: header too short (%d bytes)", ErrInvalidPacket, len(buf))
	}
	return PacketHeader{
		SendCounter:        binary.BigEndian.Uint16(buf[0:2]),
		PayloadLength:      binary.BigEndian.Uint32(buf[4:8]),
		PayloadLengthShort: binary.BigEndian.Uint16(buf[10:12]),
	}, nil
}

// PacketFramer turns a byte stream into discrete SVFW packets: a 2-byte
// big-endian length prefix, followed by a 12-byte header, followed by the
// payload. Outgoing packets get an ever-incrementing SendCounter that
// wraps at uint16, per spec.md §4.3/§8.
type PacketFramer struct {
	rw          io.ReadWriter
	sendCounter uint16
}

// NewPacketFramer wraps a byte stream (see internal/netio) in the SVFW
// packet framing.
func NewPacketFramer(rw io.ReadWriter) *PacketFramer {
	return &PacketFramer{rw: rw}
}

// ReadPacket reads one length-prefixed SVFW packet and returns its
// payload (the bytes after the 12-byte header).
func (f *PacketFramer) ReadPacket() ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(f.rw, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("svfw: reading length prefix: %w", err)
	}
	total := int(binary.BigEndian.Uint16(lenPrefix[:]))
	if total < HeaderSize {
		return nil, fmt.Errorf("%w: length %d shorter than header", ErrInvalidPacket, total)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(f.rw, body); err != nil {
		return nil, fmt.Errorf("svfw: reading packet body: %w", err)
	}

	hdr, err := DecodePacketHeader(body[:HeaderSize])
	if err != nil {
		return nil, err
	}
	payload := body[HeaderSize:]
	if int(hdr.PayloadLength) != len(payload) || int(hdr.PayloadLengthShort) != len(payload) {
		return nil, fmt.Errorf("%w: payload_length mismatch (header %d/%d, actual %d)",
			ErrInvalidPacket, hdr.PayloadLength, hdr.PayloadLengthShort, len(payload))
	}
	return payload, nil
}

// WritePacket assigns the next SendCounter, builds the 12-byte header for
// payload, and writes length-prefix + header + payload in one call.
func (f *PacketFramer) WritePacket(payload []byte) error {
	hdr := PacketHeader{
		SendCounter:        f.sendCounter,
		PayloadLength:      uint32(len(payload)),
		PayloadLengthShort: uint16(len(payload)),
	}
	f.sendCounter++ // wraps at uint16 by field width, per spec.md §4.3

	total := HeaderSize + len(payload)
	buf := make([]byte, 2+total)
	binary.BigEndian.PutUint16(buf[0:2], uint16(total))
	hdr.Encode(buf[2 : 2+HeaderSize])
	copy(buf[2+HeaderSize:], payload)

	if _, err := f.rw.Write(buf); err != nil {
		return fmt.Errorf("svfw: writing packet: %w", err)
	}
	return nil
}
