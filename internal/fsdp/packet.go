package fsdp

import (
	"encoding/binary"
	"fmt"
)

// Magic is the fixed FSDP reliable-header magic value (spec.md §3).
const Magic uint16 = 0x02F5

// HeaderSize is the fixed 8-byte FSDP reliable packet header.
const HeaderSize = 8

// ErrInvalidPacket marks a malformed FSDP header (spec.md §4.8 "Unknown:
// Fatal for the session" extends to any header that doesn't even parse).
var ErrInvalidPacket = fmt.Errorf("fsdp: invalid packet")

// Header is the parsed 8-byte FSDP reliable-datagram header (spec.md §3).
// The wire layout packs two 12-bit sequence numbers into three bytes
// (spec.md §9 "FSDP packed sequence numbers"):
//
//	byte[2]            = low 8 bits of LocalAck
//	byte[3] high nibble = high 4 bits of LocalAck
//	byte[3] low nibble  = high 4 bits of RemoteAck
//	byte[4]            = low 8 bits of RemoteAck
//	byte[5]            = Opcode
//	byte[6]            = reserved
//	byte[7]            = reserved (pads the header to the documented 8 bytes)
type Header struct {
	LocalAck  uint16 // 12-bit
	RemoteAck uint16 // 12-bit
	Opcode    Opcode
}

// Encode writes h's 8-byte wire form to buf, which must be at least
// HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = byte(h.LocalAck & 0xFF)
	buf[3] = byte((h.LocalAck>>8)&0x0F)<<4 | byte((h.RemoteAck>>8)&0x0F)
	buf[4] = byte(h.RemoteAck & 0xFF)
	buf[5] = byte(h.Opcode)
	buf[6] = 0
	buf[7] = 0
}

// DecodeHeader parses an 8-byte FSDP header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header too short (%d bytes)", ErrInvalidPacket, len(buf))
	}
	magic := binary.BigEndian.Uint16(buf[0:2])
	if magic != Magic {
		return Header{}, fmt.Errorf("%w: magic = 0x%04X, want 0x%04X", ErrInvalidPacket, magic, Magic)
	}
	localAck := uint16(buf[2]) | uint16(buf[3]>>4&0x0F)<<8
	remoteAck := uint16(buf[4]) | uint16(buf[3]&0x0F)<<8
	return Header{
		LocalAck:  localAck,
		RemoteAck: remoteAck,
		Opcode:    Opcode(buf[5]),
	}, nil
}

// Encode serializes a full FSDP packet: the 8-byte header followed by
// payload (payload is empty for pure control packets like SYN/ACK/HBT).
func Encode(h Header, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	h.Encode(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode parses a full FSDP packet into its header and payload.
func Decode(buf []byte) (Header, []byte, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	return h, buf[HeaderSize:], nil
}
