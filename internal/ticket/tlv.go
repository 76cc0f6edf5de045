// Package ticket parses and serializes the signed session ticket a client
// presents in authentication step 4 (spec.md §3, §4.6 step 4): a recursive,
// network-byte-order TLV structure carrying user identity, a validity
// window, and the session-key cookie.
package ticket

import (
	"encoding/binary"
	"fmt"
)

// FieldType is the TLV field-header type tag.
type FieldType uint16

const (
	FieldEmpty   FieldType = 0
	FieldU32     FieldType = 1
	FieldU64     FieldType = 2
	FieldBString FieldType = 4
	FieldTime    FieldType = 7
	FieldBinary  FieldType = 8
)

// Blob type tags for the two top-level ticket sections.
const (
	BlobUserdata  uint16 = 0x3000
	BlobSignature uint16 = 0x3002
)

const fieldHeaderSize = 4 // type:u16, length:u16

// field is one decoded TLV entry: its type tag and raw payload bytes.
type field struct {
	Type    uint16
	Payload []byte
}

// readField reads one TLV field from the front of buf and returns it along
// with the remaining bytes.
func readField(buf []byte) (field, []byte, error) {
	if len(buf) < fieldHeaderSize {
		return field{}, nil, fmt.Errorf("ticket: field header truncated (%d bytes)", len(buf))
	}
	typ := binary.BigEndian.Uint16(buf[0:2])
	length := binary.BigEndian.Uint16(buf[2:4])
	rest := buf[fieldHeaderSize:]
	if len(rest) < int(length) {
		return field{}, nil, fmt.Errorf("ticket: field payload truncated (want %d, have %d)", length, len(rest))
	}
	return field{Type: typ, Payload: rest[:length]}, rest[length:], nil
}

// writeField appends a TLV-encoded field to buf.
func writeField(buf []byte, typ uint16, payload []byte) []byte {
	var hdr [fieldHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], typ)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(payload)))
	buf = append(buf, hdr[:]...)
	return append(buf, payload...)
}

func writeEmptyField(buf []byte) []byte {
	return writeField(buf, uint16(FieldEmpty), nil)
}

func writeU32Field(buf []byte, v uint32) []byte {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], v)
	return writeField(buf, uint16(FieldU32), p[:])
}

func writeU64Field(buf []byte, v uint64) []byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], v)
	return writeField(buf, uint16(FieldU64), p[:])
}

func writeTimeField(buf []byte, unixMillis uint64) []byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], unixMillis)
	return writeField(buf, uint16(FieldTime), p[:])
}

func writeBStringField(buf []byte, s string) []byte {
	return writeField(buf, uint16(FieldBString), []byte(s))
}

func writeBinaryField(buf []byte, b []byte) []byte {
	return writeField(buf, uint16(FieldBinary), b)
}

func readU32Field(f field) (uint32, error) {
	if len(f.Payload) != 4 {
		return 0, fmt.Errorf("ticket: U32 field has %d bytes, want 4", len(f.Payload))
	}
	return binary.BigEndian.Uint32(f.Payload), nil
}

func readU64Field(f field) (uint64, error) {
	if len(f.Payload) != 8 {
		return 0, fmt.Errorf("ticket: U64/Time field has %d bytes, want 8", len(f.Payload))
	}
	return binary.BigEndian.Uint64(f.Payload), nil
}
