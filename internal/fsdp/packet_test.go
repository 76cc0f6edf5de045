package fsdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	cases := []Header{
		{LocalAck: 0, RemoteAck: 0, Opcode: OpSyn},
		{LocalAck: 0x123, RemoteAck: 0x123, Opcode: OpSynAck},
		{LocalAck: 4095, RemoteAck: 4095, Opcode: OpDatAck},
		{LocalAck: 0xABC, RemoteAck: 0x001, Opcode: OpFin},
	}
	for _, h := range cases {
		buf := make([]byte, HeaderSize)
		h.Encode(buf)
		got, err := DecodeHeader(buf)
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestHeader_PackedAckNibblesDoNotCollide(t *testing.T) {
	// local_ack high nibble must not leak into remote_ack and vice versa.
	h := Header{LocalAck: 0xF00, RemoteAck: 0x0FF, Opcode: OpDat}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.EqualValues(t, 0xF00, got.LocalAck)
	require.EqualValues(t, 0x0FF, got.RemoteAck)
}

func TestDecodeHeader_RejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1] = 0xDE, 0xAD
	_, err := DecodeHeader(buf)
	require.ErrorIs(t, err, ErrInvalidPacket)
}

func TestDecodeHeader_RejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{0x02, 0xF5, 0x00})
	require.ErrorIs(t, err, ErrInvalidPacket)
}

func TestEncodeDecode_PayloadRoundTrip(t *testing.T) {
	h := Header{LocalAck: 1, RemoteAck: 2, Opcode: OpDat}
	payload := []byte("hello game")
	raw := Encode(h, payload)

	gotHdr, gotPayload, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, h, gotHdr)
	require.Equal(t, payload, gotPayload)
}
