// Package protocolmsg stands in for the vendor's generated protobuf
// message definitions (spec.md §1 calls these "opaque codecs," out of
// core scope). It exposes the handful of fields the authentication state
// machine actually inspects, encoded/decoded as fixed-layout payloads
// rather than full protobuf wire format.
package protocolmsg

import (
	"encoding/binary"
	"fmt"

	"github.com/wraithcore/ac5gate/internal/appver"
)

// RequestHandshake carries the client's proposed AES-CWC session key
// (spec.md §4.6 step 1).
type RequestHandshake struct {
	AESCWCKey [16]byte
}

// DecodeRequestHandshake parses a handshake payload.
func DecodeRequestHandshake(buf []byte) (RequestHandshake, error) {
	if len(buf) != 16 {
		return RequestHandshake{}, fmt.Errorf("protocolmsg: RequestHandshake payload is %d bytes, want 16", len(buf))
	}
	var msg RequestHandshake
	copy(msg.AESCWCKey[:], buf)
	return msg, nil
}

// GetServiceStatusRequest carries the client's claimed identity and build
// (spec.md §4.6 step 2).
type GetServiceStatusRequest struct {
	PlayerName string
	AppVersion appver.Version
}

// DecodeGetServiceStatusRequest parses a u16-length-prefixed player name
// followed by an 8-byte app version.
func DecodeGetServiceStatusRequest(buf []byte) (GetServiceStatusRequest, error) {
	name, rest, err := readLPString(buf)
	if err != nil {
		return GetServiceStatusRequest{}, fmt.Errorf("protocolmsg: GetServiceStatusRequest: %w", err)
	}
	if len(rest) != 8 {
		return GetServiceStatusRequest{}, fmt.Errorf("protocolmsg: GetServiceStatusRequest: app_version is %d bytes, want 8", len(rest))
	}
	v, err := appver.Decode(rest)
	if err != nil {
		return GetServiceStatusRequest{}, err
	}
	return GetServiceStatusRequest{PlayerName: name, AppVersion: v}, nil
}

// GetServiceStatusResponse is the server's reply to GetServiceStatus
// (spec.md §4.6 step 2).
type GetServiceStatusResponse struct {
	ID         uint32
	PlayerName string
	Unk3       bool
	AppVersion appver.Version
}

// Encode serializes r as id:u32, length-prefixed player_name, unk3:u8,
// app_version:8 bytes.
func (r GetServiceStatusResponse) Encode() []byte {
	var out []byte
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], r.ID)
	out = append(out, idBuf[:]...)
	out = appendLPString(out, r.PlayerName)
	if r.Unk3 {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, r.AppVersion[:]...)
	return out
}

// RequestQueryLoginServerInfo carries the player identity the login state
// machine logs for traceability (spec.md §4.5).
type RequestQueryLoginServerInfo struct {
	PlayerID uint32
}

// DecodeRequestQueryLoginServerInfo parses a single u32 player_id payload.
func DecodeRequestQueryLoginServerInfo(buf []byte) (RequestQueryLoginServerInfo, error) {
	if len(buf) != 4 {
		return RequestQueryLoginServerInfo{}, fmt.Errorf("protocolmsg: RequestQueryLoginServerInfo payload is %d bytes, want 4", len(buf))
	}
	return RequestQueryLoginServerInfo{PlayerID: binary.BigEndian.Uint32(buf)}, nil
}

// QueryLoginServerInfoResponse redirects the client to the authentication
// service (spec.md §4.5 step 2).
type QueryLoginServerInfoResponse struct {
	AuthPort uint16
}

// Encode serializes r as a single u16 port.
func (r QueryLoginServerInfoResponse) Encode() []byte {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], r.AuthPort)
	return out[:]
}

func readLPString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("length-prefixed string header truncated")
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	rest := buf[2:]
	if len(rest) < n {
		return "", nil, fmt.Errorf("length-prefixed string body truncated (want %d, have %d)", n, len(rest))
	}
	return string(rest[:n]), rest[n:], nil
}

func appendLPString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}
