package ticket

import (
	"bytes"
	"fmt"
	"time"
)

const outerHeaderSize = 8 // version:u32, size:u32

// Userdata is the decoded payload of the 0x3000 blob: user identity, the
// validity window, and the session-key cookie.
type Userdata struct {
	Serial     []byte
	IssuerID   uint32
	IssuedDate time.Time
	ExpireDate time.Time
	UserID     uint64
	OnlineID   string
	Region     []byte
	Domain     string
	ServiceID  []byte
	Status     uint32
	Cookie     []byte // optional; nil when absent
}

// Signature is the decoded payload of the 0x3002 blob.
type Signature struct {
	Signer    []byte
	Signature []byte
}

// Ticket is the parsed form of the credential presented in authentication
// step 4.
type Ticket struct {
	Version   uint32
	Userdata  Userdata
	Signature Signature
}

// IsExpired reports whether the ticket's validity window has elapsed as of
// now, per the invariant "expired when now >= expire_date".
func (t *Ticket) IsExpired(now time.Time) bool {
	return !now.Before(t.Userdata.ExpireDate)
}

// IsSigned reports whether both the signer and signature fields carry at
// least one non-zero byte.
func (t *Ticket) IsSigned() bool {
	return hasNonZeroByte(t.Signature.Signer) && hasNonZeroByte(t.Signature.Signature)
}

func hasNonZeroByte(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}

// CommitmentKey returns the first 16 bytes of the cookie, the session
// AES-CWC key the client committed to during key-material exchange.
func (t *Ticket) CommitmentKey() ([]byte, error) {
	if len(t.Userdata.Cookie) < 16 {
		return nil, fmt.Errorf("ticket: cookie too short for commitment key (%d bytes)", len(t.Userdata.Cookie))
	}
	return t.Userdata.Cookie[:16], nil
}

// Parse decodes a ticket from its wire representation.
func Parse(buf []byte) (*Ticket, error) {
	if len(buf) < outerHeaderSize {
		return nil, fmt.Errorf("ticket: truncated outer header (%d bytes)", len(buf))
	}
	version, size, err := readOuterHeader(buf)
	if err != nil {
		return nil, err
	}
	body := buf[outerHeaderSize:]

	t := &Ticket{Version: version}
	haveUserdata, haveSignature := false, false

	for len(body) > 0 {
		blob, rest, err := readField(body)
		if err != nil {
			return nil, err
		}
		body = rest

		switch blob.Type {
		case BlobUserdata:
			ud, err := parseUserdata(blob.Payload)
			if err != nil {
				return nil, fmt.Errorf("ticket: userdata blob: %w", err)
			}
			t.Userdata = ud
			haveUserdata = true
		case BlobSignature:
			sig, err := parseSignature(blob.Payload)
			if err != nil {
				return nil, fmt.Errorf("ticket: signature blob: %w", err)
			}
			t.Signature = sig
			haveSignature = true
		default:
			return nil, fmt.Errorf("ticket: unrecognized blob type 0x%04x", blob.Type)
		}
	}

	if !haveUserdata {
		return nil, fmt.Errorf("ticket: missing userdata blob")
	}
	if !haveSignature {
		return nil, fmt.Errorf("ticket: missing signature blob")
	}
	_ = size // informational; body is framed by the surrounding message, not relied on for bounds

	return t, nil
}

func readOuterHeader(buf []byte) (version, size uint32, err error) {
	version = beUint32(buf[0:4])
	size = beUint32(buf[4:8])
	return version, size, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func parseUserdata(buf []byte) (Userdata, error) {
	var ud Userdata

	f, buf, err := readField(buf)
	if err != nil {
		return ud, fmt.Errorf("serial: %w", err)
	}
	ud.Serial = f.Payload

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("issuer_id: %w", err)
	}
	ud.IssuerID, err = readU32Field(f)
	if err != nil {
		return ud, fmt.Errorf("issuer_id: %w", err)
	}

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("issued_date: %w", err)
	}
	issuedMs, err := readU64Field(f)
	if err != nil {
		return ud, fmt.Errorf("issued_date: %w", err)
	}
	ud.IssuedDate = time.UnixMilli(int64(issuedMs)).UTC()

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("expire_date: %w", err)
	}
	expireMs, err := readU64Field(f)
	if err != nil {
		return ud, fmt.Errorf("expire_date: %w", err)
	}
	ud.ExpireDate = time.UnixMilli(int64(expireMs)).UTC()

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("user_id: %w", err)
	}
	ud.UserID, err = readU64Field(f)
	if err != nil {
		return ud, fmt.Errorf("user_id: %w", err)
	}

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("online_id: %w", err)
	}
	ud.OnlineID = string(f.Payload)

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("region: %w", err)
	}
	ud.Region = f.Payload

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("domain: %w", err)
	}
	ud.Domain = string(f.Payload)

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("service_id: %w", err)
	}
	ud.ServiceID = f.Payload

	f, buf, err = readField(buf)
	if err != nil {
		return ud, fmt.Errorf("status: %w", err)
	}
	ud.Status, err = readU32Field(f)
	if err != nil {
		return ud, fmt.Errorf("status: %w", err)
	}

	// cookie is optional: its field may be Binary (present) or the first of
	// the two Empty terminators (absent).
	if len(buf) > 0 {
		f, rest, err := readField(buf)
		if err != nil {
			return ud, fmt.Errorf("cookie/terminator: %w", err)
		}
		if f.Type == uint16(FieldBinary) {
			ud.Cookie = f.Payload
			buf = rest
		}
	}

	return ud, nil
}

func parseSignature(buf []byte) (Signature, error) {
	var sig Signature

	f, buf, err := readField(buf)
	if err != nil {
		return sig, fmt.Errorf("signer: %w", err)
	}
	sig.Signer = f.Payload

	f, _, err = readField(buf)
	if err != nil {
		return sig, fmt.Errorf("signature: %w", err)
	}
	sig.Signature = f.Payload

	return sig, nil
}

// Encode serializes the ticket to its wire representation, the inverse of
// Parse.
func (t *Ticket) Encode() []byte {
	userdataBody := encodeUserdata(t.Userdata)
	signatureBody := encodeSignature(t.Signature)

	var blobs []byte
	blobs = writeField(blobs, BlobUserdata, userdataBody)
	blobs = writeField(blobs, BlobSignature, signatureBody)

	var out bytes.Buffer
	var outer [outerHeaderSize]byte
	putBeUint32(outer[0:4], t.Version)
	putBeUint32(outer[4:8], uint32(len(blobs)))
	out.Write(outer[:])
	out.Write(blobs)
	return out.Bytes()
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func encodeUserdata(ud Userdata) []byte {
	var buf []byte
	buf = writeBinaryField(buf, ud.Serial)
	buf = writeU32Field(buf, ud.IssuerID)
	buf = writeTimeField(buf, uint64(ud.IssuedDate.UnixMilli()))
	buf = writeTimeField(buf, uint64(ud.ExpireDate.UnixMilli()))
	buf = writeU64Field(buf, ud.UserID)
	buf = writeBStringField(buf, ud.OnlineID)
	buf = writeBinaryField(buf, ud.Region)
	buf = writeBStringField(buf, ud.Domain)
	buf = writeBinaryField(buf, ud.ServiceID)
	buf = writeU32Field(buf, ud.Status)
	if ud.Cookie != nil {
		buf = writeBinaryField(buf, ud.Cookie)
	}
	buf = writeEmptyField(buf)
	buf = writeEmptyField(buf)
	return buf
}

func encodeSignature(sig Signature) []byte {
	var buf []byte
	buf = writeBinaryField(buf, sig.Signer)
	buf = writeBinaryField(buf, sig.Signature)
	return buf
}
