package authsvc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wraithcore/ac5gate/internal/appver"
	"github.com/wraithcore/ac5gate/internal/cipher"
	"github.com/wraithcore/ac5gate/internal/netio"
	"github.com/wraithcore/ac5gate/internal/svfw"
	"github.com/wraithcore/ac5gate/internal/ticket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clientRSACipher stands in for the real client, which holds only the
// server's public key: it encrypts outbound payloads with OAEP (the server
// decrypts with its private key) and decrypts inbound payloads by reversing
// the server's private-key X9.31 transform with the public exponent.
type clientRSACipher struct {
	pub *rsa.PublicKey
}

func (c clientRSACipher) Encrypt(plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, c.pub, plaintext, nil)
}

func (c clientRSACipher) Decrypt(ciphertext []byte) ([]byte, error) {
	keySize := (c.pub.N.BitLen() + 7) / 8
	if len(ciphertext) != keySize {
		return nil, fmt.Errorf("unexpected block size %d, want %d", len(ciphertext), keySize)
	}
	m := new(big.Int).Exp(new(big.Int).SetBytes(ciphertext), big.NewInt(int64(c.pub.E)), c.pub.N)
	block := m.FillBytes(make([]byte, keySize))
	return unpadX931ForTest(block)
}

func unpadX931ForTest(eb []byte) ([]byte, error) {
	if len(eb) < 3 || eb[0] != 0x6B || eb[len(eb)-1] != 0xCC {
		return nil, fmt.Errorf("x9.31 unpad: malformed block")
	}
	i := 1
	for i < len(eb)-1 && eb[i] == 0xBB {
		i++
	}
	if i >= len(eb)-1 || eb[i] != 0xBA {
		return nil, fmt.Errorf("x9.31 unpad: missing delimiter")
	}
	return eb[i+1 : len(eb)-1], nil
}

// loopbackPair returns two connected in-memory endpoints, for steps that
// never reach RemoteHost.
func loopbackPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	server, client = net.Pipe()
	return server, client
}

// tcpLoopbackPair returns two connected real TCP endpoints. Anything that
// drives the session through to the ticket step needs a real socket: step 4
// resolves the peer's address with net.SplitHostPort, which net.Pipe's
// synthetic "pipe" address can't satisfy.
func tcpLoopbackPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-acceptCh
	require.NotNil(t, server)
	return server, client
}

func newClientFramer(client net.Conn, pub *rsa.PublicKey) *svfw.MessageFramer {
	mf := svfw.NewMessageFramer(svfw.NewPacketFramer(client))
	mf.SetCipher(cipher.Pair{Encrypt: clientRSACipher{pub: pub}, Decrypt: clientRSACipher{pub: pub}})
	return mf
}

func testConfig() Config {
	return Config{
		AppVersionMin:   appver.FromUint64(0),
		AppVersionMax:   appver.FromUint64(^uint64(0)),
		PrivateHostname: "10.0.0.5",
		PublicHostname:  "203.0.113.5",
		GamePort:        50030,
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// clientHandshake drives step 1 from the client side: send the proposed
// AES-CWC key, receive the plaintext 27-byte ack, then install the same
// cipher so the remaining steps are encrypted like the real client.
func clientHandshake(t *testing.T, cf *svfw.MessageFramer, aesKey []byte) {
	t.Helper()
	require.NoError(t, cf.Send(svfw.MessageTypeRequestHandshake, 1, aesKey))

	cf.SetCipherEnabled(false)
	resp, err := cf.Receive()
	require.NoError(t, err)
	require.Equal(t, svfw.MessageTypeRequestHandshake, resp.Type)
	require.Len(t, resp.Payload, handshakeResponseSize)

	aesCipher, err := cipher.NewAESCWC(aesKey)
	require.NoError(t, err)
	cf.SetCipher(cipher.Pair{Encrypt: aesCipher, Decrypt: aesCipher})
	cf.SetCipherEnabled(true)
}

func encodeServiceStatusRequest(playerName string, version appver.Version) []byte {
	var out []byte
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(playerName)))
	out = append(out, lenBuf[:]...)
	out = append(out, playerName...)
	out = append(out, version[:]...)
	return out
}

func decodeServiceStatusResponse(t *testing.T, payload []byte) (id uint32, version appver.Version) {
	t.Helper()
	require.GreaterOrEqual(t, len(payload), 4+2+1+8)
	id = binary.BigEndian.Uint32(payload[0:4])
	rest := payload[4:]
	nameLen := int(binary.BigEndian.Uint16(rest[0:2]))
	rest = rest[2+nameLen:]
	rest = rest[1:] // unk3
	require.Len(t, rest, 8)
	v, err := appver.Decode(rest)
	require.NoError(t, err)
	return id, v
}

func clientServiceStatus(t *testing.T, cf *svfw.MessageFramer, playerName string, version appver.Version) (id uint32, echoed appver.Version) {
	t.Helper()
	req := encodeServiceStatusRequest(playerName, version)
	require.NoError(t, cf.Send(svfw.MessageTypeGetServiceStatus, 2, req))

	resp, err := cf.Receive()
	require.NoError(t, err)
	require.Equal(t, svfw.MessageTypeGetServiceStatus, resp.Type)
	return decodeServiceStatusResponse(t, resp.Payload)
}

func encodeKeyMaterialRequest(appVersionEcho appver.Version, clientHalf [8]byte) []byte {
	var out [16]byte
	copy(out[0:8], appVersionEcho[:])
	copy(out[8:16], clientHalf[:])
	return out[:]
}

// clientKeyMaterial drives step 3 and returns the server's combined
// 16-byte key, the commitment the ticket's cookie must carry.
func clientKeyMaterial(t *testing.T, cf *svfw.MessageFramer, clientHalf [8]byte) [16]byte {
	t.Helper()
	req := encodeKeyMaterialRequest(appver.FromUint64(0), clientHalf)
	require.NoError(t, cf.Send(svfw.MessageTypeKeyMaterial, 3, req))

	resp, err := cf.Receive()
	require.NoError(t, err)
	require.Equal(t, svfw.MessageTypeKeyMaterial, resp.Type)
	require.Len(t, resp.Payload, keyMaterialPayloadSize)

	var combined [16]byte
	copy(combined[:], resp.Payload)
	return combined
}

// buildTicket constructs a ticket fixture and returns its wire encoding.
// signed controls whether both the signer and signature fields carry
// non-zero bytes, per ticket.Ticket.IsSigned.
func buildTicket(userID uint64, onlineID string, expire time.Time, cookie []byte, signed bool) []byte {
	signer := []byte{0}
	sig := []byte{0}
	if signed {
		signer = []byte{1, 2, 3}
		sig = []byte{4, 5, 6}
	}
	tk := ticket.Ticket{
		Version: 1,
		Userdata: ticket.Userdata{
			Serial:     []byte("serial-1"),
			IssuerID:   1,
			IssuedDate: time.Now().Add(-time.Minute).UTC(),
			ExpireDate: expire.UTC(),
			UserID:     userID,
			OnlineID:   onlineID,
			Region:     []byte("us"),
			Domain:     "example.test",
			ServiceID:  []byte("svc"),
			Status:     0,
			Cookie:     cookie,
		},
		Signature: ticket.Signature{
			Signer:    signer,
			Signature: sig,
		},
	}
	return tk.Encode()
}

func TestSession_FullFlow_IssuesGameServerConnection(t *testing.T) {
	server, client := tcpLoopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := testConfig()
	sess := NewSession(cfg, priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))

	version := appver.FromUint64(uint64(appver.BuildTag)<<32 | 1)
	id, echoed := clientServiceStatus(t, cf, "player1", version)
	require.EqualValues(t, 2, id)
	require.Equal(t, version, echoed)

	var clientHalf [8]byte
	copy(clientHalf[:], randomBytes(t, 8))
	combined := clientKeyMaterial(t, cf, clientHalf)
	require.Equal(t, clientHalf[:], combined[0:8])

	ticketBytes := buildTicket(42, "player1", time.Now().Add(time.Hour), combined[:], true)
	require.NoError(t, cf.Send(svfw.MessageTypeTicket, 4, ticketBytes))

	reply, err := cf.Receive()
	require.NoError(t, err)
	require.Equal(t, svfw.MessageTypeReply, reply.Type)
	require.Len(t, reply.Payload, 56)

	gotGamePort := binary.BigEndian.Uint32(reply.Payload[8:12])
	require.EqualValues(t, cfg.GamePort, gotGamePort)

	wantIP := net.ParseIP(cfg.PublicHostname).To4()
	wantAddr := uint32(wantIP[0])<<24 | uint32(wantIP[1])<<16 | uint32(wantIP[2])<<8 | uint32(wantIP[3])
	gotAddr := binary.BigEndian.Uint32(reply.Payload[4:8])
	require.Equal(t, wantAddr, gotAddr, "loopback peer is not RFC-1918, so the public hostname is used")

	require.NoError(t, <-done)
	require.Equal(t, StateComplete, sess.state)
}

func TestSession_Handshake_RejectsWrongMessageType(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	require.NoError(t, cf.Send(svfw.MessageTypeGetServiceStatus, 1, make([]byte, 10)))

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_ServiceStatus_RejectsOutOfRangeAppVersion(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AppVersionMin = appver.FromUint64(uint64(appver.BuildTag)<<32 | 10)
	cfg.AppVersionMax = appver.FromUint64(uint64(appver.BuildTag)<<32 | 20)

	sess := NewSession(cfg, priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))

	tooLow := appver.FromUint64(uint64(appver.BuildTag) << 32)
	id, echoed := clientServiceStatus(t, cf, "player1", tooLow)
	require.EqualValues(t, 0, id)
	require.Equal(t, appver.FromUint64(0), echoed)

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_ServiceStatus_AcceptsInRangeAppVersion(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))

	version := appver.FromUint64(uint64(appver.BuildTag)<<32 | 5)
	id, echoed := clientServiceStatus(t, cf, "player1", version)
	require.EqualValues(t, 2, id)
	require.Equal(t, version, echoed)
	require.Equal(t, StateWaitingForKeyMaterial, sess.state)

	client.Close()
	<-done
}

func TestSession_KeyMaterial_RejectsWrongPayloadLength(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))
	_, _ = clientServiceStatus(t, cf, "player1", appver.FromUint64(uint64(appver.BuildTag)<<32))

	require.NoError(t, cf.Send(svfw.MessageTypeKeyMaterial, 3, make([]byte, 10)))

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_Ticket_RejectsExpiredTicket(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))
	_, _ = clientServiceStatus(t, cf, "player1", appver.FromUint64(uint64(appver.BuildTag)<<32))

	var clientHalf [8]byte
	copy(clientHalf[:], randomBytes(t, 8))
	combined := clientKeyMaterial(t, cf, clientHalf)

	ticketBytes := buildTicket(1, "player1", time.Now().Add(-time.Hour), combined[:], true)
	require.NoError(t, cf.Send(svfw.MessageTypeTicket, 4, ticketBytes))

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_Ticket_RejectsCommitmentMismatch(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))
	_, _ = clientServiceStatus(t, cf, "player1", appver.FromUint64(uint64(appver.BuildTag)<<32))

	var clientHalf [8]byte
	copy(clientHalf[:], randomBytes(t, 8))
	_ = clientKeyMaterial(t, cf, clientHalf)

	wrongCookie := make([]byte, 16) // all-zero, won't match the server's random commitment
	ticketBytes := buildTicket(1, "player1", time.Now().Add(time.Hour), wrongCookie, true)
	require.NoError(t, cf.Send(svfw.MessageTypeTicket, 4, ticketBytes))

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_Ticket_RejectsWrongMessageType(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))
	_, _ = clientServiceStatus(t, cf, "player1", appver.FromUint64(uint64(appver.BuildTag)<<32))

	var clientHalf [8]byte
	copy(clientHalf[:], randomBytes(t, 8))
	_ = clientKeyMaterial(t, cf, clientHalf)

	require.NoError(t, cf.Send(svfw.MessageTypeGetServiceStatus, 5, make([]byte, 4)))

	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, sess.state)
}

func TestSession_Ticket_UnsignedTicketStillSucceeds(t *testing.T) {
	server, client := tcpLoopbackPair(t)
	defer server.Close()
	defer client.Close()

	priv, err := cipher.GenerateRSAKeyPair()
	require.NoError(t, err)

	sess := NewSession(testConfig(), priv, netio.New(server, 2*time.Second), discardLogger())
	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	cf := newClientFramer(client, &priv.PublicKey)
	clientHandshake(t, cf, randomBytes(t, 16))
	_, _ = clientServiceStatus(t, cf, "player1", appver.FromUint64(uint64(appver.BuildTag)<<32))

	var clientHalf [8]byte
	copy(clientHalf[:], randomBytes(t, 8))
	combined := clientKeyMaterial(t, cf, clientHalf)

	ticketBytes := buildTicket(7, "player1", time.Now().Add(time.Hour), combined[:], false)
	require.NoError(t, cf.Send(svfw.MessageTypeTicket, 4, ticketBytes))

	reply, err := cf.Receive()
	require.NoError(t, err)
	require.Equal(t, svfw.MessageTypeReply, reply.Type)

	require.NoError(t, <-done)
	require.Equal(t, StateComplete, sess.state)
}
