// Package loginsvc implements the single-round login state machine
// (spec.md §4.5): the client asks for its assigned authentication
// service, the server answers with the configured auth port and closes
// the connection. Unlike internal/authsvc this state machine never
// installs an AES-CWC session cipher — the whole exchange happens under
// the RSA cipher the connection is born with.
package loginsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wraithcore/ac5gate/internal/cipher"
	"github.com/wraithcore/ac5gate/internal/netio"
	"github.com/wraithcore/ac5gate/internal/protocolmsg"
	"github.com/wraithcore/ac5gate/internal/svfw"
)

// errProtocolViolation marks a teardown caused by unexpected message
// content, mirroring authsvc's sentinel (spec.md §7).
var errProtocolViolation = errors.New("loginsvc: protocol violation")

// Config parameterizes the login listener.
type Config struct {
	AuthPort uint16
}

// Session drives one client through the single-round login exchange. Like
// authsvc.Session, it is owned exclusively by its connection's
// receive/send tasks and carries no internal locking.
type Session struct {
	cfg    Config
	stream *netio.Stream
	framer *svfw.MessageFramer
	log    *slog.Logger
}

// NewSession wraps stream in the SVFW framers and installs the RSA cipher
// pair used for the login service's one message exchange.
func NewSession(cfg Config, priv *rsa.PrivateKey, stream *netio.Stream, log *slog.Logger) *Session {
	pf := svfw.NewPacketFramer(stream)
	mf := svfw.NewMessageFramer(pf)
	rsaCipher := cipher.NewRSACipher(priv)
	mf.SetCipher(cipher.Pair{Encrypt: rsaCipher, Decrypt: rsaCipher})

	return &Session{cfg: cfg, stream: stream, framer: mf, log: log}
}

// Run receives the one expected message, replies with the auth port, and
// returns. The caller is responsible for closing the connection
// afterward regardless of the returned error (spec.md §4.5: "close the
// connection" terminates the exchange whether it succeeded or not).
func (s *Session) Run() error {
	msg, err := s.framer.Receive()
	if err != nil {
		return fmt.Errorf("loginsvc: receive: %w", err)
	}

	if msg.Type != svfw.MessageTypeRequestQueryLoginServerInfo {
		s.log.Warn("login protocol violation", "message_type", msg.Type)
		return fmt.Errorf("%w: expected RequestQueryLoginServerInfo, got %v", errProtocolViolation, msg.Type)
	}

	req, err := protocolmsg.DecodeRequestQueryLoginServerInfo(msg.Payload)
	if err != nil {
		s.log.Warn("login protocol violation", "error", err)
		return fmt.Errorf("%w: %v", errProtocolViolation, err)
	}
	s.log.Info("login server info requested", "player_id", req.PlayerID)

	resp := protocolmsg.QueryLoginServerInfoResponse{AuthPort: s.cfg.AuthPort}
	if err := s.framer.Send(svfw.MessageTypeReply, msg.Index, resp.Encode()); err != nil {
		return fmt.Errorf("loginsvc: sending redirect: %w", err)
	}
	return nil
}
