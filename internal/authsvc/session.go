// Package authsvc implements the four-step authentication state machine
// (spec.md §4.6): handshake key install, service-status gating, key
// material exchange, and ticket validation culminating in game-server
// issuance.
package authsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wraithcore/ac5gate/internal/appver"
	"github.com/wraithcore/ac5gate/internal/cipher"
	"github.com/wraithcore/ac5gate/internal/netio"
	"github.com/wraithcore/ac5gate/internal/svfw"
)

// State is one step of the authentication state machine.
type State int

const (
	StateWaitingForHandshakeRequest State = iota
	StateWaitingForServiceStatusRequest
	StateWaitingForKeyMaterial
	StateWaitingForTicket
	StateComplete
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateWaitingForHandshakeRequest:
		return "waiting_for_handshake_request"
	case StateWaitingForServiceStatusRequest:
		return "waiting_for_service_status_request"
	case StateWaitingForKeyMaterial:
		return "waiting_for_key_material"
	case StateWaitingForTicket:
		return "waiting_for_ticket"
	case StateComplete:
		return "complete"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// errProtocolViolation marks a session teardown caused by unexpected
// message content — logged at warn, never retried (spec.md §7).
var errProtocolViolation = errors.New("authsvc: protocol violation")

// Config parameterizes one authentication listener.
type Config struct {
	AppVersionMin, AppVersionMax appver.Version
	PrivateHostname              string
	PublicHostname               string
	GamePort                     uint16
}

// Session drives one client through the authentication state machine. It
// is owned exclusively by the connection's receive/send tasks (spec.md
// §5) and carries no internal locking.
type Session struct {
	cfg    Config
	priv   *rsa.PrivateKey
	stream *netio.Stream
	framer *svfw.MessageFramer
	log    *slog.Logger

	state      State
	playerName string
	appVersion appver.Version

	commitmentKey    [16]byte
	hasCommitmentKey bool
}

// NewSession wraps stream in the SVFW framers and installs the RSA cipher
// pair used for the handshake request; the handshake step then replaces it
// with AES-CWC for every later message.
func NewSession(cfg Config, priv *rsa.PrivateKey, stream *netio.Stream, log *slog.Logger) *Session {
	pf := svfw.NewPacketFramer(stream)
	mf := svfw.NewMessageFramer(pf)
	rsaCipher := cipher.NewRSACipher(priv)
	mf.SetCipher(cipher.Pair{Encrypt: rsaCipher, Decrypt: rsaCipher})

	return &Session{
		cfg:    cfg,
		priv:   priv,
		stream: stream,
		framer: mf,
		log:    log,
		state:  StateWaitingForHandshakeRequest,
	}
}

// Run drives the session to a terminal state, returning nil on a clean
// completion or disconnect and a non-nil error only for transient I/O
// failures that the caller should log (spec.md §7).
func (s *Session) Run() error {
	for s.state != StateComplete && s.state != StateDisconnected {
		msg, err := s.framer.Receive()
		if err != nil {
			s.state = StateDisconnected
			return fmt.Errorf("authsvc: receive: %w", err)
		}

		if err := s.dispatch(msg); err != nil {
			s.state = StateDisconnected
			if errors.Is(err, errProtocolViolation) {
				s.log.Warn("authentication protocol violation", "state", s.state, "error", err)
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Session) dispatch(msg svfw.Message) error {
	switch s.state {
	case StateWaitingForHandshakeRequest:
		return s.handleHandshake(msg)
	case StateWaitingForServiceStatusRequest:
		return s.handleServiceStatus(msg)
	case StateWaitingForKeyMaterial:
		return s.handleKeyMaterial(msg)
	case StateWaitingForTicket:
		return s.handleTicket(msg)
	default:
		// Complete/Disconnected never re-enter dispatch; Run's loop
		// condition guards against it. Any further message is a violation.
		return fmt.Errorf("%w: message received in terminal state %s", errProtocolViolation, s.state)
	}
}
