// Package gamesvc wires the UDP channel (internal/udpchan) to the FSDP
// reliable-datagram state machine (internal/fsdp) into the single
// listener spec.md §1 describes as "must eventually accept UDP
// game-session packets": the parts of this spec a real game server would
// extend, but whose gameplay payload is out of scope (spec.md §1
// Non-goals).
package gamesvc

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wraithcore/ac5gate/internal/fsdp"
	"github.com/wraithcore/ac5gate/internal/udpchan"
)

// Listener owns one UDP socket, demuxing datagrams per peer and driving
// each peer's FSDP session (spec.md §4.7/§4.8).
type Listener struct {
	channel *udpchan.Channel
	params  fsdp.Params
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[*udpchan.Peer]*peerSession
}

type peerSession struct {
	session      *fsdp.Session
	sawFirstPkt  bool
	peer         *udpchan.Peer
}

// NewListener wraps conn (typically *net.UDPConn) for FSDP session
// handling.
func NewListener(conn net.PacketConn, params fsdp.Params, log *slog.Logger) *Listener {
	return &Listener{
		channel:  udpchan.New(conn),
		params:   params,
		log:      log,
		sessions: make(map[*udpchan.Peer]*peerSession),
	}
}

// ServeOnce reads and processes a single datagram, using buf as scratch
// space. It returns any application payloads delivered in order for this
// peer's session. Callers loop this from a receive task per spec.md §5.
func (l *Listener) ServeOnce(buf []byte) ([][]byte, error) {
	plaintext, peer, addr, err := l.channel.ReadFrom(buf)
	if err != nil {
		return nil, err
	}

	sess := l.sessionFor(peer)
	if !sess.sawFirstPkt {
		plaintext = fsdp.StripPrologue(plaintext)
		sess.sawFirstPkt = true
	}

	now := time.Now()
	toSend, delivered, err := sess.session.HandleIncoming(now, plaintext)
	if err != nil {
		l.log.Warn("fsdp protocol violation", "remote", addr, "error", err)
		return nil, err
	}
	for _, out := range toSend {
		if sendErr := l.channel.SendTo(peer, out.Payload); sendErr != nil {
			l.log.Warn("fsdp send failed", "remote", addr, "error", sendErr)
		}
	}
	if sess.session.State == fsdp.StateClosed {
		l.forget(peer)
	}
	return delivered, nil
}

// TickAll drives retransmission, heartbeat, and close-timeout for every
// live peer session (spec.md §4.8 "Retransmission, heartbeat cadence,
// and close-timeout"). Called on the shared periodic timer (spec.md §5
// "liveness poll task").
func (l *Listener) TickAll(now time.Time) {
	l.mu.Lock()
	peers := make([]*peerSession, 0, len(l.sessions))
	for _, ps := range l.sessions {
		peers = append(peers, ps)
	}
	l.mu.Unlock()

	for _, ps := range peers {
		for _, out := range ps.session.Tick(now) {
			if err := l.channel.SendTo(ps.peer, out.Payload); err != nil {
				l.log.Warn("fsdp tick send failed", "error", err)
			}
		}
		if ps.session.State == fsdp.StateClosed {
			l.forget(ps.peer)
		}
	}
}

func (l *Listener) sessionFor(peer *udpchan.Peer) *peerSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.sessions[peer]
	if !ok {
		ps = &peerSession{session: fsdp.NewSession(l.params), peer: peer}
		l.sessions[peer] = ps
	}
	return ps
}

func (l *Listener) forget(peer *udpchan.Peer) {
	l.mu.Lock()
	delete(l.sessions, peer)
	l.mu.Unlock()
	l.channel.Forget(peer.Addr)
}
