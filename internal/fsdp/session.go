package fsdp

import (
	"fmt"
	"time"
)

// State is one phase of a per-peer FSDP session (spec.md §4.8).
type State int

const (
	StateListening State = iota
	StateConnecting
	StateSynReceived
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateSynReceived:
		return "syn_received"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrUnknownOpcode marks a session-fatal condition: an opcode this
// implementation does not recognize (spec.md §4.8 "Unknown: Fatal for the
// session").
var ErrUnknownOpcode = fmt.Errorf("fsdp: unknown opcode")

// pendingSend is one in-flight sequenced packet awaiting acknowledgment,
// kept so Tick can retransmit it after RTO.
type pendingSend struct {
	seq        uint16
	opcode     Opcode
	payload    []byte
	lastSentAt time.Time
}

// Params tunes the retransmission, heartbeat, and close-grace timers
// (SPEC_FULL.md §7 "FSDP retransmission/heartbeat knobs" — made
// configurable rather than fixed, per a real deployment's need to tune
// against observed client round-trip times).
type Params struct {
	RTO             time.Duration
	HeartbeatPeriod time.Duration
	CloseGrace      time.Duration // multiple of RTO, e.g. 2*RTO
}

// DefaultParams are the spec's suggested fixed defaults (spec.md §4.8).
func DefaultParams() Params {
	rto := 500 * time.Millisecond
	return Params{
		RTO:             rto,
		HeartbeatPeriod: 5 * time.Second,
		CloseGrace:      2 * rto,
	}
}

// Session is one peer's FSDP reliable-datagram state machine (spec.md
// §3 "Auth session state" analog for the UDP path, §4.8 state table).
// It is driven synchronously: HandleIncoming is called once per received
// datagram and Tick once per timer cadence, both from the same owning
// goroutine (spec.md §5 "all I/O... no other operation may suspend").
type Session struct {
	Params Params

	State State

	localSeq       uint16
	localSeqAcked  uint16
	remoteSeq      uint16
	remoteSeqAcked uint16

	lastPeerLocalAck  uint16
	lastPeerRemoteAck uint16

	lastAckSendTime time.Time
	lastRecvTime    time.Time
	closeTime       time.Time

	pending []pendingSend
}

// NewSession creates a session in the Listening state, the passive-open
// starting point before a SYN arrives.
func NewSession(params Params) *Session {
	return &Session{Params: params, State: StateListening}
}

// Outbound is one packet the caller must transmit to the peer as a
// result of handling an incoming datagram or a timer tick.
type Outbound struct {
	Opcode  Opcode
	Payload []byte
}

// HandleIncoming processes one raw (header+payload) FSDP datagram
// already stripped of any connection prologue. It returns any packets
// the caller must send in reply, plus any application payload delivered
// in order to the caller (DAT/DAT_ACK bodies).
func (s *Session) HandleIncoming(now time.Time, raw []byte) (toSend []Outbound, delivered [][]byte, err error) {
	hdr, payload, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	if !hdr.Opcode.IsKnown() {
		return nil, nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, byte(hdr.Opcode))
	}
	s.lastRecvTime = now

	switch hdr.Opcode {
	case OpSyn:
		return s.handleSyn(hdr), nil, nil
	case OpSynAck:
		return s.handleSynAck(hdr), nil, nil
	case OpAck, OpRAck:
		s.applyAck(hdr)
		return nil, nil, nil
	case OpDat:
		toSend, delivered = s.handleDat(hdr, payload, OpDatAck)
		return toSend, delivered, nil
	case OpDatAck:
		s.applyAck(hdr)
		toSend, delivered = s.handleDat(hdr, payload, OpAck)
		return toSend, delivered, nil
	case OpHbt:
		return nil, nil, nil
	case OpFin:
		s.State = StateClosing
		s.closeTime = now
		finAck := s.stampAndSend(Outbound{Opcode: OpFinAck}, hdr.LocalAck)
		return []Outbound{finAck}, nil, nil
	case OpFinAck:
		s.State = StateClosing
		if s.closeTime.IsZero() {
			s.closeTime = now
		}
		return nil, nil, nil
	case OpRst:
		s.reset()
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, byte(hdr.Opcode))
	}
}

// handleSyn is the passive-open side: save the peer's local sequence as
// our remote_seq, reply with SYN_ACK and a separate ACK carrying the same
// remote value, and bump our own local_seq (spec.md §4.8 SYN row, §9
// "SYN_ACK manually bumps local_seq despite not being in the sequenced
// set").
func (s *Session) handleSyn(hdr Header) []Outbound {
	s.remoteSeq = hdr.LocalAck
	synAck := Outbound{Opcode: OpSynAck, Payload: nil}
	ack := Outbound{Opcode: OpAck, Payload: nil}
	out := []Outbound{
		s.stampAndSend(synAck, hdr.LocalAck),
		s.stampAndSend(ack, hdr.LocalAck),
	}
	s.localSeq = nextSeq(s.localSeq)
	s.State = StateSynReceived
	return out
}

// handleSynAck mirrors handleSyn for the active-open side: the same
// bump-and-ack semantics apply (spec.md §4.8 SYN_ACK row).
func (s *Session) handleSynAck(hdr Header) []Outbound {
	s.remoteSeq = hdr.LocalAck
	s.applyAck(hdr)
	ack := s.stampAndSend(Outbound{Opcode: OpAck}, hdr.LocalAck)
	s.localSeq = nextSeq(s.localSeq)
	s.State = StateEstablished
	return []Outbound{ack}
}

// stampAndSend fills in an outbound control packet's header fields: our
// local_seq as the LocalAck we advertise, and remoteAckValue as the
// RemoteAck we're acknowledging.
func (s *Session) stampAndSend(o Outbound, remoteAckValue uint16) Outbound {
	hdr := Header{LocalAck: s.localSeq, RemoteAck: remoteAckValue, Opcode: o.Opcode}
	return Outbound{Opcode: o.Opcode, Payload: Encode(hdr, o.Payload)}
}

// applyAck updates remote_seq_acked if the peer's carried RemoteAck
// value advances it (spec.md §4.8 ACK row), and records the peer's
// advertised sequence numbers for bookkeeping.
func (s *Session) applyAck(hdr Header) {
	if seqAdvances(s.remoteSeqAcked, hdr.RemoteAck) {
		s.remoteSeqAcked = hdr.RemoteAck
		s.pruneAcked(hdr.RemoteAck)
	}
	s.lastPeerLocalAck = hdr.LocalAck
	s.lastPeerRemoteAck = hdr.RemoteAck
}

// pruneAcked drops pending retransmit entries the peer has now
// acknowledged.
func (s *Session) pruneAcked(ackedThrough uint16) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if seqPrecedes(p.seq, ackedThrough) || p.seq == ackedThrough {
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
}

// handleDat delivers an in-order payload and acknowledges the peer's
// local sequence with replyOpcode (DAT_ACK for a plain DAT, ACK for a
// DAT_ACK per spec.md §4.8: "DAT_ACK: Treated as DAT-with-reply; also
// ACKs our in-flight DAT").
func (s *Session) handleDat(hdr Header, payload []byte, replyOpcode Opcode) ([]Outbound, [][]byte) {
	var delivered [][]byte
	if hdr.LocalAck == s.remoteSeq || seqPrecedes(s.remoteSeq, hdr.LocalAck) {
		delivered = append(delivered, payload)
		s.remoteSeq = nextSeq(hdr.LocalAck)
	}
	reply := s.stampAndSend(Outbound{Opcode: replyOpcode}, hdr.LocalAck)
	return []Outbound{reply}, delivered
}

// SendDat enqueues an application payload for transmission as a
// sequenced DAT packet, advancing local_seq and recording the packet for
// retransmission until acked (spec.md §9 "Sequenced-opcode
// classification": DAT/DAT_ACK/FIN_ACK advance local_seq only when
// actually transmitted with a payload commitment).
func (s *Session) SendDat(now time.Time, payload []byte) Outbound {
	seq := s.localSeq
	out := s.stampAndSend(Outbound{Opcode: OpDat, Payload: payload}, s.remoteSeq)
	s.pending = append(s.pending, pendingSend{seq: seq, opcode: OpDat, payload: out.Payload, lastSentAt: now})
	s.localSeq = nextSeq(s.localSeq)
	return out
}

// SendFin begins an active close: FIN is not itself sequenced, but the
// session moves to Closing and starts its close-grace countdown once the
// peer's FIN_ACK arrives (handled in HandleIncoming).
func (s *Session) SendFin(now time.Time) Outbound {
	s.State = StateClosing
	return Outbound{Opcode: OpFin, Payload: Encode(Header{LocalAck: s.localSeq, RemoteAck: s.remoteSeq, Opcode: OpFin}, nil)}
}

// Tick drives time-based behavior: retransmitting unacked sequenced
// packets after RTO, sending a heartbeat when idle, and finalizing a
// Closing session into Closed after the close-grace period (spec.md
// §4.8 "Retransmission, heartbeat cadence, and close-timeout").
func (s *Session) Tick(now time.Time) []Outbound {
	var out []Outbound

	if s.State == StateClosing {
		if !s.closeTime.IsZero() && now.Sub(s.closeTime) >= s.Params.CloseGrace {
			s.State = StateClosed
		}
		return out
	}

	for i := range s.pending {
		p := &s.pending[i]
		if now.Sub(p.lastSentAt) >= s.Params.RTO {
			out = append(out, Outbound{Opcode: p.opcode, Payload: p.payload})
			p.lastSentAt = now
		}
	}

	if s.State == StateEstablished && len(s.pending) == 0 &&
		(s.lastAckSendTime.IsZero() || now.Sub(s.lastAckSendTime) >= s.Params.HeartbeatPeriod) {
		hbt := s.stampAndSend(Outbound{Opcode: OpHbt}, s.remoteSeq)
		out = append(out, hbt)
		s.lastAckSendTime = now
	}

	return out
}

// reset restores a session to its zero state (spec.md §4.8 RST row:
// "Full reset of state record"). RST is fatal to this peer's session
// state, not to the listener (spec.md §9 table: "RST is fatal-to-session,
// not fatal-to-peer" — the caller is expected to let the peer re-SYN).
func (s *Session) reset() {
	*s = Session{Params: s.Params, State: StateListening}
}
