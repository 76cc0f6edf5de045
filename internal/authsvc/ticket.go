package authsvc

import (
	"crypto/subtle"
	"fmt"
	"net"
	"time"

	"github.com/wraithcore/ac5gate/internal/netio"
	"github.com/wraithcore/ac5gate/internal/svfw"
	"github.com/wraithcore/ac5gate/internal/ticket"
)

func (s *Session) handleTicket(msg svfw.Message) error {
	// The commitment key is single-use regardless of how step 4 turns out
	// (spec.md §9 "zero the commitment after Step 4 regardless of
	// outcome").
	defer func() {
		s.commitmentKey = [16]byte{}
		s.hasCommitmentKey = false
	}()

	if msg.Type != svfw.MessageTypeTicket {
		return fmt.Errorf("%w: expected Ticket, got %v", errProtocolViolation, msg.Type)
	}

	tk, err := ticket.Parse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: parsing ticket: %v", errProtocolViolation, err)
	}

	if tk.IsExpired(time.Now()) {
		s.state = StateDisconnected
		s.log.Warn("ticket rejected: expired", "expire_date", tk.Userdata.ExpireDate)
		return nil
	}

	if !tk.IsSigned() {
		s.log.Warn("ticket unsigned, continuing anyway", "user_id", tk.Userdata.UserID)
	}

	commitment, err := tk.CommitmentKey()
	if err != nil {
		return fmt.Errorf("%w: %v", errProtocolViolation, err)
	}
	if !s.hasCommitmentKey || subtle.ConstantTimeCompare(commitment, s.commitmentKey[:]) != 1 {
		s.state = StateDisconnected
		s.log.Warn("ticket rejected: cookie does not match committed key", "user_id", tk.Userdata.UserID)
		return nil
	}

	host, err := s.stream.RemoteHost()
	if err != nil {
		return fmt.Errorf("authsvc: resolving peer address: %w", err)
	}
	address := s.cfg.PublicHostname
	if netio.IsPrivateIP(host) {
		address = s.cfg.PrivateHostname
	}

	resp, err := newConnectGameServerPortIdResponse(address, s.cfg.GamePort)
	if err != nil {
		return fmt.Errorf("%w: %v", errProtocolViolation, err)
	}

	if err := s.framer.Send(svfw.MessageTypeReply, msg.Index, resp.Encode()); err != nil {
		return fmt.Errorf("authsvc: sending game-server response: %w", err)
	}

	s.state = StateComplete
	s.log.Info("authentication complete", "user_id", tk.Userdata.UserID, "online_id", tk.Userdata.OnlineID)
	return nil
}

// connectGameServerPortIdResponse is the 56-byte, all-big-endian-u32
// reply that issues the game-server connection credential (spec.md §4.6
// step 4). Every field past game_port is a fixed magic constant observed
// in captures; per spec.md §9 these are documented, not parameterized.
type connectGameServerPortIdResponse struct {
	AuthToken uint32
	Address   uint32
	GamePort  uint32
	Padding   uint32
	SendBuf   uint32
	RecvBuf   uint32
	Unk1      uint32
	Unk2      uint32
	Unk3      uint32
	Unk4      uint32
	Unk5      uint32
	Unk6      uint32
	Unk7      uint32
	Unk8      uint32
}

func newConnectGameServerPortIdResponse(hostname string, gamePort uint16) (connectGameServerPortIdResponse, error) {
	ip := net.ParseIP(hostname)
	var addr uint32
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			addr = uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
		}
	} else if hostname != "" {
		resolved, err := net.ResolveIPAddr("ip4", hostname)
		if err != nil {
			return connectGameServerPortIdResponse{}, fmt.Errorf("resolving game-server hostname %q: %w", hostname, err)
		}
		v4 := resolved.IP.To4()
		addr = uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
	}

	return connectGameServerPortIdResponse{
		AuthToken: 0,
		Address:   addr,
		GamePort:  uint32(gamePort),
		Padding:   0,
		SendBuf:   0x8000,
		RecvBuf:   0x8000,
		Unk1:      0xA000,
		Unk2:      0xA000,
		Unk3:      0x80,
		Unk4:      0x8000,
		Unk5:      0xA000,
		Unk6:      0x493E0,
		Unk7:      0x61A8,
		Unk8:      0xC,
	}, nil
}

func (r connectGameServerPortIdResponse) Encode() []byte {
	fields := [14]uint32{
		r.AuthToken, r.Address, r.GamePort, r.Padding, r.SendBuf, r.RecvBuf,
		r.Unk1, r.Unk2, r.Unk3, r.Unk4, r.Unk5, r.Unk6, r.Unk7, r.Unk8,
	}
	out := make([]byte, 0, len(fields)*4)
	for _, v := range fields {
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out
}
