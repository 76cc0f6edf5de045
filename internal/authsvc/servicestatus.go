package authsvc

import (
	"fmt"

	"github.com/wraithcore/ac5gate/internal/appver"
	"github.com/wraithcore/ac5gate/internal/protocolmsg"
	"github.com/wraithcore/ac5gate/internal/svfw"
)

func (s *Session) handleServiceStatus(msg svfw.Message) error {
	if msg.Type != svfw.MessageTypeGetServiceStatus {
		return fmt.Errorf("%w: expected GetServiceStatus, got %v", errProtocolViolation, msg.Type)
	}

	req, err := protocolmsg.DecodeGetServiceStatusRequest(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errProtocolViolation, err)
	}
	s.playerName = req.PlayerName
	s.appVersion = req.AppVersion

	if !req.AppVersion.InRange(s.cfg.AppVersionMin, s.cfg.AppVersionMax) {
		resp := protocolmsg.GetServiceStatusResponse{
			ID:         0,
			PlayerName: "",
			Unk3:       false,
			AppVersion: appver.FromUint64(0),
		}
		if err := s.framer.Send(svfw.MessageTypeGetServiceStatus, msg.Index, resp.Encode()); err != nil {
			return fmt.Errorf("authsvc: sending service-status rejection: %w", err)
		}
		s.state = StateDisconnected
		s.log.Info("rejected service status: app version out of range",
			"player_name", req.PlayerName, "app_version", req.AppVersion)
		return nil
	}

	resp := protocolmsg.GetServiceStatusResponse{
		ID:         2,
		PlayerName: "",
		Unk3:       false,
		AppVersion: req.AppVersion,
	}
	if err := s.framer.Send(svfw.MessageTypeGetServiceStatus, msg.Index, resp.Encode()); err != nil {
		return fmt.Errorf("authsvc: sending service-status reply: %w", err)
	}
	s.state = StateWaitingForKeyMaterial
	return nil
}
