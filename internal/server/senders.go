package server

import (
	"github.com/goodieshq/linkrelay/internal/entity"
	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/rs/zerolog/log"
)

// Local senders originate messages at this node. All of them are silent
// while the node has no identity.

func (s *Server) localID() (uint8, bool) {
	id := s.registry.LocalID()
	return id, id != entity.Unassigned
}

// SendAck answers the master with code
func (s *Server) SendAck(code packets.ErrorCode) bool {
	id, ok := s.localID()
	if !ok {
		return false
	}
	return s.SubmitOutbound(link.Master, packets.NewAck(id, code))
}

// SendLog forwards text to the master, truncated to one frame
func (s *Server) SendLog(text string) bool {
	id, ok := s.localID()
	if !ok {
		return false
	}
	if len(text) > protocol.MTU {
		text = text[:protocol.MTU]
	}
	return s.SubmitOutbound(link.Master, &protocol.Message{Address: id, Opcode: protocol.OpLog, Payload: []byte(text)})
}

func (s *Server) SendTelemetry() bool {
	id, ok := s.localID()
	if !ok {
		return false
	}

	pkt := s.telemetry.Telemetry()
	if pkt == nil {
		return false
	}
	msg, err := packets.NewMessage(id, protocol.OpTelemetry, pkt)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode telemetry")
		return false
	}
	return s.SubmitOutbound(link.Master, msg)
}

func (s *Server) sendFrame(address uint8, op protocol.Opcode, frag protocol.Fragment, payload []byte) bool {
	if s.platform.Mode() != platform.ModeRunning {
		return false
	}
	if _, ok := s.localID(); !ok {
		return false
	}
	return s.SubmitOutbound(link.Master, &protocol.Message{
		Address:  address,
		Opcode:   op,
		Fragment: protocol.PackFragment(frag),
		Payload:  payload,
	})
}

// SendVideoFrame sends one fragment of a local camera frame
func (s *Server) SendVideoFrame(slot uint8, frag protocol.Fragment, payload []byte) bool {
	return s.sendFrame(slot<<4|s.registry.LocalID(), protocol.OpVideoFrame, frag, payload)
}

// SendExtVideoFrame sends one fragment of a frame received from downstream,
// keeping its original address
func (s *Server) SendExtVideoFrame(address uint8, frag protocol.Fragment, payload []byte) bool {
	return s.sendFrame(address, protocol.OpVideoFrame, frag, payload)
}

// SendAudioFrame sends one fragment of microphone audio
func (s *Server) SendAudioFrame(slot uint8, frag protocol.Fragment, payload []byte) bool {
	return s.sendFrame(slot<<4|s.registry.LocalID(), protocol.OpAudioMic, frag, payload)
}

// OnVideoFrame relays a frame reassembled from the slave link upstream,
// fragmented again to the frame size of the master link
func (s *Server) OnVideoFrame(address uint8, parity bool, frame []byte) {
	for index := 0; ; index++ {
		n := min(len(frame), protocol.MTU)
		frag := protocol.Fragment{
			EndOfFrame: n == len(frame),
			Parity:     parity,
			Index:      uint16(index),
		}
		if !s.SendExtVideoFrame(address, frag, append([]byte(nil), frame[:n]...)) {
			return
		}
		frame = frame[n:]
		if frag.EndOfFrame {
			return
		}
	}
}
