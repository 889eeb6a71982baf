package server

import (
	"net/netip"
	"time"

	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/relay"
	"github.com/rs/zerolog/log"
)

// HandleInbound decodes one datagram received on dir and dispatches it.
// Malformed frames and frames from a second sender are counted and dropped.
func (s *Server) HandleInbound(dir link.Direction, data []byte, src netip.AddrPort) []relay.Effect {
	l := s.link(dir)

	msg, err := protocol.Decode(data)
	if err != nil {
		l.stats.AddDecodeError(err)
		log.Debug().Err(err).Str("link", dir.String()).Str("remote", src.String()).Msg("Dropping malformed frame")
		return nil
	}

	now := s.platform.Now()
	if !l.tracker.OnFrame(src, now) {
		l.stats.AddUnauthorized()
		return nil
	}
	l.stats.AddFrameRcvd(len(data))

	if dir == link.Master {
		s.lastActive.Store(int64(now))
		if msg.Opcode == protocol.OpGcsState {
			s.registry.SetLocalID(msg.Address)
		}
		return s.engine.HandleMaster(msg)
	}

	if msg.Opcode == protocol.OpTelemetry && s.registry.ObserveDownstream(msg.Address) {
		log.Info().Uint8("unit", msg.Address).Uint8("max_id", s.registry.MaxID()).Msg("Downstream unit discovered")
	}
	return s.engine.HandleSlave(msg)
}

// CheckLink disconnects dir when its peer went silent and runs the fail-safe
// of the link. It reports whether the link was disconnected by this call.
func (s *Server) CheckLink(dir link.Direction) bool {
	l := s.link(dir)
	if !l.tracker.CheckTimeout(s.platform.Now(), s.connTimeout) {
		return false
	}

	if dir == link.Master {
		if err := s.actuators.EmergencyStop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop actuators")
		}
		s.registry.ResetLocal()
	} else {
		log.Info().Uint8("max_id", s.registry.MaxID()).Msg("Downstream units lost")
		s.registry.ResetDownstream()
	}
	return true
}

// SubmitOutbound enqueues msg toward dir without blocking. Messages for the
// master are refused while no master is connected.
func (s *Server) SubmitOutbound(dir link.Direction, msg *protocol.Message) bool {
	l := s.link(dir)
	if dir == link.Master && !l.tracker.Connected() {
		return false
	}
	if !l.out.Push(msg) {
		l.stats.AddQueueDrop()
		return false
	}
	return true
}

// Pending returns the number of messages queued toward dir
func (s *Server) Pending(dir link.Direction) int {
	return s.link(dir).out.Len()
}

// Now is the node clock, exposed for diagnostics
func (s *Server) Now() time.Duration {
	return s.platform.Now()
}
