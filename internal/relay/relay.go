package relay

import (
	"errors"
	"time"

	"github.com/goodieshq/linkrelay/internal/actuator"
	"github.com/goodieshq/linkrelay/internal/entity"
	"github.com/goodieshq/linkrelay/internal/firmware"
	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/rs/zerolog/log"
)

// DefaultBootDelay leaves time for a Boot message to reach the slave before
// this node restarts
const DefaultBootDelay = 700 * time.Millisecond

// FirmwareHandler consumes firmware messages addressed to this node
type FirmwareHandler interface {
	Handle(msg *protocol.Message) error
}

type ConfigApplier interface {
	ApplyConfig(pkt *packets.PktConfig) error
}

type AudioSink interface {
	PlayAudio(data []byte)
}

type Rebooter interface {
	Reboot(delay time.Duration) bool
}

// Outbound enqueues a message on the link facing dir
type Outbound interface {
	SubmitOutbound(dir link.Direction, msg *protocol.Message) bool
}

type Opts struct {
	Registry  *entity.Registry
	Updater   FirmwareHandler
	Actuators actuator.Sink
	Audio     AudioSink
	Video     VideoSink
	Config    ConfigApplier
	Platform  Rebooter
	Outbound  Outbound
	BootDelay time.Duration
}

// Engine maps inbound messages to local actions and forwards
type Engine struct {
	registry  *entity.Registry
	updater   FirmwareHandler
	actuators actuator.Sink
	audio     AudioSink
	config    ConfigApplier
	platform  Rebooter
	out       Outbound
	bootDelay time.Duration
	video     *Reassembler
}

func NewEngine(opts Opts) *Engine {
	if opts.BootDelay == 0 {
		opts.BootDelay = DefaultBootDelay
	}
	if opts.Actuators == nil {
		opts.Actuators = actuator.NewLogSink()
	}

	return &Engine{
		registry:  opts.Registry,
		updater:   opts.Updater,
		actuators: opts.Actuators,
		audio:     opts.Audio,
		config:    opts.Config,
		platform:  opts.Platform,
		out:       opts.Outbound,
		bootDelay: opts.BootDelay,
		video:     NewReassembler(opts.Video, MaxVideoFrame),
	}
}

func (e *Engine) forward(effects []Effect, dir link.Direction, msg *protocol.Message, kind EffectKind) []Effect {
	if e.out == nil || !e.out.SubmitOutbound(dir, msg) {
		return append(effects, Effect{Kind: EffectDrop, Opcode: msg.Opcode, Direction: dir})
	}
	return append(effects, Effect{Kind: kind, Opcode: msg.Opcode, Direction: dir, Address: msg.Address})
}

func applied(effects []Effect, op protocol.Opcode, err error) []Effect {
	return append(effects, Effect{Kind: EffectApply, Opcode: op, Err: err})
}

// HandleMaster dispatches a message received from the master link
func (e *Engine) HandleMaster(msg *protocol.Message) []Effect {
	var effects []Effect

	switch msg.Opcode {
	case protocol.OpConfig:
		effects = applied(effects, msg.Opcode, e.applyConfig(msg))
		effects = e.forward(effects, link.Slave, msg, EffectForward)

	case protocol.OpAudioSpeaker:
		if e.audio != nil {
			e.audio.PlayAudio(msg.Payload)
		}
		effects = applied(effects, msg.Opcode, nil)

	case protocol.OpGcsState:
		effects = applied(effects, msg.Opcode, e.applyGcs(msg))
		effects = e.forward(effects, link.Slave, msg.WithAddress(msg.Address+1), EffectForwardReaddressed)

	case protocol.OpBoot:
		effects = e.forward(effects, link.Slave, msg, EffectForward)
		if e.platform != nil {
			e.platform.Reboot(e.bootDelay)
		}
		effects = applied(effects, msg.Opcode, nil)

	case protocol.OpFirmwareStart, protocol.OpFirmwarePacket, protocol.OpFirmwareEnd:
		if e.updater == nil || msg.Address != e.registry.LocalID() {
			return e.forward(effects, link.Slave, msg, EffectForward)
		}
		err := e.updater.Handle(msg)
		if errors.Is(err, firmware.ErrNoSession) {
			return e.forward(effects, link.Slave, msg, EffectForward)
		}
		if err != nil {
			log.Warn().Err(err).Str("opcode", msg.Opcode.String()).Msg("Firmware message not handled")
			return append(effects, Effect{Kind: EffectDrop, Opcode: msg.Opcode, Err: err})
		}
		effects = append(effects, Effect{Kind: EffectReply, Opcode: msg.Opcode, Direction: link.Master})

	case protocol.OpResetIMU:
		effects = applied(effects, msg.Opcode, e.actuators.ResetIMU())
		effects = e.forward(effects, link.Slave, msg, EffectForward)

	case protocol.OpCalibrate:
		effects = applied(effects, msg.Opcode, e.actuators.Calibrate())
		effects = e.forward(effects, link.Slave, msg, EffectForward)

	case protocol.OpDriveMode, protocol.OpSetTargets, protocol.OpSetPwms:
		// reserved

	default:
		log.Warn().Str("opcode", msg.Opcode.String()).Uint8("address", msg.Address).Msg("Unexpected opcode from master")
		effects = append(effects, Effect{Kind: EffectDrop, Opcode: msg.Opcode, Err: protocol.ErrUnknownOpcode})
	}

	for _, eff := range effects {
		if eff.Err != nil {
			log.Warn().Err(eff.Err).Str("opcode", msg.Opcode.String()).Msg("Failed to apply master message")
		}
	}
	return effects
}

// HandleSlave dispatches a message received from the slave link
func (e *Engine) HandleSlave(msg *protocol.Message) []Effect {
	switch msg.Opcode {
	case protocol.OpVideoFrame:
		e.video.Push(msg)
		return []Effect{{Kind: EffectApply, Opcode: msg.Opcode}}

	case protocol.OpAck, protocol.OpNack, protocol.OpBusy, protocol.OpLog,
		protocol.OpTelemetry, protocol.OpAudioMic, protocol.OpLidarFrame:
		return e.forward(nil, link.Master, msg, EffectForward)

	default:
		log.Warn().Str("opcode", msg.Opcode.String()).Uint8("address", msg.Address).Msg("Unexpected opcode from slave")
		return []Effect{{Kind: EffectDrop, Opcode: msg.Opcode, Err: protocol.ErrUnknownOpcode}}
	}
}

func (e *Engine) applyConfig(msg *protocol.Message) error {
	pkt, err := packets.UnmarshalConfig(msg.Payload)
	if err != nil {
		return err
	}
	if e.config == nil {
		return nil
	}
	return e.config.ApplyConfig(pkt)
}

func (e *Engine) applyGcs(msg *protocol.Message) error {
	pkt, err := packets.UnmarshalGcsState(msg.Payload)
	if err != nil {
		return err
	}

	switch state := pkt.(type) {
	case *packets.GcsNoneState:
		return e.actuators.Apply(actuator.Neutral())

	case *packets.Gcs101State:
		return e.actuators.Apply(actuator.State{
			Drive:             state.RightStickY,
			Yaw:               state.LeftStickX,
			Pitch:             state.LeftStickY,
			AutoNeutralJoints: state.LeftLowButton1,
			DrivePulse:        state.LeftLowButton2,
		})

	case *packets.GcsDS4State:
		err := e.actuators.Apply(actuator.State{
			Drive:             state.RightStickY,
			Yaw:               state.LeftStickX,
			Pitch:             state.LeftStickY,
			AutoNeutralJoints: state.X,
			DrivePulse:        state.L2,
			FlipMode:          state.L1,
		})
		return errors.Join(
			err,
			e.actuators.SetFlashlights(state.FlashLight),
			e.actuators.ToggleCamera(state.ArrowLeft),
		)
	}
	return nil
}

// VideoAborted returns the number of video frames dropped by reassembly
func (e *Engine) VideoAborted() uint64 {
	return e.video.Aborted()
}
