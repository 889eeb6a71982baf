package actuator

import (
	"fmt"

	"github.com/brutella/can"
	"github.com/rs/zerolog/log"
)

// Command byte of an actuator frame
const (
	CmdMotion      uint8 = 0x01
	CmdStop        uint8 = 0x02
	CmdFlashlights uint8 = 0x03
	CmdCamera      uint8 = 0x04
	CmdCalibrate   uint8 = 0x05
	CmdResetIMU    uint8 = 0x06
)

// Flag bits of a motion frame
const (
	FlagAutoNeutral uint8 = 1 << 0
	FlagDrivePulse  uint8 = 1 << 1
	FlagFlipMode    uint8 = 1 << 2
)

// Publisher sends frames on a CAN bus. *can.Bus implements it.
type Publisher interface {
	Publish(frame can.Frame) error
}

// CANSink forwards actuator commands to the motor controllers as CAN frames
// with a single identifier. Byte 0 is the command, the rest its arguments.
type CANSink struct {
	bus Publisher
	id  uint32
}

func NewCANSink(bus Publisher, id uint32) *CANSink {
	return &CANSink{bus: bus, id: id}
}

// OpenCANSink connects to the socketcan interface name and starts the bus
func OpenCANSink(name string, id uint32) (*CANSink, func() error, error) {
	bus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open can interface %s: %w", name, err)
	}

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			log.Error().Err(err).Str("interface", name).Msg("CAN bus stopped")
		}
	}()

	log.Info().Str("interface", name).Uint32("id", id).Msg("CAN actuator bus opened")
	return NewCANSink(bus, id), bus.Disconnect, nil
}

func (s *CANSink) send(cmd uint8, args ...uint8) error {
	frame := can.Frame{
		ID:     s.id,
		Length: uint8(1 + len(args)),
	}
	frame.Data[0] = cmd
	copy(frame.Data[1:], args)

	if err := s.bus.Publish(frame); err != nil {
		return fmt.Errorf("failed to publish actuator frame: %w", err)
	}
	return nil
}

func motionFlags(state State) uint8 {
	var flags uint8
	if state.AutoNeutralJoints {
		flags |= FlagAutoNeutral
	}
	if state.DrivePulse {
		flags |= FlagDrivePulse
	}
	if state.FlipMode {
		flags |= FlagFlipMode
	}
	return flags
}

func (s *CANSink) Apply(state State) error {
	return s.send(CmdMotion, uint8(state.Drive), uint8(state.Yaw), uint8(state.Pitch), motionFlags(state))
}

func (s *CANSink) EmergencyStop() error {
	return s.send(CmdStop, 0, 0, 0, 0)
}

func (s *CANSink) SetFlashlights(level int8) error {
	return s.send(CmdFlashlights, uint8(level))
}

// ToggleCamera only emits a frame while the button is held
func (s *CANSink) ToggleCamera(pressed bool) error {
	if !pressed {
		return nil
	}
	return s.send(CmdCamera)
}

func (s *CANSink) Calibrate() error {
	return s.send(CmdCalibrate)
}

func (s *CANSink) ResetIMU() error {
	return s.send(CmdResetIMU)
}
