package protocol

import "encoding/binary"

// Sentinel byte at the start of each frame
const Preamble = 0xAA

const (
	MTU        = 1200           // maximum payload size
	HeaderSize = 7              // preamble, address, opcode, length, fragment
	Overhead   = HeaderSize + 1 // header plus trailing checksum
	BufferSize = MTU + Overhead // largest frame on the wire
)

var le = binary.LittleEndian

// Opcode identifies the kind of message carried by a frame
type Opcode uint8

const (
	OpGcsState       Opcode = 0   // control state from the ground station
	OpConfig         Opcode = 1   // persistent configuration change
	OpTelemetry      Opcode = 2   // unit telemetry, travels upstream
	OpVideoFrame     Opcode = 3   // fragmented video frame
	OpAudioSpeaker   Opcode = 4   // audio toward the unit speaker
	OpAudioMic       Opcode = 5   // fragmented microphone audio, travels upstream
	OpLidarFrame     Opcode = 6   // fragmented lidar frame, travels upstream
	OpBoot           Opcode = 7   // reboot request
	OpFirmwareStart  Opcode = 8   // begin a firmware transfer
	OpFirmwarePacket Opcode = 9   // one page of firmware
	OpFirmwareEnd    Opcode = 10  // finish a firmware transfer
	OpDriveMode      Opcode = 11  // reserved
	OpSetTargets     Opcode = 12  // reserved
	OpSetPwms        Opcode = 13  // reserved
	OpResetIMU       Opcode = 14  // reset the inertial unit
	OpCalibrate      Opcode = 15  // calibrate all motors
	OpLog            Opcode = 252 // text log line, travels upstream
	OpBusy           Opcode = 253
	OpNack           Opcode = 254
	OpAck            Opcode = 255
)

func (o Opcode) String() string {
	switch o {
	case OpGcsState:
		return "GCS_STATE"
	case OpConfig:
		return "CONFIG"
	case OpTelemetry:
		return "TELEMETRY"
	case OpVideoFrame:
		return "VIDEO_FRAME"
	case OpAudioSpeaker:
		return "AUDIO_SPK"
	case OpAudioMic:
		return "AUDIO_MIC"
	case OpLidarFrame:
		return "LIDAR_FRAME"
	case OpBoot:
		return "BOOT"
	case OpFirmwareStart:
		return "FW_START"
	case OpFirmwarePacket:
		return "FW_PACKET"
	case OpFirmwareEnd:
		return "FW_END"
	case OpDriveMode:
		return "DRIVE_MODE"
	case OpSetTargets:
		return "SET_TARGETS"
	case OpSetPwms:
		return "SET_PWMS"
	case OpResetIMU:
		return "RESET_IMU"
	case OpCalibrate:
		return "CALIBRATE"
	case OpLog:
		return "LOG"
	case OpBusy:
		return "BUSY"
	case OpNack:
		return "NACK"
	case OpAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether the opcode belongs to the protocol
func (o Opcode) Valid() bool {
	return o <= OpCalibrate || o >= OpLog
}

// IsFrame reports whether the fragment field carries packed frame bits
func (o Opcode) IsFrame() bool {
	switch o {
	case OpVideoFrame, OpAudioMic, OpLidarFrame:
		return true
	default:
		return false
	}
}

// Message is one decoded protocol frame
type Message struct {
	Address  uint8  // target or source entity, slot in the high nibble for frame opcodes
	Opcode   Opcode // message kind
	Fragment uint16 // sequence counter or packed Fragment for frame opcodes
	Payload  []byte // at most MTU bytes
}

// Clone returns a deep copy of the message
func (m *Message) Clone() *Message {
	c := *m
	if m.Payload != nil {
		c.Payload = make([]byte, len(m.Payload))
		copy(c.Payload, m.Payload)
	}
	return &c
}

// WithAddress returns a copy of the message with a different address
func (m *Message) WithAddress(address uint8) *Message {
	c := m.Clone()
	c.Address = address
	return c
}

// Slot returns the slot index packed into the address of frame opcodes
func (m *Message) Slot() uint8 {
	return m.Address >> 4
}

// Entity returns the entity id packed into the address of frame opcodes
func (m *Message) Entity() uint8 {
	return m.Address & 0x0F
}
