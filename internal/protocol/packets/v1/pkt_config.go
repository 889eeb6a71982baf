package packets

import (
	"fmt"

	"github.com/goodieshq/linkrelay/internal/protocol"
)

// ConfigType selects the setting changed by a CONFIG message
type ConfigType uint8

const (
	ConfigFlippedDrive ConfigType = 0 // value: 1 byte, non-zero reverses the drive
	ConfigCalibration  ConfigType = 1 // extension, value: 1 byte index (1-based) and 2 bytes LE value
)

// PktConfig is the payload of a CONFIG message
type PktConfig struct {
	Type  ConfigType
	Value []byte
}

func (p *PktConfig) Marshal() ([]byte, error) {
	buf := make([]byte, 1+len(p.Value))
	buf[0] = byte(p.Type)
	copy(buf[1:], p.Value)
	return buf, nil
}

func UnmarshalConfig(data []byte) (*PktConfig, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: config payload of %d bytes", protocol.ErrInvalidPayload, len(data))
	}

	pkt := &PktConfig{
		Type:  ConfigType(data[0]),
		Value: make([]byte, len(data)-1),
	}
	copy(pkt.Value, data[1:])

	switch pkt.Type {
	case ConfigFlippedDrive:
		return pkt, nil
	case ConfigCalibration:
		if len(pkt.Value) != 3 {
			return nil, fmt.Errorf("%w: calibration value of %d bytes", protocol.ErrInvalidPayload, len(pkt.Value))
		}
		return pkt, nil
	default:
		return nil, fmt.Errorf("%w: config type %d", protocol.ErrUnknownType, pkt.Type)
	}
}

// FlippedDrive returns the flag carried by a ConfigFlippedDrive payload
func (p *PktConfig) FlippedDrive() bool {
	return len(p.Value) > 0 && p.Value[0] != 0
}

// Calibration returns the index and value carried by a ConfigCalibration payload
func (p *PktConfig) Calibration() (uint8, uint16) {
	if len(p.Value) < 3 {
		return 0, 0
	}
	return p.Value[0], le.Uint16(p.Value[1:3])
}

func NewConfigFlippedDrive(flipped bool) *PktConfig {
	v := byte(0)
	if flipped {
		v = 1
	}
	return &PktConfig{Type: ConfigFlippedDrive, Value: []byte{v}}
}

func NewConfigCalibration(index uint8, value uint16) *PktConfig {
	buf := make([]byte, 3)
	buf[0] = index
	le.PutUint16(buf[1:3], value)
	return &PktConfig{Type: ConfigCalibration, Value: buf}
}
