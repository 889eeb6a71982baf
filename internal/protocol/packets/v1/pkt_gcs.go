package packets

import (
	"fmt"

	"github.com/goodieshq/linkrelay/internal/protocol"
)

// GcsType selects the controller layout of a GCS state payload
type GcsType uint8

const (
	GcsNone GcsType = 0 // no controller, actuators go neutral
	Gcs101  GcsType = 1 // 101 hand controller
	GcsDS4  GcsType = 2 // DualShock 4 gamepad
)

func (g GcsType) String() string {
	switch g {
	case GcsNone:
		return "NONE"
	case Gcs101:
		return "101"
	case GcsDS4:
		return "DS4"
	default:
		return "UNKNOWN"
	}
}

const (
	PktGcs101Size = 1 + 2 + 7
	PktGcsDS4Size = 1 + 2 + 5
)

// Gcs101State is the state of a 101 hand controller
type Gcs101State struct {
	LeftFrontButton   bool
	RightFrontButton  bool
	LeftRearButton    bool
	RightRearButton   bool
	RightSideButton   bool
	BandToggleSwitch1 bool
	BandToggleSwitch2 bool
	LeftLowButton1    bool
	LeftLowButton2    bool
	LeftLowButton3    bool
	RightLowButton1   bool
	RightLowButton2   bool
	RightLowButton3   bool

	LeftStickY         int8
	LeftStickX         int8
	RightStickY        int8
	RightStickX        int8
	LeftRollerSwitch1  int8
	LeftRollerSwitch2  int8
	RightRollerSwitch1 int8
}

// GcsDS4State is the state of a DualShock 4 gamepad
type GcsDS4State struct {
	Triangle   bool
	Circle     bool
	Square     bool
	X          bool
	ArrowUp    bool
	ArrowRight bool
	ArrowDown  bool
	ArrowLeft  bool
	Center     bool
	Share      bool
	Options    bool
	R1         bool
	L1         bool
	R2         bool
	L2         bool

	LeftStickY  int8
	LeftStickX  int8
	RightStickY int8
	RightStickX int8
	FlashLight  int8
}

// packBits packs flags LSB first into a 16-bit field
func packBits(flags ...bool) uint16 {
	var v uint16
	for i, f := range flags {
		if f {
			v |= 1 << i
		}
	}
	return v
}

func bit(v uint16, i int) bool {
	return v&(1<<i) != 0
}

func (s *Gcs101State) Marshal() ([]byte, error) {
	buf := make([]byte, PktGcs101Size)
	buf[0] = byte(Gcs101)
	le.PutUint16(buf[1:3], packBits(
		s.LeftFrontButton, s.RightFrontButton, s.LeftRearButton, s.RightRearButton,
		s.RightSideButton, s.BandToggleSwitch1, s.BandToggleSwitch2,
		s.LeftLowButton1, s.LeftLowButton2, s.LeftLowButton3,
		s.RightLowButton1, s.RightLowButton2, s.RightLowButton3,
	))
	buf[3] = byte(s.LeftStickY)
	buf[4] = byte(s.LeftStickX)
	buf[5] = byte(s.RightStickY)
	buf[6] = byte(s.RightStickX)
	buf[7] = byte(s.LeftRollerSwitch1)
	buf[8] = byte(s.LeftRollerSwitch2)
	buf[9] = byte(s.RightRollerSwitch1)
	return buf, nil
}

func unmarshalGcs101(data []byte) (*Gcs101State, error) {
	if err := expectLen(data, PktGcs101Size); err != nil {
		return nil, err
	}

	b := le.Uint16(data[1:3])
	return &Gcs101State{
		LeftFrontButton:    bit(b, 0),
		RightFrontButton:   bit(b, 1),
		LeftRearButton:     bit(b, 2),
		RightRearButton:    bit(b, 3),
		RightSideButton:    bit(b, 4),
		BandToggleSwitch1:  bit(b, 5),
		BandToggleSwitch2:  bit(b, 6),
		LeftLowButton1:     bit(b, 7),
		LeftLowButton2:     bit(b, 8),
		LeftLowButton3:     bit(b, 9),
		RightLowButton1:    bit(b, 10),
		RightLowButton2:    bit(b, 11),
		RightLowButton3:    bit(b, 12),
		LeftStickY:         int8(data[3]),
		LeftStickX:         int8(data[4]),
		RightStickY:        int8(data[5]),
		RightStickX:        int8(data[6]),
		LeftRollerSwitch1:  int8(data[7]),
		LeftRollerSwitch2:  int8(data[8]),
		RightRollerSwitch1: int8(data[9]),
	}, nil
}

func (s *GcsDS4State) Marshal() ([]byte, error) {
	buf := make([]byte, PktGcsDS4Size)
	buf[0] = byte(GcsDS4)
	le.PutUint16(buf[1:3], packBits(
		s.Triangle, s.Circle, s.Square, s.X,
		s.ArrowUp, s.ArrowRight, s.ArrowDown, s.ArrowLeft,
		s.Center, s.Share, s.Options,
		s.R1, s.L1, s.R2, s.L2,
	))
	buf[3] = byte(s.LeftStickY)
	buf[4] = byte(s.LeftStickX)
	buf[5] = byte(s.RightStickY)
	buf[6] = byte(s.RightStickX)
	buf[7] = byte(s.FlashLight)
	return buf, nil
}

func unmarshalGcsDS4(data []byte) (*GcsDS4State, error) {
	if err := expectLen(data, PktGcsDS4Size); err != nil {
		return nil, err
	}

	b := le.Uint16(data[1:3])
	return &GcsDS4State{
		Triangle:    bit(b, 0),
		Circle:      bit(b, 1),
		Square:      bit(b, 2),
		X:           bit(b, 3),
		ArrowUp:     bit(b, 4),
		ArrowRight:  bit(b, 5),
		ArrowDown:   bit(b, 6),
		ArrowLeft:   bit(b, 7),
		Center:      bit(b, 8),
		Share:       bit(b, 9),
		Options:     bit(b, 10),
		R1:          bit(b, 11),
		L1:          bit(b, 12),
		R2:          bit(b, 13),
		L2:          bit(b, 14),
		LeftStickY:  int8(data[3]),
		LeftStickX:  int8(data[4]),
		RightStickY: int8(data[5]),
		RightStickX: int8(data[6]),
		FlashLight:  int8(data[7]),
	}, nil
}

// GcsNoneState is the payload of a GCS message without a controller
type GcsNoneState struct{}

func (GcsNoneState) Marshal() ([]byte, error) {
	return []byte{byte(GcsNone)}, nil
}

// UnmarshalGcsState decodes a GCS state payload. The result is one of
// *GcsNoneState, *Gcs101State or *GcsDS4State.
func UnmarshalGcsState(data []byte) (Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty gcs state", protocol.ErrInvalidPayload)
	}

	switch GcsType(data[0]) {
	case GcsNone:
		return &GcsNoneState{}, nil
	case Gcs101:
		state, err := unmarshalGcs101(data)
		if err != nil {
			return nil, err
		}
		return state, nil
	case GcsDS4:
		state, err := unmarshalGcsDS4(data)
		if err != nil {
			return nil, err
		}
		return state, nil
	default:
		return nil, fmt.Errorf("%w: gcs type %d", protocol.ErrUnknownType, data[0])
	}
}
