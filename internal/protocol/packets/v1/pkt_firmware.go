package packets

import (
	"fmt"

	"github.com/goodieshq/linkrelay/internal/protocol"
)

const (
	PktFirmwareStartSize        = 4
	PktFirmwarePacketHeaderSize = 4 + 2
	PktFirmwareEndSize          = 4

	// MaxFirmwareData is the largest page that fits in one frame
	MaxFirmwareData = protocol.MTU - PktFirmwarePacketHeaderSize
)

// PktFirmwareStart opens a transfer of ImageSize bytes
type PktFirmwareStart struct {
	ImageSize uint32
}

func (p *PktFirmwareStart) Marshal() ([]byte, error) {
	buf := make([]byte, PktFirmwareStartSize)
	le.PutUint32(buf, p.ImageSize)
	return buf, nil
}

func UnmarshalFirmwareStart(data []byte) (*PktFirmwareStart, error) {
	if err := expectLen(data, PktFirmwareStartSize); err != nil {
		return nil, err
	}
	return &PktFirmwareStart{ImageSize: le.Uint32(data)}, nil
}

// PktFirmwarePacket carries one page of the image at Offset
type PktFirmwarePacket struct {
	Offset uint32 // byte offset within the image
	Length uint16 // declared data length
	Data   []byte
}

func NewFirmwarePacket(offset uint32, data []byte) *PktFirmwarePacket {
	return &PktFirmwarePacket{
		Offset: offset,
		Length: uint16(len(data)),
		Data:   data,
	}
}

func (p *PktFirmwarePacket) Marshal() ([]byte, error) {
	if len(p.Data) > MaxFirmwareData {
		return nil, protocol.ErrPayloadTooLarge
	}

	buf := make([]byte, PktFirmwarePacketHeaderSize+len(p.Data))
	le.PutUint32(buf[0:4], p.Offset)
	le.PutUint16(buf[4:6], p.Length)
	copy(buf[6:], p.Data)
	return buf, nil
}

// UnmarshalFirmwarePacket decodes the header and copies the data. The declared
// Length is not checked against the data so the updater can answer with a
// specific error code.
func UnmarshalFirmwarePacket(data []byte) (*PktFirmwarePacket, error) {
	if len(data) < PktFirmwarePacketHeaderSize {
		return nil, fmt.Errorf("%w: firmware packet of %d bytes", protocol.ErrInvalidPayload, len(data))
	}

	pkt := &PktFirmwarePacket{
		Offset: le.Uint32(data[0:4]),
		Length: le.Uint16(data[4:6]),
		Data:   make([]byte, len(data)-PktFirmwarePacketHeaderSize),
	}
	copy(pkt.Data, data[PktFirmwarePacketHeaderSize:])
	return pkt, nil
}

// PktFirmwareEnd closes a transfer with the expected image checksum
type PktFirmwareEnd struct {
	Checksum uint32
}

func (p *PktFirmwareEnd) Marshal() ([]byte, error) {
	buf := make([]byte, PktFirmwareEndSize)
	le.PutUint32(buf, p.Checksum)
	return buf, nil
}

func UnmarshalFirmwareEnd(data []byte) (*PktFirmwareEnd, error) {
	if err := expectLen(data, PktFirmwareEndSize); err != nil {
		return nil, err
	}
	return &PktFirmwareEnd{Checksum: le.Uint32(data)}, nil
}
