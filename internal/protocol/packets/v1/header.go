package packets

import "github.com/goodieshq/linkrelay/internal/protocol"

// NewMessage marshals pkt into a message with the given address and opcode
func NewMessage(address uint8, opcode protocol.Opcode, pkt Packet) (*protocol.Message, error) {
	payload, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}
	if len(payload) > protocol.MTU {
		return nil, protocol.ErrPayloadTooLarge
	}

	return &protocol.Message{
		Address: address,
		Opcode:  opcode,
		Payload: payload,
	}, nil
}
