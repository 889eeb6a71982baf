package packets

import (
	"github.com/goodieshq/linkrelay/internal/protocol"
)

const PktAckSize = 1

// NewAck builds an ACK for ErrorNone and a NACK carrying code otherwise
func NewAck(address uint8, code ErrorCode) *protocol.Message {
	opcode := protocol.OpAck
	if code != ErrorNone {
		opcode = protocol.OpNack
	}

	return &protocol.Message{
		Address: address,
		Opcode:  opcode,
		Payload: []byte{byte(code)},
	}
}

// UnmarshalAck returns the code carried by an ACK or NACK message
func UnmarshalAck(msg *protocol.Message) (ErrorCode, error) {
	if msg.Opcode != protocol.OpAck && msg.Opcode != protocol.OpNack {
		return 0, protocol.ErrUnknownOpcode
	}
	if err := expectLen(msg.Payload, PktAckSize); err != nil {
		return 0, err
	}

	code := ErrorCode(msg.Payload[0])
	if msg.Opcode == protocol.OpAck && code != ErrorNone {
		return 0, protocol.ErrInvalidPayload
	}
	if msg.Opcode == protocol.OpNack && code == ErrorNone {
		return 0, protocol.ErrInvalidPayload
	}

	return code, nil
}

// NewBusy builds an empty BUSY message
func NewBusy(address uint8) *protocol.Message {
	return &protocol.Message{
		Address: address,
		Opcode:  protocol.OpBusy,
		Payload: []byte{},
	}
}
