package protocol

import "errors"

var (
	// Framing errors, the frame is dropped without reply
	ErrLength          = errors.New("invalid frame length")
	ErrPreamble        = errors.New("invalid preamble")
	ErrChecksum        = errors.New("checksum mismatch")
	ErrPayloadTooLarge = errors.New("payload exceeds MTU")

	// Payload errors, logged by the relay
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownType    = errors.New("unknown payload type")
	ErrUnknownOpcode  = errors.New("unknown opcode")
)
