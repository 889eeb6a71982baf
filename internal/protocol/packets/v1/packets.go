package packets

import (
	"encoding/binary"
	"fmt"

	"github.com/goodieshq/linkrelay/internal/protocol"
)

var le = binary.LittleEndian

// Packet is a typed payload that can be carried by a protocol.Message
type Packet interface {
	Marshal() ([]byte, error)
}

// ErrorCode is the status carried by Ack and Nack messages
type ErrorCode uint8

const (
	ErrorNone                 ErrorCode = 0  // success, sent as ACK
	ErrorInternal             ErrorCode = 1  // no target bank or platform shutting down
	ErrorInvalidPacketAddress ErrorCode = 2  // packet offset outside the declared image
	ErrorInvalidPacketLength  ErrorCode = 3  // packet longer than a flash page or inconsistent
	ErrorEraseFailure         ErrorCode = 4  // sector erase failed
	ErrorWriteFailure         ErrorCode = 5  // page program failed
	ErrorReadFailure          ErrorCode = 6  // read back failed
	ErrorCompareFailure       ErrorCode = 7  // read back differs from the payload
	ErrorMismatchChecksum     ErrorCode = 8  // image checksum differs at end of transfer
	ErrorCreateTask           ErrorCode = 9  // kept for wire compatibility
	ErrorBusy                 ErrorCode = 10 // a transfer or packet is already in progress
	ErrorImageTooLarge        ErrorCode = 11 // declared image does not fit in a bank
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorNone:
		return "NONE"
	case ErrorInternal:
		return "INTERNAL_ERROR"
	case ErrorInvalidPacketAddress:
		return "INVALID_PACKET_ADDRESS"
	case ErrorInvalidPacketLength:
		return "INVALID_PACKET_LENGTH"
	case ErrorEraseFailure:
		return "ERASE_FAILURE"
	case ErrorWriteFailure:
		return "WRITE_FAILURE"
	case ErrorReadFailure:
		return "READ_FAILURE"
	case ErrorCompareFailure:
		return "COMPARE_FAILURE"
	case ErrorMismatchChecksum:
		return "MISMATCH_CHECKSUM"
	case ErrorCreateTask:
		return "CREATE_TASK"
	case ErrorBusy:
		return "BUSY"
	case ErrorImageTooLarge:
		return "IMAGE_TOO_LARGE"
	default:
		return fmt.Sprintf("ERROR_%d", uint8(e))
	}
}

// Error makes a non-zero code usable as a Go error
func (e ErrorCode) Error() string {
	return "nack: " + e.String()
}

// Retryable reports whether resending the same packet may succeed
func (e ErrorCode) Retryable() bool {
	switch e {
	case ErrorEraseFailure, ErrorWriteFailure, ErrorReadFailure, ErrorCompareFailure, ErrorBusy:
		return true
	default:
		return false
	}
}

// expectLen checks an exact payload length
func expectLen(payload []byte, n int) error {
	if len(payload) != n {
		return fmt.Errorf("%w: got %d bytes, want %d", protocol.ErrInvalidPayload, len(payload), n)
	}
	return nil
}
