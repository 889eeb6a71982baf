package protocol

// Checksum computes the additive frame checksum over the header fields and payload
func Checksum(msg *Message) uint8 {
	var sum uint32
	sum += Preamble
	sum += uint32(msg.Address)
	sum += uint32(msg.Opcode)
	length := uint16(len(msg.Payload))
	sum += uint32(length & 0xFF)
	sum += uint32(length >> 8)
	sum += uint32(msg.Fragment & 0xFF)
	sum += uint32(msg.Fragment >> 8)
	for _, b := range msg.Payload {
		sum += uint32(b)
	}
	return uint8(sum)
}

// Checksum32 adds data into a running 32-bit additive checksum, wrapping naturally
func Checksum32(sum uint32, data []byte) uint32 {
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// EncodedSize returns the number of bytes Encode produces for msg
func EncodedSize(msg *Message) int {
	return Overhead + len(msg.Payload)
}

// Encode lays out a message in wire order and appends the checksum
func Encode(msg *Message) ([]byte, error) {
	return AppendEncode(make([]byte, 0, EncodedSize(msg)), msg)
}

// AppendEncode appends the encoded message to dst
func AppendEncode(dst []byte, msg *Message) ([]byte, error) {
	if len(msg.Payload) > MTU {
		return dst, ErrPayloadTooLarge
	}

	start := len(dst)
	dst = append(dst, Preamble, msg.Address, byte(msg.Opcode))
	dst = le.AppendUint16(dst, uint16(len(msg.Payload)))
	dst = le.AppendUint16(dst, msg.Fragment)
	dst = append(dst, msg.Payload...)

	var sum byte
	for _, b := range dst[start:] {
		sum += b
	}
	return append(dst, sum), nil
}

// Decode validates a received frame and returns the message it carries.
// The payload is copied so data may be reused after the call.
func Decode(data []byte) (*Message, error) {
	if len(data) < Overhead || len(data) > BufferSize {
		return nil, ErrLength
	}

	if data[0] != Preamble {
		return nil, ErrPreamble
	}

	length := le.Uint16(data[3:5])
	if len(data) != int(length)+Overhead {
		return nil, ErrLength
	}

	msg := &Message{
		Address:  data[1],
		Opcode:   Opcode(data[2]),
		Fragment: le.Uint16(data[5:7]),
		Payload:  make([]byte, length),
	}
	copy(msg.Payload, data[HeaderSize:HeaderSize+int(length)])

	if Checksum(msg) != data[len(data)-1] {
		return nil, ErrChecksum
	}

	return msg, nil
}
