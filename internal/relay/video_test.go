package relay

import (
	"testing"

	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	address uint8
	parity  bool
	data    []byte
}

type frameSink struct {
	frames []frame
}

func (s *frameSink) OnVideoFrame(address uint8, parity bool, data []byte) {
	s.frames = append(s.frames, frame{address, parity, append([]byte(nil), data...)})
}

func fragment(parity, eof bool, index uint16, data ...byte) *protocol.Message {
	return &protocol.Message{
		Address:  0x12,
		Opcode:   protocol.OpVideoFrame,
		Fragment: protocol.PackFragment(protocol.Fragment{EndOfFrame: eof, Parity: parity, Index: index}),
		Payload:  data,
	}
}

func TestReassembleFrames(t *testing.T) {
	sink := &frameSink{}
	r := NewReassembler(sink, 0)

	assert.False(t, r.Push(fragment(false, false, 0, 1, 2)))
	assert.False(t, r.Push(fragment(false, false, 1, 3)))
	assert.True(t, r.Push(fragment(false, true, 2, 4)))

	assert.True(t, r.Push(fragment(true, true, 0, 9)))

	require.Len(t, sink.frames, 2)
	assert.Equal(t, frame{0x12, false, []byte{1, 2, 3, 4}}, sink.frames[0])
	assert.Equal(t, frame{0x12, true, []byte{9}}, sink.frames[1])
}

func TestReassembleAbortOnGap(t *testing.T) {
	sink := &frameSink{}
	r := NewReassembler(sink, 0)

	r.Push(fragment(false, false, 0, 1))
	r.Push(fragment(false, false, 1, 2))
	r.Push(fragment(false, false, 3, 3))
	r.Push(fragment(false, true, 4, 4))

	assert.Empty(t, sink.frames)
	assert.Equal(t, uint64(1), r.Aborted())

	// the next frame starts clean
	assert.True(t, r.Push(fragment(true, true, 0, 5)))
	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{5}, sink.frames[0].data)
}

func TestReassembleParityFlipRestarts(t *testing.T) {
	sink := &frameSink{}
	r := NewReassembler(sink, 0)

	r.Push(fragment(false, false, 0, 1))
	r.Push(fragment(true, false, 0, 7))
	assert.True(t, r.Push(fragment(true, true, 1, 8)))

	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{7, 8}, sink.frames[0].data)
}

func TestReassembleOversize(t *testing.T) {
	sink := &frameSink{}
	r := NewReassembler(sink, 3)

	r.Push(fragment(false, false, 0, 1, 2))
	r.Push(fragment(false, true, 1, 3, 4))

	assert.Empty(t, sink.frames)
	assert.Equal(t, uint64(1), r.Aborted())
}
