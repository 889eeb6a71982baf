package actuator

import (
	"errors"
	"testing"

	"github.com/brutella/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	frames []can.Frame
	err    error
}

func (r *recorder) Publish(frame can.Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func TestCANSinkMotion(t *testing.T) {
	rec := &recorder{}
	sink := NewCANSink(rec, 0x120)

	require.NoError(t, sink.Apply(State{Drive: -1, Yaw: 10, Pitch: 127, DrivePulse: true, FlipMode: true}))
	require.Len(t, rec.frames, 1)

	frame := rec.frames[0]
	assert.Equal(t, uint32(0x120), frame.ID)
	assert.Equal(t, uint8(5), frame.Length)
	assert.Equal(t, [8]uint8{CmdMotion, 0xFF, 10, 127, FlagDrivePulse | FlagFlipMode, 0, 0, 0}, frame.Data)
}

func TestCANSinkCommands(t *testing.T) {
	rec := &recorder{}
	sink := NewCANSink(rec, 0x10)

	require.NoError(t, sink.EmergencyStop())
	require.NoError(t, sink.SetFlashlights(-2))
	require.NoError(t, sink.ToggleCamera(false))
	require.NoError(t, sink.ToggleCamera(true))
	require.NoError(t, sink.Calibrate())
	require.NoError(t, sink.ResetIMU())

	var cmds []uint8
	for _, f := range rec.frames {
		cmds = append(cmds, f.Data[0])
	}
	assert.Equal(t, []uint8{CmdStop, CmdFlashlights, CmdCamera, CmdCalibrate, CmdResetIMU}, cmds)
	assert.Equal(t, uint8(0xFE), rec.frames[1].Data[1])
}

func TestCANSinkPublishError(t *testing.T) {
	rec := &recorder{err: errors.New("bus down")}
	err := NewCANSink(rec, 1).EmergencyStop()
	assert.ErrorContains(t, err, "bus down")
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink()
	require.NoError(t, sink.Apply(State{Drive: 5}))
	assert.Equal(t, State{Drive: 5}, sink.State())

	require.NoError(t, sink.EmergencyStop())
	assert.True(t, sink.State().IsNeutral())
	assert.Equal(t, 1, sink.Stops())

	require.NoError(t, sink.SetFlashlights(3))
	assert.Equal(t, int8(3), sink.Flashlights())
}
