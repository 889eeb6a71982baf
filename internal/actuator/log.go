package actuator

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// LogSink records actuator commands in the log. It is the default sink for
// units without a motor bus and keeps the last applied state for inspection.
type LogSink struct {
	mu         sync.Mutex
	state      State
	stops      int
	flashlight int8
}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Apply(state State) error {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed {
		log.Debug().
			Int8("drive", state.Drive).
			Int8("yaw", state.Yaw).
			Int8("pitch", state.Pitch).
			Bool("auto_neutral", state.AutoNeutralJoints).
			Bool("drive_pulse", state.DrivePulse).
			Bool("flip", state.FlipMode).
			Msg("Actuators updated")
	}
	return nil
}

func (s *LogSink) EmergencyStop() error {
	s.mu.Lock()
	s.state = Neutral()
	s.stops++
	s.mu.Unlock()

	log.Warn().Msg("Actuators stopped")
	return nil
}

func (s *LogSink) SetFlashlights(level int8) error {
	s.mu.Lock()
	s.flashlight = level
	s.mu.Unlock()
	return nil
}

func (s *LogSink) ToggleCamera(pressed bool) error {
	if pressed {
		log.Debug().Msg("Camera toggled")
	}
	return nil
}

func (s *LogSink) Calibrate() error {
	log.Info().Msg("Motor calibration requested")
	return nil
}

func (s *LogSink) ResetIMU() error {
	log.Info().Msg("IMU reset requested")
	return nil
}

// State returns the last applied state
func (s *LogSink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stops returns how many emergency stops were issued
func (s *LogSink) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *LogSink) Flashlights() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flashlight
}
