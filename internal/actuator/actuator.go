package actuator

// State is the motion command derived from a ground station state
type State struct {
	Drive             int8
	Yaw               int8
	Pitch             int8
	AutoNeutralJoints bool
	DrivePulse        bool
	FlipMode          bool
}

// Neutral is the resting command: no motion, no modes
func Neutral() State {
	return State{}
}

func (s State) IsNeutral() bool {
	return s == State{}
}

// Sink drives the physical outputs of the unit
type Sink interface {
	Apply(state State) error
	// EmergencyStop forces every output to neutral, it must not fail silently
	EmergencyStop() error
	SetFlashlights(level int8) error
	ToggleCamera(pressed bool) error
	Calibrate() error
	ResetIMU() error
}
