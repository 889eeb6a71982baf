package packets

import "math"

// PlatformType identifies the hardware variant reporting telemetry
type PlatformType uint8

const (
	PlatformAlon1    PlatformType = 0
	PlatformAlon2    PlatformType = 1
	PlatformTvai2    PlatformType = 2
	PlatformTvai3    PlatformType = 3
	PlatformTvai5    PlatformType = 4
	PlatformAlonD    PlatformType = 5
	PlatformEinRaam  PlatformType = 6
	PlatformTzach    PlatformType = 7
	PlatformTvaiAlon PlatformType = 8
)

// InertialUnit is the IMU section of a telemetry payload
type InertialUnit struct {
	Roll  int16
	Pitch int16
	Yaw   int16
	AccX  int16
	AccY  int16
	AccZ  int16
}

const inertialUnitSize = 12

// PktTelemetry is the periodic status report of a unit
type PktTelemetry struct {
	Platform          PlatformType
	CamerasConfig     uint8
	FlashlightsConfig uint8
	Battery           uint8
	Inertial          InertialUnit
	MotorCurrent      [3]uint16
	Encoders          [3]float32
	CPUTemperature    float32
}

const PktTelemetrySize = 4 + inertialUnitSize + 3*2 + 3*4 + 4

func (p *PktTelemetry) Marshal() ([]byte, error) {
	buf := make([]byte, PktTelemetrySize)
	buf[0] = byte(p.Platform)
	buf[1] = p.CamerasConfig
	buf[2] = p.FlashlightsConfig
	buf[3] = p.Battery

	off := 4
	for _, v := range []int16{p.Inertial.Roll, p.Inertial.Pitch, p.Inertial.Yaw, p.Inertial.AccX, p.Inertial.AccY, p.Inertial.AccZ} {
		le.PutUint16(buf[off:], uint16(v))
		off += 2
	}
	for _, v := range p.MotorCurrent {
		le.PutUint16(buf[off:], v)
		off += 2
	}
	for _, v := range p.Encoders {
		le.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	le.PutUint32(buf[off:], math.Float32bits(p.CPUTemperature))
	return buf, nil
}

func UnmarshalTelemetry(data []byte) (*PktTelemetry, error) {
	if err := expectLen(data, PktTelemetrySize); err != nil {
		return nil, err
	}

	p := &PktTelemetry{
		Platform:          PlatformType(data[0]),
		CamerasConfig:     data[1],
		FlashlightsConfig: data[2],
		Battery:           data[3],
	}

	off := 4
	imu := make([]int16, 6)
	for i := range imu {
		imu[i] = int16(le.Uint16(data[off:]))
		off += 2
	}
	p.Inertial = InertialUnit{Roll: imu[0], Pitch: imu[1], Yaw: imu[2], AccX: imu[3], AccY: imu[4], AccZ: imu[5]}
	for i := range p.MotorCurrent {
		p.MotorCurrent[i] = le.Uint16(data[off:])
		off += 2
	}
	for i := range p.Encoders {
		p.Encoders[i] = math.Float32frombits(le.Uint32(data[off:]))
		off += 4
	}
	p.CPUTemperature = math.Float32frombits(le.Uint32(data[off:]))

	return p, nil
}
