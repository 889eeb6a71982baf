package server

import "github.com/goodieshq/linkrelay/internal/protocol/packets/v1"

// TelemetrySource produces the periodic status report of the node
type TelemetrySource interface {
	Telemetry() *packets.PktTelemetry
}

// StaticTelemetry reports a fixed platform type with no sensor readings
type StaticTelemetry struct {
	Platform packets.PlatformType
}

func (t StaticTelemetry) Telemetry() *packets.PktTelemetry {
	return &packets.PktTelemetry{Platform: t.Platform}
}
