package protocol

import (
	"errors"
	"sync/atomic"
)

// Stats keeps diagnostic counters for one link
type Stats struct {
	framesRcvd   atomic.Uint64
	framesSent   atomic.Uint64
	bytesRcvd    atomic.Uint64
	bytesSent    atomic.Uint64
	badLength    atomic.Uint64
	badPreamble  atomic.Uint64
	badChecksum  atomic.Uint64
	unauthorized atomic.Uint64
	queueDrops   atomic.Uint64
}

func (s *Stats) AddFrameRcvd(bytes int) {
	s.framesRcvd.Add(1)
	s.bytesRcvd.Add(uint64(bytes))
}

func (s *Stats) AddFrameSent(bytes int) {
	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(bytes))
}

// AddDecodeError counts a frame rejected by Decode
func (s *Stats) AddDecodeError(err error) {
	switch {
	case errors.Is(err, ErrPreamble):
		s.badPreamble.Add(1)
	case errors.Is(err, ErrChecksum):
		s.badChecksum.Add(1)
	default:
		s.badLength.Add(1)
	}
}

func (s *Stats) AddUnauthorized() {
	s.unauthorized.Add(1)
}

func (s *Stats) AddQueueDrop() {
	s.queueDrops.Add(1)
}

func (s *Stats) Reset() {
	s.framesRcvd.Store(0)
	s.framesSent.Store(0)
	s.bytesRcvd.Store(0)
	s.bytesSent.Store(0)
	s.badLength.Store(0)
	s.badPreamble.Store(0)
	s.badChecksum.Store(0)
	s.unauthorized.Store(0)
	s.queueDrops.Store(0)
}

// StatsSnapshot is a point in time copy of Stats
type StatsSnapshot struct {
	FramesRcvd   uint64
	FramesSent   uint64
	BytesRcvd    uint64
	BytesSent    uint64
	BadLength    uint64
	BadPreamble  uint64
	BadChecksum  uint64
	Unauthorized uint64
	QueueDrops   uint64
}

// Dropped returns the number of frames rejected before dispatch
func (s StatsSnapshot) Dropped() uint64 {
	return s.BadLength + s.BadPreamble + s.BadChecksum + s.Unauthorized
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesRcvd:   s.framesRcvd.Load(),
		FramesSent:   s.framesSent.Load(),
		BytesRcvd:    s.bytesRcvd.Load(),
		BytesSent:    s.bytesSent.Load(),
		BadLength:    s.badLength.Load(),
		BadPreamble:  s.badPreamble.Load(),
		BadChecksum:  s.badChecksum.Load(),
		Unauthorized: s.unauthorized.Load(),
		QueueDrops:   s.queueDrops.Load(),
	}
}
