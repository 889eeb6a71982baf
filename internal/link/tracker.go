package link

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Direction names the two links of a node
type Direction uint8

const (
	Master Direction = 0 // upstream, toward the ground station
	Slave  Direction = 1 // downstream, toward the next unit
)

func (d Direction) String() string {
	switch d {
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return "unknown"
	}
}

// Opposite returns the link a message received on d is relayed to
func (d Direction) Opposite() Direction {
	if d == Master {
		return Slave
	}
	return Master
}

// Tracker derives the liveness of one link from received frames. Only the
// receive worker of the link mutates it; other workers read through Remote
// and Connected.
type Tracker struct {
	dir       Direction
	mu        sync.RWMutex
	connected bool
	remote    netip.AddrPort
	lastSeen  time.Duration
}

func NewTracker(dir Direction) *Tracker {
	return &Tracker{dir: dir}
}

// OnFrame records a well formed frame from src received at now. It returns
// false when the link is latched to another sender, in which case the frame
// must be discarded.
func (t *Tracker) OnFrame(src netip.AddrPort, now time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		t.connected = true
		t.remote = src
		t.lastSeen = now
		log.Info().Str("link", t.dir.String()).Str("remote", src.String()).Msg("Link connected")
		return true
	}

	if src != t.remote {
		log.Debug().
			Str("link", t.dir.String()).
			Str("remote", t.remote.String()).
			Str("sender", src.String()).
			Msg("Discarding frame from unauthorized sender")
		return false
	}

	t.lastSeen = now
	return true
}

// CheckTimeout disconnects the link when no frame was accepted for longer
// than timeout. It returns true once per disconnect, the caller then runs
// the fail-safe actions of the link.
func (t *Tracker) CheckTimeout(now, timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || now-t.lastSeen <= timeout {
		return false
	}

	log.Info().
		Str("link", t.dir.String()).
		Str("remote", t.remote.String()).
		Dur("silence", now-t.lastSeen).
		Msg("Link disconnected")

	t.connected = false
	t.remote = netip.AddrPort{}
	return true
}

func (t *Tracker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Remote returns the latched sender and whether the link is connected
func (t *Tracker) Remote() (netip.AddrPort, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remote, t.connected
}

func (t *Tracker) LastSeen() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeen
}

func (t *Tracker) Direction() Direction {
	return t.dir
}
