package platform

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Mode is the lifecycle state of the node
type Mode uint32

const (
	ModeInit     Mode = 0 // booting, subsystems not started
	ModeRunning  Mode = 1 // normal operation
	ModeFlashing Mode = 2 // flash is being written, streaming is paused
	ModeShutdown Mode = 3 // a reboot is pending
)

func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "init"
	case ModeRunning:
		return "running"
	case ModeFlashing:
		return "flashing"
	case ModeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Clock returns the time elapsed since the node started
type Clock func() time.Duration

// Platform holds the node mode and the reboot machinery
type Platform struct {
	mode    atomic.Uint32
	clock   Clock
	restart func()

	mu     sync.Mutex
	reboot *time.Timer
}

type Opts struct {
	Clock   Clock  // defaults to a monotonic clock started in New
	Restart func() // called when a scheduled reboot fires
}

func New(opts Opts) *Platform {
	if opts.Clock == nil {
		start := time.Now()
		opts.Clock = func() time.Duration { return time.Since(start) }
	}
	if opts.Restart == nil {
		opts.Restart = func() {}
	}

	return &Platform{
		clock:   opts.Clock,
		restart: opts.Restart,
	}
}

// Now returns the monotonic time since the node started
func (p *Platform) Now() time.Duration {
	return p.clock()
}

func (p *Platform) Mode() Mode {
	return Mode(p.mode.Load())
}

// SetMode changes the mode unless a reboot is pending
func (p *Platform) SetMode(m Mode) bool {
	for {
		cur := p.mode.Load()
		if Mode(cur) == ModeShutdown {
			return false
		}
		if p.mode.CompareAndSwap(cur, uint32(m)) {
			if Mode(cur) != m {
				log.Debug().Str("from", Mode(cur).String()).Str("to", m.String()).Msg("Platform mode changed")
			}
			return true
		}
	}
}

// CompareAndSwapMode moves from old to m atomically
func (p *Platform) CompareAndSwapMode(old, m Mode) bool {
	return p.mode.CompareAndSwap(uint32(old), uint32(m))
}

// Reboot schedules a restart after delay. It reports false when a reboot is
// already pending.
func (p *Platform) Reboot(delay time.Duration) bool {
	for {
		cur := p.mode.Load()
		if Mode(cur) == ModeShutdown {
			return false
		}
		if p.mode.CompareAndSwap(cur, uint32(ModeShutdown)) {
			break
		}
	}

	log.Warn().Dur("delay", delay).Msg("Platform reboot scheduled")

	p.mu.Lock()
	p.reboot = time.AfterFunc(delay, p.restart)
	p.mu.Unlock()
	return true
}

// RebootPending reports whether a reboot has been scheduled
func (p *Platform) RebootPending() bool {
	return p.Mode() == ModeShutdown
}

// Stop cancels a pending reboot timer, used on orderly shutdown
func (p *Platform) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reboot != nil {
		p.reboot.Stop()
	}
}
