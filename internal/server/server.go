package server

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodieshq/linkrelay/internal/actuator"
	"github.com/goodieshq/linkrelay/internal/entity"
	"github.com/goodieshq/linkrelay/internal/firmware"
	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/protocol/transfer"
	"github.com/goodieshq/linkrelay/internal/queue"
	"github.com/goodieshq/linkrelay/internal/relay"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConnectionTimeout = 300 * time.Millisecond
	DefaultActiveTimeout     = 5 * time.Second
	DefaultReceiveTimeout    = 20 * time.Millisecond
	DefaultTelemetryInterval = 100 * time.Millisecond
	DefaultLivenessInterval  = time.Second
	DefaultQuiesceDelay      = 100 * time.Millisecond
)

// linkState groups what the node keeps per link
type linkState struct {
	dir       link.Direction
	transport transport.Transport
	tracker   *link.Tracker
	out       *queue.Mailbox
	stats     protocol.Stats
}

// Server is one node of the chain: it owns both links, the relay engine and
// the firmware updater.
type Server struct {
	master    *linkState
	slave     *linkState
	slaveAddr netip.AddrPort

	connTimeout      time.Duration
	activeTimeout    time.Duration
	recvTimeout      time.Duration
	telemetryEvery   time.Duration
	livenessInterval time.Duration
	statsInterval    time.Duration

	registry   *entity.Registry
	platform   *platform.Platform
	actuators  actuator.Sink
	telemetry  TelemetrySource
	appConfig  *flash.AppStore
	updater    *firmware.Updater
	engine     *relay.Engine
	lastActive atomic.Int64 // platform time of the last accepted master frame
}

type ServerOpts struct {
	Master    transport.Transport
	Slave     transport.Transport
	SlaveAddr netip.AddrPort // destination of downstream frames

	ConnectionTimeout time.Duration
	ActiveTimeout     *time.Duration // nil for the default, zero disables the restart
	ReceiveTimeout    time.Duration
	QueueSize         int
	TelemetryInterval time.Duration
	LivenessInterval  time.Duration
	StatsInterval     time.Duration // zero disables the stats log

	Registry  *entity.Registry
	Platform  *platform.Platform
	Device    flash.Device
	Layout    flash.Layout
	Actuators actuator.Sink
	Audio     relay.AudioSink
	Telemetry TelemetrySource

	QuiesceDelay *time.Duration
	BootDelay    time.Duration
}

func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Master == nil || opts.Slave == nil {
		return nil, fmt.Errorf("both link transports are required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("a flash device is required")
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = DefaultConnectionTimeout
	}
	if opts.ReceiveTimeout == 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	if opts.TelemetryInterval == 0 {
		opts.TelemetryInterval = DefaultTelemetryInterval
	}
	if opts.LivenessInterval == 0 {
		opts.LivenessInterval = DefaultLivenessInterval
	}
	if opts.Layout == (flash.Layout{}) {
		opts.Layout = flash.DefaultLayout()
	}
	if opts.Registry == nil {
		opts.Registry = &entity.Registry{}
	}
	if opts.Platform == nil {
		opts.Platform = platform.New(platform.Opts{})
	}
	if opts.Actuators == nil {
		opts.Actuators = actuator.NewLogSink()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = StaticTelemetry{}
	}
	quiesce := utils.DefaultIfNil(opts.QuiesceDelay, DefaultQuiesceDelay)

	s := &Server{
		master:           newLinkState(link.Master, opts.Master, opts.QueueSize),
		slave:            newLinkState(link.Slave, opts.Slave, opts.QueueSize),
		slaveAddr:        opts.SlaveAddr,
		connTimeout:      opts.ConnectionTimeout,
		activeTimeout:    utils.DefaultIfNil(opts.ActiveTimeout, DefaultActiveTimeout),
		recvTimeout:      opts.ReceiveTimeout,
		telemetryEvery:   opts.TelemetryInterval,
		livenessInterval: opts.LivenessInterval,
		statsInterval:    opts.StatsInterval,
		registry:         opts.Registry,
		platform:         opts.Platform,
		actuators:        opts.Actuators,
		telemetry:        opts.Telemetry,
	}

	s.appConfig = flash.NewAppStore(flash.AppStoreOpts{
		Device:       opts.Device,
		Layout:       opts.Layout,
		Platform:     opts.Platform,
		QuiesceDelay: quiesce,
	})
	if err := s.appConfig.Load(); err != nil {
		return nil, fmt.Errorf("failed to load application config: %w", err)
	}

	s.updater = firmware.NewUpdater(firmware.Opts{
		Device:       opts.Device,
		Layout:       opts.Layout,
		Platform:     opts.Platform,
		Reply:        func(code packets.ErrorCode) { s.SendAck(code) },
		QuiesceDelay: quiesce,
	})
	if err := s.updater.Load(); err != nil {
		return nil, fmt.Errorf("failed to load boot config: %w", err)
	}

	s.engine = relay.NewEngine(relay.Opts{
		Registry:  s.registry,
		Updater:   s.updater,
		Actuators: s.actuators,
		Audio:     opts.Audio,
		Video:     s,
		Config:    s.appConfig,
		Platform:  s.platform,
		Outbound:  s,
		BootDelay: opts.BootDelay,
	})

	s.lastActive.Store(int64(s.platform.Now()))
	return s, nil
}

func newLinkState(dir link.Direction, t transport.Transport, size int) *linkState {
	return &linkState{
		dir:       dir,
		transport: t,
		tracker:   link.NewTracker(dir),
		out:       queue.NewMailbox(size),
	}
}

func (s *Server) link(dir link.Direction) *linkState {
	if dir == link.Master {
		return s.master
	}
	return s.slave
}

func (s *Server) Registry() *entity.Registry {
	return s.registry
}

func (s *Server) Updater() *firmware.Updater {
	return s.updater
}

func (s *Server) AppConfig() *flash.AppStore {
	return s.appConfig
}

// Connected reports whether a peer is latched on dir
func (s *Server) Connected(dir link.Direction) bool {
	return s.link(dir).tracker.Connected()
}

func (s *Server) Stats(dir link.Direction) protocol.StatsSnapshot {
	return s.link(dir).stats.Snapshot()
}

// Run starts the node workers and blocks until ctx is done or a link fails
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.platform.SetMode(platform.ModeRunning)
	log.Info().
		Uint8("id", s.registry.LocalID()).
		Str("slave", s.slaveAddr.String()).
		Str("target_bank", s.updater.Target().String()).
		Msg("Node started")

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("Worker stopped")
				errCh <- err
			}
		}()
	}

	for _, l := range []*linkState{s.master, s.slave} {
		run(l.dir.String()+" receive", func() error {
			return transfer.RecvLoop(ctx, l.transport, s.recvTimeout,
				func(data []byte, src netip.AddrPort) { s.HandleInbound(l.dir, data, src) },
				func() { s.CheckLink(l.dir) })
		})
		run(l.dir.String()+" drain", func() error {
			return transfer.DrainLoop(ctx, l.transport, l.out, s.recvTimeout, s.destination(l.dir), &l.stats)
		})
	}
	run("liveness", func() error { s.livenessLoop(ctx); return nil })
	run("telemetry", func() error { s.telemetryLoop(ctx); return nil })
	run("stats", func() error {
		transfer.Logger(ctx, s.statsInterval,
			transfer.Named{Name: link.Master.String(), Stats: &s.master.stats},
			transfer.Named{Name: link.Slave.String(), Stats: &s.slave.stats})
		return nil
	})

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	s.platform.Stop()

	log.Info().Msg("Node stopped")
	return err
}

func (s *Server) destination(dir link.Direction) transfer.Destination {
	if dir == link.Master {
		return s.master.tracker.Remote
	}
	return func() (netip.AddrPort, bool) {
		return s.slaveAddr, s.slaveAddr.IsValid()
	}
}

// CheckActivity restarts the node when the master has been silent for too
// long. It reports whether a restart was requested.
func (s *Server) CheckActivity() bool {
	if s.activeTimeout <= 0 {
		return false
	}
	silence := s.platform.Now() - time.Duration(s.lastActive.Load())
	if silence <= s.activeTimeout {
		return false
	}
	if s.platform.Reboot(0) {
		log.Error().Dur("silence", silence).Msg("No master traffic, restarting")
		return true
	}
	return false
}

func (s *Server) livenessLoop(ctx context.Context) {
	tick := time.NewTicker(s.livenessInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.CheckActivity()
		}
	}
}

func (s *Server) telemetryLoop(ctx context.Context) {
	tick := time.NewTicker(s.telemetryEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.SendTelemetry()
		}
	}
}
