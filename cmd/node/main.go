package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goodieshq/linkrelay/internal/actuator"
	"github.com/goodieshq/linkrelay/internal/config"
	"github.com/goodieshq/linkrelay/internal/entity"
	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/logger"
	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/server"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	restartCode   = 3 // asks the supervisor to start the node again
	statsInterval = 10 * time.Second
)

var console = zerolog.ConsoleWriter{Out: os.Stderr}

func init() {
	log.Logger = log.Output(console).Level(zerolog.DebugLevel)
}

func main() {
	path := flag.String("c", "", "path to the node configuration file")
	flag.Parse()

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var restart atomic.Bool
	plat := platform.New(platform.Opts{
		Restart: func() {
			restart.Store(true)
			cancel()
		},
	})

	layout := flash.DefaultLayout()
	if !cfg.Flash.Create {
		if _, err := os.Stat(cfg.Flash.Image); err != nil {
			log.Error().Err(err).Str("path", cfg.Flash.Image).Msg("Flash image not found")
			return 1
		}
	}
	device, err := flash.OpenFileDevice(cfg.Flash.Image, layout.DeviceSize(), layout.SectorSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open flash")
		return 1
	}
	defer device.Close()

	master, err := transport.ListenUDP(ctx, cfg.Master.Interface, cfg.Master.Port)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open master link")
		return 1
	}
	defer master.Close()

	slave, err := transport.ListenUDP(ctx, cfg.Slave.Interface, cfg.Slave.Port)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open slave link")
		return 1
	}
	defer slave.Close()

	var sink actuator.Sink = actuator.NewLogSink()
	if cfg.Actuator.CANInterface != "" {
		canSink, disconnect, err := actuator.OpenCANSink(cfg.Actuator.CANInterface, cfg.Actuator.CANID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open actuators")
			return 1
		}
		defer disconnect()
		sink = canSink
	}

	registry := &entity.Registry{}
	srv, err := server.NewServer(server.ServerOpts{
		Master:            master,
		Slave:             slave,
		SlaveAddr:         cfg.Slave.Address,
		ConnectionTimeout: cfg.Link.ConnectionTimeout,
		ActiveTimeout:     utils.Ptr(cfg.Link.ActiveTimeout),
		ReceiveTimeout:    cfg.Link.ReceiveTimeout,
		QueueSize:         cfg.Link.QueueSize,
		TelemetryInterval: cfg.Telemetry.Interval,
		StatsInterval:     statsInterval,
		Registry:          registry,
		Platform:          plat,
		Device:            device,
		Layout:            layout,
		Actuators:         sink,
		Telemetry:         server.StaticTelemetry{Platform: packets.PlatformType(cfg.Telemetry.Platform)},
		QuiesceDelay:      utils.Ptr(cfg.Firmware.QuiesceDelay),
		BootDelay:         cfg.Firmware.BootDelay,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create node")
		return 1
	}

	if cfg.Log.Remote {
		remote := logger.NewRemote(registry, func(msg *protocol.Message) bool {
			return srv.SubmitOutbound(link.Master, msg)
		}, zerolog.WarnLevel)
		log.Logger = log.Output(logger.Output(console, remote))
	}

	log.Info().
		Uint16("master_port", cfg.Master.Port).
		Uint16("slave_port", cfg.Slave.Port).
		Str("slave", cfg.Slave.Address.String()).
		Msg("Starting node")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Node stopped")
		return 1
	}

	if restart.Load() {
		log.Warn().Msg("Restarting node")
		if err := device.Sync(); err != nil {
			log.Error().Err(err).Msg("Failed to sync flash")
		}
		return restartCode
	}
	log.Info().Msg("Node stopped")
	return 0
}
