package main

import (
	"context"
	"flag"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodieshq/linkrelay/internal/client"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
}

func main() {
	var (
		node     = flag.String("node", "192.168.1.10:5000", "master link address of the first unit")
		image    = flag.String("image", "", "firmware image to upload")
		target   = flag.Uint("target", client.DEFAULT_TARGET, "entity id of the unit to update")
		retries  = flag.Int("retries", client.DEFAULT_RETRIES, "resends per packet")
		pageSize = flag.Uint("page", client.DEFAULT_PAGE_SIZE, "bytes per firmware packet")
		timeout  = flag.Duration("timeout", client.DEFAULT_TIMEOUT, "reply timeout")
		assign   = flag.Bool("assign", client.DEFAULT_ASSIGN, "address the chain while uploading")
		boot     = flag.Bool("boot", false, "reboot the chain once the image is committed")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}
	if *image == "" || *target == 0 || *target > 0xFF {
		flag.Usage()
		os.Exit(2)
	}

	dest, err := netip.ParseAddrPort(*node)
	if err != nil {
		log.Fatal().Err(err).Str("node", *node).Msg("Invalid node address")
	}

	data, err := os.ReadFile(*image)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read firmware image")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := transport.DialUDP(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open socket")
	}
	defer conn.Close()

	cli := client.NewClientUDP(conn, dest, timeout)
	start := time.Now()
	err = cli.Upload(ctx, data, client.RunOpts{
		Target:        utils.Ptr(uint8(*target)),
		AssignAddress: assign,
		Retries:       retries,
		PageSize:      utils.Ptr(uint32(*pageSize)),
		Boot:          boot,
	})
	if err != nil {
		log.Error().Err(err).Msg("Firmware update failed")
		conn.Close()
		os.Exit(1)
	}
	log.Info().Dur("elapsed", time.Since(start)).Str("image", *image).Msg("Firmware update done")
}
