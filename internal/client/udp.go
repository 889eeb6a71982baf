package client

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ClientUDP drives a firmware update of one unit of the chain. It acts as
// the ground station of the first unit, so no other station may be
// connected while it runs.
type ClientUDP struct {
	transport transport.Transport
	dest      netip.AddrPort
	timeout   time.Duration

	sendMu sync.Mutex
}

func NewClientUDP(t transport.Transport, dest netip.AddrPort, timeout *time.Duration) *ClientUDP {
	return &ClientUDP{
		transport: t,
		dest:      dest,
		timeout:   utils.DefaultIfNil(timeout, DEFAULT_TIMEOUT),
	}
}

func (c *ClientUDP) send(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Opcode, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.Send(data, c.dest)
}

// keepalive addresses the chain until ctx is done. The first message is
// sent by the caller.
func (c *ClientUDP) keepalive(ctx context.Context, msg *protocol.Message, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if err := c.send(msg); err != nil {
			log.Debug().Err(err).Msg("Failed to send keepalive")
		}
	}
}

// recvReply waits for the Ack, Nack or Busy of target
func (c *ClientUDP) recvReply(ctx context.Context, target uint8) (packets.ErrorCode, error) {
	buf := make([]byte, protocol.BufferSize+1)
	deadline := time.Now().Add(c.timeout)

	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrNoReply
		}

		n, src, err := c.transport.Receive(buf, remaining)
		if errors.Is(err, transport.ErrTimeout) {
			return 0, ErrNoReply
		}
		if err != nil {
			return 0, fmt.Errorf("failed to receive reply: %w", err)
		}
		if src != c.dest {
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			log.Debug().Err(err).Msg("Dropping malformed reply")
			continue
		}

		switch msg.Opcode {
		case protocol.OpLog:
			log.Info().Uint8("unit", msg.Address).Msg(string(msg.Payload))
			continue
		case protocol.OpBusy:
			if msg.Address == target || msg.Address == 0 {
				return packets.ErrorBusy, nil
			}
			continue
		case protocol.OpAck, protocol.OpNack:
			if msg.Address != target {
				continue
			}
			return packets.UnmarshalAck(msg)
		default:
			continue
		}
	}
}

// exchange sends msg and waits for its reply, resending on timeout and on
// codes accepted by retryable
func (c *ClientUDP) exchange(ctx context.Context, msg *protocol.Message, stage string, retries int, retryable func(packets.ErrorCode) bool, logger zerolog.Logger) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logger.Debug().Str("stage", stage).Int("attempt", attempt).Err(lastErr).Msg("Retrying")
		}
		if err := c.send(msg); err != nil {
			return attempt, fmt.Errorf("failed to send %s: %w", stage, err)
		}

		code, err := c.recvReply(ctx, msg.Address)
		switch {
		case errors.Is(err, ErrNoReply):
			lastErr = err
			continue
		case err != nil:
			return attempt, err
		case code == packets.ErrorNone:
			return attempt, nil
		case retryable(code):
			lastErr = &NackError{Stage: stage, Code: code}
			continue
		default:
			return attempt, &NackError{Stage: stage, Code: code}
		}
	}
	return retries, fmt.Errorf("%s failed after %d retries: %w", stage, retries, lastErr)
}

func noRetry(packets.ErrorCode) bool { return false }

// busyOnly retries an End that found the boot record busy
func busyOnly(code packets.ErrorCode) bool { return code == packets.ErrorBusy }

// Upload writes image to the inactive bank of the target unit and commits it
func (c *ClientUDP) Upload(ctx context.Context, image []byte, opts RunOpts) error {
	if len(image) == 0 {
		return fmt.Errorf("empty firmware image")
	}

	sessionId, err := utils.NewULID()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}
	logger := log.With().Str("session_id", sessionId.String()).Uint8("target", opts.GetTarget()).Logger()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if opts.GetAssignAddress() {
		// the first unit must hold its id before Start arrives
		assign, err := packets.NewMessage(opts.GetFirstHop(), protocol.OpGcsState, &packets.GcsNoneState{})
		if err != nil {
			return err
		}
		if err := c.send(assign); err != nil {
			return fmt.Errorf("failed to assign addresses: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.keepalive(ctx, assign, opts.GetKeepalive())
		}()
	}

	target := opts.GetTarget()
	retries := opts.GetRetries()
	pageSize := opts.GetPageSize()
	checksum := protocol.Checksum32(0, image)
	t := time.Now()

	// start
	start, err := packets.NewMessage(target, protocol.OpFirmwareStart, &packets.PktFirmwareStart{ImageSize: uint32(len(image))})
	if err != nil {
		return err
	}
	attempt, err := c.exchange(ctx, start, "start", retries, noRetry, logger)
	var nack *NackError
	if errors.As(err, &nack) && nack.Code == packets.ErrorBusy && attempt > 0 {
		// an earlier attempt opened the transfer, only its reply was lost
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to start transfer: %w", err)
	}
	logger.Info().Str("size", utils.DisplayBi(uint64(len(image)))).Msg("Transfer started")

	// pages
	var resent int
	lastReport := time.Now()
	for offset := 0; offset < len(image); offset += int(pageSize) {
		end := min(offset+int(pageSize), len(image))
		msg, err := packets.NewMessage(target, protocol.OpFirmwarePacket, packets.NewFirmwarePacket(uint32(offset), image[offset:end]))
		if err != nil {
			return err
		}

		attempt, err := c.exchange(ctx, msg, "packet", retries, packets.ErrorCode.Retryable, logger)
		resent += attempt
		if err != nil {
			return fmt.Errorf("failed to write offset %d: %w", offset, err)
		}

		if time.Since(lastReport) >= time.Second {
			lastReport = time.Now()
			logger.Info().
				Str("written", utils.DisplayB(uint64(end))).
				Str("rate", utils.DisplayBPS(uint64(end), time.Since(t))).
				Msg("Transfer progress")
		}
	}

	// end
	msg, err := packets.NewMessage(target, protocol.OpFirmwareEnd, &packets.PktFirmwareEnd{Checksum: checksum})
	if err != nil {
		return err
	}
	if _, err := c.exchange(ctx, msg, "end", retries, busyOnly, logger); err != nil {
		return fmt.Errorf("failed to commit image: %w", err)
	}

	elapsed := time.Since(t)
	logger.Info().
		Str("total", utils.DisplayBi(uint64(len(image)))).
		Str("avg", utils.DisplayBPS(uint64(len(image)), elapsed)).
		Uint32("checksum", checksum).
		Int("resent", resent).
		Msg("Firmware committed")

	if opts.GetBoot() {
		boot := &protocol.Message{Address: target, Opcode: protocol.OpBoot}
		if err := c.send(boot); err != nil {
			return fmt.Errorf("failed to send boot: %w", err)
		}
		logger.Info().Msg("Boot requested")
	}
	return nil
}
