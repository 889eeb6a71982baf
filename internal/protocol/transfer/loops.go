package transfer

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/queue"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/rs/zerolog/log"
)

// Handler consumes one received datagram. data is only valid during the call.
type Handler func(data []byte, src netip.AddrPort)

// RecvLoop reads datagrams from t until ctx is done. tick runs after every
// receive attempt, including timeouts, so the caller can check link liveness.
func RecvLoop(ctx context.Context, t transport.Transport, timeout time.Duration, handle Handler, tick func()) error {
	// one byte more than a frame so oversized datagrams are detected
	buf := make([]byte, protocol.BufferSize+1)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, src, err := t.Receive(buf, timeout)
		switch {
		case err == nil:
			handle(buf[:n], src)
		case errors.Is(err, transport.ErrTimeout):
		case errors.Is(err, transport.ErrClosed):
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		default:
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Debug().Err(err).Msg("Receive failed")
		}

		if tick != nil {
			tick()
		}
	}
}

// Destination returns where drained messages go, ok is false when nobody
// is listening
type Destination func() (netip.AddrPort, bool)

// DrainLoop sends queued messages until ctx is done
func DrainLoop(ctx context.Context, t transport.Transport, out *queue.Mailbox, timeout time.Duration, dest Destination, stats *protocol.Stats) error {
	buf := make([]byte, 0, protocol.BufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok := out.Pop(ctx, timeout)
		if !ok {
			continue
		}

		addr, ok := dest()
		if !ok {
			stats.AddQueueDrop()
			continue
		}

		frame, err := protocol.AppendEncode(buf[:0], msg)
		if err != nil {
			log.Warn().Err(err).Str("opcode", msg.Opcode.String()).Msg("Dropping unencodable message")
			continue
		}

		if err := t.Send(frame, addr); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			log.Debug().Err(err).Str("remote", addr.String()).Msg("Send failed")
			continue
		}
		stats.AddFrameSent(len(frame))
	}
}

// Named pairs link statistics with the name they are logged under
type Named struct {
	Name  string
	Stats *protocol.Stats
}

// Logger periodically logs the throughput and drop counters of each link
func Logger(ctx context.Context, interval time.Duration, links ...Named) {
	if interval <= 0 {
		return
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	t := time.Now()

	last := make([]protocol.StatsSnapshot, len(links))
	for i, l := range links {
		last[i] = l.Stats.Snapshot()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			now := time.Now()
			diffTime := now.Sub(t)
			t = now

			for i, l := range links {
				snap := l.Stats.Snapshot()
				prev := last[i]
				last[i] = snap

				diffSent := snap.BytesSent - prev.BytesSent
				diffRcvd := snap.BytesRcvd - prev.BytesRcvd
				diffDropped := snap.Dropped() - prev.Dropped()
				diffQueue := snap.QueueDrops - prev.QueueDrops
				if diffSent == 0 && diffRcvd == 0 && diffDropped == 0 && diffQueue == 0 {
					continue
				}

				evt := log.Debug().Str("link", l.Name)
				if diffSent > 0 {
					evt = evt.Str("sent", utils.DisplayBPS(diffSent, diffTime))
				}
				if diffRcvd > 0 {
					evt = evt.Str("rcvd", utils.DisplayBPS(diffRcvd, diffTime))
				}
				if diffDropped > 0 {
					evt = evt.Uint64("dropped", diffDropped)
				}
				if diffQueue > 0 {
					evt = evt.Uint64("queue_drops", diffQueue)
				}
				evt.Msg("Link stats")
			}
		}
	}
}
