package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goodieshq/linkrelay/internal/protocol"
)

// DefaultSize is the capacity of an outbound mailbox
const DefaultSize = 200

// Mailbox is a bounded multi-producer single-consumer queue of messages.
// Producers never block: a message pushed into a full mailbox is dropped.
type Mailbox struct {
	ch      chan *protocol.Message
	dropped atomic.Uint64
}

func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultSize
	}
	return &Mailbox{ch: make(chan *protocol.Message, size)}
}

// Push enqueues msg and reports whether it was accepted
func (m *Mailbox) Push(msg *protocol.Message) bool {
	select {
	case m.ch <- msg:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// Pop waits up to timeout for a message. It returns false on timeout or
// when ctx is done.
func (m *Mailbox) Pop(ctx context.Context, timeout time.Duration) (*protocol.Message, bool) {
	select {
	case msg := <-m.ch:
		return msg, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-m.ch:
		return msg, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (m *Mailbox) Len() int {
	return len(m.ch)
}

func (m *Mailbox) Cap() int {
	return cap(m.ch)
}

// Dropped returns the number of messages rejected because the mailbox was full
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}
