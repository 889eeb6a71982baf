package relay

import (
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// MaxVideoFrame bounds a reassembled video frame
const MaxVideoFrame = 1 << 20

// VideoSink receives reassembled frames. The frame slice is only valid until
// the reassembler has completed the following frame.
type VideoSink interface {
	OnVideoFrame(address uint8, parity bool, frame []byte)
}

// Reassembler rebuilds video frames from their fragments. Fragments must
// arrive in order; a skipped index drops the frame in progress.
type Reassembler struct {
	sink VideoSink
	max  int

	bufs    [2][]byte
	cur     int
	next    uint16 // index expected next
	active  bool   // a frame is in progress
	parity  bool
	seen    bool // parity holds the last fragment's parity
	aborted uint64
}

func NewReassembler(sink VideoSink, max int) *Reassembler {
	if max <= 0 {
		max = MaxVideoFrame
	}
	return &Reassembler{sink: sink, max: max}
}

func (r *Reassembler) reset() {
	r.active = false
	r.next = 0
	r.bufs[r.cur] = r.bufs[r.cur][:0]
}

func (r *Reassembler) abort(reason string, frag protocol.Fragment) {
	r.aborted++
	log.Debug().Str("reason", reason).Uint16("index", frag.Index).Uint16("expected", r.next).Msg("Video frame dropped")
	r.reset()
}

// Push adds one fragment and reports whether it completed a frame
func (r *Reassembler) Push(msg *protocol.Message) bool {
	frag := protocol.UnpackFragment(msg.Fragment)

	if frag.Index == 0 || !r.seen || frag.Parity != r.parity {
		r.reset()
	}
	r.parity = frag.Parity
	r.seen = true

	if frag.Index != r.next {
		if r.active {
			r.abort("gap", frag)
		}
		return false
	}
	if len(r.bufs[r.cur])+len(msg.Payload) > r.max {
		r.abort("oversize", frag)
		return false
	}

	r.bufs[r.cur] = append(r.bufs[r.cur], msg.Payload...)
	r.active = true
	r.next = frag.Index + 1

	if !frag.EndOfFrame {
		return false
	}

	frame := r.bufs[r.cur]
	r.cur ^= 1
	r.reset()

	if r.sink != nil {
		r.sink.OnVideoFrame(msg.Address, frag.Parity, frame)
	}
	return true
}

// Aborted returns the number of frames dropped
func (r *Reassembler) Aborted() uint64 {
	return r.aborted
}
