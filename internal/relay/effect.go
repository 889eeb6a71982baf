package relay

import (
	"github.com/goodieshq/linkrelay/internal/link"
	"github.com/goodieshq/linkrelay/internal/protocol"
)

type EffectKind uint8

const (
	EffectApply              EffectKind = iota // handled by a local collaborator
	EffectForward                              // enqueued unmodified on the opposite link
	EffectForwardReaddressed                   // enqueued with the address incremented
	EffectReply                                // answered by the firmware updater
	EffectDrop                                 // discarded
)

func (k EffectKind) String() string {
	switch k {
	case EffectApply:
		return "apply"
	case EffectForward:
		return "forward"
	case EffectForwardReaddressed:
		return "forward-readdressed"
	case EffectReply:
		return "reply"
	case EffectDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Effect is one action taken while dispatching a message
type Effect struct {
	Kind      EffectKind
	Opcode    protocol.Opcode
	Direction link.Direction // target link of a forward or reply
	Address   uint8          // address of the forwarded message
	Err       error
}

// Kinds lists the kinds of effects in order
func Kinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}
