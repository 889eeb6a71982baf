package entity

import "sync/atomic"

// Unassigned is the local id of a node that has not been addressed by a master
const Unassigned = 0

// Registry holds the identity of this node and the highest identity seen
// downstream. All methods are safe for concurrent use.
type Registry struct {
	local atomic.Uint32
	max   atomic.Uint32
}

func (r *Registry) SetLocalID(id uint8) {
	r.local.Store(uint32(id))
	r.ObserveDownstream(id)
}

func (r *Registry) LocalID() uint8 {
	return uint8(r.local.Load())
}

// Assigned reports whether a master has given this node an identity
func (r *Registry) Assigned() bool {
	return r.LocalID() != Unassigned
}

// ResetLocal drops the identity assigned by the master
func (r *Registry) ResetLocal() {
	r.local.Store(Unassigned)
}

// ObserveDownstream records id if it is the highest seen so far and reports
// whether it was
func (r *Registry) ObserveDownstream(id uint8) bool {
	for {
		cur := r.max.Load()
		if uint32(id) <= cur {
			return false
		}
		if r.max.CompareAndSwap(cur, uint32(id)) {
			return true
		}
	}
}

// MaxID returns the highest identity seen in the chain
func (r *Registry) MaxID() uint8 {
	return uint8(r.max.Load())
}

func (r *Registry) ResetDownstream() {
	r.max.Store(0)
}
