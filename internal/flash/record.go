package flash

import (
	"fmt"
	"sync/atomic"
)

// Record is a persisted structure occupying the start of one sector. Writes
// erase the sector and program the record in one step and only one write
// may be in flight; a concurrent save is rejected, not queued.
type Record struct {
	dev    Device
	addr   uint32
	saving atomic.Bool
}

func NewRecord(dev Device, addr uint32) *Record {
	return &Record{dev: dev, addr: addr}
}

// TryLock claims the record for a save. It returns false when a save is
// already in progress.
func (r *Record) TryLock() bool {
	return r.saving.CompareAndSwap(false, true)
}

func (r *Record) Unlock() {
	r.saving.Store(false)
}

// Saving reports whether a save is in progress
func (r *Record) Saving() bool {
	return r.saving.Load()
}

// Save writes data under the save guard
func (r *Record) Save(data []byte) error {
	if !r.TryLock() {
		return ErrSaveInProgress
	}
	defer r.Unlock()
	return r.Write(data)
}

// Write erases the record sector and programs data. The caller must hold
// the save guard.
func (r *Record) Write(data []byte) error {
	if err := r.dev.EraseSector(r.addr); err != nil {
		return fmt.Errorf("failed to erase record sector: %w", err)
	}
	if err := r.dev.Program(r.addr, data); err != nil {
		return fmt.Errorf("failed to program record: %w", err)
	}
	return nil
}

// Load reads len(buf) bytes of the record
func (r *Record) Load(buf []byte) error {
	if err := r.dev.Read(r.addr, buf); err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	return nil
}
