package flash

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInjected = errors.New("injected flash fault")

// MemDevice is an in-memory NOR flash
type MemDevice struct {
	mu         sync.Mutex
	data       []byte
	sectorSize uint32

	// Fault hooks, a hook returning true makes the operation fail
	FailErase   func(addr uint32) bool
	FailProgram func(addr uint32) bool
	FailRead    func(addr uint32) bool
	// Corrupt may alter data read back from the device
	Corrupt func(addr uint32, buf []byte)
}

// NewMemDevice returns an erased device of size bytes
func NewMemDevice(size, sectorSize uint32) *MemDevice {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemDevice{data: data, sectorSize: sectorSize}
}

func (d *MemDevice) Size() uint32 {
	return uint32(len(d.data))
}

func (d *MemDevice) EraseSector(addr uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr%d.sectorSize != 0 {
		return fmt.Errorf("%w: 0x%08X", ErrUnaligned, addr)
	}
	if err := checkRange(d.Size(), addr, int(d.sectorSize)); err != nil {
		return err
	}
	if d.FailErase != nil && d.FailErase(addr) {
		return ErrInjected
	}

	sector := d.data[addr : addr+d.sectorSize]
	for i := range sector {
		sector[i] = 0xFF
	}
	return nil
}

func (d *MemDevice) Program(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.Size(), addr, len(data)); err != nil {
		return err
	}
	if d.FailProgram != nil && d.FailProgram(addr) {
		return ErrInjected
	}

	for i, b := range data {
		d.data[int(addr)+i] &= b
	}
	return nil
}

func (d *MemDevice) Read(addr uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.Size(), addr, len(buf)); err != nil {
		return err
	}
	if d.FailRead != nil && d.FailRead(addr) {
		return ErrInjected
	}

	copy(buf, d.data[addr:])
	if d.Corrupt != nil {
		d.Corrupt(addr, buf)
	}
	return nil
}
