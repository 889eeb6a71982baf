package flash

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange     = errors.New("flash access out of range")
	ErrUnaligned      = errors.New("flash erase address not sector aligned")
	ErrSaveInProgress = errors.New("flash record save already in progress")
	ErrInvalidBank    = errors.New("invalid flash bank")
)

// Device is a NOR flash: erased bytes read 0xFF and programming can only
// clear bits. Addresses are offsets from the start of the device.
type Device interface {
	EraseSector(addr uint32) error
	Program(addr uint32, data []byte) error
	Read(addr uint32, buf []byte) error
	Size() uint32
}

// Layout describes where records and firmware banks live on the device
type Layout struct {
	BootConfig uint32    // boot configuration sector
	AppConfig  uint32    // application configuration sector
	Banks      [3]uint32 // base of bank A, bank B and the golden bank
	BankSize   uint32    // size of each bank
	SectorSize uint32    // erase granularity
	PageSize   uint32    // program granularity, also the largest firmware packet
}

// DefaultPageSize is the program page of the unit's NOR flash
const DefaultPageSize = 256

// DefaultLayout mirrors the external flash map of the unit:
// boot loader 64K, boot config, app config, three 2M banks.
func DefaultLayout() Layout {
	return Layout{
		BootConfig: 0x00010000,
		AppConfig:  0x00020000,
		Banks:      [3]uint32{0x00200000, 0x00400000, 0x00600000},
		BankSize:   0x00200000,
		SectorSize: 0x1000,
		PageSize:   DefaultPageSize,
	}
}

// DeviceSize is the smallest device holding every region of the layout
func (l Layout) DeviceSize() uint32 {
	end := l.BootConfig + l.SectorSize
	if e := l.AppConfig + l.SectorSize; e > end {
		end = e
	}
	for _, b := range l.Banks {
		if e := b + l.BankSize; e > end {
			end = e
		}
	}
	return end
}

// BankBase returns the first address of bank index
func (l Layout) BankBase(index uint32) (uint32, error) {
	if index >= uint32(len(l.Banks)) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBank, index)
	}
	return l.Banks[index], nil
}

func checkRange(size, addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(size) {
		return fmt.Errorf("%w: 0x%08X+%d", ErrOutOfRange, addr, n)
	}
	return nil
}
