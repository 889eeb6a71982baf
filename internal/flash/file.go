package flash

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileDevice is a NOR flash backed by an image file on the host
type FileDevice struct {
	mu         sync.Mutex
	f          *os.File
	size       uint32
	sectorSize uint32
}

// OpenFileDevice opens the image at path, creating an erased image of size
// bytes when it does not exist yet.
func OpenFileDevice(path string, size, sectorSize uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat flash image: %w", err)
	}

	if info.Size() < int64(size) {
		log.Info().Str("path", path).Uint32("size", size).Msg("Initializing erased flash image")
		pad := bytes.Repeat([]byte{0xFF}, int(int64(size)-info.Size()))
		if _, err := f.WriteAt(pad, info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to initialize flash image: %w", err)
		}
	}

	return &FileDevice{f: f, size: size, sectorSize: sectorSize}, nil
}

func (d *FileDevice) Size() uint32 {
	return d.size
}

func (d *FileDevice) EraseSector(addr uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr%d.sectorSize != 0 {
		return fmt.Errorf("%w: 0x%08X", ErrUnaligned, addr)
	}
	if err := checkRange(d.size, addr, int(d.sectorSize)); err != nil {
		return err
	}

	_, err := d.f.WriteAt(bytes.Repeat([]byte{0xFF}, int(d.sectorSize)), int64(addr))
	return err
}

func (d *FileDevice) Program(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.size, addr, len(data)); err != nil {
		return err
	}

	cur := make([]byte, len(data))
	if _, err := d.f.ReadAt(cur, int64(addr)); err != nil && err != io.EOF {
		return err
	}
	for i, b := range data {
		cur[i] &= b
	}

	_, err := d.f.WriteAt(cur, int64(addr))
	return err
}

func (d *FileDevice) Read(addr uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.size, addr, len(buf)); err != nil {
		return err
	}

	_, err := d.f.ReadAt(buf, int64(addr))
	if err == io.EOF {
		return nil
	}
	return err
}

func (d *FileDevice) Sync() error {
	return d.f.Sync()
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
